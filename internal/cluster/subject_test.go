package cluster

import "testing"

func TestNormalizeSubject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Weekly digest", "weekly digest"},
		{"reply prefix", "Re: Weekly digest", "weekly digest"},
		{"reply prefix upper", "RE: Weekly digest", "weekly digest"},
		{"stacked prefixes", "Re: Fwd: RE: hello", "hello"},
		{"fw prefix", "FW: status", "status"},
		{"digit run", "Order #12345 shipped", "order ## shipped"},
		{"short digits kept", "Top 10 reads", "top 10 reads"},
		{"tracking token", "Your code a1b2c3d4e5f6a7b8 expires", "your code expires"},
		{"whitespace collapse", "hello   world ", "hello world"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeSubject(tc.in); got != tc.want {
				t.Errorf("NormalizeSubject(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeSubjectIdempotent(t *testing.T) {
	inputs := []string{
		"Re: Fwd: Order #12345",
		"QNAP NAS Notification",
		"Your code a1b2c3d4e5f6a7b8 expires in 300 seconds",
		"RE: x",
		"re: x",
	}
	for _, in := range inputs {
		once := NormalizeSubject(in)
		if twice := NormalizeSubject(once); twice != once {
			t.Errorf("not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizeSubjectPrefixCaseInsensitive(t *testing.T) {
	if NormalizeSubject("RE: x") != NormalizeSubject("re: x") {
		t.Error("RE: and re: must normalize identically")
	}
}
