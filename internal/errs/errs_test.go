package errs

import (
	"fmt"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestFromGoogleAPIStatusMapping(t *testing.T) {
	cases := []struct {
		code   int
		reason string
		want   Kind
	}{
		{401, "", KindAuth},
		{403, "", KindAuth},
		{403, "rateLimitExceeded", KindRateLimit},
		{404, "", KindRemotePermanent},
		{400, "", KindRemotePermanent},
		{409, "", KindConflict},
		{429, "", KindRateLimit},
		{500, "", KindNetwork},
		{503, "", KindNetwork},
	}
	for _, tc := range cases {
		apiErr := &googleapi.Error{Code: tc.code}
		if tc.reason != "" {
			apiErr.Errors = []googleapi.ErrorItem{{Reason: tc.reason}}
		}
		got := KindOf(FromGoogleAPI(apiErr))
		if got != tc.want {
			t.Errorf("code %d reason %q: kind = %s, want %s", tc.code, tc.reason, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Newf(KindRateLimit, "x")) || !Retryable(Newf(KindNetwork, "x")) {
		t.Error("rate limit and network errors must be retryable")
	}
	if Retryable(Newf(KindAuth, "x")) || Retryable(Newf(KindRemotePermanent, "x")) {
		t.Error("auth and permanent errors must fail fast")
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", Newf(KindConflict, "label exists"))
	if !Is(err, KindConflict) {
		t.Error("kind lost through wrapping")
	}
	if KindOf(err) != KindConflict {
		t.Errorf("KindOf = %s", KindOf(err))
	}
}
