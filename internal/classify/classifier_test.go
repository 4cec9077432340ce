package classify

import (
	"strings"
	"testing"
	"time"

	"mailgroom/internal/model"
)

func testMessage(sender, subject string) model.MessageMetadata {
	domain := "example.com"
	if at := strings.IndexByte(sender, '@'); at > 0 {
		domain = sender[at+1:]
	}
	return model.MessageMetadata{
		ID:           "test-id",
		ThreadID:     "thread-id",
		SenderEmail:  sender,
		SenderDomain: domain,
		Subject:      subject,
		DateReceived: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAutomatedSenderDetection(t *testing.T) {
	cases := []struct {
		sender    string
		subject   string
		unsub     bool
		automated bool
	}{
		{"noreply@example.com", "Test", false, true},
		{"john@example.com", "Test", false, false},
		{"marketing@example.com", "Test", false, true},
		{"jane@example.com", "Test", true, true},
		{"person@news.sendgrid.net", "Test", false, true},
		{"team@example.com", "This is an automated message", false, true},
	}
	for _, tc := range cases {
		meta := testMessage(tc.sender, tc.subject)
		meta.HasUnsubscribe = tc.unsub
		if got := IsAutomatedSender(meta); got != tc.automated {
			t.Errorf("IsAutomatedSender(%s, %q) = %v, want %v", tc.sender, tc.subject, got, tc.automated)
		}
	}
}

func TestCategoryDetection(t *testing.T) {
	c := New("AutoManaged")
	cases := []struct {
		sender  string
		subject string
		want    model.Category
	}{
		{"orders@amazon.com", "Your Amazon Order Receipt", model.CategoryReceipt},
		{"deals@store.com", "50% Off Sale Today!", model.CategoryMarketing},
		{"billing@service.com", "Invoice #12345", model.CategoryFinancial},
		{"jobs@linkedin.com", "Jobs you may be interested in", model.CategoryNotification},
		{"friend@gmail.com", "lunch tomorrow?", model.CategoryPersonal},
		{"newsletter@example.com", "Weekly Newsletter", model.CategoryNewsletter},
		{"courier@shipfast.io", "Your package is out for delivery", model.CategoryShipping},
	}
	for _, tc := range cases {
		got := c.Classify(testMessage(tc.sender, tc.subject))
		if got.Category != tc.want {
			t.Errorf("Classify(%s, %q).Category = %s, want %s", tc.sender, tc.subject, got.Category, tc.want)
		}
	}
}

func TestClassifyDeterminism(t *testing.T) {
	c := New("AutoManaged")
	meta := testMessage("noreply@github.com", "Pull Request Notification")
	meta.HasUnsubscribe = true
	first := c.Classify(meta)
	for i := 0; i < 10; i++ {
		if got := c.Classify(meta); got != first {
			t.Fatalf("classification not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestPriorityScore(t *testing.T) {
	c := New("AutoManaged")
	financial := c.Classify(testMessage("billing@bank.com", "Important: Payment Due"))
	if financial.Priority <= 70 {
		t.Errorf("financial priority = %d, want > 70", financial.Priority)
	}
	marketing := c.Classify(testMessage("marketing@store.com", "Check out our deals"))
	if marketing.Priority >= 50 {
		t.Errorf("marketing priority = %d, want < 50", marketing.Priority)
	}
}

func TestKnownServiceOverride(t *testing.T) {
	c := New("AutoManaged")
	got := c.Classify(testMessage("jobs@linkedin.com", "New jobs for you"))
	if got.Category != model.CategoryNotification {
		t.Errorf("category = %s, want notification", got.Category)
	}
	if got.Priority < 50 {
		t.Errorf("priority = %d, want >= 50 (service base priority)", got.Priority)
	}
	if !strings.Contains(got.Reasoning, "LinkedIn") {
		t.Errorf("reasoning %q does not name the service", got.Reasoning)
	}
}

func TestSuggestedLabel(t *testing.T) {
	c := New("AutoManaged")
	cases := []struct {
		sender  string
		subject string
		want    string
	}{
		// Known-service domains label with the canonical service name.
		{"jobs@linkedin.com", "Jobs digest", "AutoManaged/notifications/linkedin"},
		{"noreply@github.com", "Build finished", "AutoManaged/notifications/github"},
		// Generic automated local parts collapse to the domain.
		{"newsletter@example.com", "Weekly newsletter", "AutoManaged/newsletters/example-com"},
		{"updates@widgets.example.net", "Release 2.0 is out", "AutoManaged/newsletters/widgets-example-net"},
		// Distinct local parts keep the sender in the slug.
		{"victor@example.com", "QNAP NAS Notification", "AutoManaged/notifications/victor-example-com"},
	}
	for _, tc := range cases {
		got := c.Classify(testMessage(tc.sender, tc.subject))
		if got.SuggestedLabel != tc.want {
			t.Errorf("label for %s = %q, want %q", tc.sender, got.SuggestedLabel, tc.want)
		}
	}
}

func TestArchiveHint(t *testing.T) {
	c := New("AutoManaged")

	bulk := testMessage("promo@shop.example.com", "Huge sale this weekend only")
	bulk.HasUnsubscribe = true
	if got := c.Classify(bulk); !got.ShouldArchive {
		t.Errorf("low-priority marketing should archive (priority %d)", got.Priority)
	}

	pay := c.Classify(testMessage("billing@bank.com", "Payment due"))
	if pay.ShouldArchive {
		t.Error("financial mail must never archive")
	}

	personal := c.Classify(testMessage("friend@gmail.com", "hey"))
	if personal.ShouldArchive {
		t.Error("personal mail must never archive")
	}
}

func TestSlug(t *testing.T) {
	cases := []struct{ in, want string }{
		{"example.com", "example-com"},
		{"user@domain.com", "user-domain-com"},
		{"Some_Name.Inc", "some-name-inc"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
	}
	for _, tc := range cases {
		if got := Slug(tc.in); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDominantLabel(t *testing.T) {
	cls := []model.Classification{
		{SuggestedLabel: "a", Confidence: 0.5},
		{SuggestedLabel: "a", Confidence: 0.5},
		{SuggestedLabel: "b", Confidence: 0.9},
	}
	if got := DominantLabel(cls); got != "a" {
		t.Errorf("DominantLabel = %q, want a", got)
	}
	tie := []model.Classification{
		{SuggestedLabel: "a", Confidence: 0.5},
		{SuggestedLabel: "b", Confidence: 0.9},
	}
	if got := DominantLabel(tie); got != "b" {
		t.Errorf("DominantLabel tie = %q, want b (higher confidence)", got)
	}
}
