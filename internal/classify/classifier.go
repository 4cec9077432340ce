// Package classify turns message metadata into a category, a confidence, a
// suggested label and an archive hint. Classification is a pure function of
// the metadata: no clock, no randomness, no mutable state.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"mailgroom/internal/model"
)

// senderFamilies maps automated local-part prefixes to the category they
// bias toward. An empty category marks the prefix as automated without a
// category opinion.
var senderFamilies = []struct {
	prefixes []string
	category model.Category
}{
	{[]string{"noreply@", "no-reply@", "donotreply@", "do-not-reply@"}, ""},
	{[]string{"notifications@", "notify@", "alerts@"}, model.CategoryNotification},
	{[]string{"marketing@", "promo@", "promotions@", "deals@"}, model.CategoryMarketing},
	{[]string{"newsletter@", "news@", "updates@", "digest@"}, model.CategoryNewsletter},
	{[]string{"billing@", "finance@", "invoices@", "accounts@"}, model.CategoryFinancial},
	{[]string{"orders@"}, model.CategoryReceipt},
	{[]string{"automated@", "auto@", "bot@", "system@"}, ""},
	{[]string{"info@", "contact@", "support@", "help@"}, ""},
}

// Bulk-mail service domains. Mail relayed through these is automated even
// when the sender address looks personal.
var automationServiceDomains = []string{
	"amazonses.com",
	"mailchimp.com",
	"sendgrid.net",
	"mailgun.org",
	"sparkpostmail.com",
	"mandrillapp.com",
	"postmarkapp.com",
}

// Subject regex families in cascade order. Every family that matches adds
// its weight to its category's score; earlier families carry higher weights.
var subjectFamilies = []struct {
	category model.Category
	weight   int
	re       *regexp.Regexp
}{
	{model.CategoryReceipt, 60, regexp.MustCompile(`(?i)(receipt|invoice|order|purchase|payment|transaction|confirmation|bill)`)},
	{model.CategoryShipping, 55, regexp.MustCompile(`(?i)(ship|deliver|tracking|dispatch|out for delivery|package|parcel|fedex|ups|usps|dhl)`)},
	{model.CategoryFinancial, 50, regexp.MustCompile(`(?i)(statement|balance|credit card|bank|account|payment due|funds|wire|transfer)`)},
	{model.CategoryNewsletter, 45, regexp.MustCompile(`(?i)(newsletter|digest|weekly|monthly|roundup|bulletin|update)`)},
	{model.CategoryMarketing, 40, regexp.MustCompile(`(?i)(sale|discount|offer|deal|promo|coupon|limited time|exclusive|save|% off)`)},
	{model.CategoryNotification, 35, regexp.MustCompile(`(?i)(notification|alert|reminder|verify|confirm|action required|security)`)},
}

var (
	automatedSubjectRe   = regexp.MustCompile(`(?i)(automated|automatic|do not reply|this is an automated|system generated)`)
	unsubscribeSubjectRe = regexp.MustCompile(`(?i)(unsubscribe|opt.?out|manage.?preferences|update.?subscription)`)
	marketingSubjectRe   = subjectFamilies[4].re
)

// Classifier applies the rule cascade. The label prefix keeps every
// suggested label under the managed hierarchy.
type Classifier struct {
	prefix string
}

// New returns a classifier generating labels under prefix.
func New(prefix string) *Classifier {
	if prefix == "" {
		prefix = "AutoManaged"
	}
	return &Classifier{prefix: prefix}
}

// Classify produces the deterministic verdict for one message.
func (c *Classifier) Classify(meta model.MessageMetadata) model.Classification {
	automated := IsAutomatedSender(meta)
	category := detectCategory(meta, automated)
	priority := priorityScore(meta, category, automated)

	return model.Classification{
		MessageID:      meta.ID,
		Category:       category,
		Confidence:     confidence(meta, automated),
		SuggestedLabel: c.suggestLabel(meta, category),
		ShouldArchive:  shouldArchive(category, priority),
		Priority:       priority,
		Reasoning:      reasoning(meta, category, automated, priority),
	}
}

// IsAutomatedSender reports whether the message comes from an automated
// source: known local-part prefix, unsubscribe header, automated subject
// boilerplate, or a bulk-mail service domain.
func IsAutomatedSender(meta model.MessageMetadata) bool {
	email := strings.ToLower(meta.SenderEmail)
	for _, family := range senderFamilies {
		for _, prefix := range family.prefixes {
			if strings.HasPrefix(email, prefix) {
				return true
			}
		}
	}
	if meta.HasUnsubscribe {
		return true
	}
	if automatedSubjectRe.MatchString(meta.Subject) {
		return true
	}
	for _, domain := range automationServiceDomains {
		if strings.HasSuffix(meta.SenderDomain, domain) {
			return true
		}
	}
	return false
}

// detectCategory accumulates weighted votes from each rule family and picks
// the top score, breaking ties by the fixed category order.
func detectCategory(meta model.MessageMetadata, automated bool) model.Category {
	scores := map[model.Category]int{}

	if svc, ok := KnownServices[meta.SenderDomain]; ok {
		scores[svc.Category] += 100
	}

	email := strings.ToLower(meta.SenderEmail)
	subject := strings.ToLower(meta.Subject)

	// Invoices from billing/finance addresses are Financial, not Receipt.
	if hasAnyPrefix(email, "billing@", "finance@", "invoices@", "accounts@") {
		if subjectFamilies[2].re.MatchString(subject) ||
			strings.Contains(subject, "invoice") ||
			strings.Contains(subject, "statement") ||
			strings.Contains(subject, "bill") {
			scores[model.CategoryFinancial] += 80
		}
	}

	for _, family := range subjectFamilies {
		if family.re.MatchString(subject) {
			scores[family.category] += family.weight
		}
	}

	for _, family := range senderFamilies {
		if family.category == "" {
			continue
		}
		for _, prefix := range family.prefixes {
			if strings.HasPrefix(email, prefix) {
				scores[family.category] += 30
				break
			}
		}
	}

	if meta.HasUnsubscribe {
		scores[model.CategoryNewsletter] += 10
		scores[model.CategoryMarketing] += 10
	}

	best := model.Category("")
	bestScore := 0
	for _, cat := range model.Categories {
		if s := scores[cat]; s > bestScore {
			best, bestScore = cat, s
		}
	}
	if bestScore == 0 {
		if automated {
			return model.CategoryOther
		}
		return model.CategoryPersonal
	}
	return best
}

// priorityScore derives urgency in [0, 100].
func priorityScore(meta model.MessageMetadata, category model.Category, automated bool) int {
	score := 50

	switch category {
	case model.CategoryFinancial:
		score += 40
	case model.CategoryReceipt, model.CategoryPersonal:
		score += 30
	case model.CategoryShipping:
		score += 20
	case model.CategoryNotification:
		score += 10
	case model.CategoryNewsletter:
		score -= 10
	case model.CategoryMarketing:
		score -= 20
	}

	if svc, ok := KnownServices[meta.SenderDomain]; ok {
		score = svc.Priority
	}

	subject := strings.ToLower(meta.Subject)
	if strings.Contains(subject, "urgent") || strings.Contains(subject, "important") {
		score += 20
	}
	if strings.Contains(subject, "action required") || strings.Contains(subject, "verify") {
		score += 15
	}
	if strings.Contains(subject, "password") || strings.Contains(subject, "security") {
		score += 25
	}
	if strings.Contains(subject, "invoice") || strings.Contains(subject, "payment") {
		score += 20
	}
	if strings.Contains(meta.SenderEmail, "billing") || strings.Contains(meta.SenderEmail, "finance") {
		score += 15
	}

	if automated {
		score -= 10
	}
	if meta.HasUnsubscribe {
		score -= 15
	}
	if marketingSubjectRe.MatchString(subject) {
		score -= 20
	}
	if unsubscribeSubjectRe.MatchString(subject) {
		score -= 10
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// shouldArchive marks low-priority bulk categories for inbox removal.
func shouldArchive(category model.Category, priority int) bool {
	switch category {
	case model.CategoryNewsletter, model.CategoryMarketing:
		return priority < 40
	case model.CategoryNotification:
		return priority < 30
	}
	return false
}

func confidence(meta model.MessageMetadata, automated bool) float64 {
	conf := 0.5
	if _, ok := KnownServices[meta.SenderDomain]; ok {
		conf += 0.3
	}
	subject := strings.ToLower(meta.Subject)
	for _, family := range subjectFamilies {
		if family.re.MatchString(subject) {
			conf += 0.2
			break
		}
	}
	if automated {
		conf += 0.15
	}
	if meta.HasUnsubscribe {
		conf += 0.1
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

func reasoning(meta model.MessageMetadata, category model.Category, automated bool, priority int) string {
	parts := []string{fmt.Sprintf("categorized as %s", category)}
	if svc, ok := KnownServices[meta.SenderDomain]; ok {
		parts = append(parts, "recognized service: "+svc.Name)
	}
	if automated {
		parts = append(parts, "automated sender")
	}
	parts = append(parts, fmt.Sprintf("priority %d/100", priority))
	return strings.Join(parts, "; ")
}

// categorySlugs are the path segments used in suggested labels.
var categorySlugs = map[model.Category]string{
	model.CategoryNewsletter:   "newsletters",
	model.CategoryReceipt:      "receipts",
	model.CategoryNotification: "notifications",
	model.CategoryMarketing:    "marketing",
	model.CategoryShipping:     "shipping",
	model.CategoryFinancial:    "financial",
	model.CategoryPersonal:     "personal",
	model.CategoryOther:        "other",
}

// suggestLabel builds <prefix>/<category-slug>/<sender-slug>. Known-service
// domains use their canonical display name as the slug; otherwise senders
// with a generic automated local part collapse to the domain alone so every
// noreply@/newsletter@ address of a domain shares one label.
func (c *Classifier) suggestLabel(meta model.MessageMetadata, category model.Category) string {
	if svc, ok := KnownServices[meta.SenderDomain]; ok {
		return c.prefix + "/" + categorySlugs[category] + "/" + Slug(svc.Name)
	}

	sender := meta.SenderEmail
	slugSource := meta.SenderDomain
	if sender != "" && !genericLocalPart(sender) {
		local := sender
		if at := strings.IndexByte(sender, '@'); at > 0 {
			local = sender[:at]
		}
		slugSource = local + "-" + meta.SenderDomain
	}
	if slugSource == "" {
		return c.prefix + "/" + categorySlugs[category]
	}
	return c.prefix + "/" + categorySlugs[category] + "/" + Slug(slugSource)
}

func genericLocalPart(email string) bool {
	for _, family := range senderFamilies {
		for _, prefix := range family.prefixes {
			if strings.HasPrefix(email, prefix) {
				return true
			}
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

var slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-kebabs a name for use as a label path segment, truncated at 50
// bytes on a dash boundary where possible.
func Slug(name string) string {
	s := strings.ToLower(name)
	s = slugStripRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
		if i := strings.LastIndexByte(s, '-'); i > 0 {
			s = s[:i]
		}
	}
	return s
}

// DominantLabel picks the most common non-empty label among classifications,
// breaking ties by the higher mean confidence and then lexicographically.
func DominantLabel(classifications []model.Classification) string {
	counts := map[string]int{}
	confSums := map[string]float64{}
	for _, cl := range classifications {
		if cl.SuggestedLabel == "" {
			continue
		}
		counts[cl.SuggestedLabel]++
		confSums[cl.SuggestedLabel] += cl.Confidence
	}
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		a, b := labels[i], labels[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		meanA := confSums[a] / float64(counts[a])
		meanB := confSums[b] / float64(counts[b])
		if meanA != meanB {
			return meanA > meanB
		}
		return a < b
	})
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}
