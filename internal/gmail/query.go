package gmail

import (
	"regexp"
	"sort"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"mailgroom/internal/model"
)

// BuildQuery renders a rule as the deterministic fragment of Gmail's search
// syntax the system emits:
//
//	from:(user@example.com) subject:(alpha OR beta)
//	from:(*@example.com) -from:(a@example.com) -from:(b@example.com)
//
// Exclusions are sorted lexicographically so the output is stable.
func BuildQuery(rule model.FilterRule) string {
	rule = rule.Canonical()
	var parts []string
	if rule.FromPattern != "" {
		parts = append(parts, "from:("+rule.FromPattern+")")
	}
	if len(rule.SubjectKeywords) > 0 {
		parts = append(parts, "subject:("+strings.Join(rule.SubjectKeywords, " OR ")+")")
	}
	for _, excluded := range rule.ExcludedSenders {
		parts = append(parts, "-from:("+excluded+")")
	}
	return strings.Join(parts, " ")
}

// filterFromRule maps a rule onto the Gmail filter resource. The from pattern
// and subject keywords use the dedicated criteria fields; sender exclusions
// only fit in the free-form query criterion.
func filterFromRule(rule model.FilterRule) *gmailv1.Filter {
	rule = rule.Canonical()

	criteria := &gmailv1.FilterCriteria{From: rule.FromPattern}
	if len(rule.SubjectKeywords) > 0 {
		criteria.Subject = strings.Join(rule.SubjectKeywords, " OR ")
	}
	if len(rule.ExcludedSenders) > 0 {
		clauses := make([]string, 0, len(rule.ExcludedSenders))
		for _, excluded := range rule.ExcludedSenders {
			clauses = append(clauses, "-from:("+excluded+")")
		}
		criteria.Query = strings.Join(clauses, " ")
	}

	action := &gmailv1.FilterAction{AddLabelIds: []string{rule.TargetLabelID}}
	if rule.ShouldArchive {
		action.RemoveLabelIds = []string{"INBOX"}
	}

	return &gmailv1.Filter{Criteria: criteria, Action: action}
}

var excludedFromRe = regexp.MustCompile(`-from:\(([^)]+)\)`)

// ruleFromFilter converts a server filter back to the canonical rule form.
// Filters whose criteria fall outside the fragment this system emits (body
// terms, size limits, no label action) report ok=false and are ignored by
// the reconciler.
func ruleFromFilter(f *gmailv1.Filter) (model.FilterRule, bool) {
	if f == nil || f.Criteria == nil || f.Action == nil {
		return model.FilterRule{}, false
	}
	if len(f.Action.AddLabelIds) != 1 {
		return model.FilterRule{}, false
	}
	if f.Criteria.To != "" || f.Criteria.HasAttachment || f.Criteria.Size != 0 {
		return model.FilterRule{}, false
	}

	rule := model.FilterRule{
		FromPattern:   strings.ToLower(strings.TrimSpace(f.Criteria.From)),
		TargetLabelID: f.Action.AddLabelIds[0],
	}

	if subj := strings.TrimSpace(f.Criteria.Subject); subj != "" {
		subj = strings.TrimPrefix(subj, "(")
		subj = strings.TrimSuffix(subj, ")")
		for _, kw := range strings.Split(subj, " OR ") {
			if kw = strings.TrimSpace(kw); kw != "" {
				rule.SubjectKeywords = append(rule.SubjectKeywords, strings.ToLower(kw))
			}
		}
	}

	if q := f.Criteria.Query; q != "" {
		matches := excludedFromRe.FindAllStringSubmatch(q, -1)
		// A query with anything besides -from clauses is not ours.
		if stripped := strings.TrimSpace(excludedFromRe.ReplaceAllString(q, "")); stripped != "" {
			return model.FilterRule{}, false
		}
		for _, m := range matches {
			rule.ExcludedSenders = append(rule.ExcludedSenders, strings.ToLower(m[1]))
		}
	}

	for _, removed := range f.Action.RemoveLabelIds {
		if removed == "INBOX" {
			rule.ShouldArchive = true
		}
	}

	sort.Strings(rule.SubjectKeywords)
	sort.Strings(rule.ExcludedSenders)
	return rule, true
}
