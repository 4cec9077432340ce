package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MessageMetadata is the envelope-only view of a message. It is built once by
// the scanner and read-only afterwards. SenderEmail and SenderDomain are
// lowercase; SenderDomain is the registrable portion of the address domain.
type MessageMetadata struct {
	ID             string    `json:"id"`
	ThreadID       string    `json:"thread_id"`
	SenderEmail    string    `json:"sender_email"`
	SenderDomain   string    `json:"sender_domain"`
	SenderName     string    `json:"sender_name,omitempty"`
	Subject        string    `json:"subject"`
	Recipients     []string  `json:"recipients,omitempty"`
	DateReceived   time.Time `json:"date_received"`
	LabelIDs       []string  `json:"label_ids,omitempty"`
	HasUnsubscribe bool      `json:"has_unsubscribe"`
	IsAutomated    bool      `json:"is_automated"`
}

// Category is the closed set of classification outcomes.
type Category string

const (
	CategoryNewsletter   Category = "newsletter"
	CategoryReceipt      Category = "receipt"
	CategoryNotification Category = "notification"
	CategoryMarketing    Category = "marketing"
	CategoryShipping     Category = "shipping"
	CategoryFinancial    Category = "financial"
	CategoryPersonal     Category = "personal"
	CategoryOther        Category = "other"
)

// Categories lists every category in tie-break order: when two categories
// score equally the earlier one wins.
var Categories = []Category{
	CategoryNewsletter,
	CategoryReceipt,
	CategoryNotification,
	CategoryMarketing,
	CategoryShipping,
	CategoryFinancial,
	CategoryPersonal,
	CategoryOther,
}

// Classification is the classifier's verdict for one message. Equal metadata
// always yields an equal Classification.
type Classification struct {
	MessageID      string   `json:"message_id"`
	Category       Category `json:"category"`
	Confidence     float64  `json:"confidence"`
	SuggestedLabel string   `json:"suggested_label"`
	ShouldArchive  bool     `json:"should_archive"`
	Priority       int      `json:"priority"`
	Reasoning      string   `json:"reasoning,omitempty"`
}

// Tier is the narrowness level of a cluster.
type Tier string

const (
	TierSubjectSender Tier = "subject_sender"
	TierSender        Tier = "sender"
	TierDomain        Tier = "domain"
)

func (t Tier) rank() int {
	switch t {
	case TierSubjectSender:
		return 0
	case TierSender:
		return 1
	default:
		return 2
	}
}

// MoreSpecificThan reports whether t is a narrower tier than other.
func (t Tier) MoreSpecificThan(other Tier) bool {
	return t.rank() < other.rank()
}

// Cluster is one proposed filter candidate.
type Cluster struct {
	Tier            Tier     `json:"tier"`
	SenderEmail     string   `json:"sender_email,omitempty"`
	SenderDomain    string   `json:"sender_domain"`
	SubjectPattern  string   `json:"subject_pattern,omitempty"`
	ExcludedSenders []string `json:"excluded_senders,omitempty"`

	MessageIDs     []string `json:"message_ids"`
	SampleSubjects []string `json:"sample_subjects"`
	Category       Category `json:"category"`
	SuggestedLabel string   `json:"suggested_label"`
	Confidence     float64  `json:"confidence"`
	ShouldArchive  bool     `json:"should_archive"`

	// Existing is non-nil when the reconciler found a server-side filter
	// whose predicate equals this cluster's.
	Existing *ServerFilter `json:"existing,omitempty"`
}

// Key returns the cluster identity tuple serialised as a stable string. Every
// persisted structure that refers to a cluster (decisions, exclusions, filter
// dedup) must key on this full tuple; dropping the subject pattern would
// collide subject-specific and sender-wide clusters of the same sender.
func (c *Cluster) Key() string {
	excluded := append([]string(nil), c.ExcludedSenders...)
	sort.Strings(excluded)
	who := c.SenderEmail
	if c.Tier == TierDomain {
		who = c.SenderDomain
	}
	return fmt.Sprintf("%s|%s|%s|%s", c.Tier, who, c.SubjectPattern, strings.Join(excluded, ","))
}

// Count is the number of member messages.
func (c *Cluster) Count() int { return len(c.MessageIDs) }

// DecisionAction is the user's verdict kind for a cluster.
type DecisionAction string

const (
	ActionAccept         DecisionAction = "accept"
	ActionUpdateExisting DecisionAction = "update_existing"
	ActionKeepExisting   DecisionAction = "keep_existing"
	ActionDeleteExisting DecisionAction = "delete_existing"
	ActionReject         DecisionAction = "reject"
	ActionExclude        DecisionAction = "exclude"
	ActionSkip           DecisionAction = "skip"
	ActionDefer          DecisionAction = "defer"
)

// Terminal reports whether the action ends review for its cluster. Every
// recorded action, Defer included, is terminal: resumed sessions present
// only clusters with no decision at all.
func (a DecisionAction) Terminal() bool {
	return a != ""
}

// Decision records the outcome of reviewing one cluster. The materialiser
// treats the persisted decision map as the sole source of truth.
type Decision struct {
	ClusterKey       string         `json:"cluster_key"`
	Action           DecisionAction `json:"action"`
	Label            string         `json:"label,omitempty"`
	ShouldArchive    bool           `json:"should_archive"`
	ExistingFilterID string         `json:"existing_filter_id,omitempty"`

	Tier            Tier      `json:"tier"`
	SenderEmail     string    `json:"sender_email,omitempty"`
	SenderDomain    string    `json:"sender_domain"`
	SubjectPattern  string    `json:"subject_pattern,omitempty"`
	ExcludedSenders []string  `json:"excluded_senders,omitempty"`
	MessageIDs      []string  `json:"message_ids,omitempty"`
	DecidedAt       time.Time `json:"decided_at"`
}

// FilterRule is a materialisable server-side predicate plus its action.
type FilterRule struct {
	FromPattern     string   `json:"from_pattern,omitempty"`
	SubjectKeywords []string `json:"subject_keywords,omitempty"`
	ExcludedSenders []string `json:"excluded_senders,omitempty"`
	TargetLabelID   string   `json:"target_label_id"`
	ShouldArchive   bool     `json:"should_archive"`
}

// Canonical returns a copy with keyword and exclusion lists sorted so that
// deep equality is independent of field ordering.
func (r FilterRule) Canonical() FilterRule {
	out := r
	out.SubjectKeywords = append([]string(nil), r.SubjectKeywords...)
	out.ExcludedSenders = append([]string(nil), r.ExcludedSenders...)
	sort.Strings(out.SubjectKeywords)
	sort.Strings(out.ExcludedSenders)
	return out
}

// Equal reports deep predicate+action equality after canonicalisation.
func (r FilterRule) Equal(other FilterRule) bool {
	a, b := r.Canonical(), other.Canonical()
	if a.FromPattern != b.FromPattern ||
		a.TargetLabelID != b.TargetLabelID ||
		a.ShouldArchive != b.ShouldArchive ||
		len(a.SubjectKeywords) != len(b.SubjectKeywords) ||
		len(a.ExcludedSenders) != len(b.ExcludedSenders) {
		return false
	}
	for i := range a.SubjectKeywords {
		if a.SubjectKeywords[i] != b.SubjectKeywords[i] {
			return false
		}
	}
	for i := range a.ExcludedSenders {
		if a.ExcludedSenders[i] != b.ExcludedSenders[i] {
			return false
		}
	}
	return true
}

// SamePredicate reports equality of the match criteria only, ignoring the
// target label and archive flag. The reconciler uses this to attach existing
// filters whose action the user may want to change.
func (r FilterRule) SamePredicate(other FilterRule) bool {
	a, b := r.Canonical(), other.Canonical()
	a.TargetLabelID, b.TargetLabelID = "", ""
	a.ShouldArchive, b.ShouldArchive = false, false
	return a.Equal(b)
}

// ServerFilter is a filter that already exists on the provider.
type ServerFilter struct {
	ID   string     `json:"id"`
	Rule FilterRule `json:"rule"`
}
