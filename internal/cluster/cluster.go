// Package cluster groups classified messages into disjoint filter
// candidates: subject series per sender, whole senders, and whole domains
// with per-sender carve-outs.
package cluster

import (
	"sort"

	"mailgroom/internal/classify"
	"mailgroom/internal/model"
)

// Classified pairs a message with its classification.
type Classified struct {
	Meta  model.MessageMetadata
	Class model.Classification
}

// Options tunes clustering.
type Options struct {
	// MinEmails is the smallest group that earns its own cluster.
	MinEmails int
	// Excluded reports whether a cluster identity key is permanently
	// suppressed. Nil means nothing is excluded.
	Excluded func(key string) bool
}

// Build produces the ordered cluster list, narrowest tier first. Each
// message contributes to at most one cluster.
func Build(items []Classified, opts Options) []model.Cluster {
	minEmails := opts.MinEmails
	if minEmails < 1 {
		minEmails = 5
	}

	var clusters []model.Cluster

	// Tier 1: (sender, normalized subject) series.
	type subjectKey struct{ sender, pattern string }
	bySubject := map[subjectKey][]Classified{}
	for _, item := range items {
		key := subjectKey{item.Meta.SenderEmail, NormalizeSubject(item.Meta.Subject)}
		bySubject[key] = append(bySubject[key], item)
	}
	consumed := map[string]bool{}
	subjectKeys := make([]subjectKey, 0, len(bySubject))
	for key := range bySubject {
		subjectKeys = append(subjectKeys, key)
	}
	sort.Slice(subjectKeys, func(i, j int) bool {
		if subjectKeys[i].sender != subjectKeys[j].sender {
			return subjectKeys[i].sender < subjectKeys[j].sender
		}
		return subjectKeys[i].pattern < subjectKeys[j].pattern
	})
	for _, key := range subjectKeys {
		group := bySubject[key]
		if len(group) < minEmails || key.pattern == "" {
			continue
		}
		c := buildCluster(model.TierSubjectSender, group)
		c.SenderEmail = key.sender
		c.SubjectPattern = key.pattern
		clusters = append(clusters, c)
		for _, item := range group {
			consumed[item.Meta.ID] = true
		}
	}

	// Tier 2: whole senders, minus messages already claimed by a series.
	bySender := map[string][]Classified{}
	senderDomain := map[string]string{}
	for _, item := range items {
		senderDomain[item.Meta.SenderEmail] = item.Meta.SenderDomain
		if consumed[item.Meta.ID] {
			continue
		}
		bySender[item.Meta.SenderEmail] = append(bySender[item.Meta.SenderEmail], item)
	}
	senderHasCluster := map[string]bool{}
	senders := make([]string, 0, len(bySender))
	for sender := range bySender {
		senders = append(senders, sender)
	}
	sort.Strings(senders)
	for _, sender := range senders {
		group := bySender[sender]
		if len(group) < minEmails || sender == "" {
			continue
		}
		c := buildCluster(model.TierSender, group)
		c.SenderEmail = sender
		clusters = append(clusters, c)
		senderHasCluster[sender] = true
		for _, item := range group {
			consumed[item.Meta.ID] = true
		}
	}

	// Tier 3: whole domains. Senders that earned a Tier 2 cluster become
	// -from carve-outs so the two predicates do not overlap.
	byDomain := map[string][]Classified{}
	for _, item := range items {
		if consumed[item.Meta.ID] || senderHasCluster[item.Meta.SenderEmail] {
			continue
		}
		byDomain[item.Meta.SenderDomain] = append(byDomain[item.Meta.SenderDomain], item)
	}
	domains := make([]string, 0, len(byDomain))
	for domain := range byDomain {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	for _, domain := range domains {
		group := byDomain[domain]
		if len(group) < minEmails || domain == "" {
			continue
		}
		var excluded []string
		for sender := range senderHasCluster {
			if senderDomain[sender] == domain {
				excluded = append(excluded, sender)
			}
		}
		sort.Strings(excluded)
		c := buildCluster(model.TierDomain, group)
		c.SenderDomain = domain
		c.SenderEmail = ""
		c.ExcludedSenders = excluded
		clusters = append(clusters, c)
	}

	// Drop permanently excluded identities.
	if opts.Excluded != nil {
		kept := clusters[:0]
		for _, c := range clusters {
			if !opts.Excluded(c.Key()) {
				kept = append(kept, c)
			}
		}
		clusters = kept
	}

	// Most specific first; larger clusters first inside a tier.
	sort.SliceStable(clusters, func(i, j int) bool {
		a, b := &clusters[i], &clusters[j]
		if a.Tier != b.Tier {
			return a.Tier.MoreSpecificThan(b.Tier)
		}
		if a.Count() != b.Count() {
			return a.Count() > b.Count()
		}
		return a.Key() < b.Key()
	})

	return clusters
}

// buildCluster aggregates the member verdicts: majority category and label,
// mean confidence, majority archive hint, up to five sample subjects.
func buildCluster(tier model.Tier, group []Classified) model.Cluster {
	c := model.Cluster{Tier: tier, SenderDomain: group[0].Meta.SenderDomain}

	classifications := make([]model.Classification, 0, len(group))
	categoryCounts := map[model.Category]int{}
	archiveVotes := 0
	var confSum float64

	for _, item := range group {
		c.MessageIDs = append(c.MessageIDs, item.Meta.ID)
		if len(c.SampleSubjects) < 5 {
			c.SampleSubjects = append(c.SampleSubjects, item.Meta.Subject)
		}
		classifications = append(classifications, item.Class)
		categoryCounts[item.Class.Category]++
		if item.Class.ShouldArchive {
			archiveVotes++
		}
		confSum += item.Class.Confidence
	}

	best, bestCount := model.CategoryOther, 0
	for _, cat := range model.Categories {
		if n := categoryCounts[cat]; n > bestCount {
			best, bestCount = cat, n
		}
	}
	c.Category = best
	c.SuggestedLabel = classify.DominantLabel(classifications)
	c.Confidence = confSum / float64(len(group))
	c.ShouldArchive = archiveVotes > len(group)/2
	return c
}

// Rule derives the server-side predicate for a cluster, given the resolved
// target label id.
func Rule(c *model.Cluster, targetLabelID string, archive bool) model.FilterRule {
	rule := model.FilterRule{
		TargetLabelID: targetLabelID,
		ShouldArchive: archive,
	}
	switch c.Tier {
	case model.TierSubjectSender:
		rule.FromPattern = c.SenderEmail
		rule.SubjectKeywords = []string{c.SubjectPattern}
	case model.TierSender:
		rule.FromPattern = c.SenderEmail
	case model.TierDomain:
		rule.FromPattern = "*@" + c.SenderDomain
		rule.ExcludedSenders = append([]string(nil), c.ExcludedSenders...)
	}
	return rule.Canonical()
}
