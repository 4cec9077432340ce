// Package filterengine matches proposed clusters against server-side
// filters and turns review decisions into remote filter operations.
package filterengine

import (
	"context"
	"fmt"

	"mailgroom/internal/cluster"
	"mailgroom/internal/gmail"
	"mailgroom/internal/model"
)

// Reconcile lists server-side filters once and attaches to each cluster the
// filter whose predicate equals the cluster's proposed predicate (after
// canonicalisation). Clusters are returned in place; the review session
// surfaces the matched ones first.
func Reconcile(ctx context.Context, client gmail.Client, clusters []model.Cluster) ([]model.Cluster, error) {
	existing, err := client.ListFilters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list filters: %w", err)
	}
	return MatchExisting(clusters, existing), nil
}

// MatchExisting is the pure core of Reconcile.
func MatchExisting(clusters []model.Cluster, existing []model.ServerFilter) []model.Cluster {
	for i := range clusters {
		proposed := cluster.Rule(&clusters[i], "", false)
		for _, sf := range existing {
			if sf.Rule.SamePredicate(proposed) {
				attached := sf
				clusters[i].Existing = &attached
				break
			}
		}
	}
	return clusters
}

// RuleFromDecision rebuilds the server predicate recorded in a decision.
func RuleFromDecision(d model.Decision, targetLabelID string) model.FilterRule {
	c := model.Cluster{
		Tier:            d.Tier,
		SenderEmail:     d.SenderEmail,
		SenderDomain:    d.SenderDomain,
		SubjectPattern:  d.SubjectPattern,
		ExcludedSenders: d.ExcludedSenders,
	}
	return cluster.Rule(&c, targetLabelID, d.ShouldArchive)
}
