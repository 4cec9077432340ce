// Package review runs the interactive decision loop: one verdict per
// cluster, persisted after every decision, resumable mid-queue.
package review

import (
	"fmt"
	"time"

	"mailgroom/internal/exclusion"
	"mailgroom/internal/model"
)

// Session is the cooperative decision state machine. It is UI-agnostic; the
// terminal front-end and the non-interactive accept-all path drive the same
// transitions.
type Session struct {
	clusters   []model.Cluster
	store      *DecisionStore
	exclusions *exclusion.Set
	idx        int
	history    []historyEntry
}

type historyEntry struct {
	idx  int
	prev *model.Decision
}

// NewSession orders clusters for review (existing-filter clusters first,
// then the clusterer's narrowest-first order) and attaches persistence.
func NewSession(clusters []model.Cluster, store *DecisionStore, exclusions *exclusion.Set) *Session {
	ordered := make([]model.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if c.Existing != nil {
			ordered = append(ordered, c)
		}
	}
	for _, c := range clusters {
		if c.Existing == nil {
			ordered = append(ordered, c)
		}
	}
	s := &Session{clusters: ordered, store: store, exclusions: exclusions}
	s.advance()
	return s
}

// Current returns the cluster under review, or false when the queue is done.
func (s *Session) Current() (*model.Cluster, bool) {
	if s.idx >= len(s.clusters) {
		return nil, false
	}
	return &s.clusters[s.idx], true
}

// Position reports (1-based index, total) for display.
func (s *Session) Position() (int, int) {
	return s.idx + 1, len(s.clusters)
}

// Remaining counts clusters without a terminal decision.
func (s *Session) Remaining() int {
	n := 0
	for i := s.idx; i < len(s.clusters); i++ {
		if d, ok := s.store.Get(s.clusters[i].Key()); !ok || !d.Action.Terminal() {
			n++
		}
	}
	return n
}

// Decide applies a verdict to the current cluster, persists it, and
// advances past any clusters that already carry terminal decisions.
func (s *Session) Decide(action model.DecisionAction, labelPath string, archive bool) error {
	c, ok := s.Current()
	if !ok {
		return fmt.Errorf("no cluster under review")
	}

	if action == model.ActionUpdateExisting || action == model.ActionKeepExisting || action == model.ActionDeleteExisting {
		if c.Existing == nil {
			return fmt.Errorf("cluster %s has no existing filter", c.Key())
		}
	}

	d := model.Decision{
		ClusterKey:      c.Key(),
		Action:          action,
		Label:           labelPath,
		ShouldArchive:   archive,
		Tier:            c.Tier,
		SenderEmail:     c.SenderEmail,
		SenderDomain:    c.SenderDomain,
		SubjectPattern:  c.SubjectPattern,
		ExcludedSenders: append([]string(nil), c.ExcludedSenders...),
		MessageIDs:      append([]string(nil), c.MessageIDs...),
		DecidedAt:       time.Now().UTC(),
	}
	if c.Existing != nil {
		d.ExistingFilterID = c.Existing.ID
	}

	var prev *model.Decision
	if old, ok := s.store.Get(c.Key()); ok {
		prev = &old
	}

	if action == model.ActionExclude {
		if err := s.exclusions.Add(c.Key(), ""); err != nil {
			return err
		}
	}
	if err := s.store.Put(d); err != nil {
		return err
	}

	s.history = append(s.history, historyEntry{idx: s.idx, prev: prev})
	s.idx++
	s.advance()
	return nil
}

// Undo reopens the most recently decided cluster, restoring its prior
// decision state.
func (s *Session) Undo() error {
	if len(s.history) == 0 {
		return fmt.Errorf("nothing to undo")
	}
	entry := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]

	key := s.clusters[entry.idx].Key()
	var err error
	if entry.prev != nil {
		err = s.store.Put(*entry.prev)
	} else {
		err = s.store.Delete(key)
	}
	if err != nil {
		return err
	}
	s.idx = entry.idx
	return nil
}

// KeepAllExisting resolves every remaining existing-filter cluster with
// KeepExisting and leaves the pointer at the first new cluster.
func (s *Session) KeepAllExisting() error {
	for {
		c, ok := s.Current()
		if !ok || c.Existing == nil {
			return nil
		}
		if err := s.Decide(model.ActionKeepExisting, c.SuggestedLabel, c.ShouldArchive); err != nil {
			return err
		}
	}
}

// AcceptAll resolves every remaining cluster with the proposed label and
// archive hint. This is the no-review path. Clusters whose existing filter
// already carries the proposed rule are deduplicated by the materialiser,
// so accepting them is a no-op remotely.
func (s *Session) AcceptAll() error {
	for {
		c, ok := s.Current()
		if !ok {
			return nil
		}
		if err := s.Decide(model.ActionAccept, c.SuggestedLabel, c.ShouldArchive); err != nil {
			return err
		}
	}
}

// advance skips clusters that already have a terminal decision, so a
// resumed session lands on the first open cluster.
func (s *Session) advance() {
	for s.idx < len(s.clusters) {
		if d, ok := s.store.Get(s.clusters[s.idx].Key()); ok && d.Action.Terminal() {
			s.idx++
			continue
		}
		return
	}
}
