// Package exclusion persists cluster identities the user has permanently
// suppressed from review.
package exclusion

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"mailgroom/internal/errs"
)

// Entry records one suppressed cluster identity.
type Entry struct {
	ClusterKey string    `json:"cluster_key"`
	CreatedAt  time.Time `json:"created_at"`
	Reason     string    `json:"reason,omitempty"`
}

// Set is the persistent exclusion collection. Not safe for concurrent use;
// the pipeline touches it from one phase at a time.
type Set struct {
	path    string
	keys    map[string]struct{}
	entries []Entry
}

// Load reads the exclusion file, returning an empty set when it does not
// exist yet.
func Load(path string) (*Set, error) {
	s := &Set{path: path, keys: map[string]struct{}{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read exclusions: %w", err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, errs.Newf(errs.KindCorruptState, "parse exclusions file %s: %v", path, err)
	}
	for _, e := range s.entries {
		s.keys[e.ClusterKey] = struct{}{}
	}
	return s, nil
}

// Add inserts a key (idempotent) and persists the set.
func (s *Set) Add(clusterKey, reason string) error {
	if _, ok := s.keys[clusterKey]; ok {
		return nil
	}
	s.keys[clusterKey] = struct{}{}
	s.entries = append(s.entries, Entry{
		ClusterKey: clusterKey,
		CreatedAt:  time.Now().UTC(),
		Reason:     reason,
	})
	return s.save()
}

// Contains reports whether the cluster identity is suppressed.
func (s *Set) Contains(clusterKey string) bool {
	_, ok := s.keys[clusterKey]
	return ok
}

// Len is the number of suppressed identities.
func (s *Set) Len() int { return len(s.entries) }

// Keys returns the suppressed identities, sorted.
func (s *Set) Keys() []string {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// save writes atomically (temp + rename) so a crash never truncates the set.
func (s *Set) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write exclusions: %w", err)
	}
	return os.Rename(tmp, s.path)
}
