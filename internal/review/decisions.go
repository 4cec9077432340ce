package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"mailgroom/internal/errs"
	"mailgroom/internal/model"
)

// DecisionStore persists the decision map keyed by cluster identity. The
// whole map is rewritten atomically after every decision, so a crash can
// lose at most the decision being made.
type DecisionStore struct {
	path      string
	decisions map[string]model.Decision
}

// LoadDecisions reads the decisions file; missing means an empty map.
func LoadDecisions(path string) (*DecisionStore, error) {
	ds := &DecisionStore{path: path, decisions: map[string]model.Decision{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ds, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read decisions: %w", err)
	}
	if err := json.Unmarshal(data, &ds.decisions); err != nil {
		return nil, errs.Newf(errs.KindCorruptState, "parse decisions file %s: %v", path, err)
	}
	return ds, nil
}

// Get returns the decision for a cluster key.
func (ds *DecisionStore) Get(key string) (model.Decision, bool) {
	d, ok := ds.decisions[key]
	return d, ok
}

// Put records a decision and persists the map.
func (ds *DecisionStore) Put(d model.Decision) error {
	ds.decisions[d.ClusterKey] = d
	return ds.save()
}

// Delete removes a decision (used by undo and --ignore-exclusions) and
// persists.
func (ds *DecisionStore) Delete(key string) error {
	delete(ds.decisions, key)
	return ds.save()
}

// Len is the number of recorded decisions.
func (ds *DecisionStore) Len() int { return len(ds.decisions) }

// All returns decisions sorted by cluster key for stable iteration.
func (ds *DecisionStore) All() []model.Decision {
	keys := make([]string, 0, len(ds.decisions))
	for k := range ds.decisions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]model.Decision, 0, len(keys))
	for _, k := range keys {
		out = append(out, ds.decisions[k])
	}
	return out
}

// save serialises the map with sorted keys (encoding/json sorts map keys)
// and writes temp + rename.
func (ds *DecisionStore) save() error {
	if err := os.MkdirAll(filepath.Dir(ds.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(ds.decisions, "", "  ")
	if err != nil {
		return err
	}
	tmp := ds.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write decisions: %w", err)
	}
	return os.Rename(tmp, ds.path)
}
