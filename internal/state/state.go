// Package state persists the phase-aware run checkpoint that makes the
// pipeline resumable. Every write is atomic (temp + rename).
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"mailgroom/internal/errs"
)

// Phase names a pipeline stage. Transitions are monotonic.
type Phase string

const (
	PhaseScanning        Phase = "scanning"
	PhaseClassifying     Phase = "classifying"
	PhaseReviewing       Phase = "reviewing"
	PhaseCreatingLabels  Phase = "creating_labels"
	PhaseCreatingFilters Phase = "creating_filters"
	PhaseApplyingLabels  Phase = "applying_labels"
	PhaseComplete        Phase = "complete"
)

var phaseOrder = map[Phase]int{
	PhaseScanning:        0,
	PhaseClassifying:     1,
	PhaseReviewing:       2,
	PhaseCreatingLabels:  3,
	PhaseCreatingFilters: 4,
	PhaseApplyingLabels:  5,
	PhaseComplete:        6,
}

// Rank is the phase's position in the pipeline; unknown phases rank -1.
func (p Phase) Rank() int {
	r, ok := phaseOrder[p]
	if !ok {
		return -1
	}
	return r
}

// RunState is the serialised checkpoint. The pagination cursor, created-id
// maps and failed ids are the per-phase opaque checkpoints from which each
// phase resumes.
type RunState struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Phase     Phase     `json:"phase"`

	MessagesScanned  int `json:"messages_scanned"`
	MessagesModified int `json:"messages_modified"`
	CheckpointCount  int `json:"checkpoint_count"`

	PageToken        string   `json:"page_token,omitempty"`
	LastMessageID    string   `json:"last_message_id,omitempty"`
	FailedMessageIDs []string `json:"failed_message_ids,omitempty"`

	// CreatedLabels maps label path to server id; CreatedFilters maps
	// cluster identity key to filter id. Both phases treat these as
	// authoritative on resume and never recreate listed entries.
	CreatedLabels  map[string]string `json:"created_labels,omitempty"`
	CreatedFilters map[string]string `json:"created_filters,omitempty"`

	FailedBatchIDs []string `json:"failed_batch_ids,omitempty"`
	Completed      bool     `json:"completed"`
}

// Store owns the state file.
type Store struct {
	path  string
	state *RunState
}

// New creates a fresh run at path, overwriting any previous state.
func New(path string) *Store {
	now := time.Now().UTC()
	return &Store{
		path: path,
		state: &RunState{
			RunID:          uuid.NewString(),
			StartedAt:      now,
			UpdatedAt:      now,
			Phase:          PhaseScanning,
			CreatedLabels:  map[string]string{},
			CreatedFilters: map[string]string{},
		},
	}
}

// Load reads the state file; a missing file yields a fresh run.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var rs RunState
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, errs.Newf(errs.KindCorruptState,
			"parse state file %s: %v (delete it or pass --resume with a clean state)", path, err)
	}
	if rs.Phase.Rank() < 0 {
		return nil, errs.Newf(errs.KindCorruptState, "state file %s names unknown phase %q", path, rs.Phase)
	}
	if rs.CreatedLabels == nil {
		rs.CreatedLabels = map[string]string{}
	}
	if rs.CreatedFilters == nil {
		rs.CreatedFilters = map[string]string{}
	}
	return &Store{path: path, state: &rs}, nil
}

// Exists reports whether a state file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// State exposes the mutable checkpoint. Callers mutate it and then call
// Checkpoint to persist.
func (s *Store) State() *RunState { return s.state }

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Checkpoint stamps and persists the current state.
func (s *Store) Checkpoint() error {
	s.state.UpdatedAt = time.Now().UTC()
	s.state.CheckpointCount++
	return s.save()
}

// SetPhase advances the pipeline. Moving backwards is a bug and is refused.
func (s *Store) SetPhase(p Phase) error {
	if p.Rank() < s.state.Phase.Rank() {
		return fmt.Errorf("phase cannot move backwards: %s -> %s", s.state.Phase, p)
	}
	s.state.Phase = p
	s.state.UpdatedAt = time.Now().UTC()
	return s.save()
}

// Complete marks the run finished.
func (s *Store) Complete() error {
	s.state.Phase = PhaseComplete
	s.state.Completed = true
	s.state.UpdatedAt = time.Now().UTC()
	return s.save()
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, s.path)
}
