package state

import (
	"os"
	"path/filepath"
	"testing"

	"mailgroom/internal/errs"
)

func TestLoadMissingCreatesFreshRun(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.State().RunID == "" {
		t.Error("fresh run has no id")
	}
	if s.State().Phase != PhaseScanning {
		t.Errorf("fresh phase = %s, want scanning", s.State().Phase)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, _ := Load(path)
	s.State().MessagesScanned = 150
	s.State().PageToken = "page-3"
	s.State().LastMessageID = "m150"
	s.State().FailedMessageIDs = []string{"m12"}
	s.State().CreatedLabels["AutoManaged/newsletters"] = "Label_7"
	if err := s.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := loaded.State()
	if got.RunID != s.State().RunID ||
		got.MessagesScanned != 150 ||
		got.PageToken != "page-3" ||
		got.LastMessageID != "m150" ||
		len(got.FailedMessageIDs) != 1 ||
		got.CreatedLabels["AutoManaged/newsletters"] != "Label_7" ||
		got.CheckpointCount != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestPhaseMonotonic(t *testing.T) {
	s, _ := Load(filepath.Join(t.TempDir(), "state.json"))
	if err := s.SetPhase(PhaseReviewing); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := s.SetPhase(PhaseReviewing); err != nil {
		t.Fatalf("same phase should be allowed: %v", err)
	}
	if err := s.SetPhase(PhaseScanning); err == nil {
		t.Error("moving backwards must fail")
	}
}

func TestComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, _ := Load(path)
	if err := s.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	loaded, _ := Load(path)
	if !loaded.State().Completed || loaded.State().Phase != PhaseComplete {
		t.Errorf("completion not persisted: %+v", loaded.State())
	}
}

func TestLoadCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errs.Is(err, errs.KindCorruptState) {
		t.Errorf("err = %v, want corrupt state kind", err)
	}
}
