package exclusion

import (
	"os"
	"path/filepath"
	"testing"

	"mailgroom/internal/errs"
)

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "exclusions.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 0 || s.Contains("anything") {
		t.Error("fresh set should be empty")
	}
}

func TestAddPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclusions.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Add("sender|friend@example.com||", "personal"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("sender|friend@example.com||", ""); err != nil {
		t.Fatalf("duplicate Add: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1 after duplicate add", s.Len())
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Contains("sender|friend@example.com||") {
		t.Error("reloaded set lost the key")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclusions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errs.Is(err, errs.KindCorruptState) {
		t.Errorf("err = %v, want corrupt state kind", err)
	}
}
