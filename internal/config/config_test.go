package config

import (
	"os"
	"path/filepath"
	"testing"

	"mailgroom/internal/errs"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.PeriodDays != 90 || cfg.Scan.MaxConcurrentRequests != 40 {
		t.Errorf("scan defaults wrong: %+v", cfg.Scan)
	}
	if cfg.Classification.Mode != "rules" || cfg.Classification.MinimumEmailsForLabel != 5 {
		t.Errorf("classification defaults wrong: %+v", cfg.Classification)
	}
	if cfg.Labels.Prefix != "AutoManaged" {
		t.Errorf("prefix default wrong: %q", cfg.Labels.Prefix)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
scan:
  period_days: 30
labels:
  prefix: Sorted
  auto_archive_categories: [newsletter]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scan.PeriodDays != 30 {
		t.Errorf("period_days = %d", cfg.Scan.PeriodDays)
	}
	if cfg.Scan.MaxConcurrentRequests != 40 {
		t.Errorf("unset key lost its default: %d", cfg.Scan.MaxConcurrentRequests)
	}
	if cfg.Labels.Prefix != "Sorted" || len(cfg.Labels.AutoArchiveCategories) != 1 {
		t.Errorf("labels = %+v", cfg.Labels)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Scan.PeriodDays = 0 },
		func(c *Config) { c.Scan.PeriodDays = 366 },
		func(c *Config) { c.Scan.MaxConcurrentRequests = 0 },
		func(c *Config) { c.Scan.MaxConcurrentRequests = 51 },
		func(c *Config) { c.Classification.Mode = "quantum" },
		func(c *Config) { c.Classification.MinimumEmailsForLabel = 0 },
		func(c *Config) { c.Labels.Prefix = "" },
		func(c *Config) { c.Labels.Prefix = "a/b" },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		err := cfg.Validate()
		if !errs.Is(err, errs.KindInvalidInput) {
			t.Errorf("case %d: err = %v, want invalid input", i, err)
		}
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("generated config invalid: %v", err)
	}
	if err := WriteDefault(path); err == nil {
		t.Error("overwrite must be refused")
	}
}
