// Package config loads and validates the YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"mailgroom/internal/errs"
)

// ScanConfig bounds the scanning phase.
type ScanConfig struct {
	PeriodDays            int `mapstructure:"period_days" yaml:"period_days"`
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests"`
}

// ClassificationConfig selects the classification mode and thresholds.
type ClassificationConfig struct {
	Mode                  string `mapstructure:"mode" yaml:"mode"`
	MinimumEmailsForLabel int    `mapstructure:"minimum_emails_for_label" yaml:"minimum_emails_for_label"`
}

// LabelConfig shapes the managed label hierarchy.
type LabelConfig struct {
	Prefix                string   `mapstructure:"prefix" yaml:"prefix"`
	AutoArchiveCategories []string `mapstructure:"auto_archive_categories" yaml:"auto_archive_categories"`
}

// ExecutionConfig holds run-mode defaults that flags can override.
type ExecutionConfig struct {
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// Config is the full application configuration.
type Config struct {
	Scan           ScanConfig           `mapstructure:"scan" yaml:"scan"`
	Classification ClassificationConfig `mapstructure:"classification" yaml:"classification"`
	Labels         LabelConfig          `mapstructure:"labels" yaml:"labels"`
	Execution      ExecutionConfig      `mapstructure:"execution" yaml:"execution"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Scan:           ScanConfig{PeriodDays: 90, MaxConcurrentRequests: 40},
		Classification: ClassificationConfig{Mode: "rules", MinimumEmailsForLabel: 5},
		Labels:         LabelConfig{Prefix: "AutoManaged"},
		Execution:      ExecutionConfig{DryRun: false},
	}
}

// DefaultDataDir is where credentials, state and the cache live.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailgroom"
	}
	return filepath.Join(home, ".mailgroom")
}

// Load reads the configuration at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("scan.period_days", 90)
	v.SetDefault("scan.max_concurrent_requests", 40)
	v.SetDefault("classification.mode", "rules")
	v.SetDefault("classification.minimum_emails_for_label", 5)
	v.SetDefault("labels.prefix", "AutoManaged")
	v.SetDefault("execution.dry_run", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return Default(), nil
		}
		if os.IsNotExist(err) {
			return Default(), nil
		}
		if _, ok := err.(*os.PathError); ok {
			return Default(), nil
		}
		return nil, errs.Newf(errs.KindInvalidInput, "reading config %s: %v", path, err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.Newf(errs.KindInvalidInput, "parsing config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the documented option ranges.
func (c *Config) Validate() error {
	if c.Scan.PeriodDays < 1 || c.Scan.PeriodDays > 365 {
		return errs.Newf(errs.KindInvalidInput, "scan.period_days must be in [1, 365], got %d", c.Scan.PeriodDays)
	}
	if c.Scan.MaxConcurrentRequests < 1 || c.Scan.MaxConcurrentRequests > 50 {
		return errs.Newf(errs.KindInvalidInput, "scan.max_concurrent_requests must be in [1, 50], got %d", c.Scan.MaxConcurrentRequests)
	}
	switch c.Classification.Mode {
	case "rules", "ml", "hybrid":
	default:
		return errs.Newf(errs.KindInvalidInput, "classification.mode must be rules, ml or hybrid, got %q", c.Classification.Mode)
	}
	if c.Classification.MinimumEmailsForLabel < 1 {
		return errs.Newf(errs.KindInvalidInput, "classification.minimum_emails_for_label must be >= 1, got %d", c.Classification.MinimumEmailsForLabel)
	}
	if c.Labels.Prefix == "" {
		return errs.Newf(errs.KindInvalidInput, "labels.prefix must not be empty")
	}
	if strings.Contains(c.Labels.Prefix, "/") {
		return errs.Newf(errs.KindInvalidInput, "labels.prefix must not contain '/', got %q", c.Labels.Prefix)
	}
	return nil
}

const defaultConfigTemplate = `# mailgroom configuration
scan:
  # How many days of mail to organise.
  period_days: 90
  # Concurrent in-flight API requests. Tuned against Gmail's per-second
  # quota: the client refuses widths above 40 (5 units per read against a
  # 200 units/s target).
  max_concurrent_requests: 40

classification:
  # rules is the only fully supported mode; ml and hybrid fall back to
  # rules for now.
  mode: rules
  # Smallest group of messages that earns its own filter proposal.
  minimum_emails_for_label: 5

labels:
  # Every label the tool creates lives under this prefix.
  prefix: AutoManaged
  # Categories whose accepted filters default to archiving.
  auto_archive_categories: [newsletter, marketing]

execution:
  dry_run: false
`

// WriteDefault creates the default config file at path, refusing to
// overwrite an existing one.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errs.Newf(errs.KindInvalidInput, "config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
