package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opsdesk/integrity/internal/integrity"
	"github.com/opsdesk/integrity/internal/storage"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = ".opsdesk/integrity.yaml"

// Config is the on-disk configuration of the integrity agent.
//
// Example:
//
//	database:
//	  path: .opsdesk/opsdesk.db
//	logging:
//	  level: info
//	  format: console
//	checks:
//	  stale_warning_after: 3d
//	  stale_error_after: 1w
//	  slow_store_threshold: 3s
//	  timezone: Europe/Berlin
//	  disabled: [duplicate-tasks]
//	fix:
//	  rate: 5
//	  actor: integrity-agent
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Checks   ChecksConfig   `yaml:"checks"`
	Fix      FixConfig      `yaml:"fix"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	// Path to the database file. When empty the CLI falls back to
	// storage.DiscoverDatabase, and failing that runs unconfigured.
	Path string `yaml:"path"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level: "debug", "info", "warn" or "error"
	Level string `yaml:"level"`

	// Format: "console" or "json"
	Format string `yaml:"format"`
}

// ChecksConfig tunes the check catalog. Durations accept Go syntax plus the
// "d" and "w" suffixes.
type ChecksConfig struct {
	StaleWarningAfter  string   `yaml:"stale_warning_after"`
	StaleErrorAfter    string   `yaml:"stale_error_after"`
	SlowStoreThreshold string   `yaml:"slow_store_threshold"`
	StoreTimeout       string   `yaml:"store_timeout"`
	Timezone           string   `yaml:"timezone"`
	Disabled           []string `yaml:"disabled"`
}

// FixConfig tunes the remediation engine.
type FixConfig struct {
	// Rate caps fixes per second. 0 = unlimited.
	Rate float64 `yaml:"rate"`

	// Actor is recorded on every write the agent makes.
	Actor string `yaml:"actor"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
		Checks: ChecksConfig{
			StaleWarningAfter:  "3d",
			StaleErrorAfter:    "7d",
			SlowStoreThreshold: "3s",
			StoreTimeout:       "10s",
			Timezone:           "UTC",
		},
		Fix: FixConfig{Rate: 0, Actor: "integrity-agent"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Find returns DefaultPath if that file exists, or "".
func Find() string {
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	} else if !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: cannot stat %s: %v\n", DefaultPath, err)
	}
	return ""
}

// ApplyEnv overrides fields from the environment.
//
// Environment variables:
//   - INTEGRITY_DB: database path
//   - INTEGRITY_LOG_LEVEL: log level
//   - INTEGRITY_LOG_FORMAT: log format
//   - INTEGRITY_TIMEZONE: IANA zone for date checks
//   - INTEGRITY_FIX_RATE: fixes per second
//   - INTEGRITY_ACTOR: audit name for writes
func (c *Config) ApplyEnv() error {
	if err := parseEnvString("INTEGRITY_DB", &c.Database.Path); err != nil {
		return err
	}
	if err := parseEnvString("INTEGRITY_LOG_LEVEL", &c.Logging.Level); err != nil {
		return err
	}
	if err := parseEnvString("INTEGRITY_LOG_FORMAT", &c.Logging.Format); err != nil {
		return err
	}
	if err := parseEnvString("INTEGRITY_TIMEZONE", &c.Checks.Timezone); err != nil {
		return err
	}
	if err := parseEnvFloat("INTEGRITY_FIX_RATE", &c.Fix.Rate); err != nil {
		return err
	}
	if err := parseEnvString("INTEGRITY_ACTOR", &c.Fix.Actor); err != nil {
		return err
	}
	return nil
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}

	if _, err := c.Integrity(); err != nil {
		return err
	}
	return nil
}

// Integrity converts the checks and fix sections into an integrity.Config.
func (c *Config) Integrity() (integrity.Config, error) {
	cfg := integrity.DefaultConfig()

	durations := []struct {
		field string
		value string
		dest  *time.Duration
	}{
		{"checks.stale_warning_after", c.Checks.StaleWarningAfter, &cfg.StaleWarningAfter},
		{"checks.stale_error_after", c.Checks.StaleErrorAfter, &cfg.StaleErrorAfter},
		{"checks.slow_store_threshold", c.Checks.SlowStoreThreshold, &cfg.SlowStoreThreshold},
		{"checks.store_timeout", c.Checks.StoreTimeout, &cfg.StoreTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := parseDuration(d.value)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s %q: %w", d.field, d.value, err)
		}
		*d.dest = parsed
	}

	if c.Checks.Timezone != "" {
		loc, err := time.LoadLocation(c.Checks.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("invalid checks.timezone %q: %w", c.Checks.Timezone, err)
		}
		cfg.Location = loc
	}

	cfg.Disabled = append([]string(nil), c.Checks.Disabled...)
	cfg.FixRate = c.Fix.Rate
	if c.Fix.Actor != "" {
		cfg.Actor = c.Fix.Actor
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Storage returns the storage configuration.
func (c *Config) Storage() *storage.Config {
	return &storage.Config{Path: c.Database.Path}
}

// String returns a human-readable representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DB: %q, LogLevel: %s, StaleWarning: %s, StaleError: %s, Disabled: %v, FixRate: %g, Actor: %q}",
		c.Database.Path, c.Logging.Level, c.Checks.StaleWarningAfter, c.Checks.StaleErrorAfter,
		c.Checks.Disabled, c.Fix.Rate, c.Fix.Actor,
	)
}
