package integrity

import (
	"fmt"
	"strings"
	"time"
)

// Config tunes the check catalog and the remediation engine.
type Config struct {
	// StaleWarningAfter is how long an in-progress task may go without
	// activity before it is reported as aging.
	StaleWarningAfter time.Duration

	// StaleErrorAfter is the age at which an aging task becomes stale.
	// Must be greater than StaleWarningAfter.
	StaleErrorAfter time.Duration

	// SlowStoreThreshold is the ping latency at which the store is reported
	// as slow.
	SlowStoreThreshold time.Duration

	// StoreTimeout bounds the connectivity probe.
	StoreTimeout time.Duration

	// Location resolves scheduled dates and due times. Nil means UTC.
	Location *time.Location

	// Disabled lists check keys left out of RunAll. They can still be run
	// by key.
	Disabled []string

	// FixRate caps remediation writes per second. Zero means unlimited.
	FixRate float64

	// Actor is recorded as the author of every remediation write.
	Actor string
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		StaleWarningAfter:  3 * 24 * time.Hour,
		StaleErrorAfter:    7 * 24 * time.Hour,
		SlowStoreThreshold: 3 * time.Second,
		StoreTimeout:       10 * time.Second,
		Location:           time.UTC,
		Actor:              "integrity-agent",
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.StaleWarningAfter <= 0 {
		return fmt.Errorf("stale warning threshold must be positive (got %v)", c.StaleWarningAfter)
	}
	if c.StaleErrorAfter <= c.StaleWarningAfter {
		return fmt.Errorf("stale error threshold (%v) must be greater than warning threshold (%v)",
			c.StaleErrorAfter, c.StaleWarningAfter)
	}
	if c.SlowStoreThreshold <= 0 {
		return fmt.Errorf("slow store threshold must be positive (got %v)", c.SlowStoreThreshold)
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("store timeout must be non-negative (got %v)", c.StoreTimeout)
	}
	if c.FixRate < 0 {
		return fmt.Errorf("fix rate must be non-negative (got %v)", c.FixRate)
	}
	if strings.TrimSpace(c.Actor) == "" {
		return fmt.Errorf("actor is required")
	}
	return nil
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Config) disabled(key string) bool {
	for _, k := range c.Disabled {
		if k == key {
			return true
		}
	}
	return false
}
