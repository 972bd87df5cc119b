package storage

import (
	"context"
	"errors"

	"github.com/opsdesk/integrity/internal/storage/sqlite"
	"github.com/opsdesk/integrity/internal/types"
)

// ErrNotConfigured is returned by every call on a Gateway that has no backend.
var ErrNotConfigured = errors.New("data store is not configured")

// ErrNotFound is returned when a patched or fetched record does not exist.
var ErrNotFound = sqlite.ErrNotFound

// Gateway is the read/write boundary to persisted tasks, procedures and
// user profiles. The integrity agent consumes it; it never owns the backend.
type Gateway interface {
	// Configured reports whether a backend is wired up at all.
	Configured() bool

	// Reads
	ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error)
	ListProcedures(ctx context.Context) ([]*types.Procedure, error)
	GetProcedure(ctx context.Context, id string) (*types.Procedure, error)
	ListUserProfiles(ctx context.Context) ([]*types.UserProfile, error)

	// Writes patch the named fields of a single record by id
	UpdateTask(ctx context.Context, id string, updates map[string]interface{}, actor string) error
	UpdateProcedure(ctx context.Context, id string, updates map[string]interface{}, actor string) error

	// Ping performs a minimal read against the backend.
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Task and procedure fields the integrity agent is allowed to patch
const (
	FieldProgressPercent  = "progress_percent"
	FieldCompletedStepIDs = "completed_step_ids"
	FieldAssignedTo       = "assigned_to"
	FieldStatus           = "status"
	FieldSteps            = "steps"
)

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".opsdesk/opsdesk.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	// Empty after defaults were applied means "not configured".
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".opsdesk/opsdesk.db",
	}
}

// NewStorage opens the SQLite backend described by cfg. A nil cfg uses
// DefaultConfig; a cfg with an empty path yields an unconfigured Gateway so
// callers can still run the configuration checks.
func NewStorage(ctx context.Context, cfg *Config) (Gateway, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		return Unconfigured{}, nil
	}

	store, err := sqlite.New(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Unconfigured is a Gateway with no backend. Every read and write fails with
// ErrNotConfigured.
type Unconfigured struct{}

var _ Gateway = Unconfigured{}

func (Unconfigured) Configured() bool { return false }

func (Unconfigured) ListTasks(context.Context, types.TaskFilter) ([]*types.Task, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) ListProcedures(context.Context) ([]*types.Procedure, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) GetProcedure(context.Context, string) (*types.Procedure, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) ListUserProfiles(context.Context) ([]*types.UserProfile, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) UpdateTask(context.Context, string, map[string]interface{}, string) error {
	return ErrNotConfigured
}

func (Unconfigured) UpdateProcedure(context.Context, string, map[string]interface{}, string) error {
	return ErrNotConfigured
}

func (Unconfigured) Ping(context.Context) error { return ErrNotConfigured }

func (Unconfigured) Close() error { return nil }
