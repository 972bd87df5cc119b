package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/opsdesk/integrity/internal/types"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SQLiteStorage implements the storage Gateway using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// New creates a new SQLite storage backend
func New(ctx context.Context, path string) (*SQLiteStorage, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serialises
	// writers for file databases.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	// Initialize schema
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: path}, nil
}

// Configured always reports true: an opened database is a configured backend.
func (s *SQLiteStorage) Configured() bool {
	return s != nil && s.db != nil
}

// Ping performs a minimal read against the tasks table.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM tasks LIMIT 1`).Scan(&id)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read tasks: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path
func (s *SQLiteStorage) Path() string {
	return s.path
}

// CreateTask inserts a new task
func (s *SQLiteStorage) CreateTask(ctx context.Context, task *types.Task, actor string) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	if task.Status == "" {
		task.Status = types.TaskPending
	}

	steps, err := encodeJSON(nonNilSteps(task.Steps))
	if err != nil {
		return err
	}
	completed, err := encodeJSON(nonNilStrings(task.CompletedStepIDs))
	if err != nil {
		return err
	}
	assigned, err := encodeJSON(nonNilStrings(task.AssignedTo))
	if err != nil {
		return err
	}
	var startedAt sql.NullString
	if task.StartedAt != nil {
		startedAt = sql.NullString{String: formatTime(*task.StartedAt), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, procedure_id, steps, completed_step_ids,
		                   progress_percent, status, assigned_to, scheduled_date,
		                   due_time, created_at, updated_at, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Title, task.ProcedureID, steps, completed,
		task.ProgressPercent, string(task.Status), assigned, task.ScheduledDate,
		task.DueTime, formatTime(task.CreatedAt), formatTime(task.UpdatedAt), startedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	if err := recordEvent(ctx, tx, task.ID, "task", types.EventCreated, actor, nil, task); err != nil {
		return err
	}

	return tx.Commit()
}

// GetTask retrieves a task by ID
func (s *SQLiteStorage) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ?
	`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks matching the filter ordered by creation time
func (s *SQLiteStorage) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []interface{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ", "))
	} else if !filter.IncludeArchived {
		query += " WHERE status != ?"
		args = append(args, string(types.TaskArchived))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// allowedTaskUpdateFields lists the task columns UpdateTask may patch
var allowedTaskUpdateFields = map[string]bool{
	"title":              true,
	"progress_percent":   true,
	"completed_step_ids": true,
	"assigned_to":        true,
	"status":             true,
	"scheduled_date":     true,
	"due_time":           true,
}

// UpdateTask patches fields on a task and records an audit event
func (s *SQLiteStorage) UpdateTask(ctx context.Context, id string, updates map[string]interface{}, actor string) error {
	// Get old task for event
	oldTask, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}

	// Build update query with validated field names
	setClauses := []string{"updated_at = ?"}
	args := []interface{}{formatTime(time.Now())}

	for _, key := range sortedKeys(updates) {
		// Prevent SQL injection by validating field names
		if !allowedTaskUpdateFields[key] {
			return fmt.Errorf("invalid field for update: %s", key)
		}

		value, err := taskColumnValue(key, updates[key])
		if err != nil {
			return err
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
		args = append(args, value)
	}
	args = append(args, id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	eventType := types.EventUpdated
	if _, ok := updates["status"]; ok {
		eventType = types.EventStatusChanged
	}
	if err := recordEvent(ctx, tx, id, "task", eventType, actor, oldTask, updates); err != nil {
		return err
	}

	return tx.Commit()
}

// taskColumnValue validates an update value and converts it to its column form
func taskColumnValue(key string, value interface{}) (interface{}, error) {
	switch key {
	case "progress_percent":
		percent, ok := value.(int)
		if !ok {
			return nil, fmt.Errorf("progress_percent must be an int (got %T)", value)
		}
		if percent < 0 || percent > 100 {
			return nil, fmt.Errorf("progress_percent must be between 0 and 100 (got %d)", percent)
		}
		return percent, nil
	case "completed_step_ids", "assigned_to":
		ids, ok := value.([]string)
		if !ok {
			return nil, fmt.Errorf("%s must be a []string (got %T)", key, value)
		}
		return encodeJSON(nonNilStrings(ids))
	case "status":
		var status types.TaskStatus
		switch v := value.(type) {
		case types.TaskStatus:
			status = v
		case string:
			status = types.TaskStatus(v)
		default:
			return nil, fmt.Errorf("status must be a string (got %T)", value)
		}
		if !status.IsValid() {
			return nil, fmt.Errorf("invalid status: %s", status)
		}
		return string(status), nil
	case "title":
		title, ok := value.(string)
		if !ok || len(title) == 0 || len(title) > 500 {
			return nil, fmt.Errorf("title must be 1-500 characters")
		}
		return title, nil
	default:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a string (got %T)", key, value)
		}
		return s, nil
	}
}

// CreateProcedure inserts a new procedure
func (s *SQLiteStorage) CreateProcedure(ctx context.Context, proc *types.Procedure, actor string) error {
	if err := proc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	if proc.CreatedAt.IsZero() {
		proc.CreatedAt = now
	}
	if proc.UpdatedAt.IsZero() {
		proc.UpdatedAt = now
	}

	steps, err := encodeJSON(nonNilProcedureSteps(proc.Steps))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO procedures (id, title, steps, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, proc.ID, proc.Title, steps, string(proc.Status), formatTime(proc.CreatedAt), formatTime(proc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert procedure: %w", err)
	}

	if err := recordEvent(ctx, tx, proc.ID, "procedure", types.EventCreated, actor, nil, proc); err != nil {
		return err
	}

	return tx.Commit()
}

// GetProcedure retrieves a procedure by ID
func (s *SQLiteStorage) GetProcedure(ctx context.Context, id string) (*types.Procedure, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, steps, status, created_at, updated_at
		FROM procedures
		WHERE id = ?
	`, id)
	proc, err := scanProcedure(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("procedure %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get procedure: %w", err)
	}
	return proc, nil
}

// ListProcedures returns every procedure, archived ones included
func (s *SQLiteStorage) ListProcedures(ctx context.Context) ([]*types.Procedure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, steps, status, created_at, updated_at
		FROM procedures
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query procedures: %w", err)
	}
	defer rows.Close()

	var procs []*types.Procedure
	for rows.Next() {
		proc, err := scanProcedure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan procedure: %w", err)
		}
		procs = append(procs, proc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate procedures: %w", err)
	}
	return procs, nil
}

// UpdateProcedure patches fields on a procedure. Only "steps" and "status"
// may be changed.
func (s *SQLiteStorage) UpdateProcedure(ctx context.Context, id string, updates map[string]interface{}, actor string) error {
	oldProc, err := s.GetProcedure(ctx, id)
	if err != nil {
		return err
	}

	setClauses := []string{"updated_at = ?"}
	args := []interface{}{formatTime(time.Now())}

	for _, key := range sortedKeys(updates) {
		value := updates[key]
		switch key {
		case "steps":
			steps, ok := value.([]types.ProcedureStep)
			if !ok {
				return fmt.Errorf("steps must be a []types.ProcedureStep (got %T)", value)
			}
			encoded, err := encodeJSON(nonNilProcedureSteps(steps))
			if err != nil {
				return err
			}
			value = encoded
		case "status":
			status, ok := value.(types.ProcedureStatus)
			if !ok {
				str, isString := value.(string)
				if !isString {
					return fmt.Errorf("status must be a string (got %T)", value)
				}
				status = types.ProcedureStatus(str)
			}
			if !status.IsValid() {
				return fmt.Errorf("invalid status: %s", status)
			}
			value = string(status)
		default:
			return fmt.Errorf("invalid field for update: %s", key)
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
		args = append(args, value)
	}
	args = append(args, id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf("UPDATE procedures SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update procedure: %w", err)
	}

	if err := recordEvent(ctx, tx, id, "procedure", types.EventUpdated, actor, oldProc, updates); err != nil {
		return err
	}

	return tx.Commit()
}

// CreateUserProfile inserts a new user profile
func (s *SQLiteStorage) CreateUserProfile(ctx context.Context, user *types.UserProfile) error {
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("validation failed: id is required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (id, first_name, last_name, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.FirstName, user.LastName, user.IsActive, formatTime(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert user profile: %w", err)
	}
	return nil
}

// ListUserProfiles returns every user profile, active or not
func (s *SQLiteStorage) ListUserProfiles(ctx context.Context) ([]*types.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, is_active, created_at
		FROM user_profiles
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user profiles: %w", err)
	}
	defer rows.Close()

	var users []*types.UserProfile
	for rows.Next() {
		var u types.UserProfile
		var createdAt string
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user profile: %w", err)
		}
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user profiles: %w", err)
	}
	return users, nil
}

// GetEvents returns the audit trail for a record, oldest first
func (s *SQLiteStorage) GetEvents(ctx context.Context, recordID string) ([]*types.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, record_type, event_type, actor, old_value, new_value, created_at
		FROM events
		WHERE record_id = ?
		ORDER BY id
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var e types.Event
		var oldValue, newValue sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RecordID, &e.RecordType, &e.EventType, &e.Actor, &oldValue, &newValue, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if oldValue.Valid {
			e.OldValue = &oldValue.String
		}
		if newValue.Valid {
			e.NewValue = &newValue.String
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
