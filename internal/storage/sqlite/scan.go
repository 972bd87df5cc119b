package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/opsdesk/integrity/internal/types"
)

const taskColumns = `id, title, procedure_id, steps, completed_step_ids, progress_percent,
		       status, assigned_to, scheduled_date, due_time, created_at, updated_at, started_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var task types.Task
	var steps, completed, assigned string
	var createdAt, updatedAt string
	var startedAt sql.NullString

	err := row.Scan(
		&task.ID, &task.Title, &task.ProcedureID, &steps, &completed,
		&task.ProgressPercent, &task.Status, &assigned, &task.ScheduledDate,
		&task.DueTime, &createdAt, &updatedAt, &startedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(steps), &task.Steps); err != nil {
		return nil, fmt.Errorf("task %s: failed to decode steps: %w", task.ID, err)
	}
	if err := json.Unmarshal([]byte(completed), &task.CompletedStepIDs); err != nil {
		return nil, fmt.Errorf("task %s: failed to decode completed_step_ids: %w", task.ID, err)
	}
	if err := json.Unmarshal([]byte(assigned), &task.AssignedTo); err != nil {
		return nil, fmt.Errorf("task %s: failed to decode assigned_to: %w", task.ID, err)
	}
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if startedAt.Valid && startedAt.String != "" {
		started, err := parseTime(startedAt.String)
		if err != nil {
			return nil, err
		}
		task.StartedAt = &started
	}

	return &task, nil
}

func scanProcedure(row rowScanner) (*types.Procedure, error) {
	var proc types.Procedure
	var steps, createdAt, updatedAt string

	if err := row.Scan(&proc.ID, &proc.Title, &steps, &proc.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &proc.Steps); err != nil {
		return nil, fmt.Errorf("procedure %s: failed to decode steps: %w", proc.ID, err)
	}

	var err error
	if proc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if proc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &proc, nil
}

// recordEvent writes an audit row inside the caller's transaction
func recordEvent(ctx context.Context, tx *sql.Tx, recordID, recordType string, eventType types.EventType, actor string, oldValue, newValue interface{}) error {
	var oldData sql.NullString
	if oldValue != nil {
		data, _ := json.Marshal(oldValue)
		oldData = sql.NullString{String: string(data), Valid: true}
	}
	newData, _ := json.Marshal(newValue)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO events (record_id, record_type, event_type, actor, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, recordID, recordType, string(eventType), actor, oldData, string(newData), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return string(data), nil
}

// Timestamps are stored as RFC 3339 text so they sort lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// sortedKeys keeps generated UPDATE statements deterministic
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilSteps(s []types.TaskStep) []types.TaskStep {
	if s == nil {
		return []types.TaskStep{}
	}
	return s
}

func nonNilProcedureSteps(s []types.ProcedureStep) []types.ProcedureStep {
	if s == nil {
		return []types.ProcedureStep{}
	}
	return s
}
