package types

import (
	"fmt"
	"strings"
	"time"
)

// Task represents a scheduled unit of work built from procedure steps
type Task struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	ProcedureID      string     `json:"procedure_id,omitempty"`
	Steps            []TaskStep `json:"steps"`
	CompletedStepIDs []string   `json:"completed_step_ids"`
	ProgressPercent  int        `json:"progress_percent"`
	Status           TaskStatus `json:"status"`
	AssignedTo       []string   `json:"assigned_to"`
	ScheduledDate    string     `json:"scheduled_date,omitempty"` // YYYY-MM-DD
	DueTime          string     `json:"due_time,omitempty"`       // HH:MM, optional
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
}

// Validate checks if the task has valid field values
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if len(t.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	if t.ProgressPercent < 0 || t.ProgressPercent > 100 {
		return fmt.Errorf("progress_percent must be between 0 and 100 (got %d)", t.ProgressPercent)
	}
	if t.ScheduledDate != "" {
		if _, err := time.Parse(DateLayout, t.ScheduledDate); err != nil {
			return fmt.Errorf("invalid scheduled_date %q: %w", t.ScheduledDate, err)
		}
	}
	if t.DueTime != "" {
		if _, err := time.Parse(TimeLayout, t.DueTime); err != nil {
			return fmt.Errorf("invalid due_time %q: %w", t.DueTime, err)
		}
	}
	return nil
}

// StepIDs returns the ids of the task's steps in order.
func (t *Task) StepIDs() []string {
	ids := make([]string, 0, len(t.Steps))
	for _, step := range t.Steps {
		ids = append(ids, step.ID)
	}
	return ids
}

// IsActive reports whether the task is pending or in progress.
func (t *Task) IsActive() bool {
	return t.Status == TaskPending || t.Status == TaskInProgress
}

// LastActivity returns the time the task was last touched, falling back to
// the start time for rows that were never updated.
func (t *Task) LastActivity() time.Time {
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	if t.StartedAt != nil {
		return *t.StartedAt
	}
	return time.Time{}
}

// Layouts used for the scheduled_date and due_time columns
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// TaskStep is a single checklist entry of a task
type TaskStep struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskOverdue    TaskStatus = "overdue"
	TaskArchived   TaskStatus = "archived"
)

// IsValid checks if the status value is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskOverdue, TaskArchived:
		return true
	}
	return false
}

// TaskFilter restricts which tasks ListTasks returns.
// An empty Statuses slice means every non-archived status.
type TaskFilter struct {
	Statuses        []TaskStatus
	IncludeArchived bool
}

// Matches reports whether a task with the given status passes the filter.
func (f TaskFilter) Matches(status TaskStatus) bool {
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if s == status {
				return true
			}
		}
		return false
	}
	return f.IncludeArchived || status != TaskArchived
}

// Procedure is a reusable, ordered list of steps tasks are created from
type Procedure struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Steps     []ProcedureStep `json:"steps"`
	Status    ProcedureStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Validate checks if the procedure has valid field values
func (p *Procedure) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if len(p.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	return nil
}

// ProcedureStep is one step of a procedure. Order is 1-based.
type ProcedureStep struct {
	ID          string `json:"id"`
	Order       int    `json:"order"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ProcedureStatus represents the lifecycle state of a procedure
type ProcedureStatus string

const (
	ProcedureDraft    ProcedureStatus = "draft"
	ProcedureActive   ProcedureStatus = "active"
	ProcedureArchived ProcedureStatus = "archived"
)

// IsValid checks if the status value is valid
func (s ProcedureStatus) IsValid() bool {
	switch s {
	case ProcedureDraft, ProcedureActive, ProcedureArchived:
		return true
	}
	return false
}

// UserProfile is the subset of a user account the integrity checks need
type UserProfile struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns "First Last", or the id when both are empty.
func (u *UserProfile) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.ID
	}
	return name
}

// Event represents an audit trail entry
type Event struct {
	ID         int64     `json:"id"`
	RecordID   string    `json:"record_id"`
	RecordType string    `json:"record_type"`
	EventType  EventType `json:"event_type"`
	Actor      string    `json:"actor"`
	OldValue   *string   `json:"old_value,omitempty"`
	NewValue   *string   `json:"new_value,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventType categorizes audit trail events
type EventType string

const (
	EventCreated       EventType = "created"
	EventUpdated       EventType = "updated"
	EventStatusChanged EventType = "status_changed"
)
