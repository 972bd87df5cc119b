// Package memory provides an in-memory storage Gateway. It backs the
// integrity agent's tests and local dry runs, and can inject read, write and
// ping failures per operation or per record.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opsdesk/integrity/internal/storage"
	"github.com/opsdesk/integrity/internal/types"
)

// Operation names accepted by FailOn
const (
	OpListTasks        = "list_tasks"
	OpListProcedures   = "list_procedures"
	OpGetProcedure     = "get_procedure"
	OpListUserProfiles = "list_user_profiles"
	OpPing             = "ping"
)

// Store is a goroutine-safe in-memory Gateway. Records are returned in
// insertion order and copied on every read and write.
type Store struct {
	mu sync.Mutex

	tasks      map[string]*types.Task
	taskOrder  []string
	procs      map[string]*types.Procedure
	procOrder  []string
	users      map[string]*types.UserProfile
	userOrder  []string
	configured bool

	opErrors     map[string]error
	updateErrors map[string]error
	pingDelay    time.Duration
	now          func() time.Time

	writes []Write
}

// Write records one successful patch, for assertions in tests.
type Write struct {
	RecordID string
	Updates  map[string]interface{}
	Actor    string
}

var _ storage.Gateway = (*Store)(nil)

// New creates an empty, configured store.
func New() *Store {
	return &Store{
		tasks:        make(map[string]*types.Task),
		procs:        make(map[string]*types.Procedure),
		users:        make(map[string]*types.UserProfile),
		configured:   true,
		opErrors:     make(map[string]error),
		updateErrors: make(map[string]error),
		now:          time.Now,
	}
}

// SetConfigured toggles what Configured reports.
func (s *Store) SetConfigured(configured bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured = configured
}

// FailOn makes the named read operation return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.opErrors, op)
		return
	}
	s.opErrors[op] = err
}

// FailUpdate makes every patch of the given record return err.
func (s *Store) FailUpdate(recordID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.updateErrors, recordID)
		return
	}
	s.updateErrors[recordID] = err
}

// SetPingDelay makes Ping block for d, or until ctx is done.
func (s *Store) SetPingDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingDelay = d
}

// SetClock overrides the clock used for updated_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddTask seeds a task. Existing ids are replaced in place.
func (s *Store) AddTask(task *types.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; !exists {
		s.taskOrder = append(s.taskOrder, task.ID)
	}
	s.tasks[task.ID] = copyTask(task)
}

// AddProcedure seeds a procedure.
func (s *Store) AddProcedure(proc *types.Procedure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.procs[proc.ID]; !exists {
		s.procOrder = append(s.procOrder, proc.ID)
	}
	s.procs[proc.ID] = copyProcedure(proc)
}

// AddUser seeds a user profile.
func (s *Store) AddUser(user *types.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; !exists {
		s.userOrder = append(s.userOrder, user.ID)
	}
	u := *user
	s.users[user.ID] = &u
}

// Task returns a copy of a stored task, or nil.
func (s *Store) Task(id string) *types.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return copyTask(t)
	}
	return nil
}

// Procedure returns a copy of a stored procedure, or nil.
func (s *Store) Procedure(id string) *types.Procedure {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[id]; ok {
		return copyProcedure(p)
	}
	return nil
}

// Writes returns the successful patches in the order they were applied.
func (s *Store) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

func (s *Store) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

func (s *Store) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readErr(ctx, OpListTasks); err != nil {
		return nil, err
	}

	var out []*types.Task
	for _, id := range s.taskOrder {
		t := s.tasks[id]
		if filter.Matches(t.Status) {
			out = append(out, copyTask(t))
		}
	}
	return out, nil
}

func (s *Store) ListProcedures(ctx context.Context) ([]*types.Procedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readErr(ctx, OpListProcedures); err != nil {
		return nil, err
	}

	out := make([]*types.Procedure, 0, len(s.procOrder))
	for _, id := range s.procOrder {
		out = append(out, copyProcedure(s.procs[id]))
	}
	return out, nil
}

func (s *Store) GetProcedure(ctx context.Context, id string) (*types.Procedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readErr(ctx, OpGetProcedure); err != nil {
		return nil, err
	}

	p, ok := s.procs[id]
	if !ok {
		return nil, fmt.Errorf("procedure %s: %w", id, storage.ErrNotFound)
	}
	return copyProcedure(p), nil
}

func (s *Store) ListUserProfiles(ctx context.Context) ([]*types.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readErr(ctx, OpListUserProfiles); err != nil {
		return nil, err
	}

	out := make([]*types.UserProfile, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		u := *s.users[id]
		out = append(out, &u)
	}
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, id string, updates map[string]interface{}, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(ctx, id); err != nil {
		return err
	}

	current, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}

	// Apply to a copy so a rejected field leaves the record untouched
	next := copyTask(current)
	for key, value := range updates {
		if err := applyTaskField(next, key, value); err != nil {
			return err
		}
	}
	next.UpdatedAt = s.now()
	s.tasks[id] = next
	s.recordWrite(id, updates, actor)
	return nil
}

func (s *Store) UpdateProcedure(ctx context.Context, id string, updates map[string]interface{}, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(ctx, id); err != nil {
		return err
	}

	current, ok := s.procs[id]
	if !ok {
		return fmt.Errorf("procedure %s: %w", id, storage.ErrNotFound)
	}

	next := copyProcedure(current)
	for key, value := range updates {
		switch key {
		case storage.FieldSteps:
			steps, ok := value.([]types.ProcedureStep)
			if !ok {
				return fmt.Errorf("steps must be a []types.ProcedureStep (got %T)", value)
			}
			next.Steps = append([]types.ProcedureStep(nil), steps...)
		case storage.FieldStatus:
			status, ok := value.(types.ProcedureStatus)
			if !ok || !status.IsValid() {
				return fmt.Errorf("invalid status: %v", value)
			}
			next.Status = status
		default:
			return fmt.Errorf("invalid field for update: %s", key)
		}
	}
	next.UpdatedAt = s.now()
	s.procs[id] = next
	s.recordWrite(id, updates, actor)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	delay := s.pingDelay
	err := s.opErrors[OpPing]
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func (s *Store) Close() error { return nil }

// readErr must be called with s.mu held
func (s *Store) readErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.configured {
		return storage.ErrNotConfigured
	}
	return s.opErrors[op]
}

// writeErr must be called with s.mu held
func (s *Store) writeErr(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.configured {
		return storage.ErrNotConfigured
	}
	return s.updateErrors[id]
}

func (s *Store) recordWrite(id string, updates map[string]interface{}, actor string) {
	copied := make(map[string]interface{}, len(updates))
	for k, v := range updates {
		copied[k] = v
	}
	s.writes = append(s.writes, Write{RecordID: id, Updates: copied, Actor: actor})
}

func applyTaskField(t *types.Task, key string, value interface{}) error {
	switch key {
	case storage.FieldProgressPercent:
		percent, ok := value.(int)
		if !ok || percent < 0 || percent > 100 {
			return fmt.Errorf("progress_percent must be an int between 0 and 100 (got %v)", value)
		}
		t.ProgressPercent = percent
	case storage.FieldCompletedStepIDs:
		ids, ok := value.([]string)
		if !ok {
			return fmt.Errorf("completed_step_ids must be a []string (got %T)", value)
		}
		t.CompletedStepIDs = append([]string(nil), ids...)
	case storage.FieldAssignedTo:
		ids, ok := value.([]string)
		if !ok {
			return fmt.Errorf("assigned_to must be a []string (got %T)", value)
		}
		t.AssignedTo = append([]string(nil), ids...)
	case storage.FieldStatus:
		status, ok := value.(types.TaskStatus)
		if !ok {
			str, isString := value.(string)
			if !isString {
				return fmt.Errorf("status must be a string (got %T)", value)
			}
			status = types.TaskStatus(str)
		}
		if !status.IsValid() {
			return fmt.Errorf("invalid status: %s", status)
		}
		t.Status = status
	default:
		return fmt.Errorf("invalid field for update: %s", key)
	}
	return nil
}

func copyTask(t *types.Task) *types.Task {
	c := *t
	c.Steps = append([]types.TaskStep(nil), t.Steps...)
	c.CompletedStepIDs = append([]string(nil), t.CompletedStepIDs...)
	c.AssignedTo = append([]string(nil), t.AssignedTo...)
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	return &c
}

func copyProcedure(p *types.Procedure) *types.Procedure {
	c := *p
	c.Steps = append([]types.ProcedureStep(nil), p.Steps...)
	return &c
}
