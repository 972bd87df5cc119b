package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/integrity/internal/storage"
	"github.com/opsdesk/integrity/internal/types"
)

func TestStore_ListTasksKeepsInsertionOrderAndCopies(t *testing.T) {
	s := New()
	s.AddTask(&types.Task{ID: "b", Title: "B", Status: types.TaskPending, AssignedTo: []string{"u-1"}})
	s.AddTask(&types.Task{ID: "a", Title: "A", Status: types.TaskArchived})
	s.AddTask(&types.Task{ID: "c", Title: "C", Status: types.TaskCompleted})

	tasks, err := s.ListTasks(context.Background(), types.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "b", tasks[0].ID)
	assert.Equal(t, "c", tasks[1].ID)

	// Mutating a returned record must not leak into the store
	tasks[0].AssignedTo[0] = "changed"
	assert.Equal(t, []string{"u-1"}, s.Task("b").AssignedTo)
}

func TestStore_UpdateTask(t *testing.T) {
	s := New()
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })
	s.AddTask(&types.Task{ID: "t", Title: "T", Status: types.TaskPending})

	err := s.UpdateTask(context.Background(), "t", map[string]interface{}{
		storage.FieldProgressPercent: 40,
		storage.FieldStatus:          types.TaskOverdue,
	}, "agent")
	require.NoError(t, err)

	got := s.Task("t")
	assert.Equal(t, 40, got.ProgressPercent)
	assert.Equal(t, types.TaskOverdue, got.Status)
	assert.True(t, got.UpdatedAt.Equal(fixed))
	require.Len(t, s.Writes(), 1)
	assert.Equal(t, "agent", s.Writes()[0].Actor)
}

func TestStore_UpdateTaskRejectsWithoutPartialWrite(t *testing.T) {
	s := New()
	s.AddTask(&types.Task{ID: "t", Title: "T", Status: types.TaskPending, ProgressPercent: 10})

	err := s.UpdateTask(context.Background(), "t", map[string]interface{}{
		storage.FieldProgressPercent: 50,
		"title":                      "nope",
	}, "agent")
	require.Error(t, err)
	assert.Equal(t, 10, s.Task("t").ProgressPercent)
	assert.Empty(t, s.Writes())

	err = s.UpdateTask(context.Background(), "missing", map[string]interface{}{storage.FieldProgressPercent: 1}, "agent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_FailureInjection(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	s.FailOn(OpListUserProfiles, boom)
	_, err := s.ListUserProfiles(ctx)
	assert.ErrorIs(t, err, boom)

	s.FailOn(OpListUserProfiles, nil)
	_, err = s.ListUserProfiles(ctx)
	assert.NoError(t, err)

	s.AddTask(&types.Task{ID: "t", Title: "T", Status: types.TaskPending})
	s.FailUpdate("t", boom)
	err = s.UpdateTask(ctx, "t", map[string]interface{}{storage.FieldProgressPercent: 1}, "agent")
	assert.ErrorIs(t, err, boom)

	s.SetConfigured(false)
	assert.False(t, s.Configured())
	_, err = s.ListTasks(ctx, types.TaskFilter{})
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestStore_PingDelayHonoursContext(t *testing.T) {
	s := New()
	s.SetPingDelay(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Ping(ctx), context.DeadlineExceeded)
}

func TestStore_UpdateProcedure(t *testing.T) {
	s := New()
	s.AddProcedure(&types.Procedure{ID: "p", Title: "P", Status: types.ProcedureActive})

	steps := []types.ProcedureStep{{ID: "s1", Order: 1}}
	require.NoError(t, s.UpdateProcedure(context.Background(), "p", map[string]interface{}{storage.FieldSteps: steps}, "agent"))
	assert.Equal(t, steps, s.Procedure("p").Steps)

	_, err := s.GetProcedure(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
