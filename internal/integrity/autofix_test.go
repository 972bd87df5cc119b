package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/integrity/internal/storage"
	"github.com/opsdesk/integrity/internal/storage/memory"
	"github.com/opsdesk/integrity/internal/types"
)

func TestAutoFix_PartialFailure(t *testing.T) {
	store := memory.New()
	for _, id := range []string{"t1", "t2", "t3"} {
		store.AddTask(&types.Task{ID: id, Title: id, Status: types.TaskPending,
			Steps: taskSteps("a", "b"), CompletedStepIDs: []string{"a"}, ProgressPercent: 0})
	}
	boom := errors.New("row locked")
	store.FailUpdate("t2", boom)
	agent := newTestAgent(t, store)
	ctx := context.Background()

	issues, err := agent.RunOne(ctx, CheckTaskProgress)
	require.NoError(t, err)
	require.Len(t, issues, 3)

	outcome := agent.AutoFix(ctx, issues)
	assert.Equal(t, 2, outcome.Fixed)
	assert.Equal(t, 1, outcome.Failed)

	assert.Equal(t, 50, store.Task("t1").ProgressPercent)
	assert.Equal(t, 0, store.Task("t2").ProgressPercent)
	assert.Equal(t, 50, store.Task("t3").ProgressPercent)

	require.Len(t, outcome.Failures, 1)
	failure := outcome.Failures[0]
	assert.Equal(t, FixSetProgress, failure.Kind)
	assert.Equal(t, "t2", failure.Record)
	assert.Equal(t, issues[1].ID, failure.IssueID)
	assert.ErrorIs(t, failure, boom)
}

func TestAutoFix_SkipsNonFixable(t *testing.T) {
	store := memory.New()
	agent := newTestAgent(t, store)

	issues := []Issue{
		newIssue(SeverityWarning, CategoryTask, TitleDuplicateTasks, "dup", []string{"a", "b"}, nil),
		newIssue(SeverityInfo, CategorySystem, "note", "note", nil, nil),
	}
	outcome := agent.AutoFix(context.Background(), issues)
	assert.Equal(t, FixOutcome{}, outcome)
	assert.Empty(t, store.Writes())
}

func TestAutoFix_FixableWithoutFixCountsAsFailure(t *testing.T) {
	agent := newTestAgent(t, memory.New())
	broken := Issue{ID: "x", AutoFixable: true}

	outcome := agent.AutoFix(context.Background(), []Issue{broken})
	assert.Equal(t, 1, outcome.Failed)
	require.Len(t, outcome.Failures, 1)
	assert.ErrorIs(t, outcome.Failures[0], errNoFixBound)
}

func TestAutoFix_StaleFixStillApplied(t *testing.T) {
	store := memory.New()
	store.AddTask(&types.Task{ID: "t", Title: "T", Status: types.TaskPending,
		Steps: taskSteps("a", "b"), CompletedStepIDs: []string{"a"}, ProgressPercent: 0})
	agent := newTestAgent(t, store)
	ctx := context.Background()

	issues, err := agent.RunOne(ctx, CheckTaskProgress)
	require.NoError(t, err)

	// Someone completes the second step between detection and remediation
	require.NoError(t, store.UpdateTask(ctx, "t", map[string]interface{}{
		storage.FieldCompletedStepIDs: []string{"a", "b"},
	}, "operator"))

	outcome := agent.AutoFix(ctx, issues)
	assert.Equal(t, 1, outcome.Fixed)
	assert.Equal(t, 50, store.Task("t").ProgressPercent)
}

func TestAutoFix_RecordsActor(t *testing.T) {
	store := memory.New()
	store.AddTask(&types.Task{ID: "t", Title: "T", Status: types.TaskPending, ProgressPercent: 30})

	cfg := DefaultConfig()
	cfg.Actor = "nightly-sweep"
	agent := newTestAgent(t, store, WithConfig(cfg))
	ctx := context.Background()

	issues, err := agent.RunOne(ctx, CheckTaskProgress)
	require.NoError(t, err)
	agent.AutoFix(ctx, issues)

	want := []memory.Write{{
		RecordID: "t",
		Updates:  map[string]interface{}{storage.FieldProgressPercent: 0},
		Actor:    "nightly-sweep",
	}}
	if diff := cmp.Diff(want, store.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestAutoFix_RateLimited(t *testing.T) {
	store := memory.New()
	for _, id := range []string{"t1", "t2", "t3"} {
		store.AddTask(&types.Task{ID: id, Title: id, Status: types.TaskPending, ProgressPercent: 10})
	}
	cfg := DefaultConfig()
	cfg.FixRate = 20
	agent := newTestAgent(t, store, WithConfig(cfg))
	ctx := context.Background()

	issues, err := agent.RunOne(ctx, CheckTaskProgress)
	require.NoError(t, err)

	start := time.Now()
	outcome := agent.AutoFix(ctx, issues)
	elapsed := time.Since(start)

	assert.Equal(t, 3, outcome.Fixed)
	// Burst of one, then 50ms between writes
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestAutoFix_CancelledContext(t *testing.T) {
	store := memory.New()
	store.AddTask(&types.Task{ID: "t", Title: "T", Status: types.TaskPending, ProgressPercent: 10})
	agent := newTestAgent(t, store)

	issues, err := agent.RunOne(context.Background(), CheckTaskProgress)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := agent.AutoFix(ctx, issues)
	assert.Equal(t, 1, outcome.Failed)
	assert.ErrorIs(t, outcome.Failures[0], context.Canceled)
	assert.Equal(t, 10, store.Task("t").ProgressPercent)
}

func TestFix_ApplyRejectsBadValues(t *testing.T) {
	store := memory.New()
	store.AddTask(&types.Task{ID: "t", Title: "T", Status: types.TaskPending})
	ctx := context.Background()

	assert.Error(t, (&Fix{Kind: FixSetProgress, TaskID: "t", Progress: 101}).Apply(ctx, store, "a"))
	assert.Error(t, (&Fix{Kind: FixSetStatus, TaskID: "t", Status: "done"}).Apply(ctx, store, "a"))
	assert.ErrorContains(t, (&Fix{Kind: "rewrite_history", TaskID: "t"}).Apply(ctx, store, "a"), "unknown fix kind")
	assert.ErrorIs(t, (&Fix{Kind: FixRenumberSteps, ProcedureID: "missing"}).Apply(ctx, store, "a"), storage.ErrNotFound)
	assert.Empty(t, store.Writes())
}

func TestFix_Describe(t *testing.T) {
	tests := []struct {
		fix  Fix
		want string
	}{
		{Fix{Kind: FixSetProgress, TaskID: "t1", Progress: 50}, "set progress of task t1 to 50%"},
		{Fix{Kind: FixCompleteAllSteps, TaskID: "t1", StepIDs: []string{"a", "b"}}, "mark all 2 steps of task t1 complete"},
		{Fix{Kind: FixSetAssignees, TaskID: "t1", Assignees: []string{"u1", "u2"}}, "set assignees of task t1 to u1, u2"},
		{Fix{Kind: FixSetAssignees, TaskID: "t1", Assignees: []string{}}, "clear assignees of task t1"},
		{Fix{Kind: FixSetStatus, TaskID: "t1", Status: types.TaskOverdue}, "set status of task t1 to overdue"},
		{Fix{Kind: FixAssignStepIDs, ProcedureID: "p1"}, "assign ids to unidentified steps of procedure p1"},
		{Fix{Kind: FixRenumberSteps, ProcedureID: "p1"}, "renumber steps of procedure p1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.fix.Describe())
	}
}

func TestCheckResult_JSON(t *testing.T) {
	store := memory.New()
	store.AddTask(&types.Task{ID: "t", Title: "T", Status: types.TaskPending, ProgressPercent: 30})
	agent := newTestAgent(t, store)

	result := agent.RunAll(context.Background())
	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.EqualValues(t, 1, decoded["total_issues"])

	issues := decoded["issues"].([]interface{})
	require.Len(t, issues, 1)
	issue := issues[0].(map[string]interface{})
	assert.Equal(t, "task-progress", issue["check"])
	fix := issue["fix"].(map[string]interface{})
	assert.Equal(t, "set_progress", fix["kind"])
	// Zero progress is a real target value and must survive encoding
	assert.EqualValues(t, 0, fix["progress"])
	assert.Equal(t, []interface{}{}, decoded["checks_failed"])
}
