package integrity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/integrity/internal/storage/memory"
	"github.com/opsdesk/integrity/internal/types"
)

func seedUsers(store *memory.Store) {
	store.AddUser(&types.UserProfile{ID: "u1", FirstName: "Ada", LastName: "Lovelace", IsActive: true})
	store.AddUser(&types.UserProfile{ID: "u2", FirstName: "Grace", LastName: "Hopper", IsActive: true})
	store.AddUser(&types.UserProfile{ID: "u3", FirstName: "Alan", LastName: "Turing", IsActive: false})
}

func TestCheckOrphanedAssignments(t *testing.T) {
	store := memory.New()
	seedUsers(store)
	store.AddTask(&types.Task{ID: "t1", Title: "Inventory", Status: types.TaskPending, AssignedTo: []string{"u2", "ghost-1", "u1", "ghost-2"}})
	store.AddTask(&types.Task{ID: "t2", Title: "Fine", Status: types.TaskInProgress, AssignedTo: []string{"u1"}})
	store.AddTask(&types.Task{ID: "t3", Title: "Finished", Status: types.TaskCompleted, AssignedTo: []string{"ghost-1"}})
	agent := newTestAgent(t, store)
	ctx := context.Background()

	issues, err := agent.RunOne(ctx, CheckOrphanedAssignments)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	issue := issues[0]
	assert.Equal(t, TitleOrphanedAssignment, issue.Title)
	assert.Equal(t, SeverityError, issue.Severity)
	assert.Equal(t, []string{"t1", "ghost-1", "ghost-2"}, issue.AffectedRecords)
	assert.Equal(t, "t1", issue.PrimaryRecord())
	if diff := cmp.Diff(&Fix{Kind: FixSetAssignees, TaskID: "t1", Assignees: []string{"u2", "u1"}}, issue.Fix); diff != "" {
		t.Errorf("fix mismatch (-want +got):\n%s", diff)
	}

	outcome := agent.AutoFix(ctx, issues)
	require.Equal(t, 1, outcome.Fixed)
	assert.Equal(t, []string{"u2", "u1"}, store.Task("t1").AssignedTo)

	issues, err = agent.RunOne(ctx, CheckOrphanedAssignments)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestCheckOrphanedAssignments_AllMissing(t *testing.T) {
	store := memory.New()
	store.AddTask(&types.Task{ID: "t1", Title: "Inventory", Status: types.TaskPending, AssignedTo: []string{"ghost"}})
	agent := newTestAgent(t, store)
	ctx := context.Background()

	issues, err := agent.RunOne(ctx, CheckOrphanedAssignments)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, []string{}, issues[0].Fix.Assignees)

	outcome := agent.AutoFix(ctx, issues)
	require.Equal(t, 1, outcome.Fixed)
	assert.Empty(t, store.Task("t1").AssignedTo)
}

func TestCheckOrphanedAssignments_ProfileReadFails(t *testing.T) {
	store := memory.New()
	boom := errors.New("profiles unavailable")
	store.FailOn(memory.OpListUserProfiles, boom)
	store.AddTask(&types.Task{ID: "t1", Title: "Inventory", Status: types.TaskPending, AssignedTo: []string{"ghost"}})
	agent := newTestAgent(t, store)

	_, err := agent.RunOne(context.Background(), CheckOrphanedAssignments)
	require.ErrorIs(t, err, boom)

	var dae *DataAccessError
	require.ErrorAs(t, err, &dae)
	assert.Equal(t, "list user profiles", dae.Op)
}

func TestCheckInactiveAssignments(t *testing.T) {
	store := memory.New()
	seedUsers(store)
	store.AddTask(&types.Task{ID: "t1", Title: "Inventory", Status: types.TaskInProgress, AssignedTo: []string{"u1", "u3", "ghost"}})
	store.AddTask(&types.Task{ID: "t2", Title: "Archived work", Status: types.TaskArchived, AssignedTo: []string{"u3"}})
	store.AddTask(&types.Task{ID: "t3", Title: "Healthy", Status: types.TaskPending, AssignedTo: []string{"u2"}})
	agent := newTestAgent(t, store)

	issues, err := agent.RunOne(context.Background(), CheckInactiveAssignments)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	issue := issues[0]
	assert.Equal(t, TitleInactiveAssignment, issue.Title)
	assert.Equal(t, SeverityWarning, issue.Severity)
	assert.Equal(t, CategoryUser, issue.Category)
	assert.Equal(t, []string{"t1", "u3"}, issue.AffectedRecords)
	assert.Contains(t, issue.Description, "Alan Turing")
	assert.False(t, issue.AutoFixable)
}
