package integrity

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opsdesk/integrity/internal/types"
)

// loadAssignments fetches active tasks and all user profiles concurrently.
func (a *Agent) loadAssignments(ctx context.Context) ([]*types.Task, map[string]*types.UserProfile, error) {
	var (
		tasks    []*types.Task
		profiles []*types.UserProfile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = a.store.ListTasks(gctx, types.TaskFilter{
			Statuses: []types.TaskStatus{types.TaskPending, types.TaskInProgress},
		})
		if err != nil {
			return dataAccess("list active tasks", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		profiles, err = a.store.ListUserProfiles(gctx)
		if err != nil {
			return dataAccess("list user profiles", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	byID := make(map[string]*types.UserProfile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	return tasks, byID, nil
}

func (a *Agent) checkOrphanedAssignments(ctx context.Context) ([]Issue, error) {
	tasks, profiles, err := a.loadAssignments(ctx)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, task := range tasks {
		var missing []string
		valid := []string{}
		for _, userID := range task.AssignedTo {
			if _, ok := profiles[userID]; ok {
				valid = append(valid, userID)
			} else {
				missing = append(missing, userID)
			}
		}
		if len(missing) == 0 {
			continue
		}
		issues = append(issues, newIssue(SeverityError, CategoryTask, TitleOrphanedAssignment,
			fmt.Sprintf("Task %q is assigned to users that no longer exist: %s",
				task.Title, strings.Join(missing, ", ")),
			append([]string{task.ID}, missing...),
			&Fix{Kind: FixSetAssignees, TaskID: task.ID, Assignees: valid}))
	}
	return issues, nil
}

func (a *Agent) checkInactiveAssignments(ctx context.Context) ([]Issue, error) {
	tasks, profiles, err := a.loadAssignments(ctx)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, task := range tasks {
		var inactive []string
		var names []string
		for _, userID := range task.AssignedTo {
			p, ok := profiles[userID]
			if !ok || p.IsActive {
				continue
			}
			inactive = append(inactive, userID)
			names = append(names, p.DisplayName())
		}
		if len(inactive) == 0 {
			continue
		}
		issues = append(issues, newIssue(SeverityWarning, CategoryUser, TitleInactiveAssignment,
			fmt.Sprintf("Task %q is assigned to deactivated users: %s",
				task.Title, strings.Join(names, ", ")),
			append([]string{task.ID}, inactive...), nil))
	}
	return issues, nil
}
