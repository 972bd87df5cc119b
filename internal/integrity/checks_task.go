package integrity

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opsdesk/integrity/internal/types"
)

// expectedProgress is round(100 * |completed ∩ steps| / |steps|), or 0 for a
// task without steps. Both sides are sets of step ids: repeated step ids
// count once, and completed ids that are not steps do not count.
func expectedProgress(task *types.Task) int {
	if len(task.Steps) == 0 {
		return 0
	}
	steps := make(map[string]bool, len(task.Steps))
	for _, step := range task.Steps {
		steps[step.ID] = true
	}
	done := make(map[string]bool, len(task.CompletedStepIDs))
	for _, id := range task.CompletedStepIDs {
		if steps[id] {
			done[id] = true
		}
	}
	return int(math.Round(100 * float64(len(done)) / float64(len(steps))))
}

func (a *Agent) checkTaskProgress(ctx context.Context) ([]Issue, error) {
	tasks, err := a.store.ListTasks(ctx, types.TaskFilter{})
	if err != nil {
		return nil, dataAccess("list tasks", err)
	}

	var issues []Issue
	for _, task := range tasks {
		expected := expectedProgress(task)
		if task.ProgressPercent == expected {
			continue
		}
		issues = append(issues, newIssue(SeverityError, CategoryTask, TitleProgressMismatch,
			fmt.Sprintf("Task %q shows %d%% progress but its completed steps amount to %d%%",
				task.Title, task.ProgressPercent, expected),
			[]string{task.ID},
			&Fix{Kind: FixSetProgress, TaskID: task.ID, Progress: expected}))
	}
	return issues, nil
}

func (a *Agent) checkCompletedProgress(ctx context.Context) ([]Issue, error) {
	tasks, err := a.store.ListTasks(ctx, types.TaskFilter{Statuses: []types.TaskStatus{types.TaskCompleted}})
	if err != nil {
		return nil, dataAccess("list completed tasks", err)
	}

	var issues []Issue
	for _, task := range tasks {
		if len(task.Steps) == 0 || task.ProgressPercent == 100 {
			continue
		}
		issues = append(issues, newIssue(SeverityWarning, CategoryTask, TitleCompletedNotFull,
			fmt.Sprintf("Task %q is marked completed but shows %d%% progress", task.Title, task.ProgressPercent),
			[]string{task.ID},
			&Fix{Kind: FixCompleteAllSteps, TaskID: task.ID, StepIDs: task.StepIDs()}))
	}
	return issues, nil
}

type staleThreshold struct {
	minAge   time.Duration
	severity Severity
	title    string
}

// staleThresholds is evaluated top-down; the first matching row wins.
func (a *Agent) staleThresholds() []staleThreshold {
	return []staleThreshold{
		{minAge: a.cfg.StaleErrorAfter, severity: SeverityError, title: TitleStaleTask},
		{minAge: a.cfg.StaleWarningAfter, severity: SeverityWarning, title: TitleAgingTask},
	}
}

func (a *Agent) checkStaleTasks(ctx context.Context) ([]Issue, error) {
	tasks, err := a.store.ListTasks(ctx, types.TaskFilter{Statuses: []types.TaskStatus{types.TaskInProgress}})
	if err != nil {
		return nil, dataAccess("list in-progress tasks", err)
	}

	now := a.now()
	thresholds := a.staleThresholds()

	var issues []Issue
	for _, task := range tasks {
		last := task.LastActivity()
		if last.IsZero() {
			continue
		}
		age := now.Sub(last)
		for _, th := range thresholds {
			if age < th.minAge {
				continue
			}
			issues = append(issues, newIssue(th.severity, CategoryTask, th.title,
				fmt.Sprintf("Task %q has been in progress for %d days without activity",
					task.Title, int(age.Hours()/24)),
				[]string{task.ID}, nil))
			break
		}
	}
	return issues, nil
}

// deadline returns the moment a task becomes overdue: its due time on the
// scheduled date, or the end of that day when no due time is set.
func deadline(task *types.Task, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(types.DateLayout, task.ScheduledDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduled date %q: %w", task.ScheduledDate, err)
	}
	if task.DueTime == "" {
		return day.AddDate(0, 0, 1), nil
	}
	due, err := time.Parse(types.TimeLayout, task.DueTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("due time %q: %w", task.DueTime, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), due.Hour(), due.Minute(), 0, 0, loc), nil
}

// checkOverdueTasks flags pending and in-progress tasks whose deadline has
// passed. A task with a due time is overdue once that time passes on its
// scheduled date, so a task scheduled for today can already be overdue.
func (a *Agent) checkOverdueTasks(ctx context.Context) ([]Issue, error) {
	tasks, err := a.store.ListTasks(ctx, types.TaskFilter{
		Statuses: []types.TaskStatus{types.TaskPending, types.TaskInProgress},
	})
	if err != nil {
		return nil, dataAccess("list active tasks", err)
	}

	loc := a.cfg.location()
	now := a.now().In(loc)

	var issues []Issue
	for _, task := range tasks {
		if task.ScheduledDate == "" {
			continue
		}
		due, err := deadline(task, loc)
		if err != nil {
			a.logger.Debug("skipping task with unparseable schedule",
				zap.String("task", task.ID), zap.Error(err))
			continue
		}
		if !now.After(due) {
			continue
		}
		issues = append(issues, newIssue(SeverityError, CategoryTask, TitleUnmarkedOverdue,
			fmt.Sprintf("Task %q was due %s but is still %s",
				task.Title, due.Format("2006-01-02 15:04"), task.Status),
			[]string{task.ID},
			&Fix{Kind: FixSetStatus, TaskID: task.ID, Status: types.TaskOverdue}))
	}
	return issues, nil
}

func (a *Agent) checkDuplicateTasks(ctx context.Context) ([]Issue, error) {
	tasks, err := a.store.ListTasks(ctx, types.TaskFilter{})
	if err != nil {
		return nil, dataAccess("list tasks", err)
	}

	type group struct {
		title string
		date  string
		ids   []string
	}
	groups := make(map[string]*group)
	var order []string
	for _, task := range tasks {
		normalized := strings.ToLower(strings.TrimSpace(task.Title))
		key := normalized + "\x00" + task.ScheduledDate
		g, ok := groups[key]
		if !ok {
			g = &group{title: strings.TrimSpace(task.Title), date: task.ScheduledDate}
			groups[key] = g
			order = append(order, key)
		}
		g.ids = append(g.ids, task.ID)
	}

	var issues []Issue
	for _, key := range order {
		g := groups[key]
		if len(g.ids) < 2 {
			continue
		}
		date := g.date
		if date == "" {
			date = "no scheduled date"
		}
		issues = append(issues, newIssue(SeverityWarning, CategoryTask, TitleDuplicateTasks,
			fmt.Sprintf("%d tasks share the title %q on %s", len(g.ids), g.title, date),
			g.ids, nil))
	}
	return issues, nil
}
