package integrity

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/opsdesk/integrity/internal/types"
)

func (a *Agent) liveProcedures(ctx context.Context) ([]*types.Procedure, error) {
	procs, err := a.store.ListProcedures(ctx)
	if err != nil {
		return nil, dataAccess("list procedures", err)
	}
	live := procs[:0]
	for _, p := range procs {
		if p.Status != types.ProcedureArchived {
			live = append(live, p)
		}
	}
	return live, nil
}

func (a *Agent) checkProcedureStepIDs(ctx context.Context) ([]Issue, error) {
	procs, err := a.liveProcedures(ctx)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, p := range procs {
		missing := 0
		for _, step := range p.Steps {
			if strings.TrimSpace(step.ID) == "" {
				missing++
			}
		}
		if missing == 0 {
			continue
		}
		issues = append(issues, newIssue(SeverityError, CategoryProcedure, TitleStepsMissingIDs,
			fmt.Sprintf("%d of %d steps in procedure %q have no id", missing, len(p.Steps), p.Title),
			[]string{p.ID},
			&Fix{Kind: FixAssignStepIDs, ProcedureID: p.ID}))
	}
	return issues, nil
}

func (a *Agent) checkProcedureStepOrder(ctx context.Context) ([]Issue, error) {
	procs, err := a.liveProcedures(ctx)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, p := range procs {
		seen := make(map[int]int, len(p.Steps))
		for _, step := range p.Steps {
			seen[step.Order]++
		}
		var dupes []int
		for order, n := range seen {
			if n > 1 {
				dupes = append(dupes, order)
			}
		}
		if len(dupes) == 0 {
			continue
		}
		sort.Ints(dupes)
		labels := make([]string, len(dupes))
		for i, order := range dupes {
			labels[i] = strconv.Itoa(order)
		}
		issues = append(issues, newIssue(SeverityWarning, CategoryProcedure, TitleDuplicateStepOrder,
			fmt.Sprintf("Procedure %q has several steps at position %s", p.Title, strings.Join(labels, ", ")),
			[]string{p.ID},
			&Fix{Kind: FixRenumberSteps, ProcedureID: p.ID}))
	}
	return issues, nil
}
