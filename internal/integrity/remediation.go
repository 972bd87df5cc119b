package integrity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/opsdesk/integrity/internal/storage"
	"github.com/opsdesk/integrity/internal/types"
)

// FixKind names a remediation. Fixes are plain data so a pending batch can be
// shown to an operator, serialised, and applied later.
type FixKind string

const (
	FixSetProgress      FixKind = "set_progress"
	FixCompleteAllSteps FixKind = "complete_all_steps"
	FixSetAssignees     FixKind = "set_assignees"
	FixSetStatus        FixKind = "set_status"
	FixAssignStepIDs    FixKind = "assign_step_ids"
	FixRenumberSteps    FixKind = "renumber_steps"
)

// Fix is a bound remediation for one record.
//
// Task fixes carry every value they write. Procedure fixes carry only the
// procedure id: the steps are re-read when the fix is applied, so two step
// fixes on the same procedure in one batch compose instead of overwriting
// each other.
type Fix struct {
	Kind        FixKind          `json:"kind"`
	TaskID      string           `json:"task_id,omitempty"`
	ProcedureID string           `json:"procedure_id,omitempty"`
	Progress    int              `json:"progress"`
	Status      types.TaskStatus `json:"status,omitempty"`
	Assignees   []string         `json:"assignees,omitempty"`
	StepIDs     []string         `json:"step_ids,omitempty"`
}

// RecordID returns the id of the record the fix writes to.
func (f *Fix) RecordID() string {
	if f.TaskID != "" {
		return f.TaskID
	}
	return f.ProcedureID
}

// Describe renders the fix for a confirmation prompt.
func (f *Fix) Describe() string {
	switch f.Kind {
	case FixSetProgress:
		return fmt.Sprintf("set progress of task %s to %d%%", f.TaskID, f.Progress)
	case FixCompleteAllSteps:
		return fmt.Sprintf("mark all %d steps of task %s complete", len(f.StepIDs), f.TaskID)
	case FixSetAssignees:
		if len(f.Assignees) == 0 {
			return fmt.Sprintf("clear assignees of task %s", f.TaskID)
		}
		return fmt.Sprintf("set assignees of task %s to %s", f.TaskID, strings.Join(f.Assignees, ", "))
	case FixSetStatus:
		return fmt.Sprintf("set status of task %s to %s", f.TaskID, f.Status)
	case FixAssignStepIDs:
		return fmt.Sprintf("assign ids to unidentified steps of procedure %s", f.ProcedureID)
	case FixRenumberSteps:
		return fmt.Sprintf("renumber steps of procedure %s", f.ProcedureID)
	default:
		return string(f.Kind)
	}
}

// Apply performs the fix through the gateway, attributing writes to actor.
func (f *Fix) Apply(ctx context.Context, store storage.Gateway, actor string) error {
	switch f.Kind {
	case FixSetProgress:
		if f.Progress < 0 || f.Progress > 100 {
			return fmt.Errorf("progress %d out of range", f.Progress)
		}
		return store.UpdateTask(ctx, f.TaskID, map[string]interface{}{
			storage.FieldProgressPercent: f.Progress,
		}, actor)

	case FixCompleteAllSteps:
		return store.UpdateTask(ctx, f.TaskID, map[string]interface{}{
			storage.FieldCompletedStepIDs: nonNil(f.StepIDs),
			storage.FieldProgressPercent:  100,
		}, actor)

	case FixSetAssignees:
		return store.UpdateTask(ctx, f.TaskID, map[string]interface{}{
			storage.FieldAssignedTo: nonNil(f.Assignees),
		}, actor)

	case FixSetStatus:
		if !f.Status.IsValid() {
			return fmt.Errorf("invalid status %q", f.Status)
		}
		return store.UpdateTask(ctx, f.TaskID, map[string]interface{}{
			storage.FieldStatus: f.Status,
		}, actor)

	case FixAssignStepIDs, FixRenumberSteps:
		proc, err := store.GetProcedure(ctx, f.ProcedureID)
		if err != nil {
			return err
		}
		steps := append([]types.ProcedureStep(nil), proc.Steps...)
		if f.Kind == FixAssignStepIDs {
			assignMissingStepIDs(steps)
		}
		renumberSteps(steps)
		return store.UpdateProcedure(ctx, f.ProcedureID, map[string]interface{}{
			storage.FieldSteps: steps,
		}, actor)

	default:
		return fmt.Errorf("unknown fix kind %q", f.Kind)
	}
}

func assignMissingStepIDs(steps []types.ProcedureStep) {
	for i := range steps {
		if strings.TrimSpace(steps[i].ID) == "" {
			steps[i].ID = uuid.NewString()
		}
	}
}

// renumberSteps orders steps by their current order (stable on ties) and
// rewrites Order as 1..n.
func renumberSteps(steps []types.ProcedureStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
	for i := range steps {
		steps[i].Order = i + 1
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
