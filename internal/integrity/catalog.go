package integrity

// Built-in check keys, in sweep order.
const (
	CheckTaskProgress        = "task-progress"
	CheckCompletedProgress   = "completed-progress"
	CheckOrphanedAssignments = "orphaned-assignments"
	CheckStaleTasks          = "stale-tasks"
	CheckOverdueTasks        = "overdue-tasks"
	CheckDuplicateTasks      = "duplicate-tasks"
	CheckProcedureStepIDs    = "procedure-step-ids"
	CheckProcedureStepOrder  = "procedure-step-order"
	CheckInactiveAssignments = "inactive-assignments"
	CheckStoreConfigured     = "store-configured"
	CheckStoreConnectivity   = "store-connectivity"
)

// Stable issue titles
const (
	TitleProgressMismatch     = "Progress Mismatch"
	TitleCompletedNotFull     = "Completed Task Not at 100%"
	TitleOrphanedAssignment   = "Orphaned Assignment"
	TitleStaleTask            = "Stale Task"
	TitleAgingTask            = "Aging Task"
	TitleUnmarkedOverdue      = "Unmarked Overdue Task"
	TitleDuplicateTasks       = "Potential Duplicate Tasks"
	TitleStepsMissingIDs      = "Procedure Steps Missing IDs"
	TitleDuplicateStepOrder   = "Duplicate Step Order"
	TitleInactiveAssignment   = "Inactive User Assignment"
	TitleStoreNotConfigured   = "Database Not Configured"
	TitleStoreConnectionFails = "Database Connection Failed"
	TitleStoreSlow            = "Slow Database Response"
)

func (a *Agent) catalog() []Check {
	return []Check{
		NewCheck(CheckTaskProgress, "Task Progress Consistency", CategoryTask, a.checkTaskProgress),
		NewCheck(CheckCompletedProgress, "Completed Task Progress", CategoryTask, a.checkCompletedProgress),
		NewCheck(CheckOrphanedAssignments, "Orphaned Assignments", CategoryTask, a.checkOrphanedAssignments),
		NewCheck(CheckStaleTasks, "Stale In-Progress Tasks", CategoryTask, a.checkStaleTasks),
		NewCheck(CheckOverdueTasks, "Unmarked Overdue Tasks", CategoryTask, a.checkOverdueTasks),
		NewCheck(CheckDuplicateTasks, "Duplicate Tasks", CategoryTask, a.checkDuplicateTasks),
		NewCheck(CheckProcedureStepIDs, "Procedure Step IDs", CategoryProcedure, a.checkProcedureStepIDs),
		NewCheck(CheckProcedureStepOrder, "Procedure Step Order", CategoryProcedure, a.checkProcedureStepOrder),
		NewCheck(CheckInactiveAssignments, "Inactive User Assignments", CategoryUser, a.checkInactiveAssignments),
		NewCheck(CheckStoreConfigured, "Database Configuration", CategorySystem, a.checkStoreConfigured),
		NewCheck(CheckStoreConnectivity, "Database Connectivity", CategorySystem, a.checkStoreConnectivity),
	}
}
