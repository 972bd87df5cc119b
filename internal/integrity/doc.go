// Package integrity checks persisted tasks, procedures and user profiles for
// semantic drift and repairs the narrow cases that have an unambiguous fix.
//
// # Sweeps
//
// An Agent owns an ordered catalog of checks. RunAll runs every enabled
// check against the storage gateway and aggregates the findings:
//
//	agent, err := integrity.New(store, integrity.WithLogger(logger))
//	result := agent.RunAll(ctx)
//	fmt.Println(result.Errors, result.Warnings)
//
// Checks only read. A check whose reads fail contributes no issues and is
// listed in CheckResult.ChecksFailed; the rest of the sweep still runs.
//
// # Fixes
//
// Issues that can be repaired carry a Fix, a plain value naming the write to
// perform. AutoFix applies them one by one and reports how many succeeded:
//
//	outcome := agent.AutoFix(ctx, result.FixableIssues())
//
// A batch is not atomic. Failures are counted and the batch continues, and
// fixes are not re-validated against the current record before writing.
// Callers re-run detection afterwards to see what remains.
package integrity
