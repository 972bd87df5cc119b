package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/opsdesk/integrity/internal/integrity"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// Exit codes:
//
//	0 - no issues
//	1 - warnings, info or checks that could not run
//	2 - at least one error-severity issue
func exitCode(result *integrity.CheckResult) int {
	switch {
	case result.Errors > 0:
		return 2
	case result.TotalIssues > 0 || len(result.ChecksFailed) > 0:
		return 1
	default:
		return 0
	}
}

func severityMark(s integrity.Severity) string {
	switch s {
	case integrity.SeverityError:
		return red("✗")
	case integrity.SeverityWarning:
		return yellow("⚠")
	default:
		return cyan("ℹ")
	}
}

// sortedBySeverity returns issues with errors first, keeping sweep order
// within a severity.
func sortedBySeverity(issues []integrity.Issue) []integrity.Issue {
	out := append([]integrity.Issue(nil), issues...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() < out[j].Severity.Rank()
	})
	return out
}

func renderIssues(w io.Writer, issues []integrity.Issue) {
	for _, issue := range sortedBySeverity(issues) {
		fmt.Fprintf(w, "%s %s %s\n", severityMark(issue.Severity), issue.Title, faint("["+issue.Check+"]"))
		fmt.Fprintf(w, "    %s\n", issue.Description)
		if len(issue.AffectedRecords) > 0 {
			fmt.Fprintf(w, "    records: %s\n", strings.Join(issue.AffectedRecords, ", "))
		}
		if issue.Fix != nil {
			fmt.Fprintf(w, "    fix: %s\n", issue.Fix.Describe())
		}
	}
}

func renderResult(w io.Writer, result *integrity.CheckResult) {
	if result.TotalIssues == 0 {
		fmt.Fprintf(w, "%s No issues found\n", green("✓"))
	} else {
		renderIssues(w, result.Issues)
	}

	if len(result.ChecksFailed) > 0 {
		fmt.Fprintf(w, "\n%s Checks that could not run:\n", yellow("⚠"))
		for _, f := range result.ChecksFailed {
			fmt.Fprintf(w, "  %s %s: %s\n", red("✗"), f.Name, f.Error)
		}
	}

	fmt.Fprintf(w, "\n%d issues (%d errors, %d warnings, %d info) from %d checks in %dms\n",
		result.TotalIssues, result.Errors, result.Warnings, result.Infos,
		len(result.ChecksRun)+len(result.ChecksFailed), result.DurationMillis)
}

func renderOutcome(w io.Writer, outcome integrity.FixOutcome) {
	fmt.Fprintf(w, "%s Applied %d fixes", green("✓"), outcome.Fixed)
	if outcome.Failed > 0 {
		fmt.Fprintf(w, ", %s", red(fmt.Sprintf("%d failed", outcome.Failed)))
	}
	fmt.Fprintln(w)
	for _, f := range outcome.Failures {
		fmt.Fprintf(w, "  %s %v\n", red("✗"), f)
	}
}

func renderChecks(w io.Writer, checks []integrity.CheckInfo) {
	for _, c := range checks {
		mark := green("✓")
		if !c.Enabled {
			mark = faint("-")
		}
		fmt.Fprintf(w, "%s %-22s %-10s %s\n", mark, c.Key, c.Category, c.Name)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
