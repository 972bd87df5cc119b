package integrity

import "time"

// CheckResult aggregates one full sweep over the check catalog.
type CheckResult struct {
	Timestamp      time.Time `json:"timestamp"`
	DurationMillis int64     `json:"duration_ms"`

	TotalIssues int `json:"total_issues"`
	Errors      int `json:"errors"`
	Warnings    int `json:"warnings"`
	Infos       int `json:"infos"`

	// Issues are in catalog order, then emission order within a check.
	Issues []Issue `json:"issues"`

	// ChecksRun holds the display names of checks that completed.
	ChecksRun []string `json:"checks_run"`

	// ChecksFailed holds the checks that returned an error this sweep.
	// They contributed no issues.
	ChecksFailed []CheckFailure `json:"checks_failed"`
}

// CheckFailure records a check that could not complete.
type CheckFailure struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Error string `json:"error"`
	Err   error  `json:"-"`
}

// HasErrors reports whether any issue has error severity.
func (r *CheckResult) HasErrors() bool {
	return r.Errors > 0
}

// FixableIssues returns the issues that carry a remediation, in order.
func (r *CheckResult) FixableIssues() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.AutoFixable {
			out = append(out, issue)
		}
	}
	return out
}

// Recount recomputes the counters from Issues.
func (r *CheckResult) Recount() {
	r.TotalIssues = len(r.Issues)
	r.Errors, r.Warnings, r.Infos = 0, 0, 0
	for _, issue := range r.Issues {
		switch issue.Severity {
		case SeverityError:
			r.Errors++
		case SeverityWarning:
			r.Warnings++
		case SeverityInfo:
			r.Infos++
		}
	}
}

// FixOutcome tallies one AutoFix batch.
type FixOutcome struct {
	Fixed    int                 `json:"fixed"`
	Failed   int                 `json:"failed"`
	Failures []*RemediationError `json:"-"`
}
