package integrity

import (
	"github.com/google/uuid"
)

// Severity ranks an issue by how urgently an operator should look at it.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities by urgency; lower is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

// Category groups issues by the kind of record they concern.
type Category string

const (
	CategoryTask      Category = "task"
	CategoryProcedure Category = "procedure"
	CategoryUser      Category = "user"
	CategorySystem    Category = "system"
)

// Issue is one detected inconsistency.
//
// AffectedRecords lists the primary entity first; any further ids are
// secondary (missing assignees, other members of a duplicate group).
// Fix is set if and only if AutoFixable is true. Build issues with newIssue
// to keep that pairing.
type Issue struct {
	ID              string   `json:"id"`
	Check           string   `json:"check"`
	Severity        Severity `json:"severity"`
	Category        Category `json:"category"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	AffectedRecords []string `json:"affected_records"`
	AutoFixable     bool     `json:"auto_fixable"`
	Fix             *Fix     `json:"fix,omitempty"`
}

// PrimaryRecord returns the first affected record id, or "".
func (i Issue) PrimaryRecord() string {
	if len(i.AffectedRecords) == 0 {
		return ""
	}
	return i.AffectedRecords[0]
}

func newIssue(severity Severity, category Category, title, description string, records []string, fix *Fix) Issue {
	if records == nil {
		records = []string{}
	}
	return Issue{
		ID:              uuid.NewString(),
		Severity:        severity,
		Category:        category,
		Title:           title,
		Description:     description,
		AffectedRecords: records,
		AutoFixable:     fix != nil,
		Fix:             fix,
	}
}
