package integrity

import "fmt"

// DataAccessError wraps a failed Gateway read inside a check.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access failed (%s): %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error { return e.Err }

// UnknownCheckError is returned by RunOne for a key that is not registered.
type UnknownCheckError struct {
	Key string
}

func (e *UnknownCheckError) Error() string {
	return fmt.Sprintf("unknown check %q", e.Key)
}

// RemediationError describes a fix that failed when applied.
type RemediationError struct {
	IssueID string
	Kind    FixKind
	Record  string
	Err     error
}

func (e *RemediationError) Error() string {
	if e.Record == "" {
		return fmt.Sprintf("fix %s failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fix %s on %s failed: %v", e.Kind, e.Record, e.Err)
}

func (e *RemediationError) Unwrap() error { return e.Err }

func dataAccess(op string, err error) error {
	return &DataAccessError{Op: op, Err: err}
}
