package isolation

import (
	"errors"
	"fmt"
)

// ErrStopped is returned for calls made after the manager was stopped.
var ErrStopped = errors.New("isolation manager stopped")

// ErrNoBranch is returned when an agent has no branch mapped.
var ErrNoBranch = errors.New("agent has no branch")

// ErrUnresolvedConflicts is wrapped when a merge leaves conflicted files behind.
var ErrUnresolvedConflicts = errors.New("unresolved conflicts")

// VersionControlError wraps a failed git step with the operation and branch involved.
type VersionControlError struct {
	Op     string
	Branch string
	Err    error
}

func (e *VersionControlError) Error() string {
	if e.Branch == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Branch, e.Err)
}

func (e *VersionControlError) Unwrap() error { return e.Err }

func vcsErr(op, branch string, err error) error {
	if err == nil {
		return nil
	}
	return &VersionControlError{Op: op, Branch: branch, Err: err}
}
