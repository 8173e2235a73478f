package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Wrap them with %w and classify with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrDependencyFailure = errors.New("dependency failure")
)

// DependencyError reports a failed call to an external collaborator such
// as the ledger store. It matches both ErrDependencyFailure and the cause.
type DependencyError struct {
	Op  string
	Err error
}

// NewDependencyError wraps err as a failure of the named operation.
func NewDependencyError(op string, err error) *DependencyError {
	return &DependencyError{Op: op, Err: err}
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDependencyFailure, e.Op, e.Err)
}

func (e *DependencyError) Unwrap() []error {
	return []error{ErrDependencyFailure, e.Err}
}

// ErrorCode returns a stable machine-readable code for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrDependencyFailure):
		return "DEPENDENCY_FAILURE"
	default:
		return "INTERNAL"
	}
}
