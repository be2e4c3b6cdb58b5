package stack

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrStackNotFound      = errors.New("stack not found")
	ErrStackAlreadyExists = errors.New("stack already exists")
	ErrNetworkEnsure      = errors.New("network ensure failed")
	ErrServiceNotFound    = errors.New("service not found")
	ErrRegistry           = errors.New("stack registry failed")

	// Data transfer errors
	ErrDatabaseExists   = errors.New("database already exists")
	ErrDatabaseNotFound = errors.New("database not found")
	ErrRemoteDatabase   = errors.New("database is remote")
)

// StackError wraps errors with the stack they concern.
type StackError struct {
	Op      string
	Stack   string
	Message string
	Err     error
}

func (e *StackError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Stack, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Stack, e.Message)
}

func (e *StackError) Unwrap() error {
	return e.Err
}

// NewStackError creates a StackError matching kind and, when given, cause.
func NewStackError(op, stack, message string, kind, cause error) *StackError {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &StackError{Op: op, Stack: stack, Message: message, Err: err}
}
