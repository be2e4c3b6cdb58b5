// Package store persists stack declarations: the registry that tells which
// stacks exist.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a stack is not registered.
	ErrNotFound = errors.New("stack not found")

	// ErrAlreadyExists is returned when registering an existing stack.
	ErrAlreadyExists = errors.New("stack already exists")

	// ErrConnectionFailed is returned when the registry cannot be opened.
	ErrConnectionFailed = errors.New("registry connection failed")

	// ErrMigrationFailed is returned when the schema migration fails.
	ErrMigrationFailed = errors.New("registry migration failed")

	// ErrInvalidData is returned when an entry cannot be encoded or decoded.
	ErrInvalidData = errors.New("invalid data format")
)

// StoreError wraps errors with additional context.
type StoreError struct {
	Op      string // Operation that failed (e.g., "Create")
	Entity  string
	ID      string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}

func notFound(op, name string) error {
	return NewStoreError(op, "stack", name, "stack is not registered", ErrNotFound)
}

func alreadyExists(op, name string) error {
	return NewStoreError(op, "stack", name, "stack is already registered", ErrAlreadyExists)
}
