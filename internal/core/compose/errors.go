// Package compose renders stack exports as Docker Compose projects.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Export structure errors
	ErrNoServices         = errors.New("compose project must define at least one service")
	ErrServiceNoImage     = errors.New("service must have an image")
	ErrServiceInvalidPort = errors.New("invalid port configuration")
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrUnknownDependency  = errors.New("dependency on undeclared service")

	// Rendering errors
	ErrInvalidYAML = errors.New("invalid compose YAML")
)

// ExportError wraps errors with the field that failed.
type ExportError struct {
	Field   string // e.g., "services.odoo.ports[0]"
	Message string
	Err     error
}

func (e *ExportError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// NewExportError creates a new ExportError.
func NewExportError(field, message string, err error) *ExportError {
	return &ExportError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
