package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrInvalidName        = errors.New("stack name can only contain alphanumeric characters, underscores and hyphens")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrMissingService     = errors.New("required service is not declared")
	ErrInvalidNetworkMode = errors.New("network mode must be shared or scoped")
	ErrInvalidDatabase    = errors.New("invalid database configuration")

	// Addon declaration errors
	ErrInvalidAddon   = errors.New("invalid addon declaration")
	ErrInvalidRepoURL = errors.New("invalid repository URL")

	ErrInvalidDependency = errors.New("invalid dependency declaration")
	ErrUnknownFormat     = errors.New("unknown stack file format")
)

// ConfigError reports which field of a stack declaration is wrong.
type ConfigError struct {
	Field   string // e.g. "services.odoo.addons[1].origin"
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
