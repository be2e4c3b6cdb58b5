package service

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Image errors
	ErrImageEnsure = errors.New("image ensure failed")
	ErrImagePull   = errors.New("image pull failed")
	ErrImageBuild  = errors.New("image build failed")

	// Volume and container errors
	ErrVolumeCreate      = errors.New("volume create failed")
	ErrContainerCreate   = errors.New("container create failed")
	ErrContainerStart    = errors.New("container start failed")
	ErrContainerNotFound = errors.New("service container not found")

	// Database helper errors
	ErrDatabaseCommand = errors.New("database command failed")
	ErrUnknownRole     = errors.New("unknown service role")
)

// ServiceError wraps a failure with the stack and service it concerns.
type ServiceError struct {
	Op      string // Operation that failed
	Stack   string
	Service string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Stack, e.Service, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %s", e.Op, e.Stack, e.Service, e.Message)
}

// Unwrap exposes the kind and, when present, the engine cause.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a ServiceError whose Err matches kind and cause.
func NewServiceError(op, stack, service, message string, kind, cause error) *ServiceError {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ServiceError{
		Op:      op,
		Stack:   stack,
		Service: service,
		Message: message,
		Err:     err,
	}
}
