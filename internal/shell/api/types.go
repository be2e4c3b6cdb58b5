package api

import (
	"time"

	"github.com/odooghost/odooghost/internal/core/domain"
)

// =============================================================================
// Response Types
// =============================================================================

// HealthResponse is the response for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for /ready.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// VersionResponse reports the odooghost and engine versions.
type VersionResponse struct {
	Odooghost string `json:"odooghost"`
	Docker    string `json:"docker"`
}

// StackResponse summarizes a stack.
type StackResponse struct {
	Name     string   `json:"name"`
	State    string   `json:"state"`
	RunState string   `json:"run_state"`
	Network  string   `json:"network"`
	Services []string `json:"services"`
}

// StackDetailResponse is a stack with its declaration and containers.
type StackDetailResponse struct {
	StackResponse
	Config     *domain.StackConfig `json:"config"`
	Containers []ContainerResponse `json:"containers"`
	// Missing lists the roles whose service container is gone.
	Missing []string `json:"missing,omitempty"`
}

// ContainerResponse describes one container of a stack.
type ContainerResponse struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Service string         `json:"service"`
	Image   string         `json:"image"`
	Status  string         `json:"status"`
	Running bool           `json:"running"`
	OneOff  bool           `json:"one_off"`
	Ports   []PortResponse `json:"ports,omitempty"`
}

// PortResponse is a published port.
type PortResponse struct {
	ContainerPort int    `json:"container_port"`
	HostPort      int    `json:"host_port"`
	Protocol      string `json:"protocol"`
}

// ActionResponse acknowledges a lifecycle action.
type ActionResponse struct {
	Stack  string    `json:"stack"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

// DriftResponse is the last drift check report.
type DriftResponse struct {
	Stacks map[string][]string `json:"stacks"`
}
