package compose

// =============================================================================
// Export - Input Type
// =============================================================================

// Export is the runtime shape of a stack, decoupled from compose-go types.
type Export struct {
	Name     string    `json:"name"`
	Network  Network   `json:"network"`
	Volumes  []Volume  `json:"volumes,omitempty"`
	Services []Service `json:"services"`
}

// Service is one container of the export.
type Service struct {
	Name          string            `json:"name"`
	ContainerName string            `json:"container_name"`
	Image         string            `json:"image"`
	Hostname      string            `json:"hostname,omitempty"`
	Command       []string          `json:"command,omitempty"`
	Environment   map[string]string `json:"environment,omitempty"`
	Ports         []Port            `json:"ports,omitempty"`
	Volumes       []VolumeMount     `json:"volumes,omitempty"`
	Aliases       []string          `json:"aliases,omitempty"`
	DependsOn     []string          `json:"depends_on,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
	Tty           bool              `json:"tty,omitempty"`
}

// Port represents a port mapping.
type Port struct {
	Target    uint32 `json:"target"`              // Container port
	Published uint32 `json:"published,omitempty"` // Host port (0 = dynamic)
	Protocol  string `json:"protocol,omitempty"`  // tcp, udp
}

// VolumeMount represents a volume mount in a service.
type VolumeMount struct {
	Type     VolumeMountType `json:"type"`
	Source   string          `json:"source"`
	Target   string          `json:"target"`
	ReadOnly bool            `json:"readonly"`
}

// VolumeMountType represents the type of volume mount.
type VolumeMountType string

const (
	VolumeMountTypeBind   VolumeMountType = "bind"
	VolumeMountTypeVolume VolumeMountType = "volume"
)

// =============================================================================
// Network and Volume Types
// =============================================================================

// Network is the network every service joins. A shared network is declared
// external since other stacks use it too.
type Network struct {
	Name     string            `json:"name"`
	External bool              `json:"external"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// Volume represents a named volume definition.
type Volume struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
}
