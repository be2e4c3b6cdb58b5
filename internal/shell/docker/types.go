// Package docker wraps the Docker Engine SDK behind the narrow Client
// interface the stack orchestrator drives, plus the Container handle built on
// top of it.
package docker

import (
	"context"
	"io"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name           string
	Image          string
	Hostname       string
	Command        []string
	Entrypoint     []string
	Env            map[string]string
	Labels         map[string]string
	Ports          []PortBinding
	Volumes        []VolumeMount
	Networks       []string
	NetworkAliases map[string][]string // network name → aliases
	WorkingDir     string
	User           string
	Tty            bool
	OpenStdin      bool
	AutoRemove     bool
	RestartPolicy  string // "", "no", "always", "unless-stopped"
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// VolumeMount defines a volume mount. Sources starting with "/" are bind
// mounts, anything else is a named volume.
type VolumeMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo contains information about a container. List calls fill the
// summary fields only; inspect fills everything.
type ContainerInfo struct {
	ID         string
	Name       string
	Image      string
	Status     ContainerStatus
	Labels     map[string]string
	Ports      []PortBinding
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	ExitCode   int
	Running    bool
	Paused     bool
	Restarting bool
	Tty        bool
	Networks   map[string]NetworkEndpoint // network name → endpoint
}

// NetworkEndpoint is a container's attachment to one network.
type NetworkEndpoint struct {
	NetworkID string
	IPAddress string
	Aliases   []string
}

// =============================================================================
// Exec Types
// =============================================================================

// ExecSpec defines a command run inside a running container.
type ExecSpec struct {
	Command      []string
	Env          []string
	User         string
	WorkingDir   string
	Privileged   bool
	Tty          bool
	AttachStdin  bool
	AttachStdout bool
	AttachStderr bool
}

// ExecInfo is the state of an exec session.
type ExecInfo struct {
	Running  bool
	ExitCode int
}

// HijackedStream is a bidirectional connection to a container or exec
// session's stdio. Output is multiplexed unless a TTY was allocated.
type HijackedStream struct {
	Reader     io.Reader
	Writer     io.Writer
	closeWrite func() error
	close      func()
}

// NewHijackedStream creates a stream. Fakes in tests use it directly.
func NewHijackedStream(r io.Reader, w io.Writer, closeWrite func() error, close func()) *HijackedStream {
	return &HijackedStream{Reader: r, Writer: w, closeWrite: closeWrite, close: close}
}

func (s *HijackedStream) Read(p []byte) (int, error)  { return s.Reader.Read(p) }
func (s *HijackedStream) Write(p []byte) (int, error) { return s.Writer.Write(p) }

// CloseWrite half-closes the connection, signalling end of input.
func (s *HijackedStream) CloseWrite() error {
	if s.closeWrite == nil {
		return nil
	}
	return s.closeWrite()
}

// Close releases the connection.
func (s *HijackedStream) Close() {
	if s.close != nil {
		s.close()
	}
}

// =============================================================================
// Network, Volume and Image Types
// =============================================================================

// NetworkSpec defines the specification for creating a network.
type NetworkSpec struct {
	Name       string
	Driver     string // "bridge" when empty
	Attachable bool
	Scope      string
	Labels     map[string]string
}

// NetworkInfo describes an existing network.
type NetworkInfo struct {
	ID     string
	Name   string
	Driver string
	Scope  string
	Labels map[string]string
}

// VolumeSpec defines the specification for creating a volume.
type VolumeSpec struct {
	Name   string
	Driver string
	Labels map[string]string
}

// VolumeInfo describes an existing volume.
type VolumeInfo struct {
	Name       string
	Driver     string
	Mountpoint string
	Labels     map[string]string
}

// BuildOptions defines options for building an image from a tar context.
type BuildOptions struct {
	Tags       []string
	Dockerfile string
	Labels     map[string]string
	Remove     bool // remove intermediate containers
	NoCache    bool
	PullParent bool
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool                // Include stopped containers
	Filters map[string][]string // e.g., {"label": {"com.odooghost.stack=demo"}}
}

// LogOptions defines options for container logs.
type LogOptions struct {
	Follow     bool
	Tail       string // "all" or number
	Since      time.Time
	Timestamps bool
}

// AttachOptions selects which stdio streams a container attach carries.
type AttachOptions struct {
	Stdin  bool
	Stdout bool
	Stderr bool
	Logs   bool
}

// PullOptions defines options for pulling images.
type PullOptions struct {
	Platform string // e.g., "linux/amd64"
}

// =============================================================================
// Events
// =============================================================================

// Event is one message of the engine event stream.
type Event struct {
	Type       string // "container", "network", ...
	Action     string // "start", "die", ...
	ActorID    string
	Attributes map[string]string
	Time       time.Time
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the engine operations odooghost relies on.
type Client interface {
	// Container operations
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	KillContainer(ctx context.Context, containerID, signal string) error
	RestartContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)
	ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error)
	WaitContainer(ctx context.Context, containerID string, untilRemoved bool) (<-chan int, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error)
	AttachContainer(ctx context.Context, containerID string, opts AttachOptions) (*HijackedStream, error)
	ResizeContainer(ctx context.Context, containerID string, height, width uint) error

	// Exec operations
	CreateExec(ctx context.Context, containerID string, spec ExecSpec) (execID string, err error)
	StartExec(ctx context.Context, execID string, tty bool) error
	AttachExec(ctx context.Context, execID string, tty bool) (*HijackedStream, error)
	InspectExec(ctx context.Context, execID string) (*ExecInfo, error)
	ResizeExec(ctx context.Context, execID string, height, width uint) error

	// Archive operations
	CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error)
	CopyToContainer(ctx context.Context, containerID, dstDir string, content io.Reader) error

	// Network operations
	CreateNetwork(ctx context.Context, spec NetworkSpec) (networkID string, err error)
	InspectNetwork(ctx context.Context, name string) (*NetworkInfo, error)
	RemoveNetwork(ctx context.Context, networkID string) error

	// Volume operations
	CreateVolume(ctx context.Context, spec VolumeSpec) (volumeName string, err error)
	InspectVolume(ctx context.Context, name string) (*VolumeInfo, error)
	RemoveVolume(ctx context.Context, volumeName string, force bool) error

	// Image operations
	PullImage(ctx context.Context, image string, opts PullOptions) (io.ReadCloser, error)
	ImageExists(ctx context.Context, image string) (bool, error)
	RemoveImage(ctx context.Context, image string, force bool) error
	BuildImage(ctx context.Context, buildContext io.Reader, opts BuildOptions) (io.ReadCloser, error)

	// Events
	Events(ctx context.Context, filters map[string][]string) (<-chan Event, <-chan error)

	// Health operations
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
	Close() error
}
