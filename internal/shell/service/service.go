// Package service implements the per-role lifecycle of a stack: images,
// volumes and containers of the database, application and mail services.
//
// Shared behaviour lives in base; the role-specific parts (image names,
// environment, mounts, build context) come from the role implementations
// Database, Application and Auxiliary.
package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/git"
)

// =============================================================================
// Options
// =============================================================================

// Deps are the collaborators a service needs.
type Deps struct {
	Docker          docker.Client
	Git             git.Client
	Logger          *slog.Logger
	WorkingDir      string    // remote addon checkouts
	BuildContextDir string    // staging area for image builds
	Out             io.Writer // pull and build progress, nil discards
}

// CreateOptions configures Create.
type CreateOptions struct {
	Force        bool // recreate an existing container
	Pull         bool // re-pull the base image
	EnsureAddons bool
}

// DropOptions configures Drop.
type DropOptions struct {
	Volumes bool
	Force   bool // force base image removal
}

// BuildOptions configures Build.
type BuildOptions struct {
	Remove  bool
	NoCache bool
}

// Query selects service containers.
type Query struct {
	IncludeStopped bool
	OneOff         labels.OneOffFilter
}

// Overrides adjust the container spec of a one-off run.
type Overrides struct {
	Command    []string
	Tty        *bool
	OpenStdin  bool
	AutoRemove bool
	Ports      []docker.PortBinding
	User       string
	Workdir    string
	Env        map[string]string
}

// =============================================================================
// Service Interface
// =============================================================================

// Service is one role of a stack.
type Service interface {
	Role() string
	StackName() string
	Config() domain.ServiceConfig
	ImageTag() string
	BaseImageTag() string
	HasCustomImage() bool
	IsRemote() bool
	ContainerPort() int
	ContainerName() string
	VolumeName() string
	Hostname() string

	EnsureBaseImage(ctx context.Context, pull bool) error
	Build(ctx context.Context, opts BuildOptions) (imageID string, err error)
	CreateVolumes(ctx context.Context) error
	DropVolumes(ctx context.Context) error

	ContainerSpec(oneOff bool, o *Overrides) (docker.ContainerSpec, error)
	CreateContainer(ctx context.Context, oneOff bool, o *Overrides) (*docker.Container, error)
	GetContainer(ctx context.Context, mustExist bool) (*docker.Container, error)
	StartContainer(ctx context.Context) error
	Containers(ctx context.Context, q Query) ([]*docker.Container, error)

	Create(ctx context.Context, opts CreateOptions) error
	Drop(ctx context.Context, opts DropOptions) error
	Pull(ctx context.Context) error
	Update(ctx context.Context) error
}

// role supplies what differs between services.
type role interface {
	name() string
	config() domain.ServiceConfig
	baseImageTag() string
	imageTag() string
	hasCustomImage() bool
	isRemote() bool
	containerPort() int
	volumeTarget() string
	environment() map[string]string
	command() ([]string, error)
	mounts() []docker.VolumeMount
	tty() bool
	beforeCreate(ctx context.Context, opts CreateOptions) error
	beforePull(ctx context.Context) error
	stageContext(dir string) error
}

// =============================================================================
// Construction
// =============================================================================

// New returns the service of one role. Mail returns ErrUnknownRole when the
// stack does not declare it.
func New(stack *domain.StackConfig, roleName string, deps Deps) (Service, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}

	var r role
	switch roleName {
	case domain.RoleDatabase:
		r = &Database{cfg: stack.Services.DB}
	case domain.RoleApplication:
		r = newApplication(stack, deps)
	case domain.RoleMail:
		if stack.Services.Mail == nil {
			return nil, NewServiceError("new", stack.Name, roleName, "mail service not declared", ErrUnknownRole, nil)
		}
		r = &Auxiliary{cfg: stack.Services.Mail}
	default:
		return nil, NewServiceError("new", stack.Name, roleName, "unknown role", ErrUnknownRole, nil)
	}

	return &base{
		role:   r,
		stack:  stack,
		docker: deps.Docker,
		deps:   deps,
		logger: deps.Logger.With("stack", stack.Name, "service", roleName),
	}, nil
}

// ForStack returns the declared services in lifecycle order.
func ForStack(stack *domain.StackConfig, deps Deps) ([]Service, error) {
	roles := stack.Roles()
	out := make([]Service, 0, len(roles))
	for _, r := range roles {
		svc, err := New(stack, r, deps)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// base implements Service on top of a role.
type base struct {
	role   role
	stack  *domain.StackConfig
	docker docker.Client
	deps   Deps
	logger *slog.Logger
}

func (s *base) Role() string                 { return s.role.name() }
func (s *base) StackName() string            { return s.stack.Name }
func (s *base) Config() domain.ServiceConfig { return s.role.config() }
func (s *base) ImageTag() string             { return s.role.imageTag() }
func (s *base) BaseImageTag() string         { return s.role.baseImageTag() }
func (s *base) HasCustomImage() bool         { return s.role.hasCustomImage() }
func (s *base) IsRemote() bool               { return s.role.isRemote() }
func (s *base) ContainerPort() int           { return s.role.containerPort() }

func (s *base) ContainerName() string {
	return domain.ContainerName(s.stack.Name, s.Role())
}

func (s *base) VolumeName() string {
	return domain.VolumeName(s.stack.Name, s.Role())
}

func (s *base) Hostname() string {
	return s.stack.Hostname(s.Role())
}

func (s *base) errorf(op string, kind, cause error, message string) error {
	return NewServiceError(op, s.stack.Name, s.Role(), message, kind, cause)
}

// stopTimeout is used when a container is replaced.
const stopTimeout = 10 * time.Second
