package stack

import (
	"context"
	"errors"
	"time"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/service"
)

// DefaultStopTimeout is the grace period of Stop and Restart.
const DefaultStopTimeout = 10 * time.Second

// CreateOptions configures Create.
type CreateOptions struct {
	Force        bool // recreate existing service containers
	Pull         bool // re-pull base images
	EnsureAddons bool
}

// DropOptions configures Drop.
type DropOptions struct {
	Volumes bool
	Force   bool // force base image removal
}

// UpdateOptions configures Update.
type UpdateOptions struct {
	Pull bool
}

// StopOptions configures Stop. A nil Timeout means DefaultStopTimeout; zero
// kills at once.
type StopOptions struct {
	Timeout *time.Duration
	Wait    bool
}

// Timeout returns a pointer to d for StopOptions and Restart.
func Timeout(d time.Duration) *time.Duration {
	return &d
}

func stopTimeout(t *time.Duration) time.Duration {
	if t == nil {
		return DefaultStopTimeout
	}
	return *t
}

// =============================================================================
// Network
// =============================================================================

// ensureNetwork creates the stack network unless it already exists.
func (s *Stack) ensureNetwork(ctx context.Context) error {
	name := s.cfg.NetworkName()
	if _, err := s.deps.Docker.InspectNetwork(ctx, name); err == nil {
		return nil
	} else if !errors.Is(err, docker.ErrNetworkNotFound) {
		return NewStackError("ensure-network", s.Name(), "", ErrNetworkEnsure, err)
	}

	netLabels := labels.ManagedSet()
	if s.cfg.Network.Mode == domain.NetworkScoped {
		netLabels = labels.ForStack(s.Name())
	}
	_, err := s.deps.Docker.CreateNetwork(ctx, docker.NetworkSpec{
		Name:       name,
		Driver:     "bridge",
		Attachable: true,
		Scope:      "local",
		Labels:     netLabels,
	})
	if err != nil && !errors.Is(err, docker.ErrNetworkAlreadyExists) {
		return NewStackError("ensure-network", s.Name(), "", ErrNetworkEnsure, err)
	}
	s.logger.Debug("ensured network", "network", name)
	return nil
}

// removeNetwork drops the scoped network. The shared bridge is left alone.
func (s *Stack) removeNetwork(ctx context.Context) {
	if s.cfg.Network.Mode != domain.NetworkScoped {
		return
	}
	name := s.cfg.NetworkName()
	err := s.deps.Docker.RemoveNetwork(ctx, name)
	switch {
	case err == nil:
		s.logger.Debug("removed network", "network", name)
	case errors.Is(err, docker.ErrNetworkNotFound):
	default:
		s.logger.Warn("failed to remove network", "network", name, "error", err)
	}
}

// =============================================================================
// Create / Drop
// =============================================================================

// Create brings every service up to a created (not started) container and
// registers the stack. The registry is written last, so a failure midway
// leaves the stack unregistered.
func (s *Stack) Create(ctx context.Context, opts CreateOptions) error {
	exists, err := s.Exists(ctx)
	if err != nil {
		return NewStackError("create", s.Name(), "", ErrRegistry, err)
	}
	if exists {
		return NewStackError("create", s.Name(), "stack already exists", ErrStackAlreadyExists, nil)
	}
	s.logger.Info("creating stack")

	if err := s.ensureNetwork(ctx); err != nil {
		return err
	}

	svcOpts := service.CreateOptions{Force: opts.Force, Pull: opts.Pull, EnsureAddons: opts.EnsureAddons}
	for _, svc := range s.services {
		if err := svc.Create(ctx, svcOpts); err != nil {
			return err
		}
	}

	if err := s.deps.Registry.Create(ctx, s.cfg); err != nil {
		return err
	}
	s.logger.Info("stack created")
	return nil
}

// Drop removes the services, the scoped network and finally the registry
// entry. Service cleanup is best effort.
func (s *Stack) Drop(ctx context.Context, opts DropOptions) error {
	if err := s.guard(ctx, "drop"); err != nil {
		return err
	}
	s.logger.Info("dropping stack", "volumes", opts.Volumes)

	for _, svc := range s.services {
		if err := svc.Drop(ctx, service.DropOptions{Volumes: opts.Volumes, Force: opts.Force}); err != nil {
			s.logger.Warn("failed to drop service", "service", svc.Role(), "error", err)
		}
	}
	s.removeNetwork(ctx)

	if err := s.deps.Registry.Delete(ctx, s.Name()); err != nil {
		return err
	}
	s.logger.Info("stack dropped")
	return nil
}

// =============================================================================
// Pull / Update
// =============================================================================

// Pull refreshes addons and base images of every service.
func (s *Stack) Pull(ctx context.Context) error {
	if err := s.guard(ctx, "pull"); err != nil {
		return err
	}
	for _, svc := range s.services {
		if err := svc.Pull(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Update rebuilds and recreates the service containers, then stores the
// stack declaration.
func (s *Stack) Update(ctx context.Context, opts UpdateOptions) error {
	if err := s.guard(ctx, "update"); err != nil {
		return err
	}
	if opts.Pull {
		for _, svc := range s.services {
			if err := svc.Pull(ctx); err != nil {
				return err
			}
		}
	}
	if err := s.ensureNetwork(ctx); err != nil {
		return err
	}
	for _, svc := range s.services {
		if err := svc.Update(ctx); err != nil {
			return err
		}
	}
	return s.deps.Registry.Update(ctx, s.cfg)
}

// =============================================================================
// Start / Stop / Restart
// =============================================================================

// serviceContainers returns the service containers in lifecycle order.
func (s *Stack) serviceContainers(ctx context.Context, includeStopped bool) ([]*docker.Container, error) {
	found, err := s.Containers(ctx, includeStopped, labels.OneOffExclude)
	if err != nil {
		return nil, err
	}
	byRole := map[string]*docker.Container{}
	for _, ct := range found {
		byRole[ct.ServiceName()] = ct
	}
	ordered := make([]*docker.Container, 0, len(found))
	for _, svc := range s.services {
		if ct, ok := byRole[svc.Role()]; ok {
			ordered = append(ordered, ct)
		}
	}
	return ordered, nil
}

// Start starts the stopped service containers in lifecycle order.
func (s *Stack) Start(ctx context.Context) error {
	if err := s.guard(ctx, "start"); err != nil {
		return err
	}
	all, err := s.serviceContainers(ctx, true)
	if err != nil {
		return err
	}
	var stopped []*docker.Container
	for _, ct := range all {
		if !ct.IsRunning() {
			stopped = append(stopped, ct)
		}
	}
	if len(stopped) == 0 {
		s.logger.Warn("no container to start")
		return nil
	}

	for _, ct := range stopped {
		if err := ct.Start(ctx); err != nil {
			return NewStackError("start", s.Name(), "", err, nil)
		}
		s.logger.Info("started container", "container", ct.Name())
	}
	return nil
}

// Stop stops the running service containers.
func (s *Stack) Stop(ctx context.Context, opts StopOptions) error {
	if err := s.guard(ctx, "stop"); err != nil {
		return err
	}
	timeout := stopTimeout(opts.Timeout)
	running, err := s.serviceContainers(ctx, false)
	if err != nil {
		return err
	}
	for _, ct := range running {
		if err := ct.Stop(ctx, timeout); err != nil {
			return NewStackError("stop", s.Name(), "", err, nil)
		}
		if opts.Wait {
			if _, err := ct.Wait(ctx); err != nil && !errors.Is(err, docker.ErrContainerNotFound) {
				return NewStackError("stop", s.Name(), "", err, nil)
			}
		}
		s.logger.Info("stopped container", "container", ct.Name())
	}
	return nil
}

// Restart restarts every service container. A nil timeout means
// DefaultStopTimeout.
func (s *Stack) Restart(ctx context.Context, timeout *time.Duration) error {
	if err := s.guard(ctx, "restart"); err != nil {
		return err
	}
	all, err := s.serviceContainers(ctx, true)
	if err != nil {
		return err
	}
	for _, ct := range all {
		if err := ct.Restart(ctx, stopTimeout(timeout)); err != nil {
			return NewStackError("restart", s.Name(), "", err, nil)
		}
		s.logger.Info("restarted container", "container", ct.Name())
	}
	return nil
}
