package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/shell/docker"
)

// =============================================================================
// Container Spec
// =============================================================================

// ContainerSpec builds the create request of the service container, or of a
// one-off run container when oneOff is set.
//
// The service container publishes its port (to service_port, or an engine
// assigned host port) and answers on the stack network under its hostname.
// One-off containers publish only what the overrides ask for.
func (s *base) ContainerSpec(oneOff bool, o *Overrides) (docker.ContainerSpec, error) {
	if o == nil {
		o = &Overrides{}
	}

	cmd, err := s.role.command()
	if err != nil {
		return docker.ContainerSpec{}, s.errorf("container-spec", ErrContainerCreate, err, "")
	}
	if len(o.Command) > 0 {
		cmd = o.Command
	}

	env := map[string]string{}
	for k, v := range s.role.environment() {
		env[k] = v
	}
	for k, v := range o.Env {
		env[k] = v
	}

	network := s.stack.NetworkName()
	spec := docker.ContainerSpec{
		Name:       s.ContainerName(),
		Image:      s.ImageTag(),
		Command:    cmd,
		Env:        env,
		Labels:     labels.ForContainer(s.stack.Name, s.Role(), oneOff),
		Networks:   []string{network},
		Tty:        s.role.tty(),
		OpenStdin:  o.OpenStdin,
		AutoRemove: o.AutoRemove,
		User:       o.User,
		WorkingDir: o.Workdir,
	}
	if o.Tty != nil {
		spec.Tty = *o.Tty
	}

	spec.Volumes = append(spec.Volumes, docker.VolumeMount{
		Source: s.VolumeName(),
		Target: s.role.volumeTarget(),
	})
	spec.Volumes = append(spec.Volumes, s.role.mounts()...)

	if oneOff {
		spec.Name = domain.OneOffContainerName(s.stack.Name, s.Role(), uuid.NewString()[:8])
		spec.Ports = o.Ports
		return spec, nil
	}

	hostPort := 0
	if p := s.Config().Port(); p != nil {
		hostPort = *p
	}
	spec.Hostname = s.Hostname()
	spec.NetworkAliases = map[string][]string{network: {s.Hostname()}}
	spec.Ports = []docker.PortBinding{{
		ContainerPort: s.ContainerPort(),
		HostPort:      hostPort,
		Protocol:      "tcp",
	}}
	return spec, nil
}

// =============================================================================
// Container Operations
// =============================================================================

// CreateContainer creates (without starting) the service or a one-off
// container.
func (s *base) CreateContainer(ctx context.Context, oneOff bool, o *Overrides) (*docker.Container, error) {
	spec, err := s.ContainerSpec(oneOff, o)
	if err != nil {
		return nil, err
	}

	id, err := s.docker.CreateContainer(ctx, spec)
	if err != nil {
		return nil, s.errorf("create-container", ErrContainerCreate, err, "")
	}
	s.logger.Debug("created container", "name", spec.Name, "one_off", oneOff)

	ct, err := docker.ContainerFromID(ctx, s.docker, id)
	if err != nil {
		return nil, s.errorf("create-container", ErrContainerCreate, err, "")
	}
	return ct, nil
}

// GetContainer returns the service container, stopped or not. With
// mustExist unset a missing container yields (nil, nil).
func (s *base) GetContainer(ctx context.Context, mustExist bool) (*docker.Container, error) {
	found, err := s.Containers(ctx, Query{IncludeStopped: true, OneOff: labels.OneOffExclude})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		if mustExist {
			return nil, s.errorf("get-container", ErrContainerNotFound, nil, "no container for "+s.ContainerName())
		}
		return nil, nil
	}
	return found[0], nil
}

// StartContainer starts the service container.
func (s *base) StartContainer(ctx context.Context) error {
	ct, err := s.GetContainer(ctx, true)
	if err != nil {
		return err
	}
	if err := ct.Start(ctx); err != nil {
		return s.errorf("start-container", ErrContainerStart, err, "")
	}
	return nil
}

// Containers lists the containers of this service.
func (s *base) Containers(ctx context.Context, q Query) ([]*docker.Container, error) {
	found, err := docker.SearchContainers(ctx, s.docker, labels.ServiceFilter(s.stack.Name, s.Role(), q.OneOff), q.IncludeStopped)
	if err != nil {
		return nil, fmt.Errorf("list %s containers: %w", s.Role(), err)
	}
	return found, nil
}

// replaceContainer removes the current service container, if any, and
// reports whether it was running.
func (s *base) replaceContainer(ctx context.Context) (bool, error) {
	existing, err := s.GetContainer(ctx, false)
	if err != nil || existing == nil {
		return false, err
	}
	running := existing.IsRunning()
	if running {
		if err := existing.Stop(ctx, stopTimeout); err != nil {
			s.logger.Warn("failed to stop container before replacing it", "container", existing.Name(), "error", err)
		}
	}
	if err := existing.Remove(ctx, true, false); err != nil && !errors.Is(err, docker.ErrContainerNotFound) {
		return running, s.errorf("remove-container", ErrContainerCreate, err, "")
	}
	return running, nil
}
