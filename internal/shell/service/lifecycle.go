package service

import (
	"context"
	"errors"

	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/shell/docker"
)

// =============================================================================
// Volumes
// =============================================================================

// CreateVolumes creates the data volume. An existing volume is kept.
func (s *base) CreateVolumes(ctx context.Context) error {
	if s.IsRemote() {
		return nil
	}
	name := s.VolumeName()
	_, err := s.docker.CreateVolume(ctx, docker.VolumeSpec{
		Name:   name,
		Labels: labels.ForService(s.stack.Name, s.Role()),
	})
	if err != nil && !errors.Is(err, docker.ErrVolumeAlreadyExists) {
		return s.errorf("create-volume", ErrVolumeCreate, err, "")
	}
	s.logger.Debug("ensured volume", "volume", name)
	return nil
}

// DropVolumes removes the data volume. Failures are logged, not returned.
func (s *base) DropVolumes(ctx context.Context) error {
	if s.IsRemote() {
		return nil
	}
	name := s.VolumeName()
	err := s.docker.RemoveVolume(ctx, name, true)
	switch {
	case err == nil:
		s.logger.Debug("removed volume", "volume", name)
	case errors.Is(err, docker.ErrVolumeNotFound):
	default:
		s.logger.Warn("failed to remove volume", "volume", name, "error", err)
	}
	return nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// Create prepares addons and images, creates the volume and the service
// container. An existing container is only replaced with Force.
func (s *base) Create(ctx context.Context, opts CreateOptions) error {
	if s.IsRemote() {
		s.logger.Info("service is remote, nothing to create")
		return nil
	}
	s.logger.Info("creating service")

	if err := s.role.beforeCreate(ctx, opts); err != nil {
		return err
	}
	if err := s.EnsureBaseImage(ctx, opts.Pull); err != nil {
		return err
	}
	if _, err := s.Build(ctx, BuildOptions{Remove: true}); err != nil {
		return err
	}
	if err := s.CreateVolumes(ctx); err != nil {
		return err
	}

	existing, err := s.GetContainer(ctx, false)
	if err != nil {
		return err
	}
	if existing != nil {
		if !opts.Force {
			s.logger.Warn("container already exists, keeping it", "container", existing.Name())
			return nil
		}
		if _, err := s.replaceContainer(ctx); err != nil {
			return err
		}
	}

	_, err = s.CreateContainer(ctx, false, nil)
	return err
}

// Drop removes every container of the service, optionally its volume, and
// its images. Each step is best effort.
func (s *base) Drop(ctx context.Context, opts DropOptions) error {
	if s.IsRemote() {
		return nil
	}
	s.logger.Info("dropping service")

	containers, err := s.Containers(ctx, Query{IncludeStopped: true, OneOff: labels.OneOffInclude})
	if err != nil {
		s.logger.Warn("failed to list containers", "error", err)
	}
	for _, ct := range containers {
		if err := ct.Remove(ctx, true, false); err != nil && !errors.Is(err, docker.ErrContainerNotFound) {
			s.logger.Warn("failed to remove container", "container", ct.Name(), "error", err)
			continue
		}
		s.logger.Debug("removed container", "container", ct.Name())
	}

	if opts.Volumes {
		_ = s.DropVolumes(ctx)
	}

	if s.HasCustomImage() {
		s.removeImage(ctx, s.ImageTag(), true)
	}
	// The engine refuses while other stacks still use the base image.
	s.removeImage(ctx, s.BaseImageTag(), opts.Force)
	return nil
}

func (s *base) removeImage(ctx context.Context, tag string, force bool) {
	err := s.docker.RemoveImage(ctx, tag, force)
	switch {
	case err == nil:
		s.logger.Debug("removed image", "image", tag)
	case errors.Is(err, docker.ErrImageNotFound):
	default:
		s.logger.Debug("image not removed", "image", tag, "error", err)
	}
}

// Pull refreshes addons and re-pulls the base image.
func (s *base) Pull(ctx context.Context) error {
	if s.IsRemote() {
		return nil
	}
	if err := s.role.beforePull(ctx); err != nil {
		return err
	}
	return s.EnsureBaseImage(ctx, true)
}

// Update rebuilds the image and recreates the service container, keeping
// volumes. A container that was running is started again.
func (s *base) Update(ctx context.Context) error {
	if s.IsRemote() {
		return nil
	}
	s.logger.Info("updating service")

	if _, err := s.Build(ctx, BuildOptions{Remove: true}); err != nil {
		return err
	}
	wasRunning, err := s.replaceContainer(ctx)
	if err != nil {
		return err
	}
	ct, err := s.CreateContainer(ctx, false, nil)
	if err != nil {
		return err
	}
	if wasRunning {
		if err := ct.Start(ctx); err != nil {
			return s.errorf("start-container", ErrContainerStart, err, "")
		}
	}
	return nil
}
