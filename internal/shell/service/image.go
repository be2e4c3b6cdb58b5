package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/core/progress"
	"github.com/odooghost/odooghost/internal/shell/archive"
	"github.com/odooghost/odooghost/internal/shell/docker"
)

// =============================================================================
// Base Image
// =============================================================================

// EnsureBaseImage pulls the base image when it is missing, or when pull is
// set.
func (s *base) EnsureBaseImage(ctx context.Context, pull bool) error {
	if s.IsRemote() {
		s.logger.Debug("skipping image of remote service")
		return nil
	}

	tag := s.BaseImageTag()
	exists, err := s.docker.ImageExists(ctx, tag)
	if err != nil {
		return s.errorf("ensure-image", ErrImageEnsure, err, "")
	}
	if exists && !pull {
		return nil
	}
	return s.pullImage(ctx, tag)
}

func (s *base) pullImage(ctx context.Context, tag string) error {
	s.logger.Info("pulling image", "image", tag)
	rc, err := s.docker.PullImage(ctx, tag, docker.PullOptions{})
	if err != nil {
		return s.errorf("pull-image", ErrImagePull, err, "")
	}
	defer rc.Close()

	events, err := progress.Stream(rc, s.deps.Out)
	if err != nil {
		return s.errorf("pull-image", ErrImagePull, err, "")
	}
	digest, ok := progress.DigestFromPull(events)
	if !ok {
		return s.errorf("pull-image", ErrImagePull, nil, "pull output carried no digest")
	}
	s.logger.Info("pulled image", "image", tag, "digest", digest)
	return nil
}

// =============================================================================
// Custom Image
// =============================================================================

// Build builds the custom image. Services without one return "".
func (s *base) Build(ctx context.Context, opts BuildOptions) (string, error) {
	if !s.HasCustomImage() {
		return "", nil
	}

	root := s.deps.BuildContextDir
	if root == "" {
		root = filepath.Join(os.TempDir(), "odooghost")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", s.errorf("build", ErrImageBuild, err, "")
	}
	dir, err := os.MkdirTemp(root, fmt.Sprintf("build-%s-", s.stack.Name))
	if err != nil {
		return "", s.errorf("build", ErrImageBuild, err, "")
	}
	defer os.RemoveAll(dir)

	if err := s.role.stageContext(dir); err != nil {
		return "", s.errorf("build", ErrImageBuild, err, "")
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(archive.TarDir(dir, pw))
	}()
	defer pr.Close()

	tag := s.ImageTag()
	s.logger.Info("building image", "image", tag)
	rc, err := s.docker.BuildImage(ctx, pr, docker.BuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Labels:     labels.ForService(s.stack.Name, s.Role()),
		Remove:     opts.Remove,
		NoCache:    opts.NoCache,
	})
	if err != nil {
		return "", s.errorf("build", ErrImageBuild, err, "")
	}
	defer rc.Close()

	events, err := progress.Stream(rc, s.deps.Out)
	if err != nil {
		return "", s.errorf("build", ErrImageBuild, err, "")
	}
	id, ok := progress.ImageIDFromBuild(events)
	if !ok {
		return "", s.errorf("build", ErrImageBuild, nil, "build output carried no image id")
	}
	s.logger.Info("built image", "image", tag, "id", id)
	return id, nil
}
