// Package addons resolves the addon sources of an application service:
// local directories are checked, remote repositories are cloned or pulled
// into the working directory.
package addons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/shell/git"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrInvalidAddonsPath = errors.New("invalid addons path")
	ErrAddonsClone       = errors.New("addons clone failed")
	ErrAddonsPull        = errors.New("addons pull failed")
)

// AddonsError carries the addon and operation that failed.
type AddonsError struct {
	Addon string
	Op    string
	Err   error
}

func (e *AddonsError) Error() string {
	return fmt.Sprintf("addons %s %s: %v", e.Op, e.Addon, e.Err)
}

func (e *AddonsError) Unwrap() error { return e.Err }

func newError(src domain.AddonSource, op string, kind, cause error) error {
	name := src.Path
	if src.IsRemote() {
		name = src.Origin
	}
	if cause == nil {
		return &AddonsError{Addon: name, Op: op, Err: kind}
	}
	return &AddonsError{Addon: name, Op: op, Err: fmt.Errorf("%w: %w", kind, cause)}
}

// =============================================================================
// Handler
// =============================================================================

// Handler resolves the addon sources of one application config.
type Handler struct {
	appVersion domain.Version
	sources    []domain.AddonSource
	workingDir string
	git        git.Client
	logger     *slog.Logger
}

// NewHandler creates a handler. Remote clones land under workingDir.
func NewHandler(appVersion domain.Version, sources []domain.AddonSource, workingDir string, g git.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		appVersion: appVersion,
		sources:    sources,
		workingDir: workingDir,
		git:        g,
		logger:     logger,
	}
}

// Sources returns the declared sources in order.
func (h *Handler) Sources() []domain.AddonSource { return h.sources }

// HostPath is where a source lives on the host: the declared path for local
// sources, and for remote ones either the declared path or
// <workingDir>/<version>/<org>/<name>.
func (h *Handler) HostPath(src domain.AddonSource) string {
	if !src.IsRemote() || src.Path != "" {
		return src.Path
	}
	return filepath.Join(h.workingDir, h.appVersion.String(), src.Org(), src.Name())
}

// Ensure validates every source and clones remote ones that are missing.
func (h *Handler) Ensure(ctx context.Context) error {
	h.logger.Info("ensuring addons", "count", len(h.sources))
	for i, src := range h.sources {
		if err := h.validate(i, src); err != nil {
			return err
		}
		if !src.IsRemote() {
			continue
		}
		target := h.HostPath(src)
		if exists(target) {
			continue
		}
		if err := h.clone(ctx, src, target); err != nil {
			return err
		}
	}
	return nil
}

// Pull refreshes remote sources. Dirty checkouts are skipped with a warning;
// missing ones are cloned.
func (h *Handler) Pull(ctx context.Context) error {
	h.logger.Info("pulling addons", "count", len(h.sources))
	for i, src := range h.sources {
		if err := h.validate(i, src); err != nil {
			return err
		}
		if !src.IsRemote() {
			continue
		}
		target := h.HostPath(src)
		if !exists(target) {
			if err := h.clone(ctx, src, target); err != nil {
				return err
			}
			continue
		}

		if h.git == nil {
			return newError(src, "pull", ErrAddonsPull, git.ErrGitNotFound)
		}
		dirty, err := h.git.IsDirty(ctx, target)
		if err != nil {
			return newError(src, "pull", ErrAddonsPull, err)
		}
		if dirty {
			h.logger.Warn("skipping pull of dirty addons checkout", "addon", src.Name(), "path", target)
			continue
		}
		if err := h.git.Pull(ctx, target, src.EffectiveBranch(h.appVersion)); err != nil {
			return newError(src, "pull", ErrAddonsPull, err)
		}
	}
	return nil
}

func (h *Handler) clone(ctx context.Context, src domain.AddonSource, target string) error {
	if h.git == nil {
		return newError(src, "clone", ErrAddonsClone, git.ErrGitNotFound)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return newError(src, "clone", ErrAddonsClone, err)
	}
	branch := src.EffectiveBranch(h.appVersion)
	h.logger.Info("cloning addons", "origin", src.Origin, "branch", branch, "path", target)
	if err := h.git.Clone(ctx, src.Origin, branch, target); err != nil {
		return newError(src, "clone", ErrAddonsClone, err)
	}
	return nil
}

// validate checks the declaration and, for local sources, the directory.
func (h *Handler) validate(i int, src domain.AddonSource) error {
	if err := src.Validate(fmt.Sprintf("services.odoo.addons[%d]", i)); err != nil {
		return newError(src, "validate", ErrInvalidAddonsPath, err)
	}
	if src.IsRemote() {
		return nil
	}

	info, err := os.Stat(src.Path)
	if err != nil {
		return newError(src, "validate", ErrInvalidAddonsPath, err)
	}
	if !info.IsDir() {
		return newError(src, "validate", ErrInvalidAddonsPath, errors.New("not a directory"))
	}
	if !IsAddonsDir(src.Path) {
		return newError(src, "validate", ErrInvalidAddonsPath, errors.New("no module with a manifest found"))
	}
	return nil
}

// =============================================================================
// Derived Values
// =============================================================================

// AddonsPath returns the comma-joined container paths in declaration order.
func (h *Handler) AddonsPath() string {
	paths := make([]string, 0, len(h.sources))
	for _, src := range h.sources {
		paths = append(paths, src.ContainerPath())
	}
	return strings.Join(paths, ",")
}

// CopyAddons returns the sources baked into the image.
func (h *Handler) CopyAddons() []domain.AddonSource {
	return h.byMode(domain.AddonCopy)
}

// MountAddons returns the sources bind-mounted at runtime.
func (h *Handler) MountAddons() []domain.AddonSource {
	return h.byMode(domain.AddonMount)
}

func (h *Handler) byMode(mode domain.AddonMode) []domain.AddonSource {
	var out []domain.AddonSource
	for _, src := range h.sources {
		if src.Mode == mode {
			out = append(out, src)
		}
	}
	return out
}

// IsAddonsDir reports whether dir holds at least one module, i.e. a
// subdirectory with __manifest__.py or __openerp__.py.
func IsAddonsDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		for _, manifest := range []string{"__manifest__.py", "__openerp__.py"} {
			if exists(filepath.Join(dir, e.Name(), manifest)) {
				return true
			}
		}
	}
	return false
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
