// Package stack orchestrates the services of one declared stack: the
// create/drop protocol with its registry bookkeeping, start/stop, one-off
// runs, exec, logs, events and data transfer.
package stack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/git"
	"github.com/odooghost/odooghost/internal/shell/service"
	"github.com/odooghost/odooghost/internal/shell/store"
)

// =============================================================================
// Dependencies
// =============================================================================

// Deps is everything a stack talks to.
type Deps struct {
	Docker          docker.Client
	Registry        store.Registry
	Git             git.Client
	Logger          *slog.Logger
	WorkingDir      string
	BuildContextDir string
	Out             io.Writer
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Out == nil {
		d.Out = io.Discard
	}
	return d
}

func (d Deps) serviceDeps() service.Deps {
	return service.Deps{
		Docker:          d.Docker,
		Git:             d.Git,
		Logger:          d.Logger,
		WorkingDir:      d.WorkingDir,
		BuildContextDir: d.BuildContextDir,
		Out:             d.Out,
	}
}

// =============================================================================
// State
// =============================================================================

// State is the registry view of a stack.
type State string

const (
	StateNone State = "NONE"
	// StatePartial is reserved for creations that stopped midway. Existence
	// is read from the registry only, so State never returns it; Drift lists
	// the missing containers instead.
	StatePartial State = "PARTIAL"
	StateReady   State = "READY"
)

// RunState aggregates the service containers.
type RunState string

const (
	RunStateRunning    RunState = "RUNNING"
	RunStatePaused     RunState = "PAUSED"
	RunStateRestarting RunState = "RESTARTING"
	RunStateStopped    RunState = "STOPPED"
)

// =============================================================================
// Stack
// =============================================================================

// Stack binds one StackConfig to its services.
type Stack struct {
	cfg      *domain.StackConfig
	deps     Deps
	services []service.Service
	logger   *slog.Logger
}

// New builds the stack of cfg. cfg must be validated.
func New(cfg *domain.StackConfig, deps Deps) (*Stack, error) {
	deps = deps.withDefaults()
	services, err := service.ForStack(cfg, deps.serviceDeps())
	if err != nil {
		return nil, err
	}
	return &Stack{
		cfg:      cfg,
		deps:     deps,
		services: services,
		logger:   deps.Logger.With("stack", cfg.Name),
	}, nil
}

// FromFile parses a YAML or JSON stack file.
func FromFile(path string, deps Deps) (*Stack, error) {
	format, err := domain.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stack file: %w", err)
	}
	cfg, err := domain.Parse(data, format)
	if err != nil {
		return nil, err
	}
	return New(cfg, deps)
}

// FromName loads a registered stack.
func FromName(ctx context.Context, name string, deps Deps) (*Stack, error) {
	cfg, err := deps.Registry.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewStackError("load", name, "", ErrStackNotFound, err)
	}
	if err != nil {
		return nil, NewStackError("load", name, "", ErrRegistry, err)
	}
	return New(cfg, deps)
}

// List returns the registered stacks. With runningOnly, only stacks with at
// least one running managed container are returned.
func List(ctx context.Context, deps Deps, runningOnly bool) ([]*Stack, error) {
	if !runningOnly {
		cfgs, err := deps.Registry.List(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*Stack, 0, len(cfgs))
		for _, cfg := range cfgs {
			s, err := New(cfg, deps)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}

	running, err := docker.SearchContainers(ctx, deps.Docker, labels.ManagedSet(), false)
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	for _, ct := range running {
		if n := ct.StackName(); n != "" {
			names[n] = true
		}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	out := make([]*Stack, 0, len(sorted))
	for _, n := range sorted {
		s, err := FromName(ctx, n, deps)
		if err != nil {
			deps.withDefaults().Logger.Warn("running containers of unregistered stack", "stack", n)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Count returns the number of registered stacks.
func Count(ctx context.Context, deps Deps) (int, error) {
	return deps.Registry.Count(ctx)
}

func (s *Stack) Name() string                { return s.cfg.Name }
func (s *Stack) Config() *domain.StackConfig { return s.cfg }

// Services returns the services in lifecycle order.
func (s *Stack) Services() []service.Service { return s.services }

// Service returns the service of role.
func (s *Stack) Service(role string) (service.Service, error) {
	for _, svc := range s.services {
		if svc.Role() == role {
			return svc, nil
		}
	}
	return nil, NewStackError("service", s.Name(), fmt.Sprintf("no %q service", role), ErrServiceNotFound, nil)
}

// =============================================================================
// Introspection
// =============================================================================

// State reads the registry.
func (s *Stack) State(ctx context.Context) (State, error) {
	ok, err := s.deps.Registry.Exists(ctx, s.Name())
	if err != nil {
		return StateNone, err
	}
	if ok {
		return StateReady, nil
	}
	return StateNone, nil
}

// Exists reports whether the stack is registered.
func (s *Stack) Exists(ctx context.Context) (bool, error) {
	st, err := s.State(ctx)
	return st != StateNone, err
}

// guard fails with ErrStackNotFound when the stack is not registered, and
// with ErrRegistry when the registry cannot be read.
func (s *Stack) guard(ctx context.Context, op string) error {
	ok, err := s.Exists(ctx)
	if err != nil {
		return NewStackError(op, s.Name(), "", ErrRegistry, err)
	}
	if !ok {
		return NewStackError(op, s.Name(), "stack does not exist", ErrStackNotFound, nil)
	}
	return nil
}

// Containers lists the stack's containers.
func (s *Stack) Containers(ctx context.Context, includeStopped bool, oneOff labels.OneOffFilter) ([]*docker.Container, error) {
	found, err := docker.SearchContainers(ctx, s.deps.Docker, labels.StackFilter(s.Name(), oneOff), includeStopped)
	if err != nil {
		return nil, fmt.Errorf("list containers of %s: %w", s.Name(), err)
	}
	return found, nil
}

// RunState aggregates the service containers: RUNNING when all run, PAUSED
// when all are paused, RESTARTING when any restarts, STOPPED otherwise.
func (s *Stack) RunState(ctx context.Context) (RunState, error) {
	containers, err := s.Containers(ctx, true, labels.OneOffExclude)
	if err != nil {
		return RunStateStopped, err
	}
	if len(containers) == 0 {
		return RunStateStopped, nil
	}

	running, paused := 0, 0
	for _, ct := range containers {
		switch {
		case ct.IsRestarting():
			return RunStateRestarting, nil
		case ct.IsPaused():
			paused++
		case ct.IsRunning():
			running++
		}
	}
	switch {
	case paused == len(containers):
		return RunStatePaused, nil
	case running == len(containers):
		return RunStateRunning, nil
	}
	return RunStateStopped, nil
}

// Drift returns the roles whose service container is missing from the
// engine although the stack is registered. Remote services are skipped.
func (s *Stack) Drift(ctx context.Context) ([]string, error) {
	containers, err := s.Containers(ctx, true, labels.OneOffExclude)
	if err != nil {
		return nil, err
	}
	present := map[string]bool{}
	for _, ct := range containers {
		present[ct.ServiceName()] = true
	}
	var missing []string
	for _, svc := range s.services {
		if !svc.IsRemote() && !present[svc.Role()] {
			missing = append(missing, svc.Role())
		}
	}
	return missing, nil
}
