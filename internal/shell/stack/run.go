package stack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/service"
	"github.com/odooghost/odooghost/internal/shell/terminal"
)

// Exit codes of an interrupted foreground run.
const (
	ExitStopped = 1
	ExitKilled  = 2
)

// =============================================================================
// One-off Run
// =============================================================================

// RunOptions configures Run.
type RunOptions struct {
	Service string
	Command []string
	Detach  bool
	User    string
	Workdir string
	TTY     bool
	// Port publishes the service port: on service_port when declared,
	// otherwise on an engine-assigned host port.
	Port bool
	Env  map[string]string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Signals replaces the process signal subscription.
	Signals <-chan os.Signal
}

// RunResult is the outcome of Run. ExitCode is meaningless when detached.
type RunResult struct {
	Container string
	ExitCode  int
}

// Run starts a throwaway container of a service next to the running stack.
// In the foreground it relays the terminal until the container is removed;
// the first interrupt stops it and a second one kills it.
func (s *Stack) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := s.guard(ctx, "run"); err != nil {
		return nil, err
	}
	svc, err := s.Service(opts.Service)
	if err != nil {
		return nil, err
	}
	if svc.IsRemote() {
		return nil, NewStackError("run", s.Name(), svc.Role()+" is remote", ErrServiceNotFound, nil)
	}

	if err := s.startOthers(ctx, svc.Role()); err != nil {
		return nil, err
	}

	tty := opts.TTY && !opts.Detach && terminal.IsTerminal(opts.Stdin)
	overrides := &service.Overrides{
		Command:    opts.Command,
		Tty:        &tty,
		OpenStdin:  true,
		AutoRemove: true,
		User:       opts.User,
		Workdir:    opts.Workdir,
		Env:        opts.Env,
	}
	if opts.Port {
		hostPort := 0
		if p := svc.Config().Port(); p != nil {
			hostPort = *p
		}
		overrides.Ports = []docker.PortBinding{{ContainerPort: svc.ContainerPort(), HostPort: hostPort, Protocol: "tcp"}}
	}

	ct, err := svc.CreateContainer(ctx, true, overrides)
	if err != nil {
		return nil, err
	}
	id, name := ct.ID(), ct.Name()
	s.logger.Info("created one-off container", "container", name, "detach", opts.Detach)

	if opts.Detach {
		if err := ct.Start(ctx); err != nil {
			s.discardOneOff(ctx, id)
			return nil, NewStackError("run", s.Name(), "", err, nil)
		}
		return &RunResult{Container: name}, nil
	}

	code, err := s.runForeground(ctx, id, tty, opts)
	if err != nil {
		return nil, NewStackError("run", s.Name(), "", err, nil)
	}
	return &RunResult{Container: name, ExitCode: code}, nil
}

// startOthers starts the stopped containers of every service but role.
func (s *Stack) startOthers(ctx context.Context, role string) error {
	for _, other := range s.services {
		if other.Role() == role || other.IsRemote() {
			continue
		}
		ct, err := other.GetContainer(ctx, false)
		if err != nil {
			return err
		}
		if ct == nil || ct.IsRunning() {
			continue
		}
		if err := ct.Start(ctx); err != nil {
			return NewStackError("run", s.Name(), "", err, nil)
		}
		s.logger.Debug("started dependency", "container", ct.Name())
	}
	return nil
}

// runForeground attaches before starting so no output is lost, then relays
// until the auto-removed container is gone.
func (s *Stack) runForeground(ctx context.Context, id string, tty bool, opts RunOptions) (int, error) {
	cli := s.deps.Docker
	stream, err := cli.AttachContainer(ctx, id, docker.AttachOptions{
		Stdin:  opts.Stdin != nil,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		s.discardOneOff(ctx, id)
		return 0, err
	}
	defer stream.Close()

	codeCh, errCh := cli.WaitContainer(ctx, id, true)
	if err := cli.StartContainer(ctx, id); err != nil {
		s.discardOneOff(ctx, id)
		return 0, err
	}

	var interrupted atomic.Int32
	stopWatch := terminal.WatchSignals(ctx, opts.Signals,
		func() {
			interrupted.CompareAndSwap(0, ExitStopped)
			timeout := DefaultStopTimeout
			go func() { _ = cli.StopContainer(context.WithoutCancel(ctx), id, &timeout) }()
		},
		func() {
			interrupted.Store(ExitKilled)
			go func() { _ = cli.KillContainer(context.WithoutCancel(ctx), id, "SIGKILL") }()
		},
	)
	defer stopWatch()

	relayErr := terminal.Relay(ctx, stream, terminal.Options{
		In:  opts.Stdin,
		Out: opts.Stdout,
		Err: opts.Stderr,
		TTY: tty,
		Resize: func(ctx context.Context, h, w uint) error {
			return cli.ResizeContainer(ctx, id, h, w)
		},
	})
	if relayErr != nil {
		s.logger.Debug("relay ended", "error", relayErr)
	}

	var code int
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return 0, fmt.Errorf("wait for %s: %w", id, err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	if forced := interrupted.Load(); forced != 0 {
		return int(forced), nil
	}
	return code, nil
}

// discardOneOff removes a one-off container that never started. Auto-remove
// only applies once a container has run.
func (s *Stack) discardOneOff(ctx context.Context, id string) {
	err := s.deps.Docker.RemoveContainer(context.WithoutCancel(ctx), id, docker.RemoveOptions{Force: true})
	if err != nil && !errors.Is(err, docker.ErrContainerNotFound) {
		s.logger.Warn("failed to remove one-off container", "container", id, "error", err)
	}
}

// =============================================================================
// Exec / Logs
// =============================================================================

// ExecOptions configures Exec.
type ExecOptions struct {
	Service    string
	Command    []string
	Detach     bool
	Privileged bool
	User       string
	TTY        bool
	Workdir    string
	Env        []string
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// Exec runs a command in a running service container and returns its exit
// code.
func (s *Stack) Exec(ctx context.Context, opts ExecOptions) (int, error) {
	if err := s.guard(ctx, "exec"); err != nil {
		return 0, err
	}
	ct, err := s.serviceContainer(ctx, opts.Service)
	if err != nil {
		return 0, err
	}
	if !ct.IsRunning() {
		return 0, NewStackError("exec", s.Name(), ct.Name()+" is not running", docker.ErrContainerNotRunning, nil)
	}

	res, err := ct.ExecRun(ctx, docker.ExecOptions{
		Command:    opts.Command,
		Env:        opts.Env,
		User:       opts.User,
		Workdir:    opts.Workdir,
		Privileged: opts.Privileged,
		Detach:     opts.Detach,
		TTY:        opts.TTY && !opts.Detach && terminal.IsTerminal(opts.Stdin),
		Stdin:      opts.Stdin,
		Stdout:     opts.Stdout,
		Stderr:     opts.Stderr,
	})
	if err != nil {
		return 0, NewStackError("exec", s.Name(), "", err, nil)
	}
	return res.ExitCode, nil
}

// Logs streams the logs of a service container to w.
func (s *Stack) Logs(ctx context.Context, role string, w io.Writer, opts docker.LogOptions) error {
	if err := s.guard(ctx, "logs"); err != nil {
		return err
	}
	ct, err := s.serviceContainer(ctx, role)
	if err != nil {
		return err
	}
	return ct.StreamLogs(ctx, w, opts)
}

func (s *Stack) serviceContainer(ctx context.Context, role string) (*docker.Container, error) {
	svc, err := s.Service(role)
	if err != nil {
		return nil, err
	}
	if svc.IsRemote() {
		return nil, NewStackError("service", s.Name(), role+" is remote", ErrServiceNotFound, nil)
	}
	return svc.GetContainer(ctx, true)
}
