package docker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/shell/terminal"
)

// defaultExitCode is reported when the engine returns no status code.
const defaultExitCode = 127

// =============================================================================
// Container Handle
// =============================================================================

// Container is a disposable view of one engine container.
//
// A handle built from a list entry is unhydrated: it only knows the summary
// fields the list call returns. Refresh inspects the container and caches the
// full attributes; Invalidate drops them again. Accessors never inspect on
// their own.
type Container struct {
	client    Client
	id        string
	summary   ContainerInfo
	info      *ContainerInfo
	fetchedAt time.Time
}

// ContainerFromID inspects a container. A missing container surfaces as
// ErrContainerNotFound.
func ContainerFromID(ctx context.Context, c Client, id string) (*Container, error) {
	ct := &Container{client: c, id: id}
	if err := ct.Refresh(ctx); err != nil {
		return nil, err
	}
	return ct, nil
}

// ContainerFromSummary wraps a list entry without inspecting it.
func ContainerFromSummary(c Client, summary ContainerInfo) *Container {
	return &Container{client: c, id: summary.ID, summary: summary}
}

// SearchContainers lists containers matching the label predicates.
func SearchContainers(ctx context.Context, c Client, predicates map[string]string, includeStopped bool) ([]*Container, error) {
	infos, err := c.ListContainers(ctx, ListOptions{
		All:     includeStopped,
		Filters: map[string][]string{"label": labels.AsFilterArgs(predicates)},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Container, 0, len(infos))
	for _, info := range infos {
		out = append(out, ContainerFromSummary(c, info))
	}
	return out, nil
}

// Refresh re-inspects the container and caches the result.
func (c *Container) Refresh(ctx context.Context) error {
	info, err := c.client.InspectContainer(ctx, c.id)
	if err != nil {
		return err
	}
	c.info = info
	c.summary = *info
	c.fetchedAt = time.Now()
	return nil
}

// Invalidate drops the cached inspect result.
func (c *Container) Invalidate() {
	c.info = nil
	c.fetchedAt = time.Time{}
}

// Hydrated reports whether inspect attributes are cached, and since when.
func (c *Container) Hydrated() (bool, time.Time) {
	return c.info != nil, c.fetchedAt
}

// =============================================================================
// Accessors
// =============================================================================

func (c *Container) attrs() *ContainerInfo {
	if c.info != nil {
		return c.info
	}
	return &c.summary
}

func (c *Container) ID() string                { return c.id }
func (c *Container) Name() string              { return c.attrs().Name }
func (c *Container) Image() string             { return c.attrs().Image }
func (c *Container) Labels() map[string]string { return c.attrs().Labels }
func (c *Container) Status() ContainerStatus   { return c.attrs().Status }
func (c *Container) IsRunning() bool           { return c.attrs().Running }
func (c *Container) IsPaused() bool            { return c.attrs().Paused }
func (c *Container) IsRestarting() bool        { return c.attrs().Restarting }
func (c *Container) Ports() []PortBinding      { return c.attrs().Ports }

// ShortID returns the first 12 characters of the id.
func (c *Container) ShortID() string {
	if len(c.id) > 12 {
		return c.id[:12]
	}
	return c.id
}

// StackName returns the owning stack, recovered from labels.
func (c *Container) StackName() string { return c.Labels()[labels.Stack] }

// ServiceName returns the owning role, recovered from labels.
func (c *Container) ServiceName() string { return c.Labels()[labels.Service] }

// IsOneOff reports whether this is a throwaway run container.
func (c *Container) IsOneOff() bool { return labels.IsOneOff(c.Labels()) }

// ExitCode returns the last exit code. It requires a hydrated handle.
func (c *Container) ExitCode() (int, bool) {
	if c.info == nil {
		return 0, false
	}
	return c.info.ExitCode, true
}

// Networks returns the attached networks. It requires a hydrated handle.
func (c *Container) Networks() map[string]NetworkEndpoint {
	if c.info == nil {
		return nil
	}
	return c.info.Networks
}

// SubnetIP returns the container address on a network, or "".
func (c *Container) SubnetIP(network string) string {
	return c.Networks()[network].IPAddress
}

// LocalPort returns "HostIp:HostPort" for a published container port.
func (c *Container) LocalPort(containerPort int) (string, bool) {
	for _, p := range c.Ports() {
		if p.ContainerPort == containerPort && p.HostPort != 0 {
			ip := p.HostIP
			if ip == "" {
				ip = "0.0.0.0"
			}
			return fmt.Sprintf("%s:%d", ip, p.HostPort), true
		}
	}
	return "", false
}

// =============================================================================
// Lifecycle Verbs
// =============================================================================

// Start starts the container.
func (c *Container) Start(ctx context.Context) error {
	defer c.Invalidate()
	return c.client.StartContainer(ctx, c.id)
}

// Stop stops the container, killing it after timeout.
func (c *Container) Stop(ctx context.Context, timeout time.Duration) error {
	defer c.Invalidate()
	return c.client.StopContainer(ctx, c.id, &timeout)
}

// Kill sends signal (SIGKILL when empty) to the container.
func (c *Container) Kill(ctx context.Context, signal string) error {
	defer c.Invalidate()
	if signal == "" {
		signal = "SIGKILL"
	}
	return c.client.KillContainer(ctx, c.id, signal)
}

// Restart restarts the container with the given stop timeout.
func (c *Container) Restart(ctx context.Context, timeout time.Duration) error {
	defer c.Invalidate()
	return c.client.RestartContainer(ctx, c.id, &timeout)
}

// Remove deletes the container.
func (c *Container) Remove(ctx context.Context, force, volumes bool) error {
	defer c.Invalidate()
	return c.client.RemoveContainer(ctx, c.id, RemoveOptions{Force: force, RemoveVolumes: volumes})
}

// Wait blocks until the container stops and returns its exit code.
func (c *Container) Wait(ctx context.Context) (int, error) {
	defer c.Invalidate()
	codeCh, errCh := c.client.WaitContainer(ctx, c.id, false)
	select {
	case code := <-codeCh:
		return code, nil
	case err := <-errCh:
		return defaultExitCode, err
	case <-ctx.Done():
		return defaultExitCode, ctx.Err()
	}
}

// =============================================================================
// Exec
// =============================================================================

// ExecOptions configures ExecRun.
//
// Detach starts the command and returns at once. Otherwise output is relayed
// to Stdout/Stderr (or captured into ExecResult.Output when Stdout is nil),
// and with TTY plus a terminal Stdin the session is fully interactive.
type ExecOptions struct {
	Command    []string
	Env        []string
	User       string
	Workdir    string
	Privileged bool
	Detach     bool
	TTY        bool
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// ExecResult is the outcome of ExecRun.
type ExecResult struct {
	ExitCode int
	Output   []byte
}

// ExecRun runs a command in the container.
func (c *Container) ExecRun(ctx context.Context, opts ExecOptions) (*ExecResult, error) {
	spec := ExecSpec{
		Command:    opts.Command,
		Env:        opts.Env,
		User:       opts.User,
		WorkingDir: opts.Workdir,
		Privileged: opts.Privileged,
		Tty:        opts.TTY,
	}
	if !opts.Detach {
		spec.AttachStdin = opts.Stdin != nil
		spec.AttachStdout = true
		spec.AttachStderr = true
	}

	execID, err := c.client.CreateExec(ctx, c.id, spec)
	if err != nil {
		return nil, err
	}

	if opts.Detach {
		if err := c.client.StartExec(ctx, execID, opts.TTY); err != nil {
			return nil, err
		}
		return &ExecResult{}, nil
	}

	stream, err := c.client.AttachExec(ctx, execID, opts.TTY)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var captured bytes.Buffer
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = &captured
	}
	if stderr == nil {
		stderr = stdout
	}

	relayErr := terminal.Relay(ctx, stream, terminal.Options{
		In:  opts.Stdin,
		Out: stdout,
		Err: stderr,
		TTY: opts.TTY,
		Resize: func(ctx context.Context, h, w uint) error {
			return c.client.ResizeExec(ctx, execID, h, w)
		},
	})
	if relayErr != nil {
		return nil, relayErr
	}

	code, err := c.execExitCode(ctx, execID)
	if err != nil {
		return nil, err
	}
	return &ExecResult{ExitCode: code, Output: captured.Bytes()}, nil
}

// execExitCode waits for the engine to record the session's end. The output
// stream can close slightly before the exec is marked finished.
func (c *Container) execExitCode(ctx context.Context, execID string) (int, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		info, err := c.client.InspectExec(ctx, execID)
		if err != nil {
			return defaultExitCode, err
		}
		if !info.Running {
			return info.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return defaultExitCode, ctx.Err()
		case <-ticker.C:
		}
	}
}

// =============================================================================
// Archives and Logs
// =============================================================================

// GetArchive returns a tar stream of path. The caller closes it.
func (c *Container) GetArchive(ctx context.Context, path string) (io.ReadCloser, error) {
	return c.client.CopyFromContainer(ctx, c.id, path)
}

// PutArchive extracts a tar stream into dir.
func (c *Container) PutArchive(ctx context.Context, dir string, tar io.Reader) error {
	return c.client.CopyToContainer(ctx, c.id, dir, tar)
}

// StreamLogs copies the container logs to w one line at a time. Non-TTY
// containers multiplex stdout and stderr; both land in w.
func (c *Container) StreamLogs(ctx context.Context, w io.Writer, opts LogOptions) error {
	if c.info == nil {
		if err := c.Refresh(ctx); err != nil {
			return err
		}
	}

	rc, err := c.client.ContainerLogs(ctx, c.id, opts)
	if err != nil {
		return err
	}
	defer rc.Close()

	src := io.Reader(rc)
	if !c.info.Tty {
		pr, pw := io.Pipe()
		go func() {
			_, err := stdcopy.StdCopy(pw, pw, rc)
			pw.CloseWithError(err)
		}()
		defer pr.Close()
		src = pr
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(w, strings.TrimRight(scanner.Text(), "\r")); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
