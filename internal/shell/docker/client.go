package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Docker Client Implementation
// =============================================================================

// DockerClient implements the Client interface using the Docker SDK.
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient creates a new Docker client.
// If host is empty, it uses the default Docker host from environment.
// On macOS with Docker Desktop, it automatically detects the correct socket.
func NewDockerClient(host string) (*DockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewDockerError("NewDockerClient", "", "", "failed to create client", ErrConnectionFailed)
	}

	ctx := context.Background()
	if _, pingErr := cli.Ping(ctx); pingErr != nil && host == "" {
		homeDir, _ := os.UserHomeDir()
		desktopSocket := "unix://" + homeDir + "/.docker/run/docker.sock"

		cli2, err2 := client.NewClientWithOpts(
			client.WithHost(desktopSocket),
			client.WithAPIVersionNegotiation(),
		)
		if err2 == nil {
			if _, pingErr2 := cli2.Ping(ctx); pingErr2 == nil {
				cli.Close()
				return &DockerClient{cli: cli2}, nil
			}
			cli2.Close()
		}
	}

	return &DockerClient{cli: cli}, nil
}

// Ping checks if Docker daemon is reachable.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// Version returns the daemon version string.
func (d *DockerClient) Version(ctx context.Context) (string, error) {
	v, err := d.cli.ServerVersion(ctx)
	if err != nil {
		return "", NewDockerError("Version", "", "", err.Error(), ErrConnectionFailed)
	}
	return v.Version, nil
}

// Close closes the Docker client connection.
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Container Operations
// =============================================================================

// CreateContainer creates a new container from the given spec.
func (d *DockerClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	config := &container.Config{
		Image:        spec.Image,
		Hostname:     spec.Hostname,
		Cmd:          spec.Command,
		Entrypoint:   spec.Entrypoint,
		WorkingDir:   spec.WorkingDir,
		User:         spec.User,
		Labels:       spec.Labels,
		Tty:          spec.Tty,
		OpenStdin:    spec.OpenStdin,
		AttachStdin:  spec.OpenStdin,
		AttachStdout: true,
		AttachStderr: true,
	}
	for k, v := range spec.Env {
		config.Env = append(config.Env, fmt.Sprintf("%s=%s", k, v))
	}

	hostConfig := &container.HostConfig{AutoRemove: spec.AutoRemove}

	if len(spec.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}

		for _, p := range spec.Ports {
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			containerPort := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
			exposedPorts[containerPort] = struct{}{}

			hostPort := ""
			if p.HostPort != 0 {
				hostPort = strconv.Itoa(p.HostPort)
			}
			portBindings[containerPort] = append(portBindings[containerPort], nat.PortBinding{
				HostIP:   p.HostIP,
				HostPort: hostPort,
			})
		}

		config.ExposedPorts = exposedPorts
		hostConfig.PortBindings = portBindings
	}

	for _, v := range spec.Volumes {
		mountType := mount.TypeVolume
		if strings.HasPrefix(v.Source, "/") {
			mountType = mount.TypeBind
		}
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mountType,
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if spec.RestartPolicy != "" && !spec.AutoRemove {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(spec.RestartPolicy),
		}
	}

	var networkConfig *network.NetworkingConfig
	if len(spec.Networks) > 0 {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{},
		}
		for _, n := range spec.Networks {
			networkConfig.EndpointsConfig[n] = &network.EndpointSettings{
				Aliases: spec.NetworkAliases[n],
			}
		}
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, spec.Name)
	if err != nil {
		if strings.Contains(err.Error(), "Conflict") {
			return "", NewDockerError("CreateContainer", "container", spec.Name, "container already exists", ErrContainerAlreadyExists)
		}
		if client.IsErrNotFound(err) {
			return "", NewDockerError("CreateContainer", "image", spec.Image, "image not found", ErrImageNotFound)
		}
		return "", NewDockerError("CreateContainer", "container", spec.Name, err.Error(), err)
	}

	return resp.ID, nil
}

// StartContainer starts a stopped container.
func (d *DockerClient) StartContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StartContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "port is already allocated") {
			return NewDockerError("StartContainer", "container", containerID, err.Error(), ErrPortAlreadyAllocated)
		}
		return NewDockerError("StartContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// StopContainer stops a running container. The engine sends SIGKILL once
// timeout elapses.
func (d *DockerClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	err := d.cli.ContainerStop(ctx, containerID, stopOptions(timeout))
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StopContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("StopContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// KillContainer sends a signal to the container's main process.
func (d *DockerClient) KillContainer(ctx context.Context, containerID, signal string) error {
	err := d.cli.ContainerKill(ctx, containerID, signal)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("KillContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "is not running") {
			return NewDockerError("KillContainer", "container", containerID, "container is not running", ErrContainerNotRunning)
		}
		return NewDockerError("KillContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// RestartContainer stops then starts a container.
func (d *DockerClient) RestartContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	err := d.cli.ContainerRestart(ctx, containerID, stopOptions(timeout))
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RestartContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("RestartContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

func stopOptions(timeout *time.Duration) container.StopOptions {
	opts := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		opts.Timeout = &seconds
	}
	return opts
}

// RemoveContainer removes a container.
func (d *DockerClient) RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.RemoveVolumes,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("RemoveContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// InspectContainer returns detailed information about a container.
func (d *DockerClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	resp, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("InspectContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewDockerError("InspectContainer", "container", containerID, err.Error(), err)
	}

	info := &ContainerInfo{
		ID:       resp.ID,
		Name:     strings.TrimPrefix(resp.Name, "/"),
		Networks: map[string]NetworkEndpoint{},
	}
	info.CreatedAt, _ = time.Parse(time.RFC3339Nano, resp.Created)

	if resp.Config != nil {
		info.Image = resp.Config.Image
		info.Labels = resp.Config.Labels
		info.Tty = resp.Config.Tty
	}

	if st := resp.State; st != nil {
		info.Status = ContainerStatus(st.Status)
		info.Running = st.Running
		info.Paused = st.Paused
		info.Restarting = st.Restarting
		info.ExitCode = st.ExitCode
		info.StartedAt = parseEngineTime(st.StartedAt)
		info.FinishedAt = parseEngineTime(st.FinishedAt)
	}

	if ns := resp.NetworkSettings; ns != nil {
		for containerPort, bindings := range ns.Ports {
			cport, _ := strconv.Atoi(containerPort.Port())
			for _, b := range bindings {
				hport, _ := strconv.Atoi(b.HostPort)
				info.Ports = append(info.Ports, PortBinding{
					ContainerPort: cport,
					HostPort:      hport,
					Protocol:      containerPort.Proto(),
					HostIP:        b.HostIP,
				})
			}
		}
		for name, ep := range ns.Networks {
			if ep == nil {
				continue
			}
			info.Networks[name] = NetworkEndpoint{
				NetworkID: ep.NetworkID,
				IPAddress: ep.IPAddress,
				Aliases:   ep.Aliases,
			}
		}
	}

	return info, nil
}

func parseEngineTime(s string) *time.Time {
	if s == "" || s == "0001-01-01T00:00:00Z" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

// ListContainers returns a list of containers matching the given options.
func (d *DockerClient) ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error) {
	listOpts := container.ListOptions{All: opts.All}
	if len(opts.Filters) > 0 {
		listOpts.Filters = filterArgs(opts.Filters)
	}

	containers, err := d.cli.ContainerList(ctx, listOpts)
	if err != nil {
		return nil, NewDockerError("ListContainers", "container", "", err.Error(), err)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		var ports []PortBinding
		for _, p := range c.Ports {
			ports = append(ports, PortBinding{
				ContainerPort: int(p.PrivatePort),
				HostPort:      int(p.PublicPort),
				Protocol:      p.Type,
				HostIP:        p.IP,
			})
		}

		state := ContainerStatus(c.State)
		result = append(result, ContainerInfo{
			ID:         c.ID,
			Name:       shortestName(c.Names),
			Image:      c.Image,
			Status:     state,
			Running:    state == ContainerStatusRunning,
			Paused:     state == ContainerStatusPaused,
			Restarting: state == ContainerStatusRestarting,
			CreatedAt:  time.Unix(c.Created, 0),
			Ports:      ports,
			Labels:     c.Labels,
		})
	}

	return result, nil
}

// shortestName picks the container's own name among the link aliases the
// list call reports ("/demo_db", "/demo_odoo/db").
func shortestName(names []string) string {
	best := ""
	for _, n := range names {
		n = strings.TrimPrefix(n, "/")
		if best == "" || len(n) < len(best) {
			best = n
		}
	}
	return best
}

func filterArgs(in map[string][]string) filters.Args {
	f := filters.NewArgs()
	for k, values := range in {
		for _, v := range values {
			f.Add(k, v)
		}
	}
	return f
}

// WaitContainer reports the exit code once the container stops (or is
// removed, for auto-removing containers). Call it before starting the
// container so a fast exit is not missed.
func (d *DockerClient) WaitContainer(ctx context.Context, containerID string, untilRemoved bool) (<-chan int, <-chan error) {
	condition := container.WaitConditionNextExit
	if untilRemoved {
		condition = container.WaitConditionRemoved
	}

	codeCh := make(chan int, 1)
	errCh := make(chan error, 1)
	respCh, engineErrCh := d.cli.ContainerWait(ctx, containerID, condition)

	go func() {
		select {
		case resp := <-respCh:
			if resp.Error != nil && resp.Error.Message != "" {
				errCh <- NewDockerError("WaitContainer", "container", containerID, resp.Error.Message, nil)
				return
			}
			codeCh <- int(resp.StatusCode)
		case err := <-engineErrCh:
			if client.IsErrNotFound(err) {
				errCh <- NewDockerError("WaitContainer", "container", containerID, "container not found", ErrContainerNotFound)
				return
			}
			errCh <- NewDockerError("WaitContainer", "container", containerID, err.Error(), err)
		}
	}()

	return codeCh, errCh
}

// ContainerLogs returns logs from a container.
func (d *DockerClient) ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error) {
	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       opts.Tail,
		Timestamps: opts.Timestamps,
	}
	if !opts.Since.IsZero() {
		logOpts.Since = opts.Since.Format(time.RFC3339)
	}

	reader, err := d.cli.ContainerLogs(ctx, containerID, logOpts)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("ContainerLogs", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewDockerError("ContainerLogs", "container", containerID, err.Error(), err)
	}

	return reader, nil
}

// AttachContainer connects to a container's stdio.
func (d *DockerClient) AttachContainer(ctx context.Context, containerID string, opts AttachOptions) (*HijackedStream, error) {
	resp, err := d.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  opts.Stdin,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
		Logs:   opts.Logs,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("AttachContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewDockerError("AttachContainer", "container", containerID, err.Error(), err)
	}
	return NewHijackedStream(resp.Reader, resp.Conn, resp.CloseWrite, resp.Close), nil
}

// ResizeContainer sets the TTY size of a container.
func (d *DockerClient) ResizeContainer(ctx context.Context, containerID string, height, width uint) error {
	err := d.cli.ContainerResize(ctx, containerID, container.ResizeOptions{Height: height, Width: width})
	if err != nil {
		return NewDockerError("ResizeContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Exec Operations
// =============================================================================

// CreateExec prepares a command inside a running container.
func (d *DockerClient) CreateExec(ctx context.Context, containerID string, spec ExecSpec) (string, error) {
	resp, err := d.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		User:         spec.User,
		Privileged:   spec.Privileged,
		Tty:          spec.Tty,
		AttachStdin:  spec.AttachStdin,
		AttachStdout: spec.AttachStdout,
		AttachStderr: spec.AttachStderr,
		Detach:       !spec.AttachStdout && !spec.AttachStderr,
		WorkingDir:   spec.WorkingDir,
		Env:          spec.Env,
		Cmd:          spec.Command,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", NewDockerError("CreateExec", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "is not running") {
			return "", NewDockerError("CreateExec", "container", containerID, "container is not running", ErrContainerNotRunning)
		}
		return "", NewDockerError("CreateExec", "container", containerID, err.Error(), err)
	}
	return resp.ID, nil
}

// StartExec starts an exec session without attaching to it.
func (d *DockerClient) StartExec(ctx context.Context, execID string, tty bool) error {
	err := d.cli.ContainerExecStart(ctx, execID, container.ExecStartOptions{Detach: true, Tty: tty})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StartExec", "exec", execID, "exec session not found", ErrExecNotFound)
		}
		return NewDockerError("StartExec", "exec", execID, err.Error(), err)
	}
	return nil
}

// AttachExec starts an exec session and connects to its stdio.
func (d *DockerClient) AttachExec(ctx context.Context, execID string, tty bool) (*HijackedStream, error) {
	resp, err := d.cli.ContainerExecAttach(ctx, execID, container.ExecAttachOptions{Tty: tty})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("AttachExec", "exec", execID, "exec session not found", ErrExecNotFound)
		}
		return nil, NewDockerError("AttachExec", "exec", execID, err.Error(), err)
	}
	return NewHijackedStream(resp.Reader, resp.Conn, resp.CloseWrite, resp.Close), nil
}

// InspectExec returns the state of an exec session.
func (d *DockerClient) InspectExec(ctx context.Context, execID string) (*ExecInfo, error) {
	resp, err := d.cli.ContainerExecInspect(ctx, execID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("InspectExec", "exec", execID, "exec session not found", ErrExecNotFound)
		}
		return nil, NewDockerError("InspectExec", "exec", execID, err.Error(), err)
	}
	return &ExecInfo{Running: resp.Running, ExitCode: resp.ExitCode}, nil
}

// ResizeExec sets the TTY size of an exec session.
func (d *DockerClient) ResizeExec(ctx context.Context, execID string, height, width uint) error {
	err := d.cli.ContainerExecResize(ctx, execID, container.ResizeOptions{Height: height, Width: width})
	if err != nil {
		return NewDockerError("ResizeExec", "exec", execID, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Archive Operations
// =============================================================================

// CopyFromContainer returns a tar stream of srcPath.
func (d *DockerClient) CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	rc, _, err := d.cli.CopyFromContainer(ctx, containerID, srcPath)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("CopyFromContainer", "container", containerID, "no such container or path "+srcPath, ErrContainerNotFound)
		}
		return nil, NewDockerError("CopyFromContainer", "container", containerID, err.Error(), err)
	}
	return rc, nil
}

// CopyToContainer extracts a tar stream into dstDir.
func (d *DockerClient) CopyToContainer(ctx context.Context, containerID, dstDir string, content io.Reader) error {
	err := d.cli.CopyToContainer(ctx, containerID, dstDir, content, container.CopyToContainerOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("CopyToContainer", "container", containerID, "no such container or path "+dstDir, ErrContainerNotFound)
		}
		return NewDockerError("CopyToContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Network Operations
// =============================================================================

// CreateNetwork creates a new Docker network.
func (d *DockerClient) CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error) {
	driver := spec.Driver
	if driver == "" {
		driver = "bridge"
	}

	resp, err := d.cli.NetworkCreate(ctx, spec.Name, network.CreateOptions{
		Driver:     driver,
		Scope:      spec.Scope,
		Attachable: spec.Attachable,
		Labels:     spec.Labels,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return "", NewDockerError("CreateNetwork", "network", spec.Name, "network already exists", ErrNetworkAlreadyExists)
		}
		return "", NewDockerError("CreateNetwork", "network", spec.Name, err.Error(), err)
	}

	return resp.ID, nil
}

// InspectNetwork returns a network by name or id.
func (d *DockerClient) InspectNetwork(ctx context.Context, name string) (*NetworkInfo, error) {
	resp, err := d.cli.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("InspectNetwork", "network", name, "network not found", ErrNetworkNotFound)
		}
		return nil, NewDockerError("InspectNetwork", "network", name, err.Error(), err)
	}
	return &NetworkInfo{
		ID:     resp.ID,
		Name:   resp.Name,
		Driver: resp.Driver,
		Scope:  resp.Scope,
		Labels: resp.Labels,
	}, nil
}

// RemoveNetwork removes a Docker network.
func (d *DockerClient) RemoveNetwork(ctx context.Context, networkID string) error {
	err := d.cli.NetworkRemove(ctx, networkID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveNetwork", "network", networkID, "network not found", ErrNetworkNotFound)
		}
		if strings.Contains(err.Error(), "has active endpoints") {
			return NewDockerError("RemoveNetwork", "network", networkID, "network has active endpoints", ErrNetworkInUse)
		}
		return NewDockerError("RemoveNetwork", "network", networkID, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Volume Operations
// =============================================================================

// CreateVolume creates a new Docker volume. The engine returns the existing
// volume for a known name; a label mismatch means another owner.
func (d *DockerClient) CreateVolume(ctx context.Context, spec VolumeSpec) (string, error) {
	driver := spec.Driver
	if driver == "" {
		driver = "local"
	}

	resp, err := d.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   spec.Name,
		Driver: driver,
		Labels: spec.Labels,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return "", NewDockerError("CreateVolume", "volume", spec.Name, "volume already exists", ErrVolumeAlreadyExists)
		}
		return "", NewDockerError("CreateVolume", "volume", spec.Name, err.Error(), err)
	}

	return resp.Name, nil
}

// InspectVolume returns a volume by name.
func (d *DockerClient) InspectVolume(ctx context.Context, name string) (*VolumeInfo, error) {
	resp, err := d.cli.VolumeInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("InspectVolume", "volume", name, "volume not found", ErrVolumeNotFound)
		}
		return nil, NewDockerError("InspectVolume", "volume", name, err.Error(), err)
	}
	return &VolumeInfo{
		Name:       resp.Name,
		Driver:     resp.Driver,
		Mountpoint: resp.Mountpoint,
		Labels:     resp.Labels,
	}, nil
}

// RemoveVolume removes a Docker volume.
func (d *DockerClient) RemoveVolume(ctx context.Context, volumeName string, force bool) error {
	err := d.cli.VolumeRemove(ctx, volumeName, force)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveVolume", "volume", volumeName, "volume not found", ErrVolumeNotFound)
		}
		if strings.Contains(err.Error(), "in use") {
			return NewDockerError("RemoveVolume", "volume", volumeName, "volume is in use", ErrVolumeInUse)
		}
		return NewDockerError("RemoveVolume", "volume", volumeName, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Image Operations
// =============================================================================

// PullImage starts pulling an image and returns the progress stream. The
// pull completes when the stream is drained.
func (d *DockerClient) PullImage(ctx context.Context, imageName string, opts PullOptions) (io.ReadCloser, error) {
	reader, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{Platform: opts.Platform})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "not found") ||
			strings.Contains(errStr, "manifest unknown") ||
			strings.Contains(errStr, "repository does not exist") ||
			strings.Contains(errStr, "pull access denied") {
			return nil, NewDockerError("PullImage", "image", imageName, "image not found", ErrImageNotFound)
		}
		return nil, NewDockerError("PullImage", "image", imageName, err.Error(), ErrImagePullFailed)
	}
	return reader, nil
}

// ImageExists checks if an image exists locally.
func (d *DockerClient) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, imageName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, NewDockerError("ImageExists", "image", imageName, err.Error(), err)
	}
	return true, nil
}

// RemoveImage deletes a local image.
func (d *DockerClient) RemoveImage(ctx context.Context, imageName string, force bool) error {
	_, err := d.cli.ImageRemove(ctx, imageName, image.RemoveOptions{Force: force, PruneChildren: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveImage", "image", imageName, "image not found", ErrImageNotFound)
		}
		if strings.Contains(err.Error(), "conflict") || strings.Contains(err.Error(), "is being used") {
			return NewDockerError("RemoveImage", "image", imageName, err.Error(), ErrImageInUse)
		}
		return NewDockerError("RemoveImage", "image", imageName, err.Error(), err)
	}
	return nil
}

// BuildImage sends a tar build context and returns the build progress stream.
func (d *DockerClient) BuildImage(ctx context.Context, buildContext io.Reader, opts BuildOptions) (io.ReadCloser, error) {
	resp, err := d.cli.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:        opts.Tags,
		Dockerfile:  opts.Dockerfile,
		Labels:      opts.Labels,
		Remove:      opts.Remove,
		ForceRemove: opts.Remove,
		NoCache:     opts.NoCache,
		PullParent:  opts.PullParent,
	})
	if err != nil {
		tag := strings.Join(opts.Tags, ",")
		return nil, NewDockerError("BuildImage", "image", tag, err.Error(), ErrImageBuildFailed)
	}
	return resp.Body, nil
}

// =============================================================================
// Events
// =============================================================================

// Events subscribes to the engine event stream. Both channels are closed
// when ctx ends or the stream fails.
func (d *DockerClient) Events(ctx context.Context, f map[string][]string) (<-chan Event, <-chan error) {
	msgCh, engineErrCh := d.cli.Events(ctx, events.ListOptions{Filters: filterArgs(f)})

	out := make(chan Event)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				ev := Event{
					Type:       string(msg.Type),
					Action:     string(msg.Action),
					ActorID:    msg.Actor.ID,
					Attributes: msg.Actor.Attributes,
					Time:       time.Unix(0, msg.TimeNano),
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case err, ok := <-engineErrCh:
				if ok && err != nil && ctx.Err() == nil {
					errCh <- NewDockerError("Events", "", "", err.Error(), err)
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}
