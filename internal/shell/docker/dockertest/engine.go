// Package dockertest provides an in-memory docker.Client for tests of the
// packages that drive the engine.
//
// Engine keeps containers, volumes, networks and images in maps, enforces
// the engine rules the orchestrator depends on (unique names, existing images
// and networks, not-found errors) and records every call.
package dockertest

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/shell/docker"
)

// ExecFunc scripts the result of an exec session.
type ExecFunc func(container *docker.ContainerInfo, spec docker.ExecSpec) (stdout string, exitCode int)

// CopyCall records one CopyToContainer.
type CopyCall struct {
	Container string
	Dir       string
	Files     map[string][]byte
}

type container struct {
	info docker.ContainerInfo
	spec docker.ContainerSpec
}

type execSession struct {
	container string
	spec      docker.ExecSpec
	output    string
	exitCode  int
}

// Engine is an in-memory engine.
type Engine struct {
	mu sync.Mutex

	calls      []string
	containers map[string]*container
	volumes    map[string]docker.VolumeInfo
	networks   map[string]docker.NetworkInfo
	images     map[string]bool
	execs      map[string]*execSession
	waiters    map[string][]chan int
	nextID     int
	nextPort   int

	// PullErrors fails pulls of the given references.
	PullErrors map[string]error
	// PullOutput replaces the JSON stream of a successful pull by reference.
	PullOutput map[string]string
	// StartErrors fails StartContainer for names with the given prefix.
	StartErrors map[string]error
	// RemoveErrors fails RemoveContainer for the given container names.
	RemoveErrors map[string]error
	// StopTimeouts records the timeout of every stop and restart. A nil
	// timeout is recorded as -1.
	StopTimeouts []time.Duration
	// BuildOutput is the JSON stream returned by BuildImage.
	BuildOutput string
	// LastBuildContext holds the file names of the last build context.
	LastBuildContext map[string][]byte
	// Exec scripts exec sessions. The default prints nothing and exits 0.
	Exec ExecFunc
	// Archives serves CopyFromContainer by container path.
	Archives map[string]map[string][]byte
	// Copies records CopyToContainer calls.
	Copies []CopyCall
	// Logs serves ContainerLogs by container name.
	Logs map[string][]byte
	// AttachOutput is what an attached one-off container prints.
	AttachOutput string
	// RunExitCode is the exit code of started auto-remove containers, which
	// finish immediately.
	RunExitCode int
	// HoldRuns keeps started auto-remove containers running until they are
	// stopped or killed.
	HoldRuns bool
	// EventCh feeds Events.
	EventCh chan docker.Event
	// Signals records KillContainer signals.
	Signals []string
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{
		containers:   map[string]*container{},
		volumes:      map[string]docker.VolumeInfo{},
		networks:     map[string]docker.NetworkInfo{},
		images:       map[string]bool{},
		execs:        map[string]*execSession{},
		waiters:      map[string][]chan int{},
		nextPort:     32768,
		PullErrors:   map[string]error{},
		PullOutput:   map[string]string{},
		StartErrors:  map[string]error{},
		RemoveErrors: map[string]error{},
		Archives:     map[string]map[string][]byte{},
		Logs:         map[string][]byte{},
		EventCh:      make(chan docker.Event, 16),
	}
}

var _ docker.Client = (*Engine)(nil)

// =============================================================================
// Inspection Helpers
// =============================================================================

// Calls returns the recorded calls, e.g. "CreateContainer demo_db".
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// ResetCalls clears the call log.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// CallsWithPrefix returns the calls starting with prefix.
func (e *Engine) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range e.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// AddImage marks an image as present.
func (e *Engine) AddImage(ref string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[ref] = true
}

// HasImage reports whether ref is present.
func (e *Engine) HasImage(ref string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[ref]
}

// HasVolume reports whether the named volume exists.
func (e *Engine) HasVolume(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.volumes[name]
	return ok
}

// HasNetwork reports whether the named network exists.
func (e *Engine) HasNetwork(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.networks[name]
	return ok
}

// ContainerNames returns the names of all containers, sorted.
func (e *Engine) ContainerNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, c := range e.containers {
		out = append(out, c.info.Name)
	}
	sort.Strings(out)
	return out
}

// Container returns a copy of the named container's state and create spec.
func (e *Engine) Container(name string) (docker.ContainerInfo, docker.ContainerSpec, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.lookup(name)
	if c == nil {
		return docker.ContainerInfo{}, docker.ContainerSpec{}, false
	}
	return c.info, c.spec, true
}

// SetRunning forces the running state of a container.
func (e *Engine) SetRunning(name string, running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.lookup(name); c != nil {
		e.setRunning(c, running)
	}
}

func (e *Engine) record(format string, args ...any) {
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

func (e *Engine) lookup(idOrName string) *container {
	if c, ok := e.containers[idOrName]; ok {
		return c
	}
	for _, c := range e.containers {
		if c.info.Name == idOrName {
			return c
		}
	}
	return nil
}

func (e *Engine) setRunning(c *container, running bool) {
	c.info.Running = running
	if running {
		c.info.Status = docker.ContainerStatusRunning
		now := time.Now()
		c.info.StartedAt = &now
	} else {
		c.info.Status = docker.ContainerStatusExited
	}
}

func notFound(op, id string) error {
	return docker.NewDockerError(op, "container", id, "container not found", docker.ErrContainerNotFound)
}

// =============================================================================
// Containers
// =============================================================================

func (e *Engine) CreateContainer(_ context.Context, spec docker.ContainerSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("CreateContainer %s", spec.Name)

	if e.lookup(spec.Name) != nil {
		return "", docker.NewDockerError("CreateContainer", "container", spec.Name, "container already exists", docker.ErrContainerAlreadyExists)
	}
	if !e.images[spec.Image] {
		return "", docker.NewDockerError("CreateContainer", "image", spec.Image, "image not found", docker.ErrImageNotFound)
	}
	endpoints := map[string]docker.NetworkEndpoint{}
	for i, n := range spec.Networks {
		net, ok := e.networks[n]
		if !ok {
			return "", docker.NewDockerError("CreateContainer", "network", n, "network not found", docker.ErrNetworkNotFound)
		}
		endpoints[n] = docker.NetworkEndpoint{
			NetworkID: net.ID,
			IPAddress: fmt.Sprintf("172.18.0.%d", e.nextID+i+2),
			Aliases:   spec.NetworkAliases[n],
		}
	}

	e.nextID++
	id := fmt.Sprintf("%064x", e.nextID)
	ports := make([]docker.PortBinding, 0, len(spec.Ports))
	for _, p := range spec.Ports {
		if p.HostPort == 0 {
			e.nextPort++
			p.HostPort = e.nextPort
		}
		ports = append(ports, p)
	}
	e.containers[id] = &container{
		spec: spec,
		info: docker.ContainerInfo{
			ID:        id,
			Name:      spec.Name,
			Image:     spec.Image,
			Status:    docker.ContainerStatusCreated,
			Labels:    spec.Labels,
			Ports:     ports,
			CreatedAt: time.Now(),
			Tty:       spec.Tty,
			Networks:  endpoints,
		},
	}
	return id, nil
}

func (e *Engine) StartContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.lookup(id)
	if c == nil {
		e.record("StartContainer %s", id)
		return notFound("StartContainer", id)
	}
	e.record("StartContainer %s", c.info.Name)
	for prefix, err := range e.StartErrors {
		if strings.HasPrefix(c.info.Name, prefix) {
			return docker.NewDockerError("StartContainer", "container", id, err.Error(), docker.ErrPortAlreadyAllocated)
		}
	}
	e.setRunning(c, true)

	if c.spec.AutoRemove && !e.HoldRuns {
		c.info.ExitCode = e.RunExitCode
		e.finish(c, true)
	}
	return nil
}

func (e *Engine) recordTimeout(timeout *time.Duration) {
	if timeout == nil {
		e.StopTimeouts = append(e.StopTimeouts, -1)
		return
	}
	e.StopTimeouts = append(e.StopTimeouts, *timeout)
}

// finish stops c, notifies waiters and optionally removes it.
func (e *Engine) finish(c *container, remove bool) {
	e.setRunning(c, false)
	for _, ch := range e.waiters[c.info.ID] {
		ch <- c.info.ExitCode
		close(ch)
	}
	delete(e.waiters, c.info.ID)
	if remove {
		delete(e.containers, c.info.ID)
	}
}

func (e *Engine) StopContainer(_ context.Context, id string, timeout *time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordTimeout(timeout)
	c := e.lookup(id)
	if c == nil {
		e.record("StopContainer %s", id)
		return notFound("StopContainer", id)
	}
	e.record("StopContainer %s", c.info.Name)
	c.info.ExitCode = 0
	e.finish(c, c.spec.AutoRemove)
	return nil
}

func (e *Engine) KillContainer(_ context.Context, id, signal string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.lookup(id)
	if c == nil {
		e.record("KillContainer %s", id)
		return notFound("KillContainer", id)
	}
	e.record("KillContainer %s %s", c.info.Name, signal)
	e.Signals = append(e.Signals, signal)
	c.info.ExitCode = 137
	e.finish(c, c.spec.AutoRemove)
	return nil
}

func (e *Engine) RestartContainer(_ context.Context, id string, timeout *time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordTimeout(timeout)
	c := e.lookup(id)
	if c == nil {
		e.record("RestartContainer %s", id)
		return notFound("RestartContainer", id)
	}
	e.record("RestartContainer %s", c.info.Name)
	e.setRunning(c, true)
	return nil
}

func (e *Engine) RemoveContainer(_ context.Context, id string, opts docker.RemoveOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.lookup(id)
	if c == nil {
		e.record("RemoveContainer %s", id)
		return notFound("RemoveContainer", id)
	}
	e.record("RemoveContainer %s", c.info.Name)
	if err, ok := e.RemoveErrors[c.info.Name]; ok {
		return docker.NewDockerError("RemoveContainer", "container", id, err.Error(), docker.ErrConnectionFailed)
	}
	if c.info.Running && !opts.Force {
		return docker.NewDockerError("RemoveContainer", "container", id, "container is running", docker.ErrContainerAlreadyRunning)
	}
	e.finish(c, true)
	return nil
}

func (e *Engine) InspectContainer(_ context.Context, id string) (*docker.ContainerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("InspectContainer %s", id)
	c := e.lookup(id)
	if c == nil {
		return nil, notFound("InspectContainer", id)
	}
	info := c.info
	return &info, nil
}

func (e *Engine) ListContainers(_ context.Context, opts docker.ListOptions) ([]docker.ContainerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ListContainers %s", strings.Join(opts.Filters["label"], ","))

	var out []docker.ContainerInfo
	for _, c := range e.containers {
		if !opts.All && !c.info.Running {
			continue
		}
		if !matchLabels(c.info.Labels, opts.Filters["label"]) {
			continue
		}
		summary := c.info
		summary.Networks = nil
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func matchLabels(have map[string]string, predicates []string) bool {
	for _, p := range predicates {
		k, v, hasValue := strings.Cut(p, "=")
		got, ok := have[k]
		if !ok || (hasValue && got != v) {
			return false
		}
	}
	return true
}

// WaitContainer answers at once for a stopped container unless untilRemoved
// is set, matching the engine's not-running condition.
func (e *Engine) WaitContainer(_ context.Context, id string, untilRemoved bool) (<-chan int, <-chan error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	codeCh := make(chan int, 1)
	errCh := make(chan error, 1)
	c := e.lookup(id)
	if c == nil {
		e.record("WaitContainer %s", id)
		errCh <- notFound("WaitContainer", id)
		return codeCh, errCh
	}
	e.record("WaitContainer %s", c.info.Name)
	if !untilRemoved && !c.info.Running {
		codeCh <- c.info.ExitCode
		return codeCh, errCh
	}
	e.waiters[c.info.ID] = append(e.waiters[c.info.ID], codeCh)
	return codeCh, errCh
}

func (e *Engine) ContainerLogs(_ context.Context, id string, _ docker.LogOptions) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.lookup(id)
	if c == nil {
		return nil, notFound("ContainerLogs", id)
	}
	e.record("ContainerLogs %s", c.info.Name)
	return io.NopCloser(bytes.NewReader(e.Logs[c.info.Name])), nil
}

func (e *Engine) AttachContainer(_ context.Context, id string, _ docker.AttachOptions) (*docker.HijackedStream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.lookup(id)
	if c == nil {
		return nil, notFound("AttachContainer", id)
	}
	e.record("AttachContainer %s", c.info.Name)
	var buf bytes.Buffer
	if c.spec.Tty {
		buf.WriteString(e.AttachOutput)
	} else if e.AttachOutput != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(e.AttachOutput))
	}
	return docker.NewHijackedStream(&buf, io.Discard, nil, nil), nil
}

func (e *Engine) ResizeContainer(_ context.Context, id string, h, w uint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ResizeContainer %s %dx%d", id, h, w)
	return nil
}

// =============================================================================
// Exec
// =============================================================================

func (e *Engine) CreateExec(_ context.Context, id string, spec docker.ExecSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.lookup(id)
	if c == nil {
		return "", notFound("CreateExec", id)
	}
	e.record("CreateExec %s %s", c.info.Name, strings.Join(spec.Command, " "))
	if !c.info.Running {
		return "", docker.NewDockerError("CreateExec", "container", id, "container is not running", docker.ErrContainerNotRunning)
	}

	out, code := "", 0
	if e.Exec != nil {
		info := c.info
		out, code = e.Exec(&info, spec)
	}
	e.nextID++
	execID := fmt.Sprintf("exec-%d", e.nextID)
	e.execs[execID] = &execSession{container: c.info.ID, spec: spec, output: out, exitCode: code}
	return execID, nil
}

func (e *Engine) StartExec(_ context.Context, execID string, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("StartExec %s", execID)
	if _, ok := e.execs[execID]; !ok {
		return docker.NewDockerError("StartExec", "exec", execID, "exec not found", docker.ErrExecNotFound)
	}
	return nil
}

func (e *Engine) AttachExec(_ context.Context, execID string, tty bool) (*docker.HijackedStream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("AttachExec %s", execID)
	s, ok := e.execs[execID]
	if !ok {
		return nil, docker.NewDockerError("AttachExec", "exec", execID, "exec not found", docker.ErrExecNotFound)
	}
	var buf bytes.Buffer
	if tty {
		buf.WriteString(s.output)
	} else if s.output != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(s.output))
	}
	return docker.NewHijackedStream(&buf, io.Discard, nil, nil), nil
}

func (e *Engine) InspectExec(_ context.Context, execID string) (*docker.ExecInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.execs[execID]
	if !ok {
		return nil, docker.NewDockerError("InspectExec", "exec", execID, "exec not found", docker.ErrExecNotFound)
	}
	return &docker.ExecInfo{ExitCode: s.exitCode}, nil
}

func (e *Engine) ResizeExec(_ context.Context, execID string, h, w uint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ResizeExec %s %dx%d", execID, h, w)
	return nil
}

// =============================================================================
// Archives
// =============================================================================

func (e *Engine) CopyFromContainer(_ context.Context, id, path string) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.lookup(id)
	if c == nil {
		return nil, notFound("CopyFromContainer", id)
	}
	e.record("CopyFromContainer %s %s", c.info.Name, path)
	files, ok := e.Archives[path]
	if !ok {
		return nil, docker.NewDockerError("CopyFromContainer", "container", id, "no such path "+path, docker.ErrContainerNotFound)
	}
	data, err := TarFiles(files)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (e *Engine) CopyToContainer(_ context.Context, id, dir string, content io.Reader) error {
	files, err := UntarFiles(content)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.lookup(id)
	if c == nil {
		return notFound("CopyToContainer", id)
	}
	e.record("CopyToContainer %s %s", c.info.Name, dir)
	e.Copies = append(e.Copies, CopyCall{Container: c.info.Name, Dir: dir, Files: files})
	return nil
}

// TarFiles builds a tar stream of regular files.
func TarFiles(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, n := range names {
		if err := tw.WriteHeader(&tar.Header{Name: n, Mode: 0o644, Size: int64(len(files[n])), Typeflag: tar.TypeReg}); err != nil {
			return nil, err
		}
		if _, err := tw.Write(files[n]); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UntarFiles reads the regular files of a tar stream. Directory entries are
// recorded with a nil body.
func UntarFiles(r io.Reader) (map[string][]byte, error) {
	out := map[string][]byte{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeDir {
			out[hdr.Name] = nil
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		out[hdr.Name] = data
	}
}

// =============================================================================
// Networks and Volumes
// =============================================================================

func (e *Engine) CreateNetwork(_ context.Context, spec docker.NetworkSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("CreateNetwork %s", spec.Name)
	if _, ok := e.networks[spec.Name]; ok {
		return "", docker.NewDockerError("CreateNetwork", "network", spec.Name, "network already exists", docker.ErrNetworkAlreadyExists)
	}
	driver := spec.Driver
	if driver == "" {
		driver = "bridge"
	}
	e.nextID++
	id := fmt.Sprintf("net-%d", e.nextID)
	e.networks[spec.Name] = docker.NetworkInfo{ID: id, Name: spec.Name, Driver: driver, Scope: spec.Scope, Labels: spec.Labels}
	return id, nil
}

func (e *Engine) InspectNetwork(_ context.Context, name string) (*docker.NetworkInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("InspectNetwork %s", name)
	n, ok := e.networks[name]
	if !ok {
		return nil, docker.NewDockerError("InspectNetwork", "network", name, "network not found", docker.ErrNetworkNotFound)
	}
	return &n, nil
}

func (e *Engine) RemoveNetwork(_ context.Context, idOrName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("RemoveNetwork %s", idOrName)
	for name, n := range e.networks {
		if name != idOrName && n.ID != idOrName {
			continue
		}
		for _, c := range e.containers {
			if _, attached := c.info.Networks[name]; attached {
				return docker.NewDockerError("RemoveNetwork", "network", idOrName, "network has active endpoints", docker.ErrNetworkInUse)
			}
		}
		delete(e.networks, name)
		return nil
	}
	return docker.NewDockerError("RemoveNetwork", "network", idOrName, "network not found", docker.ErrNetworkNotFound)
}

// CreateVolume returns an existing volume unchanged, as the engine does.
func (e *Engine) CreateVolume(_ context.Context, spec docker.VolumeSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("CreateVolume %s", spec.Name)
	if _, ok := e.volumes[spec.Name]; !ok {
		e.volumes[spec.Name] = docker.VolumeInfo{Name: spec.Name, Driver: "local", Labels: spec.Labels}
	}
	return spec.Name, nil
}

func (e *Engine) InspectVolume(_ context.Context, name string) (*docker.VolumeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("InspectVolume %s", name)
	v, ok := e.volumes[name]
	if !ok {
		return nil, docker.NewDockerError("InspectVolume", "volume", name, "volume not found", docker.ErrVolumeNotFound)
	}
	return &v, nil
}

func (e *Engine) RemoveVolume(_ context.Context, name string, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("RemoveVolume %s", name)
	if _, ok := e.volumes[name]; !ok {
		return docker.NewDockerError("RemoveVolume", "volume", name, "volume not found", docker.ErrVolumeNotFound)
	}
	delete(e.volumes, name)
	return nil
}

// =============================================================================
// Images
// =============================================================================

func (e *Engine) PullImage(_ context.Context, ref string, _ docker.PullOptions) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("PullImage %s", ref)
	if err, ok := e.PullErrors[ref]; ok {
		return nil, docker.NewDockerError("PullImage", "image", ref, err.Error(), docker.ErrImagePullFailed)
	}
	e.images[ref] = true
	if out, ok := e.PullOutput[ref]; ok {
		return io.NopCloser(strings.NewReader(out)), nil
	}
	body := fmt.Sprintf(`{"status":"Pulling from %s"}`+"\n"+`{"status":"Digest: sha256:%064x"}`+"\n"+`{"status":"Status: Downloaded newer image for %s"}`+"\n",
		ref, len(ref), ref)
	return io.NopCloser(strings.NewReader(body)), nil
}

func (e *Engine) ImageExists(_ context.Context, ref string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ImageExists %s", ref)
	return e.images[ref], nil
}

func (e *Engine) RemoveImage(_ context.Context, ref string, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("RemoveImage %s", ref)
	if !e.images[ref] {
		return docker.NewDockerError("RemoveImage", "image", ref, "image not found", docker.ErrImageNotFound)
	}
	if !force {
		for _, c := range e.containers {
			if c.info.Image == ref {
				return docker.NewDockerError("RemoveImage", "image", ref, "image is in use", docker.ErrImageInUse)
			}
		}
	}
	delete(e.images, ref)
	return nil
}

func (e *Engine) BuildImage(_ context.Context, buildContext io.Reader, opts docker.BuildOptions) (io.ReadCloser, error) {
	files, err := UntarFiles(buildContext)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("BuildImage %s", strings.Join(opts.Tags, ","))
	e.LastBuildContext = files
	if _, ok := files[opts.Dockerfile]; !ok {
		return nil, docker.NewDockerError("BuildImage", "image", "", "missing Dockerfile", docker.ErrImageBuildFailed)
	}
	for _, t := range opts.Tags {
		e.images[t] = true
	}
	out := e.BuildOutput
	if out == "" {
		step, _ := json.Marshal(map[string]string{"stream": "Step 1/1 : FROM scratch\n"})
		done, _ := json.Marshal(map[string]string{"stream": "Successfully built 0123456789ab\n"})
		out = string(step) + "\n" + string(done) + "\n"
	}
	return io.NopCloser(strings.NewReader(out)), nil
}

// =============================================================================
// Events and Health
// =============================================================================

func (e *Engine) Events(ctx context.Context, filters map[string][]string) (<-chan docker.Event, <-chan error) {
	e.mu.Lock()
	e.record("Events %s", strings.Join(filters["label"], ","))
	src := e.EventCh
	e.mu.Unlock()

	out := make(chan docker.Event)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case ev, ok := <-src:
				if !ok {
					return
				}
				if !matchLabels(ev.Attributes, filters["label"]) {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}
	}()
	return out, errCh
}

func (e *Engine) Ping(context.Context) error { return nil }

func (e *Engine) Version(context.Context) (string, error) { return "28.0.0-test", nil }

func (e *Engine) Close() error { return nil }

// ManagedLabels is a shortcut for tests building events.
func ManagedLabels(stack, service string) map[string]string {
	return labels.ForContainer(stack, service, false)
}
