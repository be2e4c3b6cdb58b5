package stack

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/docker/dockertest"
	"github.com/odooghost/odooghost/internal/shell/git"
	"github.com/odooghost/odooghost/internal/shell/store"
)

// =============================================================================
// Helpers
// =============================================================================

type fakeGit struct {
	git.Client

	mu     sync.Mutex
	clones []string
}

func (f *fakeGit) Clone(_ context.Context, url, branch, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clones = append(f.clones, url+"@"+branch+" -> "+dest)
	return os.MkdirAll(dest, 0o755)
}

func (f *fakeGit) Pull(context.Context, string, string) error { return nil }

func (f *fakeGit) IsDirty(context.Context, string) (bool, error) { return false, nil }

// brokenRegistry fails every read.
type brokenRegistry struct {
	store.Registry
	err error
}

func (r *brokenRegistry) Exists(context.Context, string) (bool, error) { return false, r.err }

func (r *brokenRegistry) Get(context.Context, string) (*domain.StackConfig, error) {
	return nil, r.err
}

func intPtr(v int) *int { return &v }

func testConfig(t *testing.T, name string, mutate func(*domain.StackConfig)) *domain.StackConfig {
	t.Helper()
	cfg := &domain.StackConfig{
		Name: name,
		Services: domain.ServicesConfig{
			DB:   &domain.DatabaseConfig{Version: 15},
			Odoo: &domain.ApplicationConfig{Version: "17.0"},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func testDeps(t *testing.T, engine *dockertest.Engine) Deps {
	t.Helper()
	reg, err := store.NewFileRegistry(t.TempDir())
	require.NoError(t, err)
	return Deps{
		Docker:          engine,
		Registry:        reg,
		Git:             &fakeGit{},
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		WorkingDir:      t.TempDir(),
		BuildContextDir: t.TempDir(),
	}
}

func mustStack(t *testing.T, cfg *domain.StackConfig, deps Deps) *Stack {
	t.Helper()
	s, err := New(cfg, deps)
	require.NoError(t, err)
	return s
}

// createdStack returns a registered stack with its containers created but
// stopped, and an engine with no recorded calls.
func createdStack(t *testing.T, mutate func(*domain.StackConfig)) (*Stack, *dockertest.Engine) {
	t.Helper()
	engine := dockertest.NewEngine()
	s := mustStack(t, testConfig(t, "demo", mutate), testDeps(t, engine))
	require.NoError(t, s.Create(context.Background(), CreateOptions{EnsureAddons: true}))
	engine.ResetCalls()
	return s, engine
}

// runningStack is createdStack with every service started.
func runningStack(t *testing.T, mutate func(*domain.StackConfig)) (*Stack, *dockertest.Engine) {
	t.Helper()
	s, engine := createdStack(t, mutate)
	require.NoError(t, s.Start(context.Background()))
	engine.ResetCalls()
	return s, engine
}

// addonsDir creates an addons directory holding one module.
func addonsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "my_module"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "my_module", "__manifest__.py"), []byte("{}"), 0o644))
	return dir
}

func running(t *testing.T, engine *dockertest.Engine, name string) bool {
	t.Helper()
	info, _, ok := engine.Container(name)
	require.True(t, ok, "container %s", name)
	return info.Running
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_Services(t *testing.T) {
	cfg := testConfig(t, "demo", func(c *domain.StackConfig) {
		c.Services.Mail = &domain.AuxiliaryConfig{}
	})
	s := mustStack(t, cfg, testDeps(t, dockertest.NewEngine()))

	var roles []string
	for _, svc := range s.Services() {
		roles = append(roles, svc.Role())
	}
	assert.Equal(t, []string{"db", "odoo", "mail"}, roles)

	svc, err := s.Service("odoo")
	require.NoError(t, err)
	assert.Equal(t, "demo_odoo", svc.ContainerName())

	_, err = s.Service("web")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestFromFile(t *testing.T) {
	deps := testDeps(t, dockertest.NewEngine())
	p := filepath.Join(t.TempDir(), "demo.yml")
	content := `
name: demo
network:
  mode: scoped
services:
  db:
    version: 15
  odoo:
    version: "17.0"
`
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))

	s, err := FromFile(p, deps)
	require.NoError(t, err)
	assert.Equal(t, "demo", s.Name())
	assert.Equal(t, "odooghost_demo", s.Config().NetworkName())

	_, err = FromFile(filepath.Join(t.TempDir(), "demo.toml"), deps)
	assert.Error(t, err)
}

func TestFromName(t *testing.T) {
	s, _ := createdStack(t, nil)

	loaded, err := FromName(context.Background(), "demo", s.deps)
	require.NoError(t, err)
	assert.Equal(t, s.Config().Services.DB.Version, loaded.Config().Services.DB.Version)

	_, err = FromName(context.Background(), "missing", s.deps)
	assert.ErrorIs(t, err, ErrStackNotFound)
}

// =============================================================================
// Create
// =============================================================================

func TestCreate_LocalCopyAndRemoteMountAddons(t *testing.T) {
	ctx := context.Background()
	engine := dockertest.NewEngine()
	deps := testDeps(t, engine)
	local := addonsDir(t)
	cfg := testConfig(t, "demo", func(c *domain.StackConfig) {
		c.Services.Odoo.Addons = []domain.AddonSource{
			{Type: domain.AddonLocal, Mode: domain.AddonCopy, Path: local},
			{Type: domain.AddonRemote, Mode: domain.AddonMount, Origin: "https://github.com/OCA/web.git", Branch: "17.0"},
		}
	})
	s := mustStack(t, cfg, deps)

	require.NoError(t, s.Create(ctx, CreateOptions{EnsureAddons: true}))

	clones := deps.Git.(*fakeGit).clones
	require.Len(t, clones, 1)
	assert.True(t, strings.HasPrefix(clones[0], "https://github.com/OCA/web.git@17.0 -> "))
	assert.True(t, strings.HasSuffix(clones[0], filepath.Join("17.0", "OCA", "web")))

	staged := false
	for name := range engine.LastBuildContext {
		if strings.HasPrefix(name, "addons/") && strings.HasSuffix(name, "/my_module/__manifest__.py") {
			staged = true
		}
	}
	assert.True(t, staged, "local copy addon staged into the build context")
	assert.True(t, engine.HasImage("odooghost_demo:17.0"))

	assert.True(t, engine.HasVolume("demo_db_data"))
	assert.True(t, engine.HasVolume("demo_odoo_data"))
	assert.Equal(t, []string{"CreateContainer demo_db", "CreateContainer demo_odoo"}, engine.CallsWithPrefix("CreateContainer"))

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReady, state)
}

func TestCreate_AlreadyExistsWithoutEngineCalls(t *testing.T) {
	s, engine := createdStack(t, nil)

	again := mustStack(t, s.Config().Clone(), s.deps)
	err := again.Create(context.Background(), CreateOptions{})
	assert.ErrorIs(t, err, ErrStackAlreadyExists)
	var stackErr *StackError
	require.ErrorAs(t, err, &stackErr)
	assert.Equal(t, "create", stackErr.Op)
	assert.Empty(t, engine.Calls())
}

func TestCreate_Network(t *testing.T) {
	t.Run("shared bridge is created once", func(t *testing.T) {
		engine := dockertest.NewEngine()
		deps := testDeps(t, engine)
		require.NoError(t, mustStack(t, testConfig(t, "alpha", nil), deps).Create(context.Background(), CreateOptions{}))
		require.NoError(t, mustStack(t, testConfig(t, "beta", nil), deps).Create(context.Background(), CreateOptions{}))

		assert.True(t, engine.HasNetwork(domain.CommonNetworkName))
		assert.Equal(t, []string{"CreateNetwork odooghost_bridge"}, engine.CallsWithPrefix("CreateNetwork"))
	})

	t.Run("scoped network carries the stack label", func(t *testing.T) {
		engine := dockertest.NewEngine()
		s := mustStack(t, testConfig(t, "demo", func(c *domain.StackConfig) {
			c.Network.Mode = domain.NetworkScoped
		}), testDeps(t, engine))
		require.NoError(t, s.Create(context.Background(), CreateOptions{}))

		info, err := engine.InspectNetwork(context.Background(), "odooghost_demo")
		require.NoError(t, err)
		assert.Equal(t, "bridge", info.Driver)
		assert.Equal(t, "local", info.Scope)
		assert.Equal(t, "demo", info.Labels["com.odooghost.stack"])

		_, spec, ok := engine.Container("demo_db")
		require.True(t, ok)
		assert.Equal(t, "db", spec.Hostname)
	})
}

func TestCreate_RemoteDatabaseSkipped(t *testing.T) {
	_, engine := createdStack(t, nil)
	assert.ElementsMatch(t, []string{"demo_db", "demo_odoo"}, engine.ContainerNames())

	engine2 := dockertest.NewEngine()
	s := mustStack(t, testConfig(t, "demo", func(c *domain.StackConfig) {
		c.Services.DB = &domain.DatabaseConfig{Type: domain.DatabaseRemote, Host: "db.example.com"}
	}), testDeps(t, engine2))
	require.NoError(t, s.Create(context.Background(), CreateOptions{}))

	assert.Equal(t, []string{"demo_odoo"}, engine2.ContainerNames())
	assert.False(t, engine2.HasVolume("demo_db_data"))
	assert.Empty(t, engine2.CallsWithPrefix("PullImage postgres"))
}

func TestCreate_FailureLeavesStackUnregistered(t *testing.T) {
	engine := dockertest.NewEngine()
	engine.PullErrors["odoo:17.0"] = assert.AnError
	s := mustStack(t, testConfig(t, "demo", nil), testDeps(t, engine))

	require.Error(t, s.Create(context.Background(), CreateOptions{}))
	exists, err := s.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

// =============================================================================
// Drop
// =============================================================================

func TestRegistryFailureIsNotAStackState(t *testing.T) {
	ctx := context.Background()
	engine := dockertest.NewEngine()
	deps := testDeps(t, engine)
	deps.Registry = &brokenRegistry{err: errors.New("disk I/O error")}
	s := mustStack(t, testConfig(t, "demo", nil), deps)

	err := s.Create(ctx, CreateOptions{})
	assert.ErrorIs(t, err, ErrRegistry)
	assert.NotErrorIs(t, err, ErrStackAlreadyExists)
	assert.Contains(t, err.Error(), "disk I/O error")

	for name, op := range map[string]func() error{
		"start": func() error { return s.Start(ctx) },
		"drop":  func() error { return s.Drop(ctx, DropOptions{}) },
		"stop":  func() error { return s.Stop(ctx, StopOptions{}) },
	} {
		err := op()
		assert.ErrorIs(t, err, ErrRegistry, name)
		assert.NotErrorIs(t, err, ErrStackNotFound, name)
	}

	_, err = FromName(ctx, "demo", deps)
	assert.ErrorIs(t, err, ErrRegistry)
	assert.NotErrorIs(t, err, ErrStackNotFound)
	assert.Empty(t, engine.Calls())
}

func TestFromName_NotRegistered(t *testing.T) {
	_, err := FromName(context.Background(), "demo", testDeps(t, dockertest.NewEngine()))
	assert.ErrorIs(t, err, ErrStackNotFound)
}

func TestNotFoundWithoutEngineCalls(t *testing.T) {
	ctx := context.Background()
	engine := dockertest.NewEngine()
	s := mustStack(t, testConfig(t, "demo", nil), testDeps(t, engine))

	assert.ErrorIs(t, s.Pull(ctx), ErrStackNotFound)
	assert.ErrorIs(t, s.Stop(ctx, StopOptions{}), ErrStackNotFound)
	assert.ErrorIs(t, s.Restart(ctx, nil), ErrStackNotFound)
	assert.Empty(t, engine.Calls())
}

func TestDrop_NotFoundWithoutEngineCalls(t *testing.T) {
	engine := dockertest.NewEngine()
	s := mustStack(t, testConfig(t, "demo", nil), testDeps(t, engine))

	err := s.Drop(context.Background(), DropOptions{Volumes: true})
	assert.ErrorIs(t, err, ErrStackNotFound)
	assert.Empty(t, engine.Calls())
}

func TestDrop_Twice(t *testing.T) {
	ctx := context.Background()
	s, engine := runningStack(t, nil)

	require.NoError(t, s.Drop(ctx, DropOptions{Volumes: true}))
	assert.Empty(t, engine.ContainerNames())
	assert.False(t, engine.HasVolume("demo_db_data"))
	assert.False(t, engine.HasVolume("demo_odoo_data"))
	assert.False(t, engine.HasImage("odooghost_demo:17.0"))
	assert.True(t, engine.HasNetwork(domain.CommonNetworkName), "shared bridge is kept")

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	engine.ResetCalls()
	err = s.Drop(ctx, DropOptions{Volumes: true})
	assert.ErrorIs(t, err, ErrStackNotFound)
	assert.Empty(t, engine.Calls())
}

func TestDrop_KeepsVolumesByDefault(t *testing.T) {
	s, engine := createdStack(t, nil)
	require.NoError(t, s.Drop(context.Background(), DropOptions{}))
	assert.True(t, engine.HasVolume("demo_db_data"))
	assert.True(t, engine.HasVolume("demo_odoo_data"))
}

func TestDrop_RemovesScopedNetwork(t *testing.T) {
	s, engine := createdStack(t, func(c *domain.StackConfig) {
		c.Network.Mode = domain.NetworkScoped
	})
	require.NoError(t, s.Drop(context.Background(), DropOptions{Volumes: true}))
	assert.False(t, engine.HasNetwork("odooghost_demo"))
}

// =============================================================================
// Start / Stop / Restart
// =============================================================================

func TestStart_ServiceOrder(t *testing.T) {
	s, engine := createdStack(t, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"StartContainer demo_db", "StartContainer demo_odoo"}, engine.CallsWithPrefix("StartContainer"))
	assert.True(t, running(t, engine, "demo_db"))
	assert.True(t, running(t, engine, "demo_odoo"))
}

func TestStart_NothingStoppedIsNoop(t *testing.T) {
	s, engine := runningStack(t, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, engine.CallsWithPrefix("StartContainer"))
}

func TestStart_NotFound(t *testing.T) {
	engine := dockertest.NewEngine()
	s := mustStack(t, testConfig(t, "demo", nil), testDeps(t, engine))
	assert.ErrorIs(t, s.Start(context.Background()), ErrStackNotFound)
	assert.Empty(t, engine.Calls())
}

func TestStop_WaitsForEveryContainer(t *testing.T) {
	s, engine := runningStack(t, nil)

	require.NoError(t, s.Stop(context.Background(), StopOptions{Timeout: Timeout(10 * time.Second), Wait: true}))
	assert.False(t, running(t, engine, "demo_db"))
	assert.False(t, running(t, engine, "demo_odoo"))
	assert.Equal(t, []string{"StopContainer demo_db", "StopContainer demo_odoo"}, engine.CallsWithPrefix("StopContainer"))
	assert.Equal(t, []string{"WaitContainer demo_db", "WaitContainer demo_odoo"}, engine.CallsWithPrefix("WaitContainer"))
}

func TestStop_OnlyRunningContainers(t *testing.T) {
	s, engine := runningStack(t, nil)
	engine.SetRunning("demo_db", false)

	require.NoError(t, s.Stop(context.Background(), StopOptions{}))
	assert.Equal(t, []string{"StopContainer demo_odoo"}, engine.CallsWithPrefix("StopContainer"))
	assert.Empty(t, engine.CallsWithPrefix("WaitContainer"))
}

func TestStop_Timeout(t *testing.T) {
	s, engine := runningStack(t, nil)
	engine.StopTimeouts = nil
	require.NoError(t, s.Stop(context.Background(), StopOptions{Timeout: Timeout(0)}))
	assert.Equal(t, []time.Duration{0, 0}, engine.StopTimeouts)

	s, engine = runningStack(t, nil)
	engine.StopTimeouts = nil
	require.NoError(t, s.Stop(context.Background(), StopOptions{}))
	assert.Equal(t, []time.Duration{DefaultStopTimeout, DefaultStopTimeout}, engine.StopTimeouts)
}

func TestRestart(t *testing.T) {
	s, engine := createdStack(t, nil)

	require.NoError(t, s.Restart(context.Background(), nil))
	assert.Equal(t, []string{"RestartContainer demo_db", "RestartContainer demo_odoo"}, engine.CallsWithPrefix("RestartContainer"))
	assert.True(t, running(t, engine, "demo_odoo"))
}

// =============================================================================
// Pull / Update
// =============================================================================

func TestPull(t *testing.T) {
	s, engine := createdStack(t, nil)

	require.NoError(t, s.Pull(context.Background()))
	assert.Equal(t, []string{"PullImage postgres:15", "PullImage odoo:17.0"}, engine.CallsWithPrefix("PullImage"))
}

func TestUpdate_RecreatesAndStoresDeclaration(t *testing.T) {
	ctx := context.Background()
	s, engine := runningStack(t, nil)

	changed := s.Config().Clone()
	changed.Services.Odoo.Cmdline = "--dev=all"
	updated := mustStack(t, changed, s.deps)
	require.NoError(t, updated.Update(ctx, UpdateOptions{}))

	assert.Equal(t, []string{"CreateContainer demo_db", "CreateContainer demo_odoo"}, engine.CallsWithPrefix("CreateContainer"))
	assert.True(t, running(t, engine, "demo_db"))
	assert.True(t, running(t, engine, "demo_odoo"))
	_, spec, ok := engine.Container("demo_odoo")
	require.True(t, ok)
	assert.Contains(t, spec.Command, "--dev=all")

	stored, err := s.deps.Registry.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "--dev=all", stored.Services.Odoo.Cmdline)
}

func TestUpdate_NotFound(t *testing.T) {
	engine := dockertest.NewEngine()
	s := mustStack(t, testConfig(t, "demo", nil), testDeps(t, engine))
	assert.ErrorIs(t, s.Update(context.Background(), UpdateOptions{Pull: true}), ErrStackNotFound)
	assert.Empty(t, engine.Calls())
}

// =============================================================================
// Introspection
// =============================================================================

func TestRunState(t *testing.T) {
	ctx := context.Background()
	s, engine := createdStack(t, nil)

	state, err := s.RunState(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunStateStopped, state)

	require.NoError(t, s.Start(ctx))
	state, err = s.RunState(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunStateRunning, state)

	engine.SetRunning("demo_db", false)
	state, err = s.RunState(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunStateStopped, state)
}

func TestDrift_MissingContainerKeepsStateReady(t *testing.T) {
	ctx := context.Background()
	s, engine := createdStack(t, nil)

	missing, err := s.Drift(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, engine.RemoveContainer(ctx, "demo_odoo", docker.RemoveOptions{Force: true}))
	missing, err = s.Drift(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"odoo"}, missing)

	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReady, state)
}

func TestListAndCount(t *testing.T) {
	ctx := context.Background()
	engine := dockertest.NewEngine()
	deps := testDeps(t, engine)
	demo := mustStack(t, testConfig(t, "demo", nil), deps)
	require.NoError(t, demo.Create(ctx, CreateOptions{}))
	require.NoError(t, mustStack(t, testConfig(t, "alpha", nil), deps).Create(ctx, CreateOptions{}))

	all, err := List(ctx, deps, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name())
	assert.Equal(t, "demo", all[1].Name())

	running, err := List(ctx, deps, true)
	require.NoError(t, err)
	assert.Empty(t, running)

	require.NoError(t, demo.Start(ctx))
	running, err = List(ctx, deps, true)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "demo", running[0].Name())

	n, err := Count(ctx, deps)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
