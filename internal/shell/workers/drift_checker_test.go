package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/docker/dockertest"
	"github.com/odooghost/odooghost/internal/shell/stack"
	"github.com/odooghost/odooghost/internal/shell/store"
)

// =============================================================================
// Test Configuration
// =============================================================================

func TestDefaultDriftCheckerConfig(t *testing.T) {
	config := DefaultDriftCheckerConfig()

	assert.Equal(t, 60*time.Second, config.Interval)
	assert.Equal(t, 10*time.Second, config.StackTimeout)
	assert.Equal(t, 5, config.MaxConcurrent)
}

func TestNewDriftChecker_DefaultConfig(t *testing.T) {
	dc := NewDriftChecker(stack.Deps{}, DriftCheckerConfig{}, nil)

	assert.NotNil(t, dc)
	assert.Equal(t, DefaultDriftCheckerConfig(), dc.config)
}

// =============================================================================
// Test Lifecycle
// =============================================================================

func TestDriftChecker_StartStop(t *testing.T) {
	deps, _ := testDeps(t)
	dc := NewDriftChecker(deps, DriftCheckerConfig{Interval: 100 * time.Millisecond}, quietLogger())

	dc.Start()
	time.Sleep(50 * time.Millisecond)
	dc.Stop()

	// Restartable
	dc.Start()
	dc.Stop()
}

func TestDriftChecker_StopWithoutStart(t *testing.T) {
	dc := NewDriftChecker(stack.Deps{}, DriftCheckerConfig{}, quietLogger())
	dc.Stop()
}

// =============================================================================
// Test Run Cycle
// =============================================================================

func TestDriftChecker_NoStacks(t *testing.T) {
	deps, _ := testDeps(t)
	dc := NewDriftChecker(deps, DriftCheckerConfig{Interval: time.Second}, quietLogger())

	assert.Empty(t, dc.CheckAllNow(context.Background()))
	assert.Empty(t, dc.Drifted())
}

func TestDriftChecker_ReportsMissingContainers(t *testing.T) {
	ctx := context.Background()
	deps, engine := testDeps(t)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		createStack(t, deps, name)
	}
	require.NoError(t, engine.RemoveContainer(ctx, "beta_odoo", docker.RemoveOptions{Force: true}))
	require.NoError(t, engine.RemoveContainer(ctx, "gamma_db", docker.RemoveOptions{Force: true}))
	require.NoError(t, engine.RemoveContainer(ctx, "gamma_odoo", docker.RemoveOptions{Force: true}))

	dc := NewDriftChecker(deps, DriftCheckerConfig{Interval: time.Second, MaxConcurrent: 2}, quietLogger())
	report := dc.CheckAllNow(ctx)

	assert.Equal(t, map[string][]string{
		"beta":  {"odoo"},
		"gamma": {"db", "odoo"},
	}, report)
	assert.Equal(t, []string{"beta", "gamma"}, dc.Drifted())

	// Registry is left untouched.
	n, err := deps.Registry.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDriftChecker_ReportIsReplacedEachCycle(t *testing.T) {
	ctx := context.Background()
	deps, engine := testDeps(t)
	s := createStack(t, deps, "demo")
	require.NoError(t, engine.RemoveContainer(ctx, "demo_odoo", docker.RemoveOptions{Force: true}))

	dc := NewDriftChecker(deps, DriftCheckerConfig{Interval: time.Second}, quietLogger())
	require.Len(t, dc.CheckAllNow(ctx), 1)

	require.NoError(t, s.Drop(ctx, stack.DropOptions{}))
	assert.Empty(t, dc.CheckAllNow(ctx))
}

func TestDriftChecker_ListFailureKeepsLastReport(t *testing.T) {
	ctx := context.Background()
	deps, engine := testDeps(t)
	createStack(t, deps, "demo")
	require.NoError(t, engine.RemoveContainer(ctx, "demo_db", docker.RemoveOptions{Force: true}))

	dc := NewDriftChecker(deps, DriftCheckerConfig{Interval: time.Second}, quietLogger())
	require.Len(t, dc.CheckAllNow(ctx), 1)

	dc.deps.Registry = &failingRegistry{Registry: deps.Registry}
	assert.Equal(t, map[string][]string{"demo": {"db"}}, dc.CheckAllNow(ctx))
}

// =============================================================================
// Test Helpers
// =============================================================================

type failingRegistry struct {
	store.Registry
}

func (f *failingRegistry) List(context.Context) ([]*domain.StackConfig, error) {
	return nil, errors.New("registry unavailable")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(t *testing.T) (stack.Deps, *dockertest.Engine) {
	t.Helper()
	reg, err := store.NewFileRegistry(t.TempDir())
	require.NoError(t, err)
	engine := dockertest.NewEngine()
	return stack.Deps{
		Docker:          engine,
		Registry:        reg,
		Logger:          quietLogger(),
		WorkingDir:      t.TempDir(),
		BuildContextDir: t.TempDir(),
	}, engine
}

func createStack(t *testing.T, deps stack.Deps, name string) *stack.Stack {
	t.Helper()
	cfg := &domain.StackConfig{
		Name: name,
		Services: domain.ServicesConfig{
			DB:   &domain.DatabaseConfig{Version: 15},
			Odoo: &domain.ApplicationConfig{Version: "17.0"},
		},
	}
	require.NoError(t, cfg.Validate())
	s, err := stack.New(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), stack.CreateOptions{}))
	return s
}
