package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/docker/dockertest"
	"github.com/odooghost/odooghost/internal/shell/stack"
	"github.com/odooghost/odooghost/internal/shell/store"
	"github.com/odooghost/odooghost/internal/shell/workers"
)

// =============================================================================
// Test Helpers
// =============================================================================

type testEnv struct {
	engine  *dockertest.Engine
	deps    stack.Deps
	handler http.Handler
	drift   *workers.DriftChecker
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, stacks ...string) *testEnv {
	t.Helper()
	reg, err := store.NewFileRegistry(t.TempDir())
	require.NoError(t, err)
	engine := dockertest.NewEngine()
	deps := stack.Deps{
		Docker:          engine,
		Registry:        reg,
		Logger:          quietLogger(),
		WorkingDir:      t.TempDir(),
		BuildContextDir: t.TempDir(),
	}

	for _, name := range stacks {
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
	}
	engine.ResetCalls()

	drift := workers.NewDriftChecker(deps, workers.DriftCheckerConfig{}, quietLogger())
	return &testEnv{
		engine: engine,
		deps:   deps,
		drift:  drift,
		handler: SetupAPI(APIConfig{
			Deps:    deps,
			Version: "1.2.3",
			Logger:  quietLogger(),
			Drift:   drift,
		}),
	}
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// System Endpoints
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReady(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/ready")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReadyResponse](t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, map[string]string{"registry": "ok", "docker": "ok"}, resp.Checks)
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req_fixed")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req_fixed", rec.Header().Get("X-Request-ID"))
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/version")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, VersionResponse{Odooghost: "1.2.3", Docker: "28.0.0-test"}, decode[VersionResponse](t, rec))
}

func TestDrift(t *testing.T) {
	env := newTestEnv(t, "demo")
	require.NoError(t, env.engine.RemoveContainer(context.Background(), "demo_odoo", docker.RemoveOptions{Force: true}))
	env.drift.CheckAllNow(context.Background())

	rec := env.do(t, http.MethodGet, "/api/v1/drift")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string][]string{"demo": {"odoo"}}, decode[DriftResponse](t, rec).Stacks)
}

func TestDrift_Disabled(t *testing.T) {
	env := newTestEnv(t)
	handler := SetupAPI(APIConfig{Deps: env.deps, Logger: quietLogger()})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/drift", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Stack Endpoints
// =============================================================================

func TestListStacks(t *testing.T) {
	env := newTestEnv(t, "demo", "alpha")

	rec := env.do(t, http.MethodGet, "/api/v1/stacks")
	require.Equal(t, http.StatusOK, rec.Code)
	stacks := decode[[]StackResponse](t, rec)
	require.Len(t, stacks, 2)
	assert.Equal(t, "alpha", stacks[0].Name)
	assert.Equal(t, "READY", stacks[0].State)
	assert.Equal(t, "STOPPED", stacks[0].RunState)
	assert.Equal(t, domain.CommonNetworkName, stacks[0].Network)
	assert.Equal(t, []string{"db", "odoo"}, stacks[0].Services)

	rec = env.do(t, http.MethodGet, "/api/v1/stacks?running=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]StackResponse](t, rec))
}

func TestGetStack(t *testing.T) {
	env := newTestEnv(t, "demo")

	rec := env.do(t, http.MethodGet, "/api/v1/stacks/demo")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[StackDetailResponse](t, rec)
	assert.Equal(t, "demo", resp.Name)
	require.NotNil(t, resp.Config)
	assert.Equal(t, 15, resp.Config.Services.DB.Version)
	require.Len(t, resp.Containers, 2)
	names := []string{resp.Containers[0].Name, resp.Containers[1].Name}
	assert.ElementsMatch(t, []string{"demo_db", "demo_odoo"}, names)
	assert.Empty(t, resp.Missing)
}

func TestGetStack_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/stacks/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
	assert.Empty(t, env.engine.Calls())
}

func TestStackActions(t *testing.T) {
	env := newTestEnv(t, "demo")

	rec := env.do(t, http.MethodPost, "/api/v1/stacks/demo/start")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "start", decode[ActionResponse](t, rec).Action)
	assert.Equal(t, []string{"StartContainer demo_db", "StartContainer demo_odoo"}, env.engine.CallsWithPrefix("StartContainer"))

	env.engine.StopTimeouts = nil
	rec = env.do(t, http.MethodPost, "/api/v1/stacks/demo/restart?timeout=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.engine.CallsWithPrefix("RestartContainer"), 2)

	rec = env.do(t, http.MethodPost, "/api/v1/stacks/demo/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.engine.CallsWithPrefix("StopContainer"), 2)
	assert.Len(t, env.engine.CallsWithPrefix("WaitContainer"), 2)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 10 * time.Second, 10 * time.Second}, env.engine.StopTimeouts)

	rec = env.do(t, http.MethodPost, "/api/v1/stacks/demo/stop?timeout=soon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/stacks/missing/start")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDropStack(t *testing.T) {
	env := newTestEnv(t, "demo")

	rec := env.do(t, http.MethodDelete, "/api/v1/stacks/demo?volumes=true")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.engine.ContainerNames())
	assert.False(t, env.engine.HasVolume("demo_db_data"))

	rec = env.do(t, http.MethodDelete, "/api/v1/stacks/demo")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, "demo")
	rec := env.do(t, http.MethodGet, "/api/v1/stacks/demo/start")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// =============================================================================
// Event Stream
// =============================================================================

func TestEvents_StreamsSSE(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	attrs := dockertest.ManagedLabels("demo", "odoo")
	attrs["name"] = "demo_odoo"
	env.engine.EventCh <- docker.Event{Type: "container", Action: "attach", ActorID: "c0", Attributes: attrs}
	env.engine.EventCh <- docker.Event{Type: "container", Action: "start", ActorID: "c1", Attributes: attrs}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?stack=demo", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var eventName, data string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			eventName = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
			break
		}
	}
	require.NotEmpty(t, data, "no event received")
	assert.Equal(t, "start", eventName)

	var ev stack.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "c1", ev.ContainerID)
	assert.Equal(t, "demo_odoo", ev.ContainerName)
	assert.Equal(t, "demo", ev.StackName)
	assert.Equal(t, "odoo", ev.ServiceName)
}
