package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/stack"
	"github.com/odooghost/odooghost/internal/shell/workers"
)

// =============================================================================
// Handler
// =============================================================================

// Handler serves the stack endpoints.
type Handler struct {
	deps    stack.Deps
	version string
	drift   *workers.DriftChecker
	logger  *slog.Logger
}

// NewHandler creates a handler over the stacks reachable through deps.
// drift may be nil.
func NewHandler(deps stack.Deps, version string, drift *workers.DriftChecker, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	deps.Logger = l
	return &Handler{
		deps:    deps,
		version: version,
		drift:   drift,
		logger:  l.With("component", "api"),
	}
}

// RegisterRoutes registers the stack routes on r, normally the /api/v1
// subrouter.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/version", h.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/drift", h.handleDrift).Methods(http.MethodGet)
	r.HandleFunc("/events", h.handleEvents).Methods(http.MethodGet)

	r.HandleFunc("/stacks", h.handleListStacks).Methods(http.MethodGet)
	r.HandleFunc("/stacks/{name}", h.handleGetStack).Methods(http.MethodGet)
	r.HandleFunc("/stacks/{name}", h.handleDropStack).Methods(http.MethodDelete)
	r.HandleFunc("/stacks/{name}/start", h.handleStartStack).Methods(http.MethodPost)
	r.HandleFunc("/stacks/{name}/stop", h.handleStopStack).Methods(http.MethodPost)
	r.HandleFunc("/stacks/{name}/restart", h.handleRestartStack).Methods(http.MethodPost)
}

// =============================================================================
// System Handlers
// =============================================================================

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"registry": "ok"}
	if _, err := stack.Count(r.Context(), h.deps); err != nil {
		checks["registry"] = "failed"
	}
	checks["docker"] = "ok"
	if err := h.deps.Docker.Ping(r.Context()); err != nil {
		checks["docker"] = "failed"
	}

	for _, v := range checks {
		if v != "ok" {
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	dockerVersion, err := h.deps.Docker.Version(r.Context())
	if err != nil {
		h.logger.Warn("failed to read engine version", "error", err)
		dockerVersion = "unknown"
	}
	h.writeJSON(w, http.StatusOK, VersionResponse{Odooghost: h.version, Docker: dockerVersion})
}

func (h *Handler) handleDrift(w http.ResponseWriter, r *http.Request) {
	if h.drift == nil {
		h.writeError(w, http.StatusNotFound, "drift checker is disabled", "not_found")
		return
	}
	h.writeJSON(w, http.StatusOK, DriftResponse{Stacks: h.drift.Report()})
}

// =============================================================================
// Stack Handlers
// =============================================================================

func (h *Handler) handleListStacks(w http.ResponseWriter, r *http.Request) {
	runningOnly, _ := strconv.ParseBool(r.URL.Query().Get("running"))
	stacks, err := stack.List(r.Context(), h.deps, runningOnly)
	if err != nil {
		h.writeStackError(w, err)
		return
	}

	out := make([]StackResponse, 0, len(stacks))
	for _, s := range stacks {
		resp, err := h.stackToResponse(r, s)
		if err != nil {
			h.writeStackError(w, err)
			return
		}
		out = append(out, resp)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetStack(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStack(w, r)
	if !ok {
		return
	}
	summary, err := h.stackToResponse(r, s)
	if err != nil {
		h.writeStackError(w, err)
		return
	}
	containers, err := s.Containers(r.Context(), true, labels.OneOffInclude)
	if err != nil {
		h.writeStackError(w, err)
		return
	}
	missing, err := s.Drift(r.Context())
	if err != nil {
		h.writeStackError(w, err)
		return
	}

	resp := StackDetailResponse{
		StackResponse: summary,
		Config:        s.Config(),
		Containers:    make([]ContainerResponse, 0, len(containers)),
		Missing:       missing,
	}
	for _, ct := range containers {
		resp.Containers = append(resp.Containers, containerToResponse(ct))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStartStack(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "start", func(s *stack.Stack) error {
		return s.Start(r.Context())
	})
}

func (h *Handler) handleStopStack(w http.ResponseWriter, r *http.Request) {
	timeout, ok := h.timeoutParam(w, r)
	if !ok {
		return
	}
	h.runAction(w, r, "stop", func(s *stack.Stack) error {
		return s.Stop(r.Context(), stack.StopOptions{Timeout: timeout, Wait: true})
	})
}

func (h *Handler) handleRestartStack(w http.ResponseWriter, r *http.Request) {
	timeout, ok := h.timeoutParam(w, r)
	if !ok {
		return
	}
	h.runAction(w, r, "restart", func(s *stack.Stack) error {
		return s.Restart(r.Context(), timeout)
	})
}

func (h *Handler) handleDropStack(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStack(w, r)
	if !ok {
		return
	}
	volumes, _ := strconv.ParseBool(r.URL.Query().Get("volumes"))
	if err := s.Drop(r.Context(), stack.DropOptions{Volumes: volumes}); err != nil {
		h.writeStackError(w, err)
		return
	}
	h.logger.Info("stack dropped via API", "stack", s.Name(), "volumes", volumes)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) runAction(w http.ResponseWriter, r *http.Request, action string, fn func(*stack.Stack) error) {
	s, ok := h.loadStack(w, r)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		h.writeStackError(w, err)
		return
	}
	h.logger.Info("stack action via API", "stack", s.Name(), "action", action)
	h.writeJSON(w, http.StatusOK, ActionResponse{Stack: s.Name(), Action: action, At: time.Now().UTC()})
}

// =============================================================================
// Event Stream
// =============================================================================

// handleEvents streams container lifecycle events as server-sent events
// until the client goes away. ?stack= narrows the stream to one stack.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported", "internal_error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, errs := stack.WatchEvents(r.Context(), h.deps.Docker, r.URL.Query().Get("stack"))
	for {
		select {
		case <-r.Context().Done():
			return
		case err := <-errs:
			h.logger.Warn("event stream failed", "error", err)
			fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
			flusher.Flush()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Action, data)
			flusher.Flush()
		}
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) loadStack(w http.ResponseWriter, r *http.Request) (*stack.Stack, bool) {
	name := mux.Vars(r)["name"]
	s, err := stack.FromName(r.Context(), name, h.deps)
	if err != nil {
		h.writeStackError(w, err)
		return nil, false
	}
	return s, true
}

// timeoutParam reads ?timeout=<seconds>. It is nil when absent.
func (h *Handler) timeoutParam(w http.ResponseWriter, r *http.Request) (*time.Duration, bool) {
	raw := r.URL.Query().Get("timeout")
	if raw == "" {
		return nil, true
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		h.writeError(w, http.StatusBadRequest, "timeout must be a number of seconds", "validation_error")
		return nil, false
	}
	return stack.Timeout(time.Duration(secs) * time.Second), true
}

func (h *Handler) stackToResponse(r *http.Request, s *stack.Stack) (StackResponse, error) {
	state, err := s.State(r.Context())
	if err != nil {
		return StackResponse{}, err
	}
	runState, err := s.RunState(r.Context())
	if err != nil {
		return StackResponse{}, err
	}
	resp := StackResponse{
		Name:     s.Name(),
		State:    string(state),
		RunState: string(runState),
		Network:  s.Config().NetworkName(),
		Services: make([]string, 0, len(s.Services())),
	}
	for _, svc := range s.Services() {
		resp.Services = append(resp.Services, svc.Role())
	}
	return resp, nil
}

func containerToResponse(ct *docker.Container) ContainerResponse {
	resp := ContainerResponse{
		ID:      ct.ShortID(),
		Name:    ct.Name(),
		Service: ct.ServiceName(),
		Image:   ct.Image(),
		Status:  string(ct.Status()),
		Running: ct.IsRunning(),
		OneOff:  ct.IsOneOff(),
	}
	for _, p := range ct.Ports() {
		resp.Ports = append(resp.Ports, PortResponse{ContainerPort: p.ContainerPort, HostPort: p.HostPort, Protocol: p.Protocol})
	}
	return resp
}

// writeStackError maps the stack error taxonomy onto HTTP statuses.
func (h *Handler) writeStackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stack.ErrStackNotFound), errors.Is(err, stack.ErrServiceNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, stack.ErrStackAlreadyExists):
		h.writeError(w, http.StatusConflict, err.Error(), "already_exists")
	case errors.Is(err, docker.ErrContainerNotRunning):
		h.writeError(w, http.StatusConflict, err.Error(), "not_running")
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
