// Package workers contains background workers for odooghost serve mode.
package workers

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/odooghost/odooghost/internal/shell/stack"
)

// DriftCheckerConfig configures the drift checker worker.
type DriftCheckerConfig struct {
	// Interval is the time between check cycles.
	// Default: 60 seconds.
	Interval time.Duration

	// StackTimeout bounds the check of a single stack.
	// Default: 10 seconds.
	StackTimeout time.Duration

	// MaxConcurrent is the maximum number of stacks checked concurrently.
	// Default: 5.
	MaxConcurrent int
}

// DefaultDriftCheckerConfig returns the default configuration.
func DefaultDriftCheckerConfig() DriftCheckerConfig {
	return DriftCheckerConfig{
		Interval:      60 * time.Second,
		StackTimeout:  10 * time.Second,
		MaxConcurrent: 5,
	}
}

// DriftChecker periodically compares registered stacks with the engine and
// reports the service containers that went missing. It never repairs or
// changes the registry.
type DriftChecker struct {
	deps   stack.Deps
	config DriftCheckerConfig
	logger *slog.Logger

	mu     sync.RWMutex
	report map[string][]string

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDriftChecker creates a drift checker over the stacks of deps.
func NewDriftChecker(deps stack.Deps, config DriftCheckerConfig, logger *slog.Logger) *DriftChecker {
	if config.Interval == 0 {
		config.Interval = 60 * time.Second
	}
	if config.StackTimeout == 0 {
		config.StackTimeout = 10 * time.Second
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	deps.Logger = logger

	return &DriftChecker{
		deps:   deps,
		config: config,
		logger: logger.With("component", "drift_checker"),
		report: map[string][]string{},
	}
}

// Start begins the background goroutine. A cycle runs immediately, then
// every Interval.
func (d *DriftChecker) Start() {
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.wg.Add(1)
	go d.run()

	d.logger.Info("drift checker started",
		"interval", d.config.Interval,
		"max_concurrent", d.config.MaxConcurrent,
	)
}

// Stop cancels the worker and waits for the running cycle.
func (d *DriftChecker) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("drift checker stopped")
}

func (d *DriftChecker) run() {
	defer d.wg.Done()

	d.runCycle(d.ctx)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runCycle(d.ctx)
		}
	}
}

// runCycle checks every registered stack and replaces the report.
func (d *DriftChecker) runCycle(parent context.Context) map[string][]string {
	ctx, cancel := context.WithTimeout(parent, d.config.Interval)
	defer cancel()

	stacks, err := stack.List(ctx, d.deps, false)
	if err != nil {
		d.logger.Error("failed to list stacks", "error", err)
		return d.Report()
	}
	if len(stacks) == 0 {
		d.logger.Debug("no stacks to check")
		d.setReport(map[string][]string{})
		return d.Report()
	}

	d.logger.Debug("starting drift check cycle", "stack_count", len(stacks))

	sem := make(chan struct{}, d.config.MaxConcurrent)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		report = map[string][]string{}
	)
	for _, s := range stacks {
		wg.Add(1)
		go func(s *stack.Stack) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			if missing := d.checkStack(ctx, s); len(missing) > 0 {
				mu.Lock()
				report[s.Name()] = missing
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	d.setReport(report)
	d.logger.Debug("completed drift check cycle", "stack_count", len(stacks), "drifted", len(report))
	return d.Report()
}

func (d *DriftChecker) checkStack(ctx context.Context, s *stack.Stack) []string {
	stackCtx, cancel := context.WithTimeout(ctx, d.config.StackTimeout)
	defer cancel()

	logger := d.logger.With("stack", s.Name())
	missing, err := s.Drift(stackCtx)
	if err != nil {
		logger.Error("failed to check stack", "error", err)
		return nil
	}
	if len(missing) > 0 {
		logger.Warn("stack is missing service containers", "services", missing)
	}
	return missing
}

func (d *DriftChecker) setReport(report map[string][]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report = report
}

// Report returns the missing roles per drifted stack from the last cycle.
func (d *DriftChecker) Report() map[string][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string][]string, len(d.report))
	for name, roles := range d.report {
		out[name] = append([]string(nil), roles...)
	}
	return out
}

// Drifted returns the names of the drifted stacks, sorted.
func (d *DriftChecker) Drifted() []string {
	report := d.Report()
	names := make([]string, 0, len(report))
	for name := range report {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAllNow runs a cycle immediately and returns its report.
func (d *DriftChecker) CheckAllNow(ctx context.Context) map[string][]string {
	return d.runCycle(ctx)
}
