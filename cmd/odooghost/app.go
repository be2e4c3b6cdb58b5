package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/git"
	"github.com/odooghost/odooghost/internal/shell/stack"
	"github.com/odooghost/odooghost/internal/shell/store"
)

// =============================================================================
// Application Context
// =============================================================================

// App owns the long-lived clients a command needs. Commands open one with
// openApp and close it when they return.
type App struct {
	config   *Config
	docker   docker.Client
	registry store.Registry
	git      git.Client
	logger   *slog.Logger
}

// openApp connects to the engine and opens the stack registry.
func openApp(ctx context.Context, cfg *Config, logger *slog.Logger) (*App, error) {
	reg, err := openRegistry(cfg)
	if err != nil {
		return nil, err
	}

	d, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	if err := d.Ping(ctx); err != nil {
		reg.Close()
		d.Close()
		return nil, fmt.Errorf("docker engine is not reachable: %w", err)
	}

	g, err := git.NewExecGit(1, logger)
	if err != nil {
		// Remote addons fail later with a clear error; local stacks still work.
		logger.Debug("git is not available", "error", err)
	}

	app := &App{
		config:   cfg,
		docker:   d,
		registry: reg,
		logger:   logger,
	}
	if g != nil {
		app.git = g
	}
	return app, nil
}

func openRegistry(cfg *Config) (store.Registry, error) {
	if err := os.MkdirAll(cfg.AppDir, 0o755); err != nil {
		return nil, fmt.Errorf("create app dir: %w", err)
	}
	reg, err := store.Open(cfg.Registry.Backend, cfg.AppDir, cfg.Registry.DSN)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return reg, nil
}

// Deps returns the stack dependency context.
func (a *App) Deps() stack.Deps {
	return stack.Deps{
		Docker:          a.docker,
		Registry:        a.registry,
		Git:             a.git,
		Logger:          a.logger,
		WorkingDir:      a.config.WorkingDir,
		BuildContextDir: a.config.Build.ContextDir,
		Out:             os.Stdout,
	}
}

// Close releases the engine connection and the registry.
func (a *App) Close() {
	if err := a.docker.Close(); err != nil {
		a.logger.Error("Docker client close error", "error", err)
	}
	if err := a.registry.Close(); err != nil {
		a.logger.Error("registry close error", "error", err)
	}
}
