package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odooghost/odooghost/internal/shell/stack"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitNotFound    = 2 // also used for "already exists"
	ExitConfigError = 3
)

// exitCodeError carries the exit code of a foreground one-off container.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// =============================================================================
// Root Command
// =============================================================================

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "odooghost",
	Short:         "Disposable Odoo development stacks on Docker",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level")
	rootCmd.SetVersionTemplate(fmt.Sprintf("odooghost %s (built %s)\n", Version, BuildTime))
}

func main() {
	os.Exit(run())
}

func run() int {
	return exitCode(rootCmd.ExecuteContext(context.Background()))
}

// exitCode reports err and maps it to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var codeErr *exitCodeError
	if errors.As(err, &codeErr) {
		return codeErr.code
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var cfgErr *configLoadError
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.Is(err, stack.ErrStackNotFound), errors.Is(err, stack.ErrStackAlreadyExists):
		return ExitNotFound
	default:
		return ExitError
	}
}

// =============================================================================
// Command Helpers
// =============================================================================

// configLoadError marks a configuration failure.
type configLoadError struct {
	err error
}

func (e *configLoadError) Error() string { return "configuration error: " + e.err.Error() }
func (e *configLoadError) Unwrap() error { return e.err }

// loadConfig reads the configuration and builds the logger.
func loadConfig() (*Config, *slog.Logger, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, &configLoadError{err: err}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := SetupLogger(cfg)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// withApp runs fn with an open App.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// withStack runs fn on the registered stack called name.
func withStack(cmd *cobra.Command, name string, fn func(ctx context.Context, app *App, s *stack.Stack) error) error {
	return withApp(cmd, func(ctx context.Context, app *App) error {
		s, err := stack.FromName(ctx, name, app.Deps())
		if err != nil {
			return err
		}
		return fn(ctx, app, s)
	})
}
