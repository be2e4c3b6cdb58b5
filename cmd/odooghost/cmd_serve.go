package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odooghost/odooghost/internal/shell/api"
	"github.com/odooghost/odooghost/internal/shell/workers"
)

func init() {
	serveCmd.Flags().String("host", "", "Override server.host")
	serveCmd.Flags().Int("port", 0, "Override server.port")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the stack REST API and run the drift checker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.Server.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}

		logger.Info("starting odooghost", "version", Version, "config", configPath)

		server, err := NewServer(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		return server.Start(cmd.Context())
	},
}

// =============================================================================
// Server
// =============================================================================

// Server runs the REST facade and the drift checker over one App.
type Server struct {
	config       *Config
	app          *App
	httpServer   *http.Server
	driftChecker *workers.DriftChecker
	logger       *slog.Logger
}

// NewServer connects to the engine and registry and builds the HTTP server.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	app, err := openApp(ctx, cfg, logger)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err}
	}

	var driftChecker *workers.DriftChecker
	if cfg.Drift.Enabled {
		driftConfig := workers.DefaultDriftCheckerConfig()
		if cfg.Drift.Interval > 0 {
			driftConfig.Interval = cfg.Drift.Interval
		}
		driftChecker = workers.NewDriftChecker(app.Deps(), driftConfig, logger)
		logger.Info("drift checker enabled", "interval", driftConfig.Interval)
	}

	handler := api.SetupAPI(api.APIConfig{
		Deps:    app.Deps(),
		Version: Version,
		Logger:  logger,
		Drift:   driftChecker,
	})

	return &Server{
		config: cfg,
		app:    app,
		httpServer: &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		driftChecker: driftChecker,
		logger:       logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if s.driftChecker != nil {
		s.driftChecker.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{Op: "Start", Err: err}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.driftChecker != nil {
		s.driftChecker.Stop()
	}

	s.app.Close()

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op  string
	Err error
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
