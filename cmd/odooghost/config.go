package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/shell/store"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	AppDir     string         `mapstructure:"app_dir"`
	WorkingDir string         `mapstructure:"working_dir"`
	Docker     DockerConfig   `mapstructure:"docker"`
	Build      BuildConfig    `mapstructure:"build"`
	Registry   RegistryConfig `mapstructure:"registry"`
	Log        LogConfig      `mapstructure:"log"`
	Server     ServerConfig   `mapstructure:"server"`
	Drift      DriftConfig    `mapstructure:"drift"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// BuildConfig holds image build configuration.
type BuildConfig struct {
	ContextDir string `mapstructure:"context_dir"`
}

// RegistryConfig selects where stack declarations are stored.
type RegistryConfig struct {
	// Backend is "file" (one JSON file per stack under app_dir/stacks)
	// or "sqlite".
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // auto, text or json
}

// ServerConfig holds HTTP server configuration for serve mode.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DriftConfig holds the drift checker configuration.
type DriftConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// StacksDir is where the file registry keeps its entries.
func (c *Config) StacksDir() string {
	return filepath.Join(c.AppDir, "stacks")
}

// =============================================================================
// Config Loading
// =============================================================================

// DefaultAppDir returns $XDG_CONFIG_HOME/odooghost, falling back to
// ~/.config/odooghost.
func DefaultAppDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "odooghost")
	}
	return filepath.Join(".", ".odooghost")
}

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	appDir := DefaultAppDir()
	v.SetDefault("app_dir", appDir)
	v.SetDefault("working_dir", "")
	v.SetDefault("docker.host", "")
	v.SetDefault("build.context_dir", filepath.Join(os.TempDir(), "odooghost"))
	v.SetDefault("registry.backend", "file")
	v.SetDefault("registry.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8169)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s") // the event stream never finishes
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("drift.enabled", true)
	v.SetDefault("drift.interval", "60s")

	// Load from file if provided
	if configPath == "" {
		if p := filepath.Join(appDir, "config.yml"); fileExists(p) {
			configPath = p
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only parse errors are fatal; a missing file means defaults.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("ODOOGHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Host paths end up as bind mount sources and must be absolute.
	if err := resolvePaths(&cfg.AppDir, &cfg.WorkingDir, &cfg.Build.ContextDir); err != nil {
		return nil, err
	}

	// Paths derived from app_dir follow it when it is overridden.
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = filepath.Join(cfg.AppDir, "working")
	}
	if cfg.Registry.DSN == "" {
		cfg.Registry.DSN = filepath.Join(cfg.AppDir, "registry.db")
	}

	switch cfg.Registry.Backend {
	case store.BackendFile, store.BackendSQLite:
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Registry.Backend)
	}

	return &cfg, nil
}

// resolvePaths expands "~" and makes each non-empty path absolute.
func resolvePaths(paths ...*string) error {
	for _, p := range paths {
		if *p == "" {
			continue
		}
		abs, err := domain.ExpandPath(*p)
		if err != nil {
			return fmt.Errorf("resolve path %q: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a stderr logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	return newLogger(cfg.Log, os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

func newLogger(cfg LogConfig, w io.Writer, tty bool) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		if tty {
			handler = slog.NewTextHandler(w, opts)
		} else {
			handler = slog.NewJSONHandler(w, opts)
		}
	}

	return slog.New(handler)
}
