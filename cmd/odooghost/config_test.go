package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	appDir := DefaultAppDir()
	assert.Equal(t, appDir, cfg.AppDir)
	assert.Equal(t, filepath.Join(appDir, "working"), cfg.WorkingDir)
	assert.Equal(t, filepath.Join(appDir, "stacks"), cfg.StacksDir())
	assert.Equal(t, filepath.Join(os.TempDir(), "odooghost"), cfg.Build.ContextDir)
	assert.Equal(t, "file", cfg.Registry.Backend)
	assert.Equal(t, filepath.Join(appDir, "registry.db"), cfg.Registry.DSN)
	assert.Equal(t, "", cfg.Docker.Host)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:8169", cfg.Server.Address())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Drift.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Drift.Interval)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
app_dir: /srv/odooghost
working_dir: /srv/work

docker:
  host: "tcp://127.0.0.1:2375"

registry:
  backend: sqlite

log:
  level: "debug"
  format: "text"

server:
  port: 9000
  shutdown_timeout: 5s

drift:
  enabled: false
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "/srv/odooghost", cfg.AppDir)
	assert.Equal(t, "/srv/work", cfg.WorkingDir)
	assert.Equal(t, "tcp://127.0.0.1:2375", cfg.Docker.Host)
	assert.Equal(t, "sqlite", cfg.Registry.Backend)
	assert.Equal(t, "/srv/odooghost/registry.db", cfg.Registry.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.Drift.Enabled)
}

func TestLoadConfig_DefaultFileInAppDir(t *testing.T) {
	clearEnv(t)

	appDir := DefaultAppDir()
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "config.yml"), []byte("working_dir: /elsewhere\n"), 0o644))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", cfg.WorkingDir)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("ODOOGHOST_APP_DIR", "/opt/og")
	t.Setenv("ODOOGHOST_DOCKER_HOST", "unix:///tmp/docker.sock")
	t.Setenv("ODOOGHOST_LOG_LEVEL", "warn")
	t.Setenv("ODOOGHOST_SERVER_PORT", "3000")
	t.Setenv("ODOOGHOST_DRIFT_INTERVAL", "5m")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/opt/og", cfg.AppDir)
	assert.Equal(t, "/opt/og/working", cfg.WorkingDir)
	assert.Equal(t, "unix:///tmp/docker.sock", cfg.Docker.Host)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Drift.Interval)
}

func TestLoadConfig_RelativePathsAreResolved(t *testing.T) {
	clearEnv(t)
	home := os.Getenv("HOME")
	cwd, err := os.Getwd()
	require.NoError(t, err)

	t.Setenv("ODOOGHOST_APP_DIR", "~/og")
	t.Setenv("ODOOGHOST_WORKING_DIR", "work")
	t.Setenv("ODOOGHOST_BUILD_CONTEXT_DIR", "./build")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "og"), cfg.AppDir)
	assert.Equal(t, filepath.Join(cwd, "work"), cfg.WorkingDir)
	assert.Equal(t, filepath.Join(cwd, "build"), cfg.Build.ContextDir)
	assert.Equal(t, filepath.Join(home, "og", "registry.db"), cfg.Registry.DSN)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("log: [unclosed\n"), 0o644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Registry.Backend)
}

func TestLoadConfig_UnknownRegistryBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("ODOOGHOST_REGISTRY_BACKEND", "etcd")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LogConfig{Level: "warn", Format: "json"}, &buf, false)

	logger.Info("hidden")
	logger.Warn("shown", "stack", "demo")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"stack":"demo"`)
}

func TestNewLogger_AutoFormat(t *testing.T) {
	tests := []struct {
		name   string
		format string
		tty    bool
		json   bool
	}{
		{"auto on terminal", "auto", true, false},
		{"auto piped", "auto", false, true},
		{"text forced", "text", false, false},
		{"json forced", "json", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newLogger(LogConfig{Level: "info", Format: tt.format}, &buf, tt.tty).Info("hello")
			assert.Equal(t, tt.json, strings.HasPrefix(buf.String(), "{"), buf.String())
		})
	}
}

// =============================================================================
// Helpers
// =============================================================================

// clearEnv removes ODOOGHOST_* variables and points the user config dir at
// a temp dir for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "ODOOGHOST_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
}
