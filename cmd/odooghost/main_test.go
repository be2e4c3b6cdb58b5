package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/stack"
)

// =============================================================================
// Exit Codes
// =============================================================================

func TestExitCode(t *testing.T) {
	notFound := stack.NewStackError("start", "demo", "", stack.ErrStackNotFound, nil)
	exists := stack.NewStackError("create", "demo", "", stack.ErrStackAlreadyExists, nil)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitError},
		{"not found", notFound, ExitNotFound},
		{"already exists", fmt.Errorf("wrapped: %w", exists), ExitNotFound},
		{"config", &configLoadError{err: errors.New("bad yaml")}, ExitConfigError},
		{"container exit code", &exitCodeError{code: 42}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"version"}, {"setup"}, {"serve"}, {"config", "check"}, {"config", "show"},
		{"stack", "create"}, {"stack", "drop"}, {"stack", "start"}, {"stack", "stop"},
		{"stack", "restart"}, {"stack", "update"}, {"stack", "pull"}, {"stack", "ls"},
		{"stack", "ps"}, {"stack", "logs"}, {"stack", "exec"}, {"stack", "run"},
		{"stack", "compose"}, {"data", "export"}, {"data", "import"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestCreateOptions(t *testing.T) {
	tests := []struct {
		args []string
		want stack.CreateOptions
	}{
		{nil, stack.CreateOptions{Pull: true, EnsureAddons: true}},
		{[]string{"--no-pull"}, stack.CreateOptions{EnsureAddons: true}},
		{[]string{"--force", "--skip-addons"}, stack.CreateOptions{Force: true, Pull: true}},
	}
	for _, tt := range tests {
		cmd := &cobra.Command{}
		addCreateFlags(cmd)
		require.NoError(t, cmd.ParseFlags(tt.args))
		assert.Equal(t, tt.want, createOptions(cmd), tt.args)
	}
}

// =============================================================================
// Argument Helpers
// =============================================================================

func TestCommandArgs(t *testing.T) {
	got, err := commandArgs([]string{`odoo shell -d "my db"`})
	require.NoError(t, err)
	assert.Equal(t, []string{"odoo", "shell", "-d", "my db"}, got)

	got, err = commandArgs([]string{"ls", "-la"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ls", "-la"}, got)

	got, err = commandArgs(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = commandArgs([]string{`echo "unterminated`})
	assert.Error(t, err)
}

func TestParseEnv(t *testing.T) {
	env, err := parseEnv([]string{"PGUSER=odoo", "EMPTY=", "URL=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PGUSER": "odoo", "EMPTY": "", "URL": "a=b"}, env)

	env, err = parseEnv(nil)
	require.NoError(t, err)
	assert.Nil(t, env)

	_, err = parseEnv([]string{"NOVALUE"})
	assert.Error(t, err)
	_, err = parseEnv([]string{"=x"})
	assert.Error(t, err)
}

func TestFormatPorts(t *testing.T) {
	assert.Equal(t, "", formatPorts(nil))
	assert.Equal(t, "8070->8069/tcp, 8072/tcp", formatPorts([]docker.PortBinding{
		{ContainerPort: 8069, HostPort: 8070, Protocol: "tcp"},
		{ContainerPort: 8072, Protocol: "tcp"},
	}))
}

// =============================================================================
// Setup
// =============================================================================

func TestSetupEnvironment(t *testing.T) {
	root := t.TempDir()
	appDir := filepath.Join(root, "app")
	workDir := filepath.Join(root, "work")

	path, err := setupEnvironment(appDir, workDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(appDir, "config.yml"), path)
	assert.DirExists(t, filepath.Join(appDir, "stacks"))
	assert.DirExists(t, workDir)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "working_dir: "+workDir)

	_, err = setupEnvironment(appDir, workDir)
	assert.ErrorIs(t, err, errAlreadySetup)
}

func TestSetupEnvironment_NonEmptyWorkingDir(t *testing.T) {
	root := t.TempDir()
	workDir := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(workDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "keep"), nil, 0o644))

	_, err := setupEnvironment(filepath.Join(root, "app"), workDir)
	assert.ErrorIs(t, err, errWorkingDirInUse)
	assert.NoDirExists(t, filepath.Join(root, "app"))
}

func TestSetupThenLoadConfig(t *testing.T) {
	clearEnv(t)
	workDir := filepath.Join(t.TempDir(), "work")

	_, err := setupEnvironment(DefaultAppDir(), workDir)
	require.NoError(t, err)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, workDir, cfg.WorkingDir)
}

// =============================================================================
// Config Check
// =============================================================================

func TestCheckStackFiles(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "demo.yml")
	require.NoError(t, os.WriteFile(valid, []byte(`
name: demo
services:
  db:
    version: 15
  odoo:
    version: "17.0"
`), 0o644))
	jsonc := filepath.Join(dir, "other.jsonc")
	require.NoError(t, os.WriteFile(jsonc, []byte(`{
  // comments are allowed
  "name": "other",
  "services": {"db": {"version": 16}, "odoo": {"version": "16.0"},},
}`), 0o644))
	invalid := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(invalid, []byte("name: bad name\nservices: {}\n"), 0o644))

	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	require.NoError(t, checkStackFiles(cmd, []string{valid, jsonc}))
	assert.Contains(t, out.String(), `stack "demo" is valid`)
	assert.Contains(t, out.String(), `stack "other" is valid`)

	err := checkStackFiles(cmd, []string{valid, invalid, filepath.Join(dir, "missing.yml"), filepath.Join(dir, "demo.toml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 of 4")
	assert.Contains(t, errOut.String(), "bad.yml")
	assert.Contains(t, errOut.String(), "file does not exist")
}
