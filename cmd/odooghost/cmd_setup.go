package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	errAlreadySetup    = errors.New("odooghost is already set up")
	errWorkingDirInUse = errors.New("working directory must be empty")
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup <working-dir>",
	Short: "Create the odooghost app directory and config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		workingDir, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		path, err := setupEnvironment(cfg.AppDir, workingDir)
		if err != nil {
			return err
		}
		logger.Info("odooghost set up", "config", path, "working_dir", workingDir)
		fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
		return nil
	},
}

// setupFile is what setup writes to <app_dir>/config.yml.
type setupFile struct {
	Version    string `yaml:"version"`
	AppDir     string `yaml:"app_dir"`
	WorkingDir string `yaml:"working_dir"`
}

// setupEnvironment creates appDir, its stacks directory and workingDir, and
// writes the config file. workingDir may exist only when it is empty.
func setupEnvironment(appDir, workingDir string) (string, error) {
	configFile := filepath.Join(appDir, "config.yml")
	if fileExists(configFile) {
		return "", fmt.Errorf("%w: %s exists", errAlreadySetup, configFile)
	}

	entries, err := os.ReadDir(workingDir)
	switch {
	case err == nil && len(entries) > 0:
		return "", fmt.Errorf("%w: %s", errWorkingDirInUse, workingDir)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read working directory: %w", err)
	}

	for _, dir := range []string{appDir, filepath.Join(appDir, "stacks"), workingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", dir, err)
		}
	}

	data, err := yaml.Marshal(setupFile{
		Version:    Version,
		AppDir:     appDir,
		WorkingDir: workingDir,
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(configFile, data, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return configFile, nil
}
