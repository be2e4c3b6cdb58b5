package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/shell/store"
)

func init() {
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate stack files and view odooghost configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check <stack-file>...",
	Short: "Validate stack declarations without touching Docker",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkStackFiles(cmd, args)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "App dir:      %s\n", cfg.AppDir)
		fmt.Fprintf(out, "Working dir:  %s\n", cfg.WorkingDir)
		fmt.Fprintf(out, "Build dir:    %s\n", cfg.Build.ContextDir)
		fmt.Fprintf(out, "Docker host:  %s\n", orDefault(cfg.Docker.Host, "(environment)"))
		fmt.Fprintf(out, "Registry:     %s", cfg.Registry.Backend)
		if cfg.Registry.Backend == store.BackendSQLite {
			fmt.Fprintf(out, " (%s)", cfg.Registry.DSN)
		} else {
			fmt.Fprintf(out, " (%s)", cfg.StacksDir())
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Log:          %s, %s\n", cfg.Log.Level, cfg.Log.Format)
		fmt.Fprintf(out, "Serve:        %s\n", cfg.Server.Address())
		return nil
	},
}

// checkStackFiles parses every file and reports each result. It fails when
// any file is invalid.
func checkStackFiles(cmd *cobra.Command, paths []string) error {
	var failed int
	for _, p := range paths {
		cfg, err := readStackFile(p)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", p, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: stack %q is valid\n", p, cfg.Name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d stack files are invalid", failed, len(paths))
	}
	return nil
}

func readStackFile(p string) (*domain.StackConfig, error) {
	format, err := domain.FormatFromPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file does not exist")
		}
		return nil, err
	}
	return domain.Parse(data, format)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
