package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odooghost/odooghost/internal/shell/docker"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "odooghost %s\n", Version)
		fmt.Fprintf(out, "  built:  %s\n", BuildTime)

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  docker: %s\n", engineVersion(cmd.Context(), cfg.Docker.Host))
		return nil
	},
}

func engineVersion(ctx context.Context, host string) string {
	d, err := docker.NewDockerClient(host)
	if err != nil {
		return "unavailable"
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	v, err := d.Version(ctx)
	if err != nil {
		return "unavailable"
	}
	return v
}
