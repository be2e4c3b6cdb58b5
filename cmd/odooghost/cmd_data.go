package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odooghost/odooghost/internal/shell/service"
	"github.com/odooghost/odooghost/internal/shell/stack"
)

func init() {
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataImportCmd)
	rootCmd.AddCommand(dataCmd)

	dataExportCmd.Flags().StringP("dir", "o", ".", "Directory to write the archives to")
	dataExportCmd.Flags().StringP("format", "F", string(service.DumpCustom), "pg_dump format (p, c, d or t)")
	dataExportCmd.Flags().IntP("jobs", "j", 0, "Parallel dump jobs (directory format only)")
	dataExportCmd.Flags().Bool("no-filestore", false, "Skip the filestore")

	dataImportCmd.Flags().Bool("force", false, "Drop the database first when it exists")
	dataImportCmd.Flags().IntP("jobs", "j", 0, "Parallel restore jobs")
}

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export and import Odoo databases of a stack",
}

var dataExportCmd = &cobra.Command{
	Use:   "export <stack> <database>",
	Short: "Dump a database and its filestore to compressed archives",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		rawFormat, _ := cmd.Flags().GetString("format")
		jobs, _ := cmd.Flags().GetInt("jobs")
		noFilestore, _ := cmd.Flags().GetBool("no-filestore")

		format, err := service.ParseDumpFormat(rawFormat)
		if err != nil {
			return err
		}

		return withStack(cmd, args[0], func(ctx context.Context, app *App, s *stack.Stack) error {
			res, err := s.ExportData(ctx, stack.ExportOptions{
				Database:  args[1],
				Dir:       dir,
				Format:    format,
				Jobs:      jobs,
				Filestore: !noFilestore,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database dump: %s\n", res.DumpPath)
			if res.FilestorePath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Filestore:     %s\n", res.FilestorePath)
			}
			return nil
		})
	},
}

var dataImportCmd = &cobra.Command{
	Use:   "import <stack> <database> <dump> [filestore]",
	Short: "Restore a database dump and optionally its filestore",
	Long: "Restore a database into the stack. The dump is a .tar.gz written by\n" +
		"`data export`, a plain .sql file or a pg_dump directory. The filestore\n" +
		"is a .tar.gz or a directory.",
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		jobs, _ := cmd.Flags().GetInt("jobs")

		opts := stack.ImportOptions{
			Database: args[1],
			DumpPath: args[2],
			Force:    force,
			Jobs:     jobs,
		}
		if len(args) == 4 {
			opts.FilestorePath = args[3]
		}

		return withStack(cmd, args[0], func(ctx context.Context, app *App, s *stack.Stack) error {
			if err := s.ImportData(ctx, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s imported into %s\n", opts.Database, s.Name())
			return nil
		})
	},
}
