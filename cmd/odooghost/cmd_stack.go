package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/stack"
)

func init() {
	stackCmd.AddCommand(stackCreateCmd)
	stackCmd.AddCommand(stackDropCmd)
	stackCmd.AddCommand(stackStartCmd)
	stackCmd.AddCommand(stackStopCmd)
	stackCmd.AddCommand(stackRestartCmd)
	stackCmd.AddCommand(stackUpdateCmd)
	stackCmd.AddCommand(stackPullCmd)
	stackCmd.AddCommand(stackLsCmd)
	stackCmd.AddCommand(stackPsCmd)
	stackCmd.AddCommand(stackLogsCmd)
	stackCmd.AddCommand(stackExecCmd)
	stackCmd.AddCommand(stackRunCmd)
	stackCmd.AddCommand(stackComposeCmd)
	rootCmd.AddCommand(stackCmd)

	addCreateFlags(stackCreateCmd)

	stackDropCmd.Flags().BoolP("volumes", "v", false, "Remove data volumes")
	stackDropCmd.Flags().Bool("force", false, "Force image removal")

	stackStartCmd.Flags().BoolP("detach", "d", true, "Do not follow the Odoo logs")
	stackStartCmd.Flags().String("tail", "100", "Log lines to show when following")

	stackStopCmd.Flags().Int("timeout", int(stack.DefaultStopTimeout/time.Second), "Seconds before SIGKILL")
	stackStopCmd.Flags().Bool("no-wait", false, "Return without waiting for containers to stop")
	stackRestartCmd.Flags().Int("timeout", int(stack.DefaultStopTimeout/time.Second), "Seconds before SIGKILL")

	stackUpdateCmd.Flags().Bool("no-pull", false, "Do not pull base images")

	stackLsCmd.Flags().Bool("running", false, "Only show running stacks")
	stackPsCmd.Flags().BoolP("all", "a", false, "Include one-off containers")

	stackLogsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	stackLogsCmd.Flags().String("tail", "all", "Number of lines to show from the end")
	stackLogsCmd.Flags().BoolP("timestamps", "t", false, "Show timestamps")

	stackExecCmd.Flags().BoolP("detach", "d", false, "Run the command in the background")
	stackExecCmd.Flags().Bool("privileged", false, "Give extended privileges to the process")
	stackExecCmd.Flags().StringP("user", "u", "", "Run the command as this user")
	stackExecCmd.Flags().StringP("workdir", "w", "", "Working directory inside the container")
	stackExecCmd.Flags().StringArrayP("env", "e", nil, "Set environment variables (KEY=VALUE)")
	stackExecCmd.Flags().BoolP("no-tty", "T", false, "Disable pseudo-tty allocation")

	stackRunCmd.Flags().BoolP("detach", "d", false, "Run the container in the background")
	stackRunCmd.Flags().StringP("user", "u", "", "Run the command as this user")
	stackRunCmd.Flags().StringP("workdir", "w", "", "Working directory inside the container")
	stackRunCmd.Flags().StringArrayP("env", "e", nil, "Set environment variables (KEY=VALUE)")
	stackRunCmd.Flags().BoolP("no-tty", "T", false, "Disable pseudo-tty allocation")
	stackRunCmd.Flags().BoolP("port", "p", false, "Publish the service port")

	stackComposeCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
}

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "Manage Odoo stacks",
}

// =============================================================================
// Lifecycle
// =============================================================================

func addCreateFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("force", false, "Recreate existing service containers")
	cmd.Flags().Bool("no-pull", false, "Do not pull base images that are already present")
	cmd.Flags().Bool("skip-addons", false, "Do not clone remote addons")
}

func createOptions(cmd *cobra.Command) stack.CreateOptions {
	force, _ := cmd.Flags().GetBool("force")
	noPull, _ := cmd.Flags().GetBool("no-pull")
	skipAddons, _ := cmd.Flags().GetBool("skip-addons")
	return stack.CreateOptions{Force: force, Pull: !noPull, EnsureAddons: !skipAddons}
}

var stackCreateCmd = &cobra.Command{
	Use:   "create <stack-file>",
	Short: "Create a stack from a YAML or JSON declaration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := createOptions(cmd)

		return withApp(cmd, func(ctx context.Context, app *App) error {
			s, err := stack.FromFile(args[0], app.Deps())
			if err != nil {
				return err
			}
			if err := s.Create(ctx, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stack %s created\n", s.Name())
			return nil
		})
	},
}

var stackDropCmd = &cobra.Command{
	Use:   "drop <stack>...",
	Short: "Remove stacks and their containers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		volumes, _ := cmd.Flags().GetBool("volumes")
		force, _ := cmd.Flags().GetBool("force")

		return withApp(cmd, func(ctx context.Context, app *App) error {
			for _, name := range args {
				s, err := stack.FromName(ctx, name, app.Deps())
				if err != nil {
					return err
				}
				if err := s.Drop(ctx, stack.DropOptions{Volumes: volumes, Force: force}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stack %s dropped\n", name)
			}
			return nil
		})
	},
}

var stackStartCmd = &cobra.Command{
	Use:   "start <stack>",
	Short: "Start the stopped containers of a stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detach, _ := cmd.Flags().GetBool("detach")
		tail, _ := cmd.Flags().GetString("tail")

		return withStack(cmd, args[0], func(ctx context.Context, app *App, s *stack.Stack) error {
			if err := s.Start(ctx); err != nil {
				return err
			}
			if detach {
				fmt.Fprintf(cmd.OutOrStdout(), "Stack %s started\n", s.Name())
				return nil
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ignoreCanceled(ctx, s.Logs(ctx, domain.RoleApplication, cmd.OutOrStdout(), docker.LogOptions{Follow: true, Tail: tail}))
		})
	},
}

var stackStopCmd = &cobra.Command{
	Use:   "stop <stack>",
	Short: "Stop the running containers of a stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetInt("timeout")
		noWait, _ := cmd.Flags().GetBool("no-wait")

		return withStack(cmd, args[0], func(ctx context.Context, app *App, s *stack.Stack) error {
			opts := stack.StopOptions{Timeout: stack.Timeout(time.Duration(timeout) * time.Second), Wait: !noWait}
			if err := s.Stop(ctx, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stack %s stopped\n", s.Name())
			return nil
		})
	},
}

var stackRestartCmd = &cobra.Command{
	Use:   "restart <stack>",
	Short: "Restart the containers of a stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetInt("timeout")

		return withStack(cmd, args[0], func(ctx context.Context, app *App, s *stack.Stack) error {
			if err := s.Restart(ctx, stack.Timeout(time.Duration(timeout)*time.Second)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stack %s restarted\n", s.Name())
			return nil
		})
	},
}

var stackUpdateCmd = &cobra.Command{
	Use:   "update <stack-file>",
	Short: "Apply a changed declaration to an existing stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noPull, _ := cmd.Flags().GetBool("no-pull")

		return withApp(cmd, func(ctx context.Context, app *App) error {
			s, err := stack.FromFile(args[0], app.Deps())
			if err != nil {
				return err
			}
			if err := s.Update(ctx, stack.UpdateOptions{Pull: !noPull}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stack %s updated\n", s.Name())
			return nil
		})
	},
}

var stackPullCmd = &cobra.Command{
	Use:   "pull <stack>...",
	Short: "Pull base images and remote addons",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			for _, name := range args {
				s, err := stack.FromName(ctx, name, app.Deps())
				if err != nil {
					return err
				}
				if err := s.Pull(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

// =============================================================================
// Inspection
// =============================================================================

var stackLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stacks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		running, _ := cmd.Flags().GetBool("running")

		return withApp(cmd, func(ctx context.Context, app *App) error {
			stacks, err := stack.List(ctx, app.Deps(), running)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTATUS\tNETWORK\tSERVICES")
			for _, s := range stacks {
				rs, err := s.RunState(ctx)
				if err != nil {
					return err
				}
				roles := make([]string, 0, len(s.Services()))
				for _, svc := range s.Services() {
					roles = append(roles, svc.Role())
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name(), rs, s.Config().NetworkName(), strings.Join(roles, ","))
			}
			return tw.Flush()
		})
	},
}

var stackPsCmd = &cobra.Command{
	Use:   "ps <stack>",
	Short: "List the containers of a stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		oneOff := labels.OneOffExclude
		if all {
			oneOff = labels.OneOffInclude
		}

		return withStack(cmd, args[0], func(ctx context.Context, app *App, s *stack.Stack) error {
			containers, err := s.Containers(ctx, true, oneOff)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSERVICE\tIMAGE\tSTATUS\tPORTS")
			for _, ct := range containers {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ct.Name(), ct.ServiceName(), ct.Image(), ct.Status(), formatPorts(ct.Ports()))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			missing, err := s.Drift(ctx)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "missing service containers: %s (run `odooghost stack update`)\n", strings.Join(missing, ", "))
			}
			return nil
		})
	},
}

var stackLogsCmd = &cobra.Command{
	Use:   "logs <stack> [service]",
	Short: "Show the logs of a stack service (odoo by default)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		tail, _ := cmd.Flags().GetString("tail")
		timestamps, _ := cmd.Flags().GetBool("timestamps")
		role := domain.RoleApplication
		if len(args) == 2 {
			role = args[1]
		}

		return withStack(cmd, args[0], func(ctx context.Context, app *App, s *stack.Stack) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			opts := docker.LogOptions{Follow: follow, Tail: tail, Timestamps: timestamps}
			return ignoreCanceled(ctx, s.Logs(ctx, role, cmd.OutOrStdout(), opts))
		})
	},
}

var stackComposeCmd = &cobra.Command{
	Use:   "compose <stack>",
	Short: "Export a stack as a compose file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		return withStack(cmd, args[0], func(ctx context.Context, app *App, s *stack.Stack) error {
			data, err := s.ComposeYAML()
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write compose file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Compose file written to %s\n", output)
			return nil
		})
	},
}

// =============================================================================
// Exec / Run
// =============================================================================

var stackExecCmd = &cobra.Command{
	Use:   "exec <stack> <service> <command> [args...]",
	Short: "Run a command in a running service container",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		detach, _ := cmd.Flags().GetBool("detach")
		privileged, _ := cmd.Flags().GetBool("privileged")
		user, _ := cmd.Flags().GetString("user")
		workdir, _ := cmd.Flags().GetString("workdir")
		env, _ := cmd.Flags().GetStringArray("env")
		noTTY, _ := cmd.Flags().GetBool("no-tty")

		command, err := commandArgs(args[2:])
		if err != nil {
			return err
		}

		return withStack(cmd, args[0], func(ctx context.Context, app *App, s *stack.Stack) error {
			code, err := s.Exec(ctx, stack.ExecOptions{
				Service:    args[1],
				Command:    command,
				Detach:     detach,
				Privileged: privileged,
				User:       user,
				Workdir:    workdir,
				Env:        env,
				TTY:        !noTTY,
				Stdin:      os.Stdin,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitCodeError{code: code}
			}
			return nil
		})
	},
}

var stackRunCmd = &cobra.Command{
	Use:   "run <stack> <service> [command] [args...]",
	Short: "Run a one-off container of a service",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		detach, _ := cmd.Flags().GetBool("detach")
		user, _ := cmd.Flags().GetString("user")
		workdir, _ := cmd.Flags().GetString("workdir")
		envList, _ := cmd.Flags().GetStringArray("env")
		noTTY, _ := cmd.Flags().GetBool("no-tty")
		port, _ := cmd.Flags().GetBool("port")

		command, err := commandArgs(args[2:])
		if err != nil {
			return err
		}
		env, err := parseEnv(envList)
		if err != nil {
			return err
		}

		return withStack(cmd, args[0], func(ctx context.Context, app *App, s *stack.Stack) error {
			res, err := s.Run(ctx, stack.RunOptions{
				Service: args[1],
				Command: command,
				Detach:  detach,
				User:    user,
				Workdir: workdir,
				TTY:     !noTTY,
				Port:    port,
				Env:     env,
				Stdin:   os.Stdin,
				Stdout:  cmd.OutOrStdout(),
				Stderr:  cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			if detach {
				fmt.Fprintln(cmd.OutOrStdout(), res.Container)
				return nil
			}
			if res.ExitCode != 0 {
				return &exitCodeError{code: res.ExitCode}
			}
			return nil
		})
	},
}

// =============================================================================
// Helpers
// =============================================================================

// commandArgs splits a single quoted command line; several arguments are
// taken as already split.
func commandArgs(args []string) ([]string, error) {
	if len(args) != 1 {
		return args, nil
	}
	words, err := shellwords.Parse(args[0])
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", args[0], err)
	}
	return words, nil
}

func parseEnv(list []string) (map[string]string, error) {
	if len(list) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(list))
	for _, kv := range list {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid environment variable %q, want KEY=VALUE", kv)
		}
		env[k] = v
	}
	return env, nil
}

func formatPorts(ports []docker.PortBinding) string {
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.HostPort == 0 {
			out = append(out, fmt.Sprintf("%d/%s", p.ContainerPort, p.Protocol))
			continue
		}
		out = append(out, fmt.Sprintf("%d->%d/%s", p.HostPort, p.ContainerPort, p.Protocol))
	}
	return strings.Join(out, ", ")
}

// ignoreCanceled treats an interrupted follow as a clean exit.
func ignoreCanceled(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
