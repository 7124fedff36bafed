package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the command tree. Command output goes to out.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	cmds := command{out: out}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStartCommand(cmds, &APIFlags{}),
		createStopCommand(cmds, &APIFlags{}),
		createStatusCommand(cmds, &APIFlags{}),
		createPathsCommand(cmds, globalFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "srvkeeper",
		Short: "Single-server supervisor",
		Long: `srvkeeper starts, stops, and reports on one bundled local server
(runtime + entry point) and tells clients where to reach it.

Examples:
  srvkeeper serve config.toml --autostart   # Run the daemon
  srvkeeper start                           # Start the server via the daemon
  srvkeeper status --api-url=http://host:8080/api
  srvkeeper paths config.toml               # Check the bundled resources`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the srvkeeper daemon",
		Long: `Run the daemon: serve the HTTP API and metrics, and stop the supervised
server on SIGINT or SIGTERM. Without a config file the defaults apply.

Examples:
  srvkeeper serve
  srvkeeper serve config.toml --autostart
  srvkeeper serve config.toml --daemonize --pidfile=/run/srvkeeper.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServe(cmd.Context(), serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Autostart, "autostart", false, "start the server once the daemon is up")
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon stdout/stderr to file when daemonized")
	return cmd
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags, timeout time.Duration) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:8080/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", timeout, "request timeout")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS verification")
}

// createStartCommand creates the start subcommand
func createStartCommand(cmds command, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the server",
		Long: `Ask the daemon to start the server and print its address. A running
server is not restarted.

Examples:
  srvkeeper start
  srvkeeper start --api-url=http://remote:8080/api`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Start(cmd.Context(), *f)
		},
	}
	// Start blocks through warm-up.
	addAPIFlags(cmd, f, 30*time.Second)
	return cmd
}

// createStopCommand creates the stop subcommand
func createStopCommand(cmds command, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Stop(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f, 10*time.Second)
	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(cmds command, f *APIFlags) *cobra.Command {
	var detailed bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the server address",
		Long: `Print the running server's address, or {"state": "idle"} when none runs.

Examples:
  srvkeeper status
  srvkeeper status --detailed   # PID, run id and start time`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Status(cmd.Context(), *f, detailed)
		},
	}
	addAPIFlags(cmd, f, 10*time.Second)
	cmd.Flags().BoolVar(&detailed, "detailed", false, "show the daemon's snapshot")
	return cmd
}

// createPathsCommand creates the paths subcommand
func createPathsCommand(cmds command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "paths [config.toml]",
		Short: "Resolve and check the bundled resources",
		Long: `Resolve the runtime executable and the server entry point the way
start does, check that both exist, and print them. Nothing is launched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Paths(configPathFrom(globalFlags.ConfigPath, args))
		},
	}
}
