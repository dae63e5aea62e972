// Command daemonctl is the controller binary bootstrap installs onto a
// target and the deployment coordinator shells out to
// (deploy.daemonctl's invoke): `daemonctl <verb> <app> --run-dir <path>`.
// It resolves the app's on-target layout from --run-dir alone (the
// coordinator never needs to know the controller's internal path
// conventions) and drives package daemonctl's Controller.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"appdeploy/config"
	"appdeploy/daemonctl"
	"appdeploy/deployerr"
	"appdeploy/oplog"
)

var (
	flagRunDir  string
	flagLogsDir string
	flagPIDFile string
	flagConf    string
	flagVerbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "daemonctl: "+err.Error())
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case deployerr.IsInput(err), deployerr.IsValidation(err):
		return 2
	case deployerr.IsStatePrecondition(err):
		return 3
	case deployerr.IsTimeout(err):
		return 4
	default:
		return 1
	}
}

func newRootCmd() *cobra.Command {
	cenv := config.LoadControllerEnv()
	root := &cobra.Command{
		Use:           "daemonctl",
		Short:         "supervise one application's process on this host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagRunDir, "run-dir", "", "the app's active run/ directory (required)")
	root.PersistentFlags().StringVar(&flagLogsDir, "logs-dir", "", "override the derived logs/ directory")
	root.PersistentFlags().StringVar(&flagPIDFile, "pid-file", "", "override the derived run/.pid path")
	root.PersistentFlags().StringVar(&flagConf, "conf", "", "override the derived conf/conf.toml path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", cenv.LogLevel == "debug", "log at debug level")
	root.MarkPersistentFlagRequired("run-dir")

	root.AddCommand(
		newRunCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newKillCmd(),
		newStatusCmd(),
		newLogsCmd(),
	)
	return root
}

// newController derives logsDir/pidFile/confPath from --run-dir the same
// way layout.AppPaths lays them out (run/, logs/, conf/ as siblings
// under the app directory), loads conf.toml, applies this app's
// DAEMONCTL_<APP>_* overrides, and builds a Controller.
func newController(app string) (*daemonctl.Controller, error) {
	if flagRunDir == "" {
		return nil, deployerr.New(deployerr.KindInput, "daemonctl", deployerr.Errf("--run-dir is required"))
	}
	appDir := filepath.Dir(flagRunDir)

	logsDir := flagLogsDir
	if logsDir == "" {
		logsDir = filepath.Join(appDir, "logs")
	}
	pidFile := flagPIDFile
	if pidFile == "" {
		pidFile = filepath.Join(flagRunDir, ".pid")
	}
	confPath := flagConf
	if confPath == "" {
		confPath = filepath.Join(appDir, "conf", "conf.toml")
	}

	cfg, err := config.Load(confPath)
	if err != nil {
		return nil, err
	}
	cfg = config.ApplyPerAppOverrides(cfg, app)

	logger := oplog.NewWriterLogger(os.Stderr, app, flagVerbose)
	return daemonctl.New(app, flagRunDir, logsDir, pidFile, cfg, logger), nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <app>",
		Short: "run the app in the foreground, supervising restarts when process.supervise is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(args[0])
			if err != nil {
				return err
			}
			return c.Run(cmd.Context())
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <app>",
		Short: "launch the app detached from this terminal and return immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(args[0])
			if err != nil {
				return err
			}
			return c.Start(cmd.Context())
		},
	}
}

func newStopCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "stop <app>",
		Short: "send the configured stop signal and wait for exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(args[0])
			if err != nil {
				return err
			}
			return c.Stop(cmd.Context(), force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "escalate to SIGKILL if the app does not exit within kill_timeout_seconds")
	return cmd
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <app>",
		Short: "stop (forcing if necessary), wait restart_delay_seconds, and start again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(args[0])
			if err != nil {
				return err
			}
			return c.Restart(cmd.Context())
		},
	}
}

func newKillCmd() *cobra.Command {
	var group bool
	cmd := &cobra.Command{
		Use:   "kill <app> <signal>",
		Short: "send a named signal directly, bypassing the stop/wait protocol",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(args[0])
			if err != nil {
				return err
			}
			return c.Kill(cmd.Context(), args[1], group)
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "signal the process group rather than just the process")
	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <app>",
		Short: "report whether the app is running, and its resource usage if so",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(args[0])
			if err != nil {
				return err
			}
			st, err := c.Status()
			if err != nil {
				return err
			}
			if !st.Running {
				fmt.Printf("%s: not running\n", st.App)
				return nil
			}
			fmt.Printf("%s: running (pid %d, %d threads, %s rss, %s cpu)\n",
				st.App, st.PID, st.Threads, oplog.FormatSize(st.MemoryKB*1024), oplog.FormatDuration(st.CPUTime))
			fmt.Printf("  process tree: %v\n", st.Tree)
			return nil
		},
	}
	return cmd
}

func newLogsCmd() *cobra.Command {
	var (
		lines   int
		level   string
		grep    string
		since   string
		follow  bool
		headOut bool
	)
	cmd := &cobra.Command{
		Use:   "logs <app>",
		Short: "view the app's stdout log, tailing by default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(args[0])
			if err != nil {
				return err
			}
			stdoutPath, _ := daemonctl.OutputPaths(c.Cfg, c.App, c.LogsDir)
			filter := daemonctl.LogFilter{Level: level, Substring: grep}
			if since != "" {
				if _, err := oplog.ParseSince(since); err != nil {
					return deployerr.New(deployerr.KindInput, "logs", err)
				}
			}

			if follow {
				return daemonctl.Follow(cmd.Context(), stdoutPath, filter, os.Stdout)
			}

			var out []string
			if headOut {
				out, err = daemonctl.Head(stdoutPath, lines, filter)
			} else {
				out, err = daemonctl.Tail(stdoutPath, lines, filter)
			}
			if err != nil {
				return err
			}
			for _, l := range out {
				fmt.Println(l)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of lines to show (0 = all)")
	cmd.Flags().StringVar(&level, "level", "", "show only lines containing this level token (e.g. error, warn)")
	cmd.Flags().StringVar(&grep, "grep", "", "show only lines containing this substring")
	cmd.Flags().StringVar(&since, "since", "", "relative (5m, 2h, 1d) or RFC3339 cutoff; validated only, lines are not filtered by time")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream newly appended lines until interrupted")
	cmd.Flags().BoolVar(&headOut, "head", false, "show the first lines instead of the last")
	return cmd
}
