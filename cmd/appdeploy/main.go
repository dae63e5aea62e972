// Command appdeploy is the CLI surface over the deployment coordinator:
// a thin cobra wrapper that resolves a target, builds an Executor, and
// calls straight into package deploy/activate/layout/bootstrap. All
// decision logic lives in those packages; this binary only parses flags
// and renders results.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"appdeploy/activate"
	"appdeploy/bootstrap"
	"appdeploy/config"
	"appdeploy/deploy"
	"appdeploy/deployerr"
	"appdeploy/layout"
	"appdeploy/oplog"
	"appdeploy/release"
	"appdeploy/target"
)

var (
	flagTarget     string
	flagSSHOptions string
	flagDryRun     bool
	flagVerbose    bool
	flagNoColor    bool
	flagOpTimeout  int
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "appdeploy: "+err.Error())
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a deployerr.Kind to a process exit status, so scripts
// driving appdeploy can branch on "would a retry help" without scraping
// the message text.
func exitCodeFor(err error) int {
	switch {
	case deployerr.IsInput(err), deployerr.IsValidation(err):
		return 2
	case deployerr.IsStatePrecondition(err):
		return 3
	case deployerr.IsTimeout(err):
		return 4
	case deployerr.IsTransport(err), deployerr.IsRemoteCommand(err):
		return 5
	default:
		return 1
	}
}

func newRootCmd() *cobra.Command {
	env := config.LoadCoreEnv()
	flagTarget = env.Target
	flagSSHOptions = env.SSHOptions
	flagNoColor = env.NoColor
	flagOpTimeout = env.OpTimeout

	root := &cobra.Command{
		Use:           "appdeploy",
		Short:         "deploy and manage versioned application packages on a target host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagTarget, "target", "t", flagTarget, "target spec: local path, host:path, or user@host:path")
	root.PersistentFlags().StringVar(&flagSSHOptions, "ssh-options", flagSSHOptions, "extra options passed to ssh/scp, shell-tokenized")
	root.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "log operations without executing them")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log each executed command")
	root.PersistentFlags().BoolVar(&flagNoColor, "no-color", flagNoColor, "disable colored log output")
	root.PersistentFlags().IntVar(&flagOpTimeout, "op-timeout", flagOpTimeout, "seconds before a single remote operation times out (0 = unbounded)")

	root.AddCommand(
		newInstallCmd(),
		newUninstallCmd(),
		newUpgradeCmd(),
		newRollbackCmd(),
		newActivateCmd(),
		newListCmd(),
		newShowCmd(),
		newCleanCmd(),
		newBootstrapCmd(),
		newRunLocalCmd(),
	)
	return root
}

// newExecutor resolves --target and constructs the matching Executor and
// a logger prefixed with the target's display string.
func newExecutor() (target.Executor, string, oplog.Logger, error) {
	t, err := target.Parse(flagTarget, target.ParseOptions{
		Exists: func(p string) bool {
			info, err := os.Stat(p)
			return err == nil && info.IsDir()
		},
	})
	if err != nil {
		return nil, "", nil, err
	}
	logger := oplog.NewWriterLogger(os.Stderr, t.String(), flagVerbose)
	exec := target.New(t, target.Options{
		DryRun:     flagDryRun,
		SSHOptions: flagSSHOptions,
		Logger:     logger,
		Verbose:    flagVerbose,
	})
	return exec, t.Path, logger, nil
}

func opTimeout() time.Duration {
	if flagOpTimeout <= 0 {
		return 0
	}
	return time.Duration(flagOpTimeout) * time.Second
}

func newInstallCmd() *cobra.Command {
	var (
		name     string
		version  string
		doActivate bool
		retain   int
	)
	cmd := &cobra.Command{
		Use:   "install <package-path-or-archive>",
		Short: "install a package version onto the target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := release.Load(args[0], name, version)
			if err != nil {
				return err
			}
			exec, base, logger, err := newExecutor()
			if err != nil {
				return err
			}
			res, err := deploy.Install(cmd.Context(), exec, base, pkg, deploy.InstallOptions{
				Activate: doActivate, Retain: retain, Logger: logger,
			})
			if err != nil {
				return err
			}
			if res.AlreadyInstalled {
				fmt.Printf("%s:%s already installed\n", pkg.Name, res.Version)
				return nil
			}
			fmt.Printf("installed %s:%s\n", pkg.Name, res.Version)
			if res.Activated {
				fmt.Println("activated")
			}
			for _, v := range res.Removed {
				fmt.Printf("pruned %s\n", v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "override the resolved package name")
	cmd.Flags().StringVar(&version, "version", "", "override the resolved package version")
	cmd.Flags().BoolVar(&doActivate, "activate", false, "activate the installed version immediately")
	cmd.Flags().IntVar(&retain, "retain", 0, "keep only the N most recent non-active versions (0 disables pruning)")
	return cmd
}

func newUninstallCmd() *cobra.Command {
	var (
		all      bool
		keepData bool
		keepLogs bool
		yes      bool
	)
	cmd := &cobra.Command{
		Use:   "uninstall <app>[:version]",
		Short: "remove one or every installed version of an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, version := deploy.ParsePackageVersion(args[0])
			if !yes {
				ok, err := deploy.Confirm(os.Stdin, os.Stderr, fmt.Sprintf("uninstall %s?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					return deployerr.New(deployerr.KindInput, "uninstall", deployerr.Errf("aborted")).WithApp(name)
				}
			}
			exec, base, logger, err := newExecutor()
			if err != nil {
				return err
			}
			return deploy.Uninstall(cmd.Context(), exec, base, name, deploy.UninstallOptions{
				Version: version, All: all, KeepData: keepData, KeepLogs: keepLogs, Logger: logger,
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove every installed version, data, and logs")
	cmd.Flags().BoolVar(&keepData, "keep-data", false, "keep data/ when --all is set")
	cmd.Flags().BoolVar(&keepLogs, "keep-logs", false, "keep logs/ when --all is set")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newUpgradeCmd() *cobra.Command {
	var (
		name          string
		version       string
		retain        int
		rollback      bool
		healthTimeout int
		startupGrace  int
	)
	cmd := &cobra.Command{
		Use:   "upgrade <package-path-or-archive>",
		Short: "install, activate, and restart a new version, rolling back on health failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := release.Load(args[0], name, version)
			if err != nil {
				return err
			}
			exec, base, logger, err := newExecutor()
			if err != nil {
				return err
			}
			res, err := deploy.Upgrade(cmd.Context(), exec, base, pkg, deploy.UpgradeOptions{
				Retain:         retain,
				RollbackOnFail: rollback,
				HealthTimeout:  time.Duration(healthTimeout) * time.Second,
				StartupGrace:   time.Duration(startupGrace) * time.Second,
				Logger:         logger,
			})
			if err != nil {
				return err
			}
			if res.RolledBack {
				fmt.Printf("upgrade failed health check, rolled back to %s\n", res.FromVersion)
				return deployerr.New(deployerr.KindStatePrecondition, "upgrade",
					deployerr.Errf("rolled back to %s", res.FromVersion)).WithApp(pkg.Name)
			}
			if res.HealthFailed {
				return deployerr.New(deployerr.KindStatePrecondition, "upgrade",
					deployerr.Errf("%s failed its health check", pkg.Name)).WithApp(pkg.Name)
			}
			fmt.Printf("upgraded %s %s -> %s\n", pkg.Name, res.FromVersion, res.ToVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "override the resolved package name")
	cmd.Flags().StringVar(&version, "version", "", "override the resolved package version")
	cmd.Flags().IntVar(&retain, "retain", 0, "keep only the N most recent non-active versions (0 disables pruning)")
	cmd.Flags().BoolVar(&rollback, "rollback-on-fail", true, "roll back to the previous version if the health check fails")
	cmd.Flags().IntVar(&healthTimeout, "health-timeout", 30, "seconds to poll a check script before declaring failure")
	cmd.Flags().IntVar(&startupGrace, "startup-grace", 3, "seconds to wait before checking run/.pid when no check script exists")
	return cmd
}

func newRollbackCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "rollback <app>",
		Short: "reactivate a previously installed version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, base, logger, err := newExecutor()
			if err != nil {
				return err
			}
			res, err := deploy.Rollback(cmd.Context(), exec, base, args[0], deploy.RollbackOptions{To: to, Logger: logger})
			if err != nil {
				return err
			}
			fmt.Printf("rolled back %s %s -> %s\n", args[0], res.FromVersion, res.ToVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "version to roll back to (defaults to the previous installed version)")
	return cmd
}

func newActivateCmd() *cobra.Command {
	var noRestart bool
	cmd := &cobra.Command{
		Use:   "activate <app>[:version]",
		Short: "switch an app's active version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, version := deploy.ParsePackageVersion(args[0])
			exec, base, logger, err := newExecutor()
			if err != nil {
				return err
			}
			res, err := activate.Activate(cmd.Context(), exec, base, name, activate.Options{
				Version: version, NoRestart: noRestart, Logger: logger,
			})
			if err != nil {
				return err
			}
			if res.AlreadyWas {
				fmt.Printf("%s:%s already active\n", name, res.Version)
				return nil
			}
			fmt.Printf("activated %s:%s\n", name, res.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noRestart, "no-restart", false, "swap the version without restarting the app")
	return cmd
}

func newListCmd() *cobra.Command {
	var (
		long       bool
		activeOnly bool
	)
	cmd := &cobra.Command{
		Use:   "list [app-or-glob]",
		Short: "list installed app versions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			exec, base, _, err := newExecutor()
			if err != nil {
				return err
			}
			versions, err := layout.List(cmd.Context(), exec, base, pattern, long, activeOnly)
			if err != nil {
				return err
			}
			for _, v := range versions {
				marker := " "
				if v.Active {
					marker = "*"
				}
				if long {
					fmt.Printf("%s %-20s %-15s %8s  %s\n", marker, v.Name, v.Version, oplog.FormatSize(v.Size), oplog.FormatTimeAgo(v.Installed))
				} else {
					fmt.Printf("%s %-20s %s\n", marker, v.Name, v.Version)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show install time and size")
	cmd.Flags().BoolVar(&activeOnly, "active-only", false, "show only the active version of each app")
	return cmd
}

func newShowCmd() *cobra.Command {
	var what string
	cmd := &cobra.Command{
		Use:   "show <app>[:version]",
		Short: "inspect an installed version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, version := deploy.ParsePackageVersion(args[0])
			var showWhat deploy.ShowWhat
			switch what {
			case "summary", "":
				showWhat = deploy.ShowSummary
			case "config":
				showWhat = deploy.ShowConfig
			case "run-script":
				showWhat = deploy.ShowRunScript
			case "files":
				showWhat = deploy.ShowFiles
			default:
				return deployerr.New(deployerr.KindInput, "show", deployerr.Errf("unknown --what value %q", what))
			}
			exec, base, _, err := newExecutor()
			if err != nil {
				return err
			}
			res, err := deploy.Show(cmd.Context(), exec, base, name, version, showWhat)
			if err != nil {
				return err
			}
			fmt.Printf("%s:%s active=%v running=%v\n", res.Name, res.Version, res.Active, res.Running)
			switch showWhat {
			case deploy.ShowConfig:
				fmt.Print(res.ConfToml)
			case deploy.ShowRunScript:
				fmt.Print(res.RunScript)
			case deploy.ShowFiles:
				for _, f := range res.Files {
					fmt.Println(f)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&what, "what", "summary", "one of: summary, config, run-script, files")
	return cmd
}

func newCleanCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "clean <app>",
		Short: "prune old installed versions, keeping the active one and the N most recent others",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, base, _, err := newExecutor()
			if err != nil {
				return err
			}
			m := layout.New(exec, base, args[0])
			removed, err := m.Clean(cmd.Context(), keep)
			if err != nil {
				return err
			}
			for _, v := range removed {
				fmt.Printf("removed %s:%s\n", args[0], v)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 3, "number of non-active versions to retain")
	return cmd
}

func newBootstrapCmd() *cobra.Command {
	var (
		toolsDir  string
		force     bool
		upgrade   bool
		checkOnly bool
	)
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "synchronize the controller and foreground-runner tools onto the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, base, logger, err := newExecutor()
			if err != nil {
				return err
			}
			tools := bootstrap.DefaultTools(toolsDir)
			upToDate, err := bootstrap.Bootstrap(cmd.Context(), exec, base, tools, bootstrap.Options{
				Force: force, Upgrade: upgrade, CheckOnly: checkOnly, Logger: logger,
			})
			if err != nil {
				return err
			}
			if upToDate {
				fmt.Println("tools up to date")
			} else {
				fmt.Println("tools need updating")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&toolsDir, "tools-dir", "", "local directory containing the built daemonctl/daemonrun/teelog binaries")
	cmd.Flags().BoolVar(&force, "force", false, "bypass checksum comparison and always resync")
	cmd.Flags().BoolVar(&upgrade, "upgrade", false, "same as --force")
	cmd.Flags().BoolVar(&checkOnly, "check-only", false, "report staleness without writing")
	cmd.MarkFlagRequired("tools-dir")
	return cmd
}

func newRunLocalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-local <package-path-or-archive>",
		Short: "build an app's layered run/ tree under a scratch directory, without touching any real target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := release.Load(args[0], "", "")
			if err != nil {
				return err
			}
			logger := oplog.NewWriterLogger(os.Stderr, "local", flagVerbose)
			res, err := deploy.RunLocal(cmd.Context(), pkg, deploy.RunLocalOptions{Logger: logger})
			if err != nil {
				return err
			}
			fmt.Printf("built %s:%s at %s\n", pkg.Name, res.Version, res.Root)

			exec := target.New(target.Target{Path: res.Root, IsRemote: false}, target.Options{Logger: logger})
			entries, err := deploy.RunLocalDescribe(cmd.Context(), exec, res.Root, pkg.Name)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Println(e)
			}
			return nil
		},
	}
	return cmd
}
