package daemonctl

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"appdeploy/config"
	"appdeploy/deployerr"
	"appdeploy/oplog"
	"appdeploy/supervisor"
)

// Controller drives one app's process lifecycle on the target it runs on.
// Unlike deploy.daemonctl (a thin remote-shell client the coordinator uses
// to talk to this binary), Controller IS the implementation invoked by
// `daemonctl <verb> <app> --run-dir <path>`.
type Controller struct {
	App     string
	RunDir  string // the run/ symlink directory activate maintains
	LogsDir string
	PIDFile string
	Cfg     config.AppConfig
	Logger  oplog.Logger
}

// New constructs a Controller. cfg should already have per-app overrides
// (config.ApplyPerAppOverrides) applied by the caller.
func New(app, runDir, logsDir, pidFile string, cfg config.AppConfig, logger oplog.Logger) *Controller {
	if logger == nil {
		logger = oplog.NoOpLogger{}
	}
	return &Controller{App: app, RunDir: runDir, LogsDir: logsDir, PIDFile: pidFile, Cfg: cfg, Logger: logger}
}

func (c *Controller) supervisorOptions(inv Invocation) supervisor.Options {
	p := c.Cfg.Process
	m := c.Cfg.Monitoring
	opts := supervisor.Options{
		Command:        inv.Argv,
		Dir:            inv.Dir,
		Env:            inv.Env,
		PIDFile:        c.PIDFile,
		MaxRestarts:    p.MaxAttempts,
		RestartWindow:  time.Minute,
		BackoffInitial: time.Duration(p.RestartDelay) * time.Second,
		BackoffMax:     30 * time.Second,
		RLimitNoFile:   uint64(c.Cfg.Limits.FileLimit),
		KillTimeout:    time.Duration(p.KillTimeout) * time.Second,
		Logger:         c.Logger,
	}

	if onStart := firstExisting(c.RunDir, "hooks/on-start"); onStart != "" {
		opts.OnStartHook = onStart
	}
	if onStop := firstExisting(c.RunDir, "hooks/on-stop"); onStop != "" {
		opts.OnStopHook = onStop
	}
	if m.Enabled {
		if check := firstExisting(c.RunDir, "check", "check.sh"); check != "" {
			opts.CheckCmd = check
			opts.CheckInterval = time.Duration(m.CheckInterval) * time.Second
			opts.FailureThreshold = m.FailureThreshold
			// process.check_interval_seconds doubles as the post-spawn
			// grace period before the first health poll, matching the
			// supervisor loop's "wait startup_delay seconds" step; the
			// spec names no dedicated config key for it.
			opts.StartupDelay = time.Duration(p.CheckInterval) * time.Second
		}
	}
	return opts
}

// firstExisting returns the first of names that exists under dir, or ""
// if none do.
func firstExisting(dir string, names ...string) string {
	for _, name := range names {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Run executes the app in the foreground: under the supervisor's
// bounded-restart loop when process.supervise is set, or as a single
// direct spawn-and-wait otherwise. It blocks until the app (and, when
// supervised, its restart budget) is done. Output is tee'd through
// RotatingWriter when log rotation is configured; since Run keeps this
// process alive for the app's whole lifetime, the in-process relay
// exec.Cmd uses for a non-*os.File Writer never outlives its source, so
// rotation costs nothing extra here.
func (c *Controller) Run(ctx context.Context) error {
	inv, err := Compose(c.Cfg, c.RunDir, nil)
	if err != nil {
		return err
	}
	stdoutPath, stderrPath := OutputPaths(c.Cfg, c.App, c.LogsDir)
	if err := os.MkdirAll(c.LogsDir, 0o755); err != nil {
		return err
	}
	stdout, err := openOutput(stdoutPath, c.Cfg.Logging)
	if err != nil {
		return err
	}
	stderr, err := openOutput(stderrPath, c.Cfg.Logging)
	if err != nil {
		return err
	}
	defer stdout.Close()
	defer stderr.Close()

	opts := c.supervisorOptions(inv)
	opts.Stdout, opts.Stderr = stdout, stderr
	if !c.Cfg.Process.Supervise {
		opts.MaxRestarts = 0
	}
	return supervisor.New(opts).Run(ctx)
}

// Start launches the app detached from the caller's controlling terminal,
// writes its own PID immediately, and returns without waiting — the
// "background" half of the command set. Detachment requires the child's
// stdout/stderr to be real, kernel-backed file descriptors rather than a
// Go-side relay goroutine (which would die the moment this process
// exits), so Start writes straight to the output files without rotation;
// rotation is available on the `run` path, where this process stays alive
// to perform it.
func (c *Controller) Start(ctx context.Context) error {
	if running, _ := c.isRunning(); running {
		return deployerr.New(deployerr.KindStatePrecondition, "start",
			deployerr.Errf("%s is already running", c.App)).WithApp(c.App)
	}
	inv, err := Compose(c.Cfg, c.RunDir, nil)
	if err != nil {
		return err
	}
	stdoutPath, stderrPath := OutputPaths(c.Cfg, c.App, c.LogsDir)
	if err := os.MkdirAll(c.LogsDir, 0o755); err != nil {
		return err
	}
	stdout, err := os.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer stdout.Close()
	stderr, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer stderr.Close()

	proc, err := spawnDetached(inv, stdout, stderr)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.PIDFile, []byte(strconv.Itoa(proc.Pid)), 0o644); err != nil {
		return err
	}
	c.Logger.Info("started %s as pid %d", c.App, proc.Pid)
	return nil
}

// Stop sends the configured stop signal, waits up to KillTimeout for the
// process to exit, and escalates to SIGKILL when force is set and it
// hasn't.
func (c *Controller) Stop(ctx context.Context, force bool) error {
	pid, err := c.readPID()
	if err != nil {
		return err
	}
	if pid == 0 {
		return nil
	}
	stopName := c.Cfg.Signals.Stop
	if stopName == "" {
		stopName = c.Cfg.Process.StopSignal
	}
	if stopName == "" {
		stopName = "TERM"
	}
	sig, err := ParseSignal(stopName)
	if err != nil {
		return err
	}
	if err := syscall.Kill(pid, sig); err != nil && err != syscall.ESRCH {
		return err
	}

	timeout := time.Duration(c.Cfg.Process.KillTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			os.Remove(c.PIDFile)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !processAlive(pid) {
		os.Remove(c.PIDFile)
		return nil
	}
	if !force {
		return deployerr.New(deployerr.KindTimeout, "stop",
			deployerr.Errf("%s did not exit within %s", c.App, timeout)).WithApp(c.App)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
	os.Remove(c.PIDFile)
	c.Logger.Warn("force-killed %s (pid %d)", c.App, pid)
	return nil
}

// Restart stops the app (forcing if necessary), waits restart_delay
// seconds, and starts it again.
func (c *Controller) Restart(ctx context.Context) error {
	if err := c.Stop(ctx, true); err != nil {
		return err
	}
	delay := time.Duration(c.Cfg.Process.RestartDelay) * time.Second
	if delay > 0 {
		time.Sleep(delay)
	}
	return c.Start(ctx)
}

// Kill sends a named signal directly, optionally to the process group.
func (c *Controller) Kill(ctx context.Context, sigName string, group bool) error {
	pid, err := c.readPID()
	if err != nil {
		return err
	}
	if pid == 0 {
		return deployerr.New(deployerr.KindStatePrecondition, "kill",
			deployerr.Errf("%s is not running", c.App)).WithApp(c.App)
	}
	sig, err := ParseSignal(sigName)
	if err != nil {
		return err
	}
	target := pid
	if group {
		target = -pid
	}
	if err := syscall.Kill(target, sig); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}

func (c *Controller) readPID() (int, error) {
	data, err := os.ReadFile(c.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, nil
	}
	return pid, nil
}

func (c *Controller) isRunning() (bool, error) {
	pid, err := c.readPID()
	if err != nil || pid == 0 {
		return false, err
	}
	return processAlive(pid), nil
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func openOutput(path string, logging config.Logging) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return NewRotatingWriter(path, logging)
}
