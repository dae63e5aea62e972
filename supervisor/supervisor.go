// Package supervisor is the foreground runner's core loop: spawn a
// child in its own process group, wait for it, and restart it under a
// bounded-attempts policy — grounded on the teacher's BSD environment's
// phased SIGTERM-then-SIGKILL process-group teardown
// (environment/bsd/procfind_bsd.go), generalized from "kill everything
// left in a chroot" to "own and restart one child process".
package supervisor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"appdeploy/deployerr"
	"appdeploy/oplog"
)

// Options configures a Supervisor.
type Options struct {
	Command []string          // argv[0] plus arguments
	Dir     string            // working directory for the child
	Env     []string          // full environment, already overlaid by the caller
	PIDFile string            // written with the child's PID while it runs, removed on exit

	Stdout io.Writer // defaults to os.Stdout
	Stderr io.Writer // defaults to os.Stderr

	MaxRestarts   int           // restart attempts allowed within RestartWindow before giving up; 0 disables restart entirely
	RestartWindow time.Duration // sliding window restart attempts are counted against
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	RLimitNoFile uint64 // 0 leaves the inherited limit alone

	// OnStartHook and OnStopHook, when non-empty, are run via `sh -c`
	// right after spawn and right after the child exits respectively.
	// Failure is logged as a warning, never fatal to the run loop.
	OnStartHook string
	OnStopHook  string

	// CheckCmd, when non-empty, enables the health-monitoring inner
	// loop: it is run via `sh -c` every CheckInterval once StartupDelay
	// has elapsed. FailureThreshold consecutive failures terminate the
	// child (graceful SIGTERM, SIGKILL after KillTimeout) and count as
	// an abnormal exit for restart purposes. An empty CheckCmd disables
	// monitoring; the child still runs as a plain keep-alive.
	CheckCmd         string
	CheckInterval    time.Duration
	StartupDelay     time.Duration
	FailureThreshold int
	KillTimeout      time.Duration

	Logger oplog.Logger
}

// Supervisor owns one child process across its restart lifetime.
type Supervisor struct {
	opts     Options
	stopping atomic.Bool
	attempts []time.Time
}

// New constructs a Supervisor. opts.Command must have at least one
// element.
func New(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = oplog.NoOpLogger{}
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.RestartWindow <= 0 {
		opts.RestartWindow = time.Minute
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 5 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 2 * time.Second
	}
	return &Supervisor{opts: opts}
}

// Run spawns the child and supervises it until ctx is cancelled, a
// SIGINT/SIGTERM is received, or the restart budget is exhausted. It
// returns deployerr.KindSupervisorExhaustion if the child keeps dying
// faster than RestartWindow allows MaxRestarts for.
//
// SIGINT/SIGTERM are never forwarded straight to the child: the
// supervisor owns the decision of how to tear down its process group
// (it may, for example, want to flush a pidfile or log line first), so
// the signal only flips a stop flag the run loop checks between
// restarts and after each wait.
func (s *Supervisor) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		s.stopping.Store(true)
	}()

	backoff := s.opts.BackoffInitial
	for {
		if s.stopping.Load() || ctx.Err() != nil {
			return nil
		}

		exitErr := s.runOnce(ctx)
		if s.stopping.Load() || ctx.Err() != nil {
			return nil
		}
		if exitErr == nil {
			s.opts.Logger.Info("child exited cleanly, not restarting")
			return nil
		}
		s.opts.Logger.Warn("child exited: %v", exitErr)

		if s.opts.MaxRestarts <= 0 {
			return exitErr
		}
		if !s.recordAttempt() {
			return deployerr.New(deployerr.KindSupervisorExhaustion, "supervise",
				deployerr.Errf("exceeded %d restarts within %s", s.opts.MaxRestarts, s.opts.RestartWindow))
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
		if backoff > s.opts.BackoffMax {
			backoff = s.opts.BackoffMax
		}
	}
}

// recordAttempt prunes attempts older than RestartWindow, appends now,
// and reports whether the budget still allows another restart.
func (s *Supervisor) recordAttempt() bool {
	now := time.Now()
	cutoff := now.Add(-s.opts.RestartWindow)
	kept := s.attempts[:0]
	for _, t := range s.attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.attempts = append(kept, now)
	return len(s.attempts) <= s.opts.MaxRestarts
}

// runOnce spawns the child in its own process group, runs the on-start
// hook, waits startup_delay before engaging health monitoring (if
// configured), then waits for the child to exit naturally, to be
// terminated by a failed health streak, or to be torn down because ctx
// was cancelled. The on-stop hook always runs before return. A non-nil
// return means the child exited abnormally (non-zero, signaled, killed
// for health-check failure, or failed to start).
func (s *Supervisor) runOnce(ctx context.Context) error {
	cmd := exec.Command(s.opts.Command[0], s.opts.Command[1:]...)
	cmd.Dir = s.opts.Dir
	cmd.Env = s.opts.Env
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return err
	}
	if s.opts.RLimitNoFile > 0 {
		_ = unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: s.opts.RLimitNoFile, Max: s.opts.RLimitNoFile})
	}
	if s.opts.PIDFile != "" {
		_ = os.WriteFile(s.opts.PIDFile, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644)
		defer os.Remove(s.opts.PIDFile)
	}
	s.runHook(ctx, s.opts.OnStartHook, "on-start")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	err := s.superviseOnce(ctx, cmd.Process.Pid, waitCh)
	s.runHook(ctx, s.opts.OnStopHook, "on-stop")
	return err
}

// superviseOnce waits on the child via waitCh, reacting to ctx
// cancellation and, when CheckCmd is configured, to sustained health
// check failure, exactly as described in the supervisor inner loop:
// start-up grace, then poll-and-count fail/ok streaks.
func (s *Supervisor) superviseOnce(ctx context.Context, pid int, waitCh chan error) error {
	if s.opts.CheckCmd == "" {
		select {
		case err := <-waitCh:
			return err
		case <-ctx.Done():
			s.terminateGroup(pid)
			<-waitCh
			return ctx.Err()
		}
	}

	select {
	case err := <-waitCh:
		return err
	case <-ctx.Done():
		s.terminateGroup(pid)
		<-waitCh
		return ctx.Err()
	case <-time.After(s.opts.StartupDelay):
	}

	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()
	failStreak := 0
	for {
		select {
		case err := <-waitCh:
			return err
		case <-ctx.Done():
			s.terminateGroup(pid)
			<-waitCh
			return ctx.Err()
		case <-ticker.C:
			if s.runCheck(ctx) {
				failStreak = 0
				continue
			}
			failStreak++
			if failStreak < s.opts.FailureThreshold {
				continue
			}
			s.opts.Logger.Warn("health check failed %d times in a row, terminating", failStreak)
			s.terminateGroup(pid)
			<-waitCh
			return deployerr.New(deployerr.KindTimeout, "health-check",
				deployerr.Errf("failed %d consecutive health checks", failStreak))
		}
	}
}

// runCheck runs CheckCmd via `sh -c` and reports whether it exited zero.
func (s *Supervisor) runCheck(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CheckInterval)
	defer cancel()
	cmd := exec.CommandContext(cctx, "sh", "-c", s.opts.CheckCmd)
	cmd.Dir = s.opts.Dir
	return cmd.Run() == nil
}

// runHook runs a hook command via `sh -c` if set; failure is logged,
// never fatal, per the supervisor loop's "non-fatal if it fails" rule.
func (s *Supervisor) runHook(ctx context.Context, hook, name string) {
	if hook == "" {
		return
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", hook)
	cmd.Dir = s.opts.Dir
	if err := cmd.Run(); err != nil {
		s.opts.Logger.Warn("%s hook failed: %v", name, err)
	}
}

// terminateGroup sends SIGTERM then, after KillTimeout, SIGKILL to the
// child's process group, mirroring the teacher's two-phase
// SIGTERM/SIGKILL reap.
func (s *Supervisor) terminateGroup(pid int) {
	_ = unix.Kill(-pid, syscall.SIGTERM)
	time.Sleep(s.opts.KillTimeout)
	_ = unix.Kill(-pid, syscall.SIGKILL)
}

