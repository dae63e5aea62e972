package deploy

import (
	"context"
	"time"

	"appdeploy/layout"
	"appdeploy/target"
)

// HealthCheckOptions configures HealthCheck.
type HealthCheckOptions struct {
	Timeout      time.Duration // overall deadline for the poll loop
	StartupGrace time.Duration // grace period when no check script exists
	PollInterval time.Duration // defaults to 2s, matching the original poll cadence
}

// HealthCheck verifies app came up successfully after a start. If
// dist/<version>/check or check.sh exists, it is invoked every
// PollInterval until it exits zero or Timeout elapses. Otherwise
// HealthCheck sleeps StartupGrace and then requires run/.pid to still be
// present, the same two-tier strategy the original health probe uses:
// dumb processes get a grace period, self-aware ones get polled.
func HealthCheck(ctx context.Context, exec target.Executor, base, name, version string, opts HealthCheckOptions) (bool, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	p := layout.AppPaths(base, name)
	distDir := p.DistDir(version)

	var checkScript string
	for _, candidate := range []string{"check", "check.sh"} {
		path := distDir + "/" + candidate
		if exists, err := exec.Exists(ctx, path); err == nil && exists {
			checkScript = path
			break
		}
	}

	if checkScript == "" {
		select {
		case <-time.After(opts.StartupGrace):
		case <-ctx.Done():
			return false, ctx.Err()
		}
		return exec.Exists(ctx, p.PIDFile)
	}

	deadline := time.Now().Add(opts.Timeout)
	for {
		res, err := exec.Run(ctx, checkScript, 10*time.Second, true, false)
		if err == nil && res.ExitCode == 0 {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-time.After(opts.PollInterval):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
