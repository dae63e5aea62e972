package deploy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"appdeploy/activate"
	"appdeploy/deployerr"
	"appdeploy/layout"
	"appdeploy/oplog"
	"appdeploy/release"
	"appdeploy/target"
)

// UpgradeOptions configures Upgrade.
type UpgradeOptions struct {
	Retain         int
	RollbackOnFail bool
	HealthTimeout  time.Duration
	StartupGrace   time.Duration
	Logger         oplog.Logger
}

// UpgradeResult reports what Upgrade did.
type UpgradeResult struct {
	FromVersion  string
	ToVersion    string
	RolledBack   bool
	HealthFailed bool
}

// Upgrade installs pkg, swaps it in, and restarts the app, walking the
// same seven-stage sequence as the original upgrade command:
//
//	S0  read current active version and running state
//	S1  install the new package without activating it
//	S2  stop the running app (failure here is logged, not fatal: an
//	    already-dead app must not block an upgrade)
//	S3  activate the new version with NoRestart (the swap itself must
//	    never auto-start anything)
//	S4  start the app via the controller
//	S5  poll health
//	S6  success: prune old versions per Retain
//
// A failure at S4 or S5 triggers Sf (rollback to FromVersion and restart
// it, if it was running before) when RollbackOnFail is set; otherwise the
// failure is returned with the new version left active so the operator
// can inspect it.
func Upgrade(ctx context.Context, exec target.Executor, base string, pkg *release.Package, opts UpgradeOptions) (UpgradeResult, error) {
	if opts.Logger == nil {
		opts.Logger = oplog.NoOpLogger{}
	}
	m := layout.New(exec, base, pkg.Name)
	dctl := newDaemonctl(exec, base)

	// S0
	fromVersion, err := m.ActiveVersion(ctx)
	if err != nil {
		return UpgradeResult{}, err
	}
	wasRunning, err := m.IsRunning(ctx)
	if err != nil {
		return UpgradeResult{}, err
	}
	result := UpgradeResult{FromVersion: fromVersion, ToVersion: pkg.Version}
	attemptID := uuid.New().String()
	opts.Logger.Info("Upgrading %s %s -> %s [attempt=%s]", pkg.Name, fromVersion, pkg.Version, attemptID)

	// S1
	if _, err := Install(ctx, exec, base, pkg, InstallOptions{Logger: opts.Logger}); err != nil {
		return result, err
	}

	// S2 (non-fatal)
	if wasRunning {
		if err := dctl.Stop(ctx, pkg.Name); err != nil {
			opts.Logger.Warn("stop before upgrade failed for %s: %v", pkg.Name, err)
		}
	}

	// S3
	if _, err := activate.Activate(ctx, exec, base, pkg.Name, activate.Options{
		Version: pkg.Version, NoRestart: true, Logger: opts.Logger,
	}); err != nil {
		return result, err
	}

	// S4
	startErr := dctl.Start(ctx, pkg.Name)
	healthy := false
	if startErr == nil {
		// S5
		healthy, err = HealthCheck(ctx, exec, base, pkg.Name, pkg.Version, HealthCheckOptions{
			Timeout: opts.HealthTimeout, StartupGrace: opts.StartupGrace,
		})
		if err != nil {
			return result, err
		}
	}

	if startErr != nil || !healthy {
		result.HealthFailed = true
		opts.Logger.Error("upgrade of %s to %s failed health check", pkg.Name, pkg.Version)
		if !opts.RollbackOnFail || fromVersion == "" {
			return result, startErr
		}
		if err := rollbackTo(ctx, exec, base, pkg.Name, fromVersion, wasRunning, opts.Logger); err != nil {
			return result, err
		}
		result.RolledBack = true
		return result, nil
	}

	// S6
	if opts.Retain > 0 {
		if _, err := m.Clean(ctx, opts.Retain); err != nil {
			return result, err
		}
	}
	opts.Logger.Info("Upgraded %s %s -> %s", pkg.Name, fromVersion, pkg.Version)
	return result, nil
}

// RollbackOptions configures Rollback.
type RollbackOptions struct {
	To     string // empty means the previous installed version
	Logger oplog.Logger
}

// Rollback reactivates an older installed version of name and, if the
// app was running, restarts it against that version.
func Rollback(ctx context.Context, exec target.Executor, base, name string, opts RollbackOptions) (UpgradeResult, error) {
	if opts.Logger == nil {
		opts.Logger = oplog.NoOpLogger{}
	}
	m := layout.New(exec, base, name)

	current, err := m.ActiveVersion(ctx)
	if err != nil {
		return UpgradeResult{}, err
	}
	toVersion := opts.To
	if toVersion == "" {
		toVersion, err = m.PreviousVersion(ctx)
		if err != nil {
			return UpgradeResult{}, err
		}
		if toVersion == "" {
			return UpgradeResult{}, deployerr.New(deployerr.KindStatePrecondition, "rollback",
				errf("no previous version of %s to roll back to", name)).WithApp(name)
		}
	}
	wasRunning, err := m.IsRunning(ctx)
	if err != nil {
		return UpgradeResult{}, err
	}

	if err := rollbackTo(ctx, exec, base, name, toVersion, wasRunning, opts.Logger); err != nil {
		return UpgradeResult{}, err
	}
	return UpgradeResult{FromVersion: current, ToVersion: toVersion, RolledBack: true}, nil
}

func rollbackTo(ctx context.Context, exec target.Executor, base, name, version string, restart bool, logger oplog.Logger) error {
	dctl := newDaemonctl(exec, base)
	if restart {
		if err := dctl.Stop(ctx, name); err != nil {
			logger.Warn("stop before rollback failed for %s: %v", name, err)
		}
	}
	if _, err := activate.Activate(ctx, exec, base, name, activate.Options{
		Version: version, NoRestart: true, Logger: logger,
	}); err != nil {
		return err
	}
	if restart {
		if err := dctl.Start(ctx, name); err != nil {
			return err
		}
	}
	logger.Info("Rolled back %s to %s", name, version)
	return nil
}
