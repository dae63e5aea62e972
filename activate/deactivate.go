package activate

import (
	"context"
	"strings"

	"appdeploy/deployerr"
	"appdeploy/layout"
	"appdeploy/oplog"
	"appdeploy/target"
)

// Deactivate removes run/ entirely. It fails if run/.pid exists: the app
// must be stopped first.
func Deactivate(ctx context.Context, exec target.Executor, base, name string, logger oplog.Logger) error {
	if logger == nil {
		logger = oplog.NoOpLogger{}
	}
	m := layout.New(exec, base, name)
	p := m.Paths()

	running, err := m.IsRunning(ctx)
	if err != nil {
		return err
	}
	if running {
		return deployerr.New(deployerr.KindStatePrecondition, "deactivate",
			errf("cannot deactivate %s: app is running, stop it first", name)).WithApp(name)
	}

	hasVersion, err := exec.Exists(ctx, p.VersionFile)
	if err != nil {
		return err
	}
	if !hasVersion {
		logger.Info("%s is not active", name)
		return nil
	}
	data, err := exec.Read(ctx, p.VersionFile)
	if err != nil {
		return err
	}
	version := strings.TrimSpace(string(data))

	if err := exec.Rm(ctx, p.Run, true); err != nil {
		return err
	}
	logger.Info("Deactivated %s version=%s", name, version)
	return nil
}
