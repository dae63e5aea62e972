package deploy

import (
	"context"
	"time"

	shellquote "github.com/kballard/go-shellquote"

	"appdeploy/layout"
	"appdeploy/target"
)

// daemonctl issues lifecycle commands to the bootstrapped controller
// binary living at <base>/bin/daemonctl, the same thin wrapper the
// foreground-runner layer (supervisor/daemonctl) answers to. The
// coordinator never touches run/.pid itself; it only ever asks the
// controller to start, stop, or restart the app it governs.
type daemonctl struct {
	exec target.Executor
	base string
}

func newDaemonctl(exec target.Executor, base string) *daemonctl {
	return &daemonctl{exec: exec, base: base}
}

func (d *daemonctl) binary() string { return d.base + "/bin/daemonctl" }

func (d *daemonctl) invoke(ctx context.Context, verb, app string, timeout time.Duration) (target.RunResult, error) {
	p := layout.AppPaths(d.base, app)
	cmd := shellquote.Join(d.binary()) + " " + verb + " " +
		shellquote.Join(app) + " --run-dir " + shellquote.Join(p.Run)
	return d.exec.Run(ctx, cmd, timeout, true, true)
}

// Start launches app via the controller. Returns without error once the
// controller has spawned the app's run script detached; it does not wait
// for the app to become healthy (see HealthCheck for that).
func (d *daemonctl) Start(ctx context.Context, app string) error {
	_, err := d.invoke(ctx, "start", app, 30*time.Second)
	return err
}

// Stop asks the controller to signal the app's recorded PID to stop.
// Failure here is treated as non-fatal by Upgrade per the original
// protocol: a stop failure during upgrade must not abort the activation
// that follows.
func (d *daemonctl) Stop(ctx context.Context, app string) error {
	_, err := d.invoke(ctx, "stop", app, 30*time.Second)
	return err
}

func (d *daemonctl) Restart(ctx context.Context, app string) error {
	_, err := d.invoke(ctx, "restart", app, 30*time.Second)
	return err
}

func (d *daemonctl) Status(ctx context.Context, app string) (string, error) {
	res, err := d.invoke(ctx, "status", app, 10*time.Second)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}
