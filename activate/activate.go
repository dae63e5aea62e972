// Package activate implements the atomic activation protocol: the
// stage-then-rename swap of an app's run/ directory, crash-safe by
// construction (see package doc in layout for the directory model).
package activate

import (
	"context"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/google/renameio/v2"

	"appdeploy/deployerr"
	"appdeploy/layout"
	"appdeploy/oplog"
	"appdeploy/target"
)

// Result reports the outcome of Activate.
type Result struct {
	Version     string
	WasRunning  bool // true if the app was running before the swap
	AlreadyWas  bool // true if this call was a no-op (already active)
}

// Options configures Activate.
type Options struct {
	Version   string // empty means "resolve to latest"
	NoRestart bool
	Logger    oplog.Logger
}

// Activate switches app name's active version to Version (or the latest
// installed version if Version is empty), following the ten-step
// protocol of the atomic activator:
//
//  1. resolve V; fail if dist/<V>/ does not exist
//  2. no-op if run/.version already equals V
//  3. record whether the app is running
//  4. clear any leftover run.new/ staging directory
//  5. create run.new/ and populate it per the layer composition rule
//  6. write V into run.new/.version
//  7. rename run/ -> run.old/ if run/ exists
//  8. rename run.new/ -> run/
//  9. best-effort remove run.old/
//  10. report the restart flag from step 3
func Activate(ctx context.Context, exec target.Executor, base, name string, opts Options) (Result, error) {
	if opts.Logger == nil {
		opts.Logger = oplog.NoOpLogger{}
	}
	m := layout.New(exec, base, name)
	p := m.Paths()

	version := opts.Version
	if version == "" {
		latest, err := m.LatestVersion(ctx)
		if err != nil {
			return Result{}, err
		}
		if latest == "" {
			return Result{}, deployerr.New(deployerr.KindInput, "activate", errf("no versions installed for %s", name)).WithApp(name)
		}
		version = latest
	}

	versionDir := p.DistDir(version)
	exists, err := exec.Exists(ctx, versionDir)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, deployerr.New(deployerr.KindInput, "activate", errf("version %s not found for %s", version, name)).WithApp(name)
	}

	hasVersionFile, err := exec.Exists(ctx, p.VersionFile)
	if err != nil {
		return Result{}, err
	}
	var wasRunning bool
	if hasVersionFile {
		current, err := exec.Read(ctx, p.VersionFile)
		if err != nil {
			return Result{}, err
		}
		if strings.TrimSpace(string(current)) == version {
			opts.Logger.Info("%s:%s is already active", name, version)
			return Result{Version: version, AlreadyWas: true}, nil
		}
		wasRunning, err = m.IsRunning(ctx)
		if err != nil {
			return Result{}, err
		}
	}

	opts.Logger.Info("Activating %s version=%s", name, version)

	// Step 4: clear any leftover run.new/ from a prior crashed run.
	if err := exec.Rm(ctx, p.RunNew, true); err != nil {
		return Result{}, err
	}
	if err := exec.Mkdir(ctx, p.RunNew); err != nil {
		return Result{}, err
	}

	// Step 5: populate per the layer composition rule.
	if err := PopulateRun(ctx, exec, base, name, version, p.RunNew); err != nil {
		return Result{}, err
	}

	// Step 6: write the version file.
	if err := writeVersionFile(ctx, exec, p.RunNew+"/.version", version); err != nil {
		return Result{}, err
	}

	// Steps 7-8: atomic swap.
	if runExists, err := exec.Exists(ctx, p.Run); err != nil {
		return Result{}, err
	} else if runExists {
		if err := exec.Rename(ctx, p.Run, p.RunOld); err != nil {
			return Result{}, err
		}
	}
	if err := exec.Rename(ctx, p.RunNew, p.Run); err != nil {
		return Result{}, err
	}

	// Step 9: best-effort cleanup, never fails the activation.
	_ = exec.Rm(ctx, p.RunOld, true)

	opts.Logger.Info("Activated %s version=%s", name, version)
	return Result{Version: version, WasRunning: wasRunning}, nil
}

// writeVersionFile writes content atomically. For a local target it uses
// renameio for the same write-then-rename guarantee the rest of the
// protocol relies on; for a remote target it shells an echo+redirect,
// which is as atomic as the remote shell's own redirection (no stronger
// guarantee is available without a local filesystem).
func writeVersionFile(ctx context.Context, exec target.Executor, path, version string) error {
	if !exec.Target().IsRemote {
		return renameio.WriteFile(path, []byte(version), 0o644)
	}
	_, err := exec.Run(ctx, "echo "+shellquote.Join(version)+" > "+shellquote.Join(path), 0, true, true)
	return err
}

func errf(format string, args ...any) error { return deployerr.Errf(format, args...) }
