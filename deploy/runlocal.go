package deploy

import (
	"context"
	"os"
	"strings"

	"appdeploy/layout"
	"appdeploy/oplog"
	"appdeploy/release"
	"appdeploy/target"
)

// RunLocalOptions configures RunLocal.
type RunLocalOptions struct {
	Logger oplog.Logger
}

// RunLocalResult reports where the simulated tree was built.
type RunLocalResult struct {
	Root    string // temporary directory standing in for a target's base dir
	Version string
}

// RunLocal builds a fully layered run/ directory for pkg under a
// scratch temporary directory without touching any real target,
// mirroring the original tool's local dry-run command used to sanity
// check a package's layering before shipping it anywhere. It installs
// and activates pkg exactly as Install/Activate would against a real
// target, then leaves the tree in place (the caller is responsible for
// cleanup; RunLocal never removes Root itself since a caller may want
// to inspect it after return).
func RunLocal(ctx context.Context, pkg *release.Package, opts RunLocalOptions) (RunLocalResult, error) {
	if opts.Logger == nil {
		opts.Logger = oplog.NoOpLogger{}
	}
	root, err := os.MkdirTemp("", "appdeploy-run-local-*")
	if err != nil {
		return RunLocalResult{}, err
	}

	exec := target.New(target.Target{Path: root, IsRemote: false}, target.Options{Logger: opts.Logger})

	if _, err := Install(ctx, exec, root, pkg, InstallOptions{Activate: true, Logger: opts.Logger}); err != nil {
		return RunLocalResult{Root: root}, err
	}

	opts.Logger.Info("Simulated layout for %s:%s built at %s", pkg.Name, pkg.Version, root)
	return RunLocalResult{Root: root, Version: pkg.Version}, nil
}

// RunLocalDescribe returns the composed run/ tree's manifest, the same
// summary view a caller would want immediately after RunLocal: every
// symlink in run/ and what it resolves to, one "name -> target" line
// each, so a package author can spot a missing or misdirected layer
// without grepping through three source directories by hand.
func RunLocalDescribe(ctx context.Context, exec target.Executor, base, name string) ([]string, error) {
	m := layout.New(exec, base, name)
	p := m.Paths()
	script := "cd " + shQuote(p.Run) + " && for e in * .[!.]*; do " +
		`if [ -L "$e" ]; then printf '%s -> %s\n' "$e" "$(readlink "$e")"; fi; done`
	res, err := exec.Run(ctx, script, 0, true, true)
	if err != nil {
		return nil, err
	}
	var entries []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}
