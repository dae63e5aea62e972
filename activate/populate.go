package activate

import (
	"context"
	"path"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"appdeploy/layout"
	"appdeploy/target"
)

// PopulateRun fills runDir with the layer composition rule: every entry
// in dist/<version>/ becomes a symlink (layer 1); every entry in data/
// overwrites a same-named symlink (layer 2); every entry in conf/
// overwrites again (layer 3); finally run/logs -> ../logs always wins.
// Symlink targets are always relative, making the tree self-contained.
func PopulateRun(ctx context.Context, exec target.Executor, base, name, version, runDir string) error {
	p := layout.AppPaths(base, name)
	distDir := p.DistDir(version)

	if err := exec.Mkdir(ctx, p.Logs); err != nil {
		return err
	}

	listEntries := func(dir string) ([]string, error) {
		exists, err := exec.Exists(ctx, dir)
		if err != nil || !exists {
			return nil, err
		}
		res, err := exec.Run(ctx, "ls -1A "+shellquote.Join(dir), 0, true, false)
		if err != nil || res.ExitCode != 0 {
			return nil, nil
		}
		var out []string
		for _, e := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
			if e != "" {
				out = append(out, e)
			}
		}
		return out, nil
	}

	// Layer 1: dist.
	distEntries, err := listEntries(distDir)
	if err != nil {
		return err
	}
	for _, entry := range distEntries {
		src := path.Join("../dist", version, entry)
		dst := path.Join(runDir, entry)
		if err := exec.Symlink(ctx, dst, src); err != nil {
			return err
		}
	}

	// Layer 2: data.
	dataEntries, err := listEntries(p.Data)
	if err != nil {
		return err
	}
	for _, entry := range dataEntries {
		dst := path.Join(runDir, entry)
		if exists, err := exec.Exists(ctx, dst); err != nil {
			return err
		} else if exists {
			if err := exec.Rm(ctx, dst, false); err != nil {
				return err
			}
		}
		if err := exec.Symlink(ctx, dst, path.Join("../data", entry)); err != nil {
			return err
		}
	}

	// Layer 3: conf, highest priority.
	confEntries, err := listEntries(p.Conf)
	if err != nil {
		return err
	}
	for _, entry := range confEntries {
		dst := path.Join(runDir, entry)
		if exists, err := exec.Exists(ctx, dst); err != nil {
			return err
		} else if exists {
			if err := exec.Rm(ctx, dst, false); err != nil {
				return err
			}
		}
		if err := exec.Symlink(ctx, dst, path.Join("../conf", entry)); err != nil {
			return err
		}
	}

	// Always win: run/logs -> ../logs.
	return exec.Symlink(ctx, path.Join(runDir, "logs"), "../logs")
}
