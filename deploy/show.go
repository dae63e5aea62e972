package deploy

import (
	"context"
	"sort"
	"strings"

	"appdeploy/layout"
	"appdeploy/target"
)

// ShowWhat selects what Show reports.
type ShowWhat int

const (
	ShowSummary ShowWhat = iota
	ShowConfig
	ShowRunScript
	ShowFiles
)

// ShowResult is the rendered detail for one installed version.
type ShowResult struct {
	Name      string
	Version   string
	Active    bool
	Running   bool
	ConfToml  string   // populated when What is ShowConfig
	RunScript string   // populated when What is ShowRunScript
	Files     []string // populated when What is ShowFiles, sorted relative paths
}

// Show inspects a single installed version of name, answering the
// supplemented `show` command: conf.toml contents, the resolved run
// script, or a sorted file listing of dist/<version>/, alongside the
// always-present active/running summary.
func Show(ctx context.Context, exec target.Executor, base, name, version string, what ShowWhat) (ShowResult, error) {
	m := layout.New(exec, base, name)
	p := m.Paths()

	if version == "" {
		active, err := m.ActiveVersion(ctx)
		if err != nil {
			return ShowResult{}, err
		}
		version = active
	}
	if version == "" {
		latest, err := m.LatestVersion(ctx)
		if err != nil {
			return ShowResult{}, err
		}
		version = latest
	}

	active, err := m.ActiveVersion(ctx)
	if err != nil {
		return ShowResult{}, err
	}
	running, err := m.IsRunning(ctx)
	if err != nil {
		return ShowResult{}, err
	}
	result := ShowResult{Name: name, Version: version, Active: version == active, Running: running && version == active}

	versionDir := p.DistDir(version)
	switch what {
	case ShowConfig:
		confPath := p.Conf + "/conf.toml"
		if exists, _ := exec.Exists(ctx, confPath); exists {
			data, err := exec.Read(ctx, confPath)
			if err != nil {
				return result, err
			}
			result.ConfToml = string(data)
		}
	case ShowRunScript:
		for _, candidate := range []string{"run", "run.sh"} {
			path := versionDir + "/" + candidate
			if exists, _ := exec.Exists(ctx, path); exists {
				data, err := exec.Read(ctx, path)
				if err != nil {
					return result, err
				}
				result.RunScript = string(data)
				break
			}
		}
	case ShowFiles:
		files, err := listFilesRecursive(ctx, exec, versionDir)
		if err != nil {
			return result, err
		}
		sort.Strings(files)
		result.Files = files
	}
	return result, nil
}

// listFilesRecursive shells `find` relative to dir, since Executor has
// no directory-walk primitive of its own and Show must work identically
// against a remote target.
func listFilesRecursive(ctx context.Context, exec target.Executor, dir string) ([]string, error) {
	res, err := exec.Run(ctx, "cd "+shQuote(dir)+" && find . -type f | sed 's,^\\./,,'", 0, true, false)
	if err != nil || res.ExitCode != 0 {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
