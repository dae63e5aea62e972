// Package layout maintains the on-target directory tree for an app:
// path helpers, version enumeration, active/previous version lookups,
// and clean. It never mutates dist/<V> payloads; activate (package
// activate) owns the run/ swap itself.
package layout

import (
	"context"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"

	"appdeploy/release"
	"appdeploy/target"
)

// Paths holds the fixed subdirectory names under an app's base directory.
type Paths struct {
	AppDir      string
	Packages    string
	Dist        string
	Data        string
	Conf        string
	Logs        string
	Run         string
	RunNew      string
	RunOld      string
	VersionFile string // Run + "/.version"
	PIDFile     string // Run + "/.pid"
}

// AppPaths computes every fixed path for app name under base, using
// forward slashes as the wire format requires (remote targets are always
// POSIX; local targets on POSIX hosts match filepath.Join exactly).
func AppPaths(base, name string) Paths {
	appDir := path.Join(base, name)
	run := path.Join(appDir, "run")
	return Paths{
		AppDir:      appDir,
		Packages:    path.Join(appDir, "packages"),
		Dist:        path.Join(appDir, "dist"),
		Data:        path.Join(appDir, "data"),
		Conf:        path.Join(appDir, "conf"),
		Logs:        path.Join(appDir, "logs"),
		Run:         run,
		RunNew:      path.Join(appDir, "run.new"),
		RunOld:      path.Join(appDir, "run.old"),
		VersionFile: path.Join(run, ".version"),
		PIDFile:     path.Join(run, ".pid"),
	}
}

// DistDir returns the path of dist/<version>.
func (p Paths) DistDir(version string) string { return path.Join(p.Dist, version) }

// Manager exposes layout primitives over a (Executor, app name) pair.
type Manager struct {
	Exec target.Executor
	Base string
	Name string
}

// New constructs a Manager for app name rooted at exec's target base path.
func New(exec target.Executor, base, name string) *Manager {
	return &Manager{Exec: exec, Base: base, Name: name}
}

func (m *Manager) Paths() Paths { return AppPaths(m.Base, m.Name) }

// listDir runs `ls -1` against path and splits non-empty lines, matching
// the original's list_entries/ls -1t helpers. A non-existent or
// unlistable directory yields an empty slice, not an error.
func (m *Manager) listDir(ctx context.Context, p string, mtimeOrder bool) ([]string, error) {
	flag := "-1"
	if mtimeOrder {
		flag = "-1t"
	}
	res, err := m.Exec.Run(ctx, "ls "+flag+" "+shQuote(p), 0, true, false)
	if err != nil || res.ExitCode != 0 {
		return nil, nil
	}
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// ListVersions returns dist/ entries in mtime-descending order.
func (m *Manager) ListVersions(ctx context.Context) ([]string, error) {
	return m.listDir(ctx, m.Paths().Dist, true)
}

// ActiveVersion returns run/.version content, or "" if not active.
func (m *Manager) ActiveVersion(ctx context.Context) (string, error) {
	p := m.Paths()
	exists, err := m.Exec.Exists(ctx, p.VersionFile)
	if err != nil || !exists {
		return "", err
	}
	data, err := m.Exec.Read(ctx, p.VersionFile)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// IsRunning reports whether run/.pid exists. Its absence is authoritative
// per the layering invariant: the foreground runner owns this file.
func (m *Manager) IsRunning(ctx context.Context) (bool, error) {
	return m.Exec.Exists(ctx, m.Paths().PIDFile)
}

// LatestVersion and PreviousVersion return the first and second entries
// of ListVersions.
func (m *Manager) LatestVersion(ctx context.Context) (string, error) {
	versions, err := m.ListVersions(ctx)
	if err != nil || len(versions) == 0 {
		return "", err
	}
	return versions[0], nil
}

func (m *Manager) PreviousVersion(ctx context.Context) (string, error) {
	versions, err := m.ListVersions(ctx)
	if err != nil || len(versions) < 2 {
		return "", err
	}
	return versions[1], nil
}

// ListApps enumerates app directories directly under base (those with a
// dist/ subdirectory), optionally glob-filtered by pattern ("" means no
// filter). This is the supplemented glob-matching behavior of `list`.
func ListApps(ctx context.Context, exec target.Executor, base, pattern string) ([]string, error) {
	res, err := exec.Run(ctx, "ls -1 "+shQuote(base), 0, true, false)
	if err != nil || res.ExitCode != 0 {
		return nil, nil
	}
	var apps []string
	for _, n := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if n == "" || n == "bin" {
			continue
		}
		exists, err := exec.Exists(ctx, path.Join(base, n, "dist"))
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		apps = append(apps, n)
	}
	if pattern == "" {
		return apps, nil
	}
	var filtered []string
	for _, a := range apps {
		if ok, _ := filepath.Match(pattern, a); ok {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

// InstalledVersion is (name, version, status, install timestamp, size).
type InstalledVersion struct {
	Name      string
	Version   string
	Active    bool
	Installed time.Time
	Size      int64
}

// List returns installed versions for app name (or every app under base
// when name is empty or a glob pattern), matching the original's
// `appdeploy_target_list`. When long is true, install time and size are
// populated via `stat`/`du`.
func List(ctx context.Context, exec target.Executor, base, name string, long, activeOnly bool) ([]InstalledVersion, error) {
	hasGlob := strings.ContainsAny(name, "*?[")
	var appNames []string
	if name != "" && !hasGlob {
		appNames = []string{name}
	} else {
		apps, err := ListApps(ctx, exec, base, name)
		if err != nil {
			return nil, err
		}
		appNames = apps
	}

	var results []InstalledVersion
	for _, appName := range appNames {
		m := New(exec, base, appName)
		active, err := m.ActiveVersion(ctx)
		if err != nil {
			return nil, err
		}
		versions, err := m.listDir(ctx, m.Paths().Dist, false)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			iv := InstalledVersion{Name: appName, Version: v, Active: v == active}
			if activeOnly && !iv.Active {
				continue
			}
			if long {
				verDir := m.Paths().DistDir(v)
				if res, err := exec.Run(ctx, "stat -c '%Y' "+shQuote(verDir)+" 2>/dev/null || stat -f '%m' "+shQuote(verDir), 0, true, false); err == nil && res.ExitCode == 0 {
					if ts, perr := strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64); perr == nil {
						iv.Installed = time.Unix(ts, 0)
					}
				}
				if res, err := exec.Run(ctx, "du -sb "+shQuote(verDir)+" 2>/dev/null || du -sk "+shQuote(verDir), 0, true, false); err == nil && res.ExitCode == 0 {
					fields := strings.Fields(res.Stdout)
					if len(fields) > 0 {
						if sz, perr := strconv.ParseInt(fields[0], 10, 64); perr == nil {
							iv.Size = sz
						}
					}
				}
			}
			results = append(results, iv)
		}
	}
	return results, nil
}

// Clean keeps the active version (always) and the K most recent other
// versions (by mtime), removing the rest along with any matching archive
// in packages/. The active version never counts against K (per the
// recommended resolution of the retain-count open question). K<=0
// removes nothing.
func (m *Manager) Clean(ctx context.Context, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	p := m.Paths()
	active, err := m.ActiveVersion(ctx)
	if err != nil {
		return nil, err
	}
	versions, err := m.listDir(ctx, p.Dist, true)
	if err != nil {
		return nil, err
	}

	var removed []string
	kept := 0
	for _, v := range versions {
		if v == active {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		if err := m.Exec.Rm(ctx, p.DistDir(v), true); err != nil {
			return removed, err
		}
		for _, ext := range []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tgz"} {
			archive := path.Join(p.Packages, release.FormatArchiveName(m.Name, v, ext))
			if exists, _ := m.Exec.Exists(ctx, archive); exists {
				_ = m.Exec.Rm(ctx, archive, false)
			}
		}
		removed = append(removed, v)
	}
	return removed, nil
}

func shQuote(s string) string { return shellquote.Join(s) }
