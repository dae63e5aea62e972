package deploy

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	shellquote "github.com/kballard/go-shellquote"

	"appdeploy/activate"
	"appdeploy/deployerr"
	"appdeploy/layout"
	"appdeploy/oplog"
	"appdeploy/release"
	"appdeploy/target"
)

// InstallOptions configures Install.
type InstallOptions struct {
	Activate bool // activate the new version immediately after install
	Retain   int  // 0 disables cleanup
	Logger   oplog.Logger
}

// InstallResult reports the outcome of Install.
type InstallResult struct {
	Version           string
	AlreadyInstalled  bool
	Activated         bool
	Removed           []string // versions pruned by retain
}

// Install unpacks pkg onto exec's target at base/<pkg.Name>/dist/<pkg.Version>/,
// seeding conf/ with the package's conf.toml on first install only (an
// existing conf/conf.toml is an operator customization and is never
// overwritten), creating data/ and logs/, and optionally activating and
// pruning old versions — the direct analog of the original target
// installer, minus its ncurses progress reporting.
func Install(ctx context.Context, exec target.Executor, base string, pkg *release.Package, opts InstallOptions) (InstallResult, error) {
	if opts.Logger == nil {
		opts.Logger = oplog.NoOpLogger{}
	}
	m := layout.New(exec, base, pkg.Name)
	p := m.Paths()

	for _, dir := range []string{p.AppDir, p.Dist, p.Packages, p.Data, p.Conf, p.Logs} {
		if err := exec.Mkdir(ctx, dir); err != nil {
			return InstallResult{}, err
		}
	}

	versionDir := p.DistDir(pkg.Version)
	if exists, err := exec.Exists(ctx, versionDir); err != nil {
		return InstallResult{}, err
	} else if exists {
		opts.Logger.Info("%s:%s is already installed", pkg.Name, pkg.Version)
		return InstallResult{Version: pkg.Version, AlreadyInstalled: true}, nil
	}

	attemptID := uuid.New().String()
	opts.Logger.Info("Installing %s:%s [attempt=%s]", pkg.Name, pkg.Version, attemptID)

	if pkg.IsArchive {
		archiveName := path.Base(pkg.Path)
		archiveDest := path.Join(p.Packages, archiveName)
		if err := exec.Copy(ctx, pkg.Path, archiveDest); err != nil {
			return InstallResult{}, err
		}
		if err := extractOnTarget(ctx, exec, archiveDest, versionDir); err != nil {
			return InstallResult{}, err
		}
	} else {
		if err := exec.Mkdir(ctx, versionDir); err != nil {
			return InstallResult{}, err
		}
		if err := exec.CopyTree(ctx, pkg.Path, versionDir); err != nil {
			return InstallResult{}, err
		}
	}

	if err := seedConf(ctx, exec, versionDir, p.Conf); err != nil {
		return InstallResult{}, err
	}

	result := InstallResult{Version: pkg.Version}
	if opts.Activate {
		if _, err := activate.Activate(ctx, exec, base, pkg.Name, activate.Options{Version: pkg.Version, Logger: opts.Logger}); err != nil {
			return result, err
		}
		result.Activated = true
	}
	if opts.Retain > 0 {
		removed, err := m.Clean(ctx, opts.Retain)
		if err != nil {
			return result, err
		}
		result.Removed = removed
	}
	opts.Logger.Info("Installed %s:%s", pkg.Name, pkg.Version)
	return result, nil
}

// seedConf copies versionDir/conf.toml into conf/ the first time an app
// is installed. Later installs leave an existing conf/conf.toml alone:
// it has since become the operator's editable copy.
func seedConf(ctx context.Context, exec target.Executor, versionDir, confDir string) error {
	shipped := versionDir + "/conf.toml"
	if exists, err := exec.Exists(ctx, shipped); err != nil || !exists {
		return err
	}
	dest := confDir + "/conf.toml"
	if exists, err := exec.Exists(ctx, dest); err != nil || exists {
		return err
	}
	_, err := exec.Run(ctx, "cp "+shellquote.Join(shipped)+" "+shellquote.Join(dest), 0, true, true)
	return err
}

// extractOnTarget extracts archivePath into destDir on exec's target,
// choosing tar's decompression flag from the archive's extension. This
// runs the extraction on the target itself (rather than locally then
// pushing a tree) so a remote deploy never ships an unpacked payload
// over the wire a second time.
func extractOnTarget(ctx context.Context, exec target.Executor, archivePath, destDir string) error {
	var flag string
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		flag = "z"
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		flag = "j"
	case strings.HasSuffix(archivePath, ".tar.xz"):
		flag = "J"
	default:
		return deployerr.New(deployerr.KindInput, "extract", errf("unsupported archive extension: %s", archivePath))
	}
	if err := exec.Mkdir(ctx, destDir); err != nil {
		return err
	}
	cmd := "tar -C " + shellquote.Join(destDir) + " -x" + flag + "f " + shellquote.Join(archivePath)
	_, err := exec.Run(ctx, cmd, 2*time.Minute, true, true)
	return err
}

// UninstallOptions configures Uninstall.
type UninstallOptions struct {
	Version  string // required unless All is set; empty + All=false is an input error
	All      bool
	KeepData bool
	KeepLogs bool
	Logger   oplog.Logger
}

// Uninstall removes an app's installed version(s): opts.Version alone, or
// every installed version when opts.All is set. It never removes the
// active version while the app is running. Without All it refuses to
// remove the active version at all; with All the active version is
// removed along with the others when the app is not running. When
// Options.All is set, run/ and conf/ are removed too, and data/ and
// logs/ unless KeepData or KeepLogs say otherwise.
func Uninstall(ctx context.Context, exec target.Executor, base, name string, opts UninstallOptions) error {
	if opts.Logger == nil {
		opts.Logger = oplog.NoOpLogger{}
	}
	m := layout.New(exec, base, name)
	p := m.Paths()

	active, err := m.ActiveVersion(ctx)
	if err != nil {
		return err
	}
	running, err := m.IsRunning(ctx)
	if err != nil {
		return err
	}

	var versions []string
	if opts.All {
		versions, err = m.ListVersions(ctx)
		if err != nil {
			return err
		}
	} else if opts.Version != "" {
		versions = []string{opts.Version}
	} else {
		return deployerr.New(deployerr.KindInput, "uninstall", errf("specify a version or pass All"))
	}

	for _, version := range versions {
		if version == active {
			if running {
				return deployerr.New(deployerr.KindStatePrecondition, "uninstall",
					errf("cannot uninstall active version %s while %s is running", version, name)).WithApp(name)
			}
			if !opts.All {
				return deployerr.New(deployerr.KindStatePrecondition, "uninstall",
					errf("%s is the active version of %s; deactivate or pass --all first", version, name)).WithApp(name)
			}
		}
		if err := exec.Rm(ctx, p.DistDir(version), true); err != nil {
			return err
		}
		for _, ext := range []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tgz"} {
			archive := path.Join(p.Packages, release.FormatArchiveName(name, version, ext))
			if exists, _ := exec.Exists(ctx, archive); exists {
				_ = exec.Rm(ctx, archive, false)
			}
		}
		opts.Logger.Info("Uninstalled %s:%s", name, version)
	}

	if opts.All {
		if err := exec.Rm(ctx, p.Run, true); err != nil {
			return err
		}
		if !opts.KeepData {
			if err := exec.Rm(ctx, p.Data, true); err != nil {
				return err
			}
		}
		if !opts.KeepLogs {
			if err := exec.Rm(ctx, p.Logs, true); err != nil {
				return err
			}
		}
		if err := exec.Rm(ctx, p.Conf, true); err != nil {
			return err
		}
	}
	return nil
}

func errf(format string, args ...any) error { return deployerr.Errf(format, args...) }
