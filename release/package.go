package release

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"appdeploy/deployerr"
)

// Package is a loaded, resolved package: a name, a version, a source (a
// directory or an archive), and its parsed conf.toml as a generic map
// (unknown keys are preserved and ignored by higher layers that don't
// look for them).
type Package struct {
	Name      string
	Version   string
	Path      string
	IsArchive bool
	Config    map[string]any
}

// Load resolves a package from path (a directory or a supported
// archive). cliName/cliVersion, when non-empty, take precedence over
// every other resolution source.
func Load(path string, cliName, cliVersion string) (*Package, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, deployerr.New(deployerr.KindInput, "load package", fmt.Errorf("package path not found: %s", path))
	}
	isArchive := !info.IsDir()
	cfg, err := LoadConfig(path, isArchive)
	if err != nil {
		return nil, err
	}
	name, err := resolveName(path, isArchive, cfg, cliName)
	if err != nil {
		return nil, err
	}
	version, err := resolveVersion(path, isArchive, cfg, cliVersion)
	if err != nil {
		return nil, err
	}
	return &Package{Name: name, Version: version, Path: path, IsArchive: isArchive, Config: cfg}, nil
}

func packageSection(cfg map[string]any) map[string]any {
	if v, ok := cfg["package"].(map[string]any); ok {
		return v
	}
	return nil
}

func resolveName(path string, isArchive bool, cfg map[string]any, cliName string) (string, error) {
	if cliName != "" {
		return cliName, nil
	}
	if pkg := packageSection(cfg); pkg != nil {
		if n, ok := pkg["name"].(string); ok && n != "" {
			return n, nil
		}
	}
	if !isArchive {
		return filepath.Base(filepath.Clean(path)), nil
	}
	name, _, err := ParseArchiveName(filepath.Base(path))
	return name, err
}

func resolveVersion(path string, isArchive bool, cfg map[string]any, cliVersion string) (string, error) {
	if cliVersion != "" {
		return cliVersion, nil
	}
	if pkg := packageSection(cfg); pkg != nil {
		if v, ok := pkg["version"].(string); ok && v != "" {
			return v, nil
		}
	}
	if !isArchive {
		versionFile := filepath.Join(path, "VERSION")
		if data, err := os.ReadFile(versionFile); err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if out, err := exec.Command("git", "-C", path, "rev-parse", "--short", "HEAD").Output(); err == nil {
			return strings.TrimSpace(string(out)), nil
		}
		return "", deployerr.New(deployerr.KindInput, "resolve version", fmt.Errorf(
			"cannot determine version for %s: use an explicit version, add [package] version to conf.toml, or create a VERSION file", path))
	}
	_, version, err := ParseArchiveName(filepath.Base(path))
	return version, err
}

// LoadConfig reads conf.toml from a package directory, or extracts it
// from an archive without a full unpack. Absence of conf.toml (in either
// form) is not an error; an empty map is returned.
func LoadConfig(path string, isArchive bool) (map[string]any, error) {
	if !isArchive {
		confPath := filepath.Join(path, "conf.toml")
		data, err := os.ReadFile(confPath)
		if err != nil {
			if os.IsNotExist(err) {
				return map[string]any{}, nil
			}
			return nil, err
		}
		return parseTOML(data)
	}

	data, err := extractArchiveMember(path, "conf.toml")
	if err != nil || data == nil {
		return map[string]any{}, nil
	}
	return parseTOML(data)
}

func parseTOML(data []byte) (map[string]any, error) {
	var out map[string]any
	if _, err := toml.Decode(string(data), &out); err != nil {
		return nil, deployerr.New(deployerr.KindValidation, "parse conf.toml", err)
	}
	return out, nil
}

// extractArchiveMember reads a single named member (or one whose path
// ends in "/"+name, matching a single wrapping top-level directory) from
// a tar archive, auto-detecting its compression by extension. Returns nil
// data if the member is absent.
func extractArchiveMember(archivePath, name string) ([]byte, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tr, closeFn, err := openTarReader(archivePath, f)
	if err != nil {
		return nil, err
	}
	if closeFn != nil {
		defer closeFn()
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name == name || strings.HasSuffix(hdr.Name, "/"+name) {
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, tr); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		}
	}
}

// openTarReader wraps f with the decompressor matching archivePath's
// extension and returns a *tar.Reader plus an optional closer for the
// decompressor.
func openTarReader(archivePath string, f *os.File) (*tar.Reader, func() error, error) {
	dec, closeFn, err := decompressorFor(archivePath, f)
	if err != nil {
		return nil, nil, err
	}
	return tar.NewReader(dec), closeFn, nil
}

func decompressorFor(archivePath string, f *os.File) (io.Reader, func() error, error) {
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, err
		}
		return gz, gz.Close, nil
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		return bzip2Reader(f)
	case strings.HasSuffix(archivePath, ".tar.xz"):
		return xzReader(f)
	default:
		return nil, nil, deployerr.New(deployerr.KindInput, "open archive", fmt.Errorf("unsupported archive extension: %s", archivePath))
	}
}
