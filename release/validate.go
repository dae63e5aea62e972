package release

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Severity classifies a Finding.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Finding is one validation result.
type Finding struct {
	Severity Severity
	Message  string
}

// Validate checks a package's structure. In strict mode, warnings are
// promoted to errors and included in the returned slice; otherwise
// warnings are dropped and only error findings are returned.
func Validate(pkg *Package, strict bool) ([]Finding, error) {
	var findings []Finding

	checkDir := func(base string) error {
		var runScript string
		for _, name := range []string{"run", "run.sh"} {
			p := filepath.Join(base, name)
			if info, err := os.Stat(p); err == nil {
				runScript = p
				if info.Mode()&0o111 == 0 {
					findings = append(findings, Finding{SeverityError, fmt.Sprintf("%q is not executable", name)})
				}
				break
			}
		}
		if runScript == "" {
			findings = append(findings, Finding{SeverityError, "missing required 'run' or 'run.sh' script"})
		}

		confFile := filepath.Join(base, "conf.toml")
		if data, err := os.ReadFile(confFile); err == nil {
			var v map[string]any
			if _, err := toml.Decode(string(data), &v); err != nil {
				findings = append(findings, Finding{SeverityError, fmt.Sprintf("invalid conf.toml: %v", err)})
			}
		}

		envFile := filepath.Join(base, "env.sh")
		if _, err := os.Stat(envFile); err == nil {
			cmd := exec.Command("sh", "-n", envFile)
			out, err := cmd.CombinedOutput()
			if err != nil {
				findings = append(findings, Finding{SeverityError, fmt.Sprintf("invalid shell syntax in env.sh: %s", strings.TrimSpace(string(out)))})
			}
		}

		forbidden := []string{".git", "__pycache__", ".env"}
		_ = filepath.Walk(base, func(p string, info os.FileInfo, err error) error {
			if err != nil || p == base {
				return nil
			}
			rel, _ := filepath.Rel(base, p)
			for _, pattern := range forbidden {
				if strings.Contains(rel, pattern) {
					findings = append(findings, Finding{SeverityWarning, fmt.Sprintf("forbidden path found: %s", rel)})
					break
				}
			}
			if filepath.Ext(p) == ".pyc" {
				findings = append(findings, Finding{SeverityWarning, fmt.Sprintf("compiled bytecode file found: %s", rel)})
			}
			return nil
		})
		return nil
	}

	if pkg.IsArchive {
		tmpDir, err := os.MkdirTemp("", "appdeploy-validate-*")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmpDir)
		if err := extractAll(pkg.Path, tmpDir); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(tmpDir)
		if err != nil {
			return nil, err
		}
		if len(entries) == 1 && entries[0].IsDir() {
			if err := checkDir(filepath.Join(tmpDir, entries[0].Name())); err != nil {
				return nil, err
			}
		} else if err := checkDir(tmpDir); err != nil {
			return nil, err
		}
	} else if err := checkDir(pkg.Path); err != nil {
		return nil, err
	}

	if strict {
		for i := range findings {
			findings[i].Severity = SeverityError
		}
		return findings, nil
	}

	var errorsOnly []Finding
	for _, f := range findings {
		if f.Severity == SeverityError {
			errorsOnly = append(errorsOnly, f)
		}
	}
	return errorsOnly, nil
}

// extractAll extracts every member of archivePath into dir, used by
// Validate's scratch-directory pass.
func extractAll(archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, closeFn, err := decompressorFor(archivePath, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Symlink(hdr.Linkname, target)
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
