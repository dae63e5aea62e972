// Package bootstrap synchronizes the auxiliary runtime tools (the
// foreground runner, the log-rotating tee, and the controller binary
// itself) onto a target by content hash.
package bootstrap

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"golang.org/x/sync/errgroup"

	"appdeploy/oplog"
	"appdeploy/target"
)

// Tool is one auxiliary binary to synchronize.
type Tool struct {
	Name       string
	SourcePath string
}

// DefaultTools is the fixed tool set the original reference installer
// bundles: the daemon controller itself, the foreground runner it
// delegates to, and the log-rotating tee.
func DefaultTools(toolsDir string) []Tool {
	return []Tool{
		{Name: "daemonctl", SourcePath: filepath.Join(toolsDir, "daemonctl")},
		{Name: "daemonrun", SourcePath: filepath.Join(toolsDir, "daemonrun")},
		{Name: "teelog", SourcePath: filepath.Join(toolsDir, "teelog")},
	}
}

// Options configures Bootstrap.
type Options struct {
	Force     bool // bypass checksum comparison
	Upgrade   bool // same effect as Force, named separately to match the CLI surface
	CheckOnly bool // never writes; returns up-to-date=false if anything is stale
	Logger    oplog.Logger
}

// Status is the result of Bootstrap's per-tool check: whether the tool
// is present on the target and whether its checksum matches the local
// copy. Computing it performs no writes.
type Status struct {
	Tool      string
	Present   bool
	UpToDate  bool
	Algorithm string
}

// Bootstrap synchronizes tools onto exec's <base>/bin/. Returns true when
// every tool is current on return: either nothing was stale, or each
// stale tool was copied over. With CheckOnly set nothing is written and
// false is returned if any tool is stale. For each tool it reads the
// remote checksum via sha256sum, falling
// back to openssl sha256, falling back to md5sum, treating a tool as
// missing if all three fail.
func Bootstrap(ctx context.Context, exec target.Executor, base string, tools []Tool, opts Options) (bool, error) {
	if opts.Logger == nil {
		opts.Logger = oplog.NoOpLogger{}
	}
	binDir := base + "/bin"

	for _, tool := range tools {
		if _, err := os.Stat(tool.SourcePath); err != nil {
			return false, err
		}
	}

	statuses := make([]Status, len(tools))
	group, gctx := errgroup.WithContext(ctx)
	for i, tool := range tools {
		i, tool := i, tool
		group.Go(func() error {
			toolPath := binDir + "/" + tool.Name
			checksum, algorithm, err := remoteChecksum(gctx, exec, toolPath)
			if err != nil {
				return err
			}
			if checksum == "" {
				statuses[i] = Status{Tool: tool.Name, Present: false}
				return nil
			}
			if opts.Force || opts.Upgrade {
				statuses[i] = Status{Tool: tool.Name, Present: true, UpToDate: false, Algorithm: algorithm}
				return nil
			}
			local, err := localChecksum(tool.SourcePath, algorithm)
			if err != nil {
				return err
			}
			statuses[i] = Status{Tool: tool.Name, Present: true, UpToDate: local == checksum, Algorithm: algorithm}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return false, err
	}

	var stale []Tool
	for i, st := range statuses {
		if !st.Present || !st.UpToDate {
			stale = append(stale, tools[i])
		}
	}
	if len(stale) == 0 {
		return true, nil
	}
	if opts.CheckOnly {
		return false, nil
	}

	opts.Logger.Info("Updating tools in %s", binDir)
	if err := exec.Mkdir(ctx, binDir); err != nil {
		return false, err
	}
	for _, tool := range stale {
		toolPath := binDir + "/" + tool.Name
		if err := exec.Copy(ctx, tool.SourcePath, toolPath); err != nil {
			return false, err
		}
		if _, err := exec.Run(ctx, "chmod +x "+shellquote.Join(toolPath), 0, true, true); err != nil {
			return false, err
		}
	}
	return true, nil
}

var opensslDigestRe = regexp.MustCompile(`=\s*([a-fA-F0-9]+)`)

// remoteChecksum returns ("", "", nil) if the remote path does not exist
// or none of the three checksum tools produced usable output.
func remoteChecksum(ctx context.Context, exec target.Executor, path string) (checksum, algorithm string, err error) {
	q := shellquote.Join(path)

	if res, runErr := exec.Run(ctx, "sha256sum "+q+" 2>/dev/null", 5*time.Second, true, false); runErr == nil && res.ExitCode == 0 && res.Stdout != "" {
		fields := strings.Fields(res.Stdout)
		if len(fields) > 0 {
			return fields[0], "sha256", nil
		}
	}

	if res, runErr := exec.Run(ctx, "openssl sha256 "+q+" 2>/dev/null", 5*time.Second, true, false); runErr == nil && res.ExitCode == 0 && res.Stdout != "" {
		if m := opensslDigestRe.FindStringSubmatch(res.Stdout); m != nil {
			return strings.ToLower(m[1]), "sha256", nil
		}
	}

	if res, runErr := exec.Run(ctx, "md5sum "+q+" 2>/dev/null", 5*time.Second, true, false); runErr == nil && res.ExitCode == 0 && res.Stdout != "" {
		fields := strings.Fields(res.Stdout)
		if len(fields) > 0 {
			return fields[0], "md5", nil
		}
	}

	return "", "", nil
}

func localChecksum(path, algorithm string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var h interface {
		io.Writer
		Sum([]byte) []byte
	}
	if algorithm == "md5" {
		h = md5.New()
	} else {
		h = sha256.New()
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
