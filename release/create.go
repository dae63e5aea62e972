package release

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"appdeploy/deployerr"
	"appdeploy/oplog"
)

var defaultExcludes = []string{".git", "__pycache__", "*.pyc", ".env", ".DS_Store"}

// CreateOptions configures Create.
type CreateOptions struct {
	Output      string // defaults to "<cwd>/NAME-VERSION<ext>"
	Compression string // "gz" (default), "bz2", "xz"
	Exclude     []string
	DryRun      bool
	Logger      oplog.Logger
}

// Create packs pkg.Path as a tar archive with one of {gz, bz2, xz}. The
// archive's top-level entries are pkg.Path's children — no wrapping
// directory. Excludes caller-supplied glob patterns plus the defaults.
func Create(pkg *Package, opts CreateOptions) (string, error) {
	if pkg.IsArchive {
		return "", deployerr.New(deployerr.KindInput, "create archive", fmt.Errorf("cannot create an archive from an archive"))
	}
	if opts.Logger == nil {
		opts.Logger = oplog.NoOpLogger{}
	}

	ext := ExtensionFor(opts.Compression)
	output := opts.Output
	if output == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		output = filepath.Join(cwd, FormatArchiveName(pkg.Name, pkg.Version, ext))
	}

	excludes := append(append([]string{}, opts.Exclude...), defaultExcludes...)

	if opts.DryRun {
		opts.Logger.Info("[dry-run] Would create archive: %s", output)
		return output, nil
	}

	out, err := os.Create(output)
	if err != nil {
		return "", err
	}
	defer out.Close()

	var wc io.WriteCloser
	switch opts.Compression {
	case "bz2":
		wc, err = bzip2Writer(out)
	case "xz":
		wc, err = xzWriter(out)
	default:
		wc = gzip.NewWriter(out)
	}
	if err != nil {
		return "", err
	}
	defer wc.Close()

	tw := tar.NewWriter(wc)
	defer tw.Close()

	entries, err := os.ReadDir(pkg.Path)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if err := addTarEntry(tw, filepath.Join(pkg.Path, e.Name()), e.Name(), excludes); err != nil {
			return "", err
		}
	}
	return output, nil
}

func excluded(name string, patterns []string) bool {
	for _, p := range patterns {
		if strings.HasPrefix(p, "*") {
			if strings.HasSuffix(name, strings.TrimPrefix(p, "*")) {
				return true
			}
			continue
		}
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

func addTarEntry(tw *tar.Writer, fsPath, arcName string, excludes []string) error {
	if excluded(arcName, excludes) {
		return nil
	}
	info, err := os.Lstat(fsPath)
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		link, err = os.Readlink(fsPath)
		if err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = arcName
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(fsPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
	}

	if info.IsDir() {
		entries, err := os.ReadDir(fsPath)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := addTarEntry(tw, filepath.Join(fsPath, e.Name()), arcName+"/"+e.Name(), excludes); err != nil {
				return err
			}
		}
	}
	return nil
}
