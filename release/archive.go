// Package release implements the package resolver: loading a package
// from a directory or archive, resolving its name/version, validating
// its structure, and creating archives from a directory.
package release

import (
	"fmt"
	"regexp"
	"strings"

	"appdeploy/deployerr"
)

// archiveExtensions lists the supported archive suffixes. No suffix is a
// tail of another, so at most one of them matches a given name.
var archiveExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tgz"}

var archiveSplitRe = regexp.MustCompile(`-(\d|[0-9a-f]{7,})`)

// ParseArchiveName splits an archive filename into (name, version) per
// the grammar: NAME "-" VERSION EXT, where EXT is one of the supported
// extensions and the split point is the first hyphen followed by a digit
// or a run of >=7 hex characters.
func ParseArchiveName(filename string) (name, version string, err error) {
	base := filename
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}

	loc := archiveSplitRe.FindStringIndex(base)
	if loc == nil {
		return "", "", deployerr.New(deployerr.KindInput, "parse archive name",
			fmt.Errorf("cannot parse name/version from archive: %s", filename))
	}
	name = base[:loc[0]]
	version = base[loc[0]+1:]
	if name == "" {
		return "", "", deployerr.New(deployerr.KindInput, "parse archive name",
			fmt.Errorf("empty name in archive: %s", filename))
	}
	if version == "" {
		return "", "", deployerr.New(deployerr.KindInput, "parse archive name",
			fmt.Errorf("empty version in archive: %s", filename))
	}
	return name, version, nil
}

// FormatArchiveName is the inverse of ParseArchiveName for a given
// extension, used by the round-trip invariant and by Uninstall and Clean
// when looking up `packages/NAME-VERSION.EXT`.
func FormatArchiveName(name, version, ext string) string {
	return name + "-" + version + ext
}

// ExtensionFor maps a compression identifier ("gz", "bz2", "xz") to its
// archive extension.
func ExtensionFor(compression string) string {
	switch compression {
	case "bz2":
		return ".tar.bz2"
	case "xz":
		return ".tar.xz"
	default:
		return ".tar.gz"
	}
}
