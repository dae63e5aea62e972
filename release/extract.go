package release

// ExtractTo extracts pkg's archive verbatim into destDir (creating it),
// preserving whatever top-level layout the archive itself has.
func ExtractTo(pkg *Package, destDir string) error {
	return extractAll(pkg.Path, destDir)
}
