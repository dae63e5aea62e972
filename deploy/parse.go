// Package deploy is the deployment coordinator (component F): it
// orchestrates install, uninstall, clean, upgrade (with rollback on
// failure), and rollback, resting on layout+activate for on-target state
// and target for execution — the Service-layer equivalent that keeps
// every lower package target-agnostic and reusable outside a CLI.
package deploy

import "strings"

// ParsePackageVersion splits the "package[:version]" syntax accepted by
// uninstall/activate/show commands. version is "" when absent.
func ParsePackageVersion(pkgStr string) (name, version string) {
	if idx := strings.LastIndex(pkgStr, ":"); idx >= 0 {
		return pkgStr[:idx], pkgStr[idx+1:]
	}
	return pkgStr, ""
}
