package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appdeploy/layout"
	"appdeploy/release"
)

// installDaemonctlStub writes a fake controller binary that records a
// run/.pid on "start" and removes it on "stop", standing in for the real
// supervisor-backed controller these tests don't need.
func installDaemonctlStub(t *testing.T, base string) {
	t.Helper()
	binDir := filepath.Join(base, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	script := "#!/bin/sh\ncase \"$1\" in\n  start) mkdir -p \"$4\"; echo $$ > \"$4/.pid\" ;;\n  stop) rm -f \"$4/.pid\" ;;\nesac\nexit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "daemonctl"), []byte(script), 0o755))
}

func TestUpgrade_SucceedsAndSwitchesVersion(t *testing.T) {
	base := t.TempDir()
	installDaemonctlStub(t, base)
	exec := localExecutor(t, base)
	ctx := context.Background()

	pkg1, err := release.Load(buildPackageDir(t, "svc", "1.0"), "svc", "1.0")
	require.NoError(t, err)
	_, err = Install(ctx, exec, base, pkg1, InstallOptions{Activate: true})
	require.NoError(t, err)

	require.NoError(t, newDaemonctl(exec, base).Start(ctx, "svc"))

	pkg2, err := release.Load(buildPackageDir(t, "svc", "2.0"), "svc", "2.0")
	require.NoError(t, err)

	result, err := Upgrade(ctx, exec, base, pkg2, UpgradeOptions{
		HealthTimeout: time.Second,
		StartupGrace:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.False(t, result.RolledBack)
	assert.Equal(t, "1.0", result.FromVersion)
	assert.Equal(t, "2.0", result.ToVersion)

	m := layout.New(exec, base, "svc")
	active, err := m.ActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.0", active)
}

func TestUpgrade_RollsBackOnHealthFailure(t *testing.T) {
	base := t.TempDir()
	exec := localExecutor(t, base)
	ctx := context.Background()

	// A daemonctl stub that only succeeds for "stop", never writes .pid
	// on "start" — simulates a new version that fails to come up.
	binDir := filepath.Join(base, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	script := "#!/bin/sh\ncase \"$1\" in\n  stop) rm -f \"$4/.pid\" ;;\nesac\nexit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "daemonctl"), []byte(script), 0o755))

	pkg1, err := release.Load(buildPackageDir(t, "svc", "1.0"), "svc", "1.0")
	require.NoError(t, err)
	_, err = Install(ctx, exec, base, pkg1, InstallOptions{Activate: true})
	require.NoError(t, err)
	require.NoError(t, newDaemonctl(exec, base).Start(ctx, "svc"))

	p := layout.AppPaths(base, "svc")
	require.NoError(t, os.WriteFile(p.PIDFile, []byte("1"), 0o644))

	pkg2, err := release.Load(buildPackageDir(t, "svc", "2.0"), "svc", "2.0")
	require.NoError(t, err)

	result, err := Upgrade(ctx, exec, base, pkg2, UpgradeOptions{
		RollbackOnFail: true,
		HealthTimeout:  time.Second,
		StartupGrace:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, result.RolledBack)
	assert.True(t, result.HealthFailed)

	m := layout.New(exec, base, "svc")
	active, err := m.ActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0", active)
}
