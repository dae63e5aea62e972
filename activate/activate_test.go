package activate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appdeploy/layout"
	tgt "appdeploy/target"
)

func setupApp(t *testing.T, base, name, version string) {
	t.Helper()
	p := layout.AppPaths(base, name)
	require.NoError(t, os.MkdirAll(p.DistDir(version), 0o755))
	require.NoError(t, os.MkdirAll(p.Data, 0o755))
	require.NoError(t, os.MkdirAll(p.Conf, 0o755))
	require.NoError(t, os.MkdirAll(p.Logs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.DistDir(version), "run.sh"), []byte("#!/bin/sh\nexit 0\n"), 0o755))
}

func localExec(t *testing.T, base string) tgt.Executor {
	t.Helper()
	tg := tgt.Target{Path: base, IsRemote: false}
	return tgt.New(tg, tgt.Options{})
}

func TestActivate_FreshInstall(t *testing.T) {
	base := t.TempDir()
	setupApp(t, base, "svc", "1.0")
	exec := localExec(t, base)

	res, err := Activate(context.Background(), exec, base, "svc", Options{Version: "1.0"})
	require.NoError(t, err)
	assert.Equal(t, "1.0", res.Version)
	assert.False(t, res.WasRunning)

	p := layout.AppPaths(base, "svc")
	link, err := os.Readlink(filepath.Join(p.Run, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("..", "dist", "1.0", "run.sh"), link)

	versionData, err := os.ReadFile(p.VersionFile)
	require.NoError(t, err)
	assert.Equal(t, "1.0", string(versionData))

	logsLink, err := os.Readlink(filepath.Join(p.Run, "logs"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("..", "logs"), logsLink)
}

func TestActivate_IdempotentWhenAlreadyActive(t *testing.T) {
	base := t.TempDir()
	setupApp(t, base, "svc", "1.0")
	exec := localExec(t, base)
	ctx := context.Background()

	_, err := Activate(ctx, exec, base, "svc", Options{Version: "1.0"})
	require.NoError(t, err)

	res, err := Activate(ctx, exec, base, "svc", Options{Version: "1.0"})
	require.NoError(t, err)
	assert.True(t, res.AlreadyWas)
}

func TestActivate_CrashSafeRetryAfterLeftoverRunNew(t *testing.T) {
	base := t.TempDir()
	setupApp(t, base, "svc", "2.0")
	exec := localExec(t, base)
	ctx := context.Background()

	p := layout.AppPaths(base, "svc")
	// Simulate a crash after step 5 (run.new/ created and partially
	// populated) but before step 7.
	require.NoError(t, os.MkdirAll(p.RunNew, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.RunNew, "stale"), []byte("x"), 0o644))

	res, err := Activate(ctx, exec, base, "svc", Options{Version: "2.0"})
	require.NoError(t, err)
	assert.Equal(t, "2.0", res.Version)

	_, err = os.Lstat(p.RunNew)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Lstat(p.RunOld)
	assert.True(t, os.IsNotExist(err))
}

func TestDeactivate_FailsWhileRunning(t *testing.T) {
	base := t.TempDir()
	setupApp(t, base, "svc", "1.0")
	exec := localExec(t, base)
	ctx := context.Background()

	_, err := Activate(ctx, exec, base, "svc", Options{Version: "1.0"})
	require.NoError(t, err)

	p := layout.AppPaths(base, "svc")
	require.NoError(t, os.WriteFile(p.PIDFile, []byte("123"), 0o644))

	err = Deactivate(ctx, exec, base, "svc", nil)
	require.Error(t, err)
}

func TestDeactivate_RemovesRun(t *testing.T) {
	base := t.TempDir()
	setupApp(t, base, "svc", "1.0")
	exec := localExec(t, base)
	ctx := context.Background()

	_, err := Activate(ctx, exec, base, "svc", Options{Version: "1.0"})
	require.NoError(t, err)

	require.NoError(t, Deactivate(ctx, exec, base, "svc", nil))

	p := layout.AppPaths(base, "svc")
	_, err = os.Lstat(p.Run)
	assert.True(t, os.IsNotExist(err))
}
