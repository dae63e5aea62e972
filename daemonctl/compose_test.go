package daemonctl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appdeploy/config"
)

func TestCompose_DefaultsToRunShAndRunDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"), 0o755))

	inv, err := Compose(config.Defaults(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "run.sh")}, inv.Argv)
	assert.Equal(t, dir, inv.Dir)
}

func TestCompose_HonorsConfiguredScriptAndWorkingDir(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Daemon.RunScript = "start.sh"
	cfg.Daemon.WorkingDir = "/srv/app"

	inv, err := Compose(cfg, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "start.sh")}, inv.Argv)
	assert.Equal(t, "/srv/app", inv.Dir)
}

func TestCompose_SourcesEnvScript(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "env.sh"), []byte("export MYVAR=hello\n"), 0o644))

	inv, err := Compose(config.Defaults(), dir, nil)
	require.NoError(t, err)
	found := false
	for _, kv := range inv.Env {
		if kv == "MYVAR=hello" {
			found = true
		}
	}
	assert.True(t, found, "expected MYVAR=hello among %v", inv.Env)
}

func TestCompose_CallerEnvWinsOverEverything(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "env.sh"), []byte("export MYVAR=fromscript\n"), 0o644))

	inv, err := Compose(config.Defaults(), dir, []string{"MYVAR=fromcaller"})
	require.NoError(t, err)
	last := ""
	for _, kv := range inv.Env {
		if len(kv) >= 6 && kv[:6] == "MYVAR=" {
			last = kv
		}
	}
	assert.Equal(t, "MYVAR=fromcaller", last)
}

func TestOutputPaths_Defaults(t *testing.T) {
	stdout, stderr := OutputPaths(config.Defaults(), "webapi", "/apps/webapi/logs")
	assert.Equal(t, "/apps/webapi/logs/webapi.log", stdout)
	assert.Equal(t, "/apps/webapi/logs/webapi.err", stderr)
}

func TestOutputPaths_ConfigOverride(t *testing.T) {
	cfg := config.Defaults()
	cfg.Logging.File = "/custom/out.log"
	cfg.Logging.ErrFile = "/custom/out.err"
	stdout, stderr := OutputPaths(cfg, "webapi", "/apps/webapi/logs")
	assert.Equal(t, "/custom/out.log", stdout)
	assert.Equal(t, "/custom/out.err", stderr)
}
