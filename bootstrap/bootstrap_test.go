package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tgt "appdeploy/target"
)

func TestBootstrap_InstallsMissingTools(t *testing.T) {
	toolsDir := t.TempDir()
	base := t.TempDir()

	for _, name := range []string{"daemonctl", "daemonrun", "teelog"} {
		require.NoError(t, os.WriteFile(filepath.Join(toolsDir, name), []byte("#!/bin/sh\necho "+name+"\n"), 0o755))
	}

	exec := tgt.New(tgt.Target{Path: base, IsRemote: false}, tgt.Options{})
	upToDate, err := Bootstrap(context.Background(), exec, base, DefaultTools(toolsDir), Options{})
	require.NoError(t, err)
	assert.True(t, upToDate)

	for _, name := range []string{"daemonctl", "daemonrun", "teelog"} {
		info, err := os.Stat(filepath.Join(base, "bin", name))
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&0o111)
	}
}

func TestBootstrap_SecondRunIsNoop(t *testing.T) {
	toolsDir := t.TempDir()
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(toolsDir, "daemonctl"), []byte("x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(toolsDir, "daemonrun"), []byte("y"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(toolsDir, "teelog"), []byte("z"), 0o755))

	exec := tgt.New(tgt.Target{Path: base, IsRemote: false}, tgt.Options{})
	ctx := context.Background()
	tools := DefaultTools(toolsDir)

	_, err := Bootstrap(ctx, exec, base, tools, Options{})
	require.NoError(t, err)

	upToDate, err := Bootstrap(ctx, exec, base, tools, Options{CheckOnly: true})
	require.NoError(t, err)
	assert.True(t, upToDate)
}
