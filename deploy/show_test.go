package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appdeploy/release"
)

func TestShow_ReturnsConfigAndRunScript(t *testing.T) {
	base := t.TempDir()
	exec := localExecutor(t, base)
	ctx := context.Background()

	pkg, err := release.Load(buildPackageDir(t, "svc", "1.0"), "svc", "1.0")
	require.NoError(t, err)
	_, err = Install(ctx, exec, base, pkg, InstallOptions{Activate: true})
	require.NoError(t, err)

	cfg, err := Show(ctx, exec, base, "svc", "", ShowConfig)
	require.NoError(t, err)
	assert.True(t, cfg.Active)
	assert.Contains(t, cfg.ConfToml, "name = \"svc\"")

	run, err := Show(ctx, exec, base, "svc", "1.0", ShowRunScript)
	require.NoError(t, err)
	assert.Contains(t, run.RunScript, "exit 0")

	files, err := Show(ctx, exec, base, "svc", "1.0", ShowFiles)
	require.NoError(t, err)
	assert.Contains(t, files.Files, "run.sh")
}
