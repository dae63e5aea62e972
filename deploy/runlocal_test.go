package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appdeploy/release"
)

func TestRunLocal_BuildsSimulatedLayeredTree(t *testing.T) {
	pkg, err := release.Load(buildPackageDir(t, "svc", "1.0"), "svc", "1.0")
	require.NoError(t, err)

	result, err := RunLocal(context.Background(), pkg, RunLocalOptions{})
	require.NoError(t, err)
	defer os.RemoveAll(result.Root)

	assert.Equal(t, "1.0", result.Version)
	_, err = os.Lstat(filepath.Join(result.Root, "svc", "run", "run.sh"))
	require.NoError(t, err)
}
