package daemonctl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appdeploy/config"
)

func TestRotatingWriter_NoRotationConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	w, err := NewRotatingWriter(path, config.Logging{})
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.NeedsRotation())
	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRotatingWriter_RotatesOnSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	w, err := NewRotatingWriter(path, config.Logging{MaxSizeMB: 0, MaxCount: 2})
	require.NoError(t, err)
	// Force a tiny threshold directly, since MaxSizeMB in MB is too coarse
	// to exercise rotation in a unit test.
	w.maxBytes = 10
	defer w.Close()

	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = w.Write([]byte("overflow-line\n"))
	require.NoError(t, err)

	rotated := path + ".1"
	assert.FileExists(t, rotated)
	assert.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "overflow-line\n", string(data))
}

func TestRotatingWriter_CapsGenerationCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	w, err := NewRotatingWriter(path, config.Logging{MaxCount: 2})
	require.NoError(t, err)
	w.maxBytes = 1
	defer w.Close()

	for i := 0; i < 4; i++ {
		_, err = w.Write([]byte("x"))
		require.NoError(t, err)
	}

	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}
