package daemonctl

import (
	"os"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_ReportsRunningSelfProcess(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("/proc introspection is Linux-specific")
	}
	dir := t.TempDir()
	pidFile := dir + "/.pid"
	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644))

	c := &Controller{App: "self", PIDFile: pidFile}
	st, err := c.Status()
	require.NoError(t, err)

	assert.True(t, st.Running)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Greater(t, st.MemoryKB, int64(0))
	assert.Greater(t, st.Threads, 0)
	assert.NotEmpty(t, st.Tree)
	assert.Equal(t, os.Getpid(), st.Tree[0])
}

func TestStatus_NoPIDFileMeansNotRunning(t *testing.T) {
	dir := t.TempDir()
	c := &Controller{App: "none", PIDFile: dir + "/.pid"}
	st, err := c.Status()
	require.NoError(t, err)
	assert.False(t, st.Running)
}
