package daemonctl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards bytes.Buffer for concurrent writer/reader access
// between the Follow goroutine and the polling assertion below.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Contains(sub string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Contains(s.buf.Bytes(), []byte(sub))
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	writeLines(t, path, "INFO one", "WARN two", "INFO three", "ERROR four")

	lines, err := Tail(path, 2, LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"INFO three", "ERROR four"}, lines)
}

func TestHead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	writeLines(t, path, "INFO one", "WARN two", "INFO three")

	lines, err := Head(path, 2, LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"INFO one", "WARN two"}, lines)
}

func TestTail_FiltersByLevelAndSubstring(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	writeLines(t, path, "INFO starting up", "WARN disk low", "ERROR disk full", "INFO shutting down")

	lines, err := Tail(path, 10, LogFilter{Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, []string{"WARN disk low"}, lines)

	lines, err = Tail(path, 10, LogFilter{Substring: "disk"})
	require.NoError(t, err)
	assert.Equal(t, []string{"WARN disk low", "ERROR disk full"}, lines)
}

func TestFollow_StreamsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	buf := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, path, LogFilter{}, buf) }()

	time.Sleep(20 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("INFO appended line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return buf.Contains("appended line")
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
