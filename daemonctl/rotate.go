package daemonctl

import (
	"fmt"
	"os"
	"sync"

	"appdeploy/config"
)

// RotatingWriter is the in-process equivalent of the composition rule's
// "tee-with-rotation" pipeline stage: every write goes to path, and once
// path exceeds MaxSizeMB it is renamed to path.N (shifting older
// generations up to MaxCount) before a fresh file is opened. Rotation is
// by size and count only; MaxAgeDays is not applied, so old generations
// are never pruned by age.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	maxCount int
	f        *os.File
	size     int64
}

// NewRotatingWriter opens (creating if needed) path for append and
// prepares rotation per cfg.Logging. A zero MaxSizeMB disables rotation;
// Write then behaves like a plain append-only file.
func NewRotatingWriter(path string, cfg config.Logging) (*RotatingWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	maxCount := cfg.MaxCount
	if maxCount <= 0 {
		maxCount = 5
	}
	return &RotatingWriter{
		path:     path,
		maxBytes: int64(cfg.MaxSizeMB) * 1024 * 1024,
		maxCount: maxCount,
		f:        f,
		size:     info.Size(),
	}, nil
}

// NeedsRotation reports whether rotation is configured at all.
func (w *RotatingWriter) NeedsRotation() bool { return w.maxBytes > 0 }

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.maxBytes > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) rotateLocked() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	oldest := fmt.Sprintf("%s.%d", w.path, w.maxCount)
	os.Remove(oldest)
	for i := w.maxCount - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", w.path, i)
		dst := fmt.Sprintf("%s.%d", w.path, i+1)
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	if _, err := os.Stat(w.path); err == nil {
		os.Rename(w.path, w.path+".1")
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.size = 0
	return nil
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
