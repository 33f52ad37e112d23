package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RotatingFile is an io.WriteCloser that rotates the file at path once it
// would grow past a size limit: path becomes path.1, path.1 becomes path.2,
// and so on, keeping at most maxBackups old files. A single write is never
// split across files. Safe for concurrent use.
type RotatingFile struct {
	mu         sync.Mutex
	path       string
	limit      int64
	maxBackups int
	size       int64
	file       *os.File
}

var _ io.WriteCloser = (*RotatingFile)(nil)

// OpenRotatingFile opens (appending to) or creates the file at path, and its
// parent directory. maxSizeMB is clamped to at least 1, maxBackups to at
// least 0 (truncate on rotation).
func OpenRotatingFile(path string, maxSizeMB, maxBackups int) (*RotatingFile, error) {
	if maxSizeMB < 1 {
		maxSizeMB = 1
	}
	if maxBackups < 0 {
		maxBackups = 0
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("rotate: mkdir %s: %w", dir, err)
		}
	}
	w := &RotatingFile{
		path:       path,
		limit:      int64(maxSizeMB) << 20,
		maxBackups: maxBackups,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingFile) open() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("rotate: open %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("rotate: stat %s: %w", w.path, err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate requires w.mu.
func (w *RotatingFile) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("rotate: close %s: %w", w.path, err)
	}
	w.file = nil
	if w.maxBackups == 0 {
		_ = os.Remove(w.path)
	} else {
		_ = os.Remove(w.backup(w.maxBackups))
		for n := w.maxBackups - 1; n >= 1; n-- {
			_ = os.Rename(w.backup(n), w.backup(n+1))
		}
		_ = os.Rename(w.path, w.backup(1))
	}
	return w.open()
}

func (w *RotatingFile) backup(n int) string {
	return w.path + "." + strconv.Itoa(n)
}
