package logging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	defaultMaxSizeMB  = 20
	defaultMaxBackups = 3
)

// RotatingWriter is a size-based log file rotator.
// It implements io.Writer and is safe for concurrent use.
type RotatingWriter struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxSize    int64
	maxBackups int
	written    int64
}

// NewRotatingWriter opens path for appending and rotates it once maxSizeMB is
// exceeded, keeping maxBackups numbered copies (path.1 is the newest).
func NewRotatingWriter(path string, maxSizeMB, maxBackups int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rw := &RotatingWriter{
		path:       path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// Write implements io.Writer.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fs.ErrClosed
	}

	if rw.written > 0 && rw.written+int64(len(p)) > rw.maxSize {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("log rotation: %w", err)
		}
	}

	n, err := rw.file.Write(p)
	rw.written += int64(n)
	return n, err
}

// Close closes the underlying file. Writes after Close fail.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

// Output builds the log destination for a config: stderr alone when path is
// empty, otherwise stderr teed with a rotating file. The returned closer is
// never nil.
func Output(path string, maxSizeMB, maxBackups int) (io.Writer, io.Closer, error) {
	if path == "" {
		return os.Stderr, io.NopCloser(nil), nil
	}
	rw, err := NewRotatingWriter(path, maxSizeMB, maxBackups)
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(os.Stderr, rw), rw, nil
}

func (rw *RotatingWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	rw.file = f
	rw.written = info.Size()
	return nil
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return err
	}

	// path.N is dropped, path.N-1 -> path.N, ..., path -> path.1
	if err := os.Remove(rw.backup(rw.maxBackups)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	for i := rw.maxBackups; i >= 1; i-- {
		if err := os.Rename(rw.backup(i-1), rw.backup(i)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	return rw.open()
}

func (rw *RotatingWriter) backup(index int) string {
	if index == 0 {
		return rw.path
	}
	return fmt.Sprintf("%s.%d", rw.path, index)
}
