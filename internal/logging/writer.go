package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// logFile is the size-capped log sink behind logging.file. When a record
// would push the file past maxBytes, the file is shifted to <path>.1, older
// copies move up one slot, and anything past <path>.<keep> is removed.
type logFile struct {
	path     string
	maxBytes int64
	keep     int

	mu   sync.Mutex
	f    *os.File
	size int64
}

func openLogFile(path string, maxBytes int64, keep int) (*logFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	l := &logFile{path: path, maxBytes: maxBytes, keep: keep}
	f, size, err := l.open()
	if err != nil {
		return nil, err
	}
	l.f, l.size = f, size
	return l, nil
}

func (l *logFile) open() (*os.File, int64, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	return f, info.Size(), nil
}

// Write appends one record. slog hands each record over in a single call, so
// rotation never splits a line.
func (l *logFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return 0, os.ErrClosed
	}

	if l.size > 0 && l.size+int64(len(p)) > l.maxBytes {
		// On failure keep appending to the current file.
		_ = l.rotate()
	}
	n, err := l.f.Write(p)
	l.size += int64(n)
	return n, err
}

// rotate shifts the numbered copies and reopens path. The current file stays
// open until the new one is ready.
func (l *logFile) rotate() error {
	if l.keep <= 0 {
		if err := os.Truncate(l.path, 0); err != nil {
			return err
		}
		l.size = 0
		return nil
	}

	_ = os.Remove(l.slot(l.keep))
	for i := l.keep - 1; i >= 1; i-- {
		if err := os.Rename(l.slot(i), l.slot(i+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.Rename(l.path, l.slot(1)); err != nil {
		return err
	}

	f, size, err := l.open()
	if err != nil {
		return err
	}
	_ = l.f.Close()
	l.f, l.size = f, size
	return nil
}

func (l *logFile) slot(i int) string {
	return fmt.Sprintf("%s.%d", l.path, i)
}

// Close flushes and closes the file. Further writes fail.
func (l *logFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Sync()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
