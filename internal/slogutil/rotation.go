package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dustin/go-humanize"
)

// RotatingFile is an append-only log file that is shifted to numbered
// backups (daemon.log.1, daemon.log.2, ...) when a write would push it past
// its size limit. A limit of 0 never rotates.
type RotatingFile struct {
	mu      sync.Mutex
	path    string
	limit   int64
	backups int
	f       *os.File
	written int64
}

func OpenRotatingFile(path string, maxSize int64, maxBackups int) (*RotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rf := &RotatingFile{path: path, limit: maxSize, backups: maxBackups}
	if err := rf.reopen(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) reopen() error {
	f, err := os.OpenFile(rf.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	rf.f, rf.written = f, st.Size()
	return nil
}

func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.limit > 0 && rf.written > 0 && rf.written+int64(len(p)) > rf.limit {
		// On failure keep writing to whatever is open.
		_ = rf.shift()
	}
	if rf.f == nil {
		return 0, os.ErrClosed
	}
	n, err := rf.f.Write(p)
	rf.written += int64(n)
	return n, err
}

func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.f == nil {
		return nil
	}
	err := rf.f.Close()
	rf.f = nil
	return err
}

// shift closes the live file, moves path.(n-1) to path.n down to path to
// path.1, and opens a fresh file. The oldest backup is overwritten.
func (rf *RotatingFile) shift() error {
	if err := rf.f.Close(); err != nil {
		return err
	}
	rf.f = nil

	if rf.backups <= 0 {
		_ = os.Remove(rf.path)
	} else {
		for n := rf.backups; n > 1; n-- {
			_ = os.Rename(rf.numbered(n-1), rf.numbered(n))
		}
		_ = os.Rename(rf.path, rf.numbered(1))
	}
	return rf.reopen()
}

func (rf *RotatingFile) numbered(n int) string {
	return rf.path + "." + strconv.Itoa(n)
}

// NewRotatingFileLogger opens path as a RotatingFile and returns a logger on
// it. maxSize takes human sizes like "10MiB" or "500 kB"; empty disables
// rotation. The caller closes the returned io.Closer.
func NewRotatingFileLogger(path string, level slog.Level, maxSize string, maxBackups int) (*slog.Logger, io.Closer, error) {
	var limit uint64
	if maxSize != "" {
		var err error
		if limit, err = humanize.ParseBytes(maxSize); err != nil {
			return nil, nil, fmt.Errorf("invalid log size %q: %w", maxSize, err)
		}
	}
	rf, err := OpenRotatingFile(path, int64(limit), maxBackups)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(rf, level), rf, nil
}
