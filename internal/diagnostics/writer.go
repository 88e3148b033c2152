package diagnostics

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// fileWriter is one buffered text stream. The file is opened lazily on the
// first line and rolled to a timestamped backup past maxSize.
type fileWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64

	file   *os.File
	buf    *bufio.Writer
	size   int64
	closed bool
}

func newFileWriter(path string, maxSize int64) *fileWriter {
	return &fileWriter{path: path, maxSize: maxSize}
}

func (w *fileWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(w.path), err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.size = info.Size()
	return nil
}

// AppendLine writes line plus a newline, flushing when flush is set.
func (w *fileWriter) AppendLine(line string, flush bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if w.file == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	if err := w.rotateIfNeeded(); err != nil {
		return err
	}

	n, err := w.buf.WriteString(line + "\n")
	w.size += int64(n)
	if err != nil {
		return err
	}
	if flush {
		return w.buf.Flush()
	}
	return nil
}

// rotateIfNeeded rolls the current file once it exceeds maxSize. A file
// removed from under us counts as already rolled; a fresh one is opened
// either way so the stream keeps going. Caller holds mu.
func (w *fileWriter) rotateIfNeeded() error {
	if w.maxSize <= 0 || w.size < w.maxSize {
		return nil
	}

	flushErr := w.buf.Flush()
	w.file.Close()
	w.file, w.buf, w.size = nil, nil, 0

	backup := w.path + "." + time.Now().UTC().Format("20060102-150405.000")
	renameErr := os.Rename(w.path, backup)
	if errors.Is(renameErr, fs.ErrNotExist) {
		renameErr = nil
	}
	if err := w.open(); err != nil {
		return multierr.Combine(flushErr, renameErr, err)
	}
	return multierr.Combine(flushErr, renameErr)
}

// Flush pushes buffered lines to disk.
func (w *fileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}

// Close flushes and closes the file. Later writes are dropped.
func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil {
		return nil
	}
	ferr := w.buf.Flush()
	cerr := w.file.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}
