package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotatingWriter appends to a log file and moves it aside once it grows
// past maxSize. Rotated files older than maxAge days are removed.
type RotatingWriter struct {
	mu          sync.Mutex
	filename    string
	maxSize     int64
	maxAge      int
	compress    bool
	currentFile *os.File
	currentSize int64
}

// NewRotatingWriter opens filename for appending. maxSizeMB <= 0 disables
// rotation.
func NewRotatingWriter(filename string, maxSizeMB, maxAge int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	rw := &RotatingWriter{
		filename:    filename,
		maxSize:     int64(maxSizeMB) * 1024 * 1024,
		maxAge:      maxAge,
		compress:    compress,
		currentFile: file,
		currentSize: info.Size(),
	}
	rw.cleanup()
	return rw, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxSize > 0 && w.currentSize > 0 && w.currentSize+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.currentFile.Write(p)
	w.currentSize += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	return err
}

// rotate must be called with mu held.
func (w *RotatingWriter) rotate() error {
	if err := w.currentFile.Close(); err != nil {
		return err
	}

	rotated := fmt.Sprintf("%s.%s", w.filename, time.Now().Format("20060102-150405.000"))
	if err := os.Rename(w.filename, rotated); err != nil {
		return err
	}
	if w.compress {
		go w.compressFile(rotated)
	}

	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	w.currentFile = file
	w.currentSize = 0

	go w.cleanup()
	return nil
}

func (w *RotatingWriter) compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(filename+".gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		dst.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(filename)
}

func (w *RotatingWriter) cleanup() {
	if w.maxAge <= 0 {
		return
	}

	files, err := filepath.Glob(w.filename + ".*")
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -w.maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(file)
		if !strings.HasSuffix(file, ".gz") {
			os.Remove(file + ".gz")
		}
	}
}
