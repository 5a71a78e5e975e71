package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotatingFile is an io.Writer that archives the log file once it grows
// past maxBytes. Archives are timestamped siblings of the live file
// (memsearchd-20060102-150405.log); the oldest are pruned so at most keep
// remain. Every write is synced so `memsearchd logs -f` sees records as
// they happen.
type RotatingFile struct {
	path     string
	maxBytes int64
	keep     int

	mu   sync.Mutex
	file *os.File
	size int64
}

// OpenRotating opens (or creates) the log file at path.
func OpenRotating(path string, maxBytes int64, keep int) (*RotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f := &RotatingFile{path: path, maxBytes: maxBytes, keep: keep}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RotatingFile) open() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	f.file = file
	f.size = info.Size()
	return nil
}

// Write implements io.Writer, rotating first when the record would push
// the file past maxBytes. A failed rotation falls back to writing into
// the oversized file rather than dropping the record.
func (f *RotatingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.size+int64(len(p)) > f.maxBytes {
		if err := f.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := f.file.Write(p)
	f.size += int64(n)
	if err == nil {
		_ = f.file.Sync()
	}
	return n, err
}

// rotate archives the live file under a timestamped name and reopens a
// fresh one. Caller holds f.mu.
func (f *RotatingFile) rotate() error {
	if f.file != nil {
		if err := f.file.Close(); err != nil {
			return fmt.Errorf("close before rotate: %w", err)
		}
		f.file = nil
	}

	archive := f.archiveName(time.Now().UTC())
	if err := os.Rename(f.path, archive); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive log file: %w", err)
	}
	f.prune()

	f.size = 0
	return f.open()
}

// archiveName returns a sibling path like memsearchd-20060102-150405.log,
// disambiguated with a zero-padded _NNN counter if a rotation already
// happened this second, so that names still sort chronologically.
func (f *RotatingFile) archiveName(now time.Time) string {
	stem := strings.TrimSuffix(f.path, filepath.Ext(f.path))
	base := fmt.Sprintf("%s-%s%s", stem, now.Format("20060102-150405"), filepath.Ext(f.path))
	name := base
	for n := 2; ; n++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s-%s_%03d%s", stem, now.Format("20060102-150405"), n, filepath.Ext(f.path))
	}
}

// Archives lists this log's rotated archives, oldest first.
func (f *RotatingFile) Archives() []string {
	stem := strings.TrimSuffix(f.path, filepath.Ext(f.path))
	matches, err := filepath.Glob(stem + "-*" + filepath.Ext(f.path))
	if err != nil {
		return nil
	}
	sort.Strings(matches) // timestamped names sort chronologically
	return matches
}

// prune removes archives beyond keep, oldest first. Best effort.
func (f *RotatingFile) prune() {
	archives := f.Archives()
	for len(archives) > f.keep {
		_ = os.Remove(archives[0])
		archives = archives[1:]
	}
}

// Sync flushes the live file to disk.
func (f *RotatingFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	return f.file.Sync()
}

// Close closes the live file.
func (f *RotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
