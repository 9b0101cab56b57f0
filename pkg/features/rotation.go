package features

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationTimeFormat is the timestamp format used for rotated log files.
// The format is sortable and includes millisecond precision to avoid
// collisions. Example: "20240115-143052.123"
const RotationTimeFormat = "20060102-150405.000"

// RotationPolicy describes when the active log file is rotated and how long
// rotated files are kept.
type RotationPolicy struct {
	// MaxSize rotates when the active file would exceed this many bytes.
	// Zero disables size-based rotation.
	MaxSize int64
	// MaxAge rotates when the active file has been open this long.
	// Zero disables age-based rotation.
	MaxAge time.Duration
	// MaxFiles is the number of rotated files to retain. Zero keeps all.
	MaxFiles int
	// Retention deletes rotated files older than this. Zero keeps all.
	Retention time.Duration
	// Compress gzips rotated files.
	Compress bool
}

// RotationManager decides rotation triggers and prunes rotated files beyond
// the retention window.
type RotationManager struct {
	mu           sync.RWMutex
	policy       RotationPolicy
	errorHandler func(source, dest, msg string, err error)
	metrics      func()
}

// NewRotationManager creates a manager for the given policy.
func NewRotationManager(policy RotationPolicy) *RotationManager {
	return &RotationManager{policy: policy}
}

// SetErrorHandler sets the error reporting callback.
func (r *RotationManager) SetErrorHandler(handler func(source, dest, msg string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorHandler = handler
}

// SetMetricsHandler sets the callback invoked on each rotation.
func (r *RotationManager) SetMetricsHandler(handler func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = handler
}

// Policy returns the active rotation policy.
func (r *RotationManager) Policy() RotationPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// NeedsRotation reports whether appending entrySize bytes to a file of
// currentSize, opened at openedAt, should trigger a rotation first.
func (r *RotationManager) NeedsRotation(currentSize, entrySize int64, openedAt time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.policy.MaxSize > 0 && currentSize+entrySize > r.policy.MaxSize {
		return true
	}
	if r.policy.MaxAge > 0 && time.Since(openedAt) >= r.policy.MaxAge {
		return true
	}
	return false
}

// RotatedName returns the destination name for the active file at path when
// it is rotated now.
func (r *RotationManager) RotatedName(path string) string {
	return fmt.Sprintf("%s.%s", path, time.Now().UTC().Format(RotationTimeFormat))
}

// TrackRotation invokes the rotation metrics callback.
func (r *RotationManager) TrackRotation() {
	r.mu.RLock()
	handler := r.metrics
	r.mu.RUnlock()
	if handler != nil {
		handler()
	}
}

// RunCleanup removes rotated files for path that exceed MaxFiles or are
// older than Retention. The active file is never removed.
func (r *RotationManager) RunCleanup(path string) error {
	r.mu.RLock()
	policy := r.policy
	errorHandler := r.errorHandler
	r.mu.RUnlock()

	if policy.MaxFiles <= 0 && policy.Retention <= 0 {
		return nil
	}

	rotated, err := listRotatedFiles(path)
	if err != nil {
		return err
	}

	// Oldest first so count-based pruning removes from the tail of history.
	sort.Slice(rotated, func(i, j int) bool {
		return rotated[i].modTime.Before(rotated[j].modTime)
	})

	var removeErr error
	remove := func(name string) {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			removeErr = err
			if errorHandler != nil {
				errorHandler("rotation", path, "Failed to remove rotated file", err)
			}
		}
	}

	if policy.Retention > 0 {
		cutoff := time.Now().Add(-policy.Retention)
		kept := rotated[:0]
		for _, f := range rotated {
			if f.modTime.Before(cutoff) {
				remove(f.name)
				continue
			}
			kept = append(kept, f)
		}
		rotated = kept
	}

	if policy.MaxFiles > 0 && len(rotated) > policy.MaxFiles {
		for _, f := range rotated[:len(rotated)-policy.MaxFiles] {
			remove(f.name)
		}
	}

	return removeErr
}

type rotatedFile struct {
	name    string
	modTime time.Time
}

// listRotatedFiles finds rotated siblings of the active log file at path,
// including already-compressed ones.
func listRotatedFiles(path string) ([]rotatedFile, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []rotatedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == base || !strings.HasPrefix(name, base+".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, rotatedFile{
			name:    filepath.Join(dir, name),
			modTime: info.ModTime(),
		})
	}
	return out, nil
}
