package handlers

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/canopylog/canopy/internal/metrics"
	"github.com/canopylog/canopy/pkg/features"
	"github.com/canopylog/canopy/pkg/formatters"
	"github.com/canopylog/canopy/pkg/types"
)

const fileBufferSize = 32 * 1024

// FileHandler appends newline-delimited JSON to a log file and rotates it
// per the configured policy. It only runs on the server runtime; other
// runtimes have no durable filesystem.
//
// If the filesystem becomes unwritable the handler emits a one-time
// internal warning and disables itself for the remainder of the process
// instead of failing every subsequent call.
type FileHandler struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *bufio.Writer
	lock      *flock.Flock
	size      int64
	openedAt  time.Time
	formatter types.Formatter
	minLevel  types.Level
	disabled  bool

	rotation    *features.RotationManager
	compression *features.CompressionManager
	collector   *metrics.Collector

	// warn reports internal faults, typically through the console handler.
	warn func(source, message string, err error)
}

// NewFileHandler opens (or creates) the log file at path and acquires a
// process lock next to it so concurrent processes do not interleave
// rotations.
func NewFileHandler(path string, minLevel types.Level, policy features.RotationPolicy, collector *metrics.Collector, warn func(source, message string, err error)) (*FileHandler, error) {
	if path == "" {
		return nil, errors.New("file handler: empty path")
	}
	if warn == nil {
		warn = func(string, string, error) {}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating log directory")
	}

	h := &FileHandler{
		path:        path,
		formatter:   formatters.NewJSONFormatter(),
		minLevel:    minLevel,
		rotation:    features.NewRotationManager(policy),
		compression: features.NewCompressionManager(1),
		collector:   collector,
		warn:        warn,
	}
	h.rotation.SetErrorHandler(func(source, dest, msg string, err error) {
		warn(source, msg, err)
	})
	h.compression.SetErrorHandler(func(source, dest, msg string, err error) {
		warn(source, msg, err)
	})
	if collector != nil {
		h.rotation.SetMetricsHandler(collector.TrackRotation)
		h.compression.SetMetricsHandler(collector.TrackCompression)
	}
	if policy.Compress {
		h.compression.Start()
	}

	h.lock = flock.New(path + ".lock")
	if err := h.lock.Lock(); err != nil {
		return nil, errors.Wrap(err, "acquiring file lock")
	}

	if err := h.open(); err != nil {
		h.lock.Unlock() //nolint:errcheck
		return nil, err
	}

	return h, nil
}

// Name implements types.Handler.
func (h *FileHandler) Name() string { return "file" }

// Handle implements types.Handler. Write failures disable the handler
// rather than propagating; the error return exists so the dispatcher can
// count it.
func (h *FileHandler) Handle(entry *types.LogEntry) error {
	if entry == nil {
		return nil
	}
	if entry.Level.Rank() < h.minLevel {
		return nil
	}

	line, err := h.formatter.Format(entry)
	if err != nil {
		return errors.Wrap(err, "format entry")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disabled {
		return nil
	}

	if h.rotation.NeedsRotation(h.size, int64(len(line)), h.openedAt) {
		if err := h.rotateLocked(); err != nil {
			h.disableLocked("rotation", err)
			return err
		}
	}

	n, err := h.writer.Write(line)
	if err == nil {
		err = h.writer.Flush()
	}
	if err != nil {
		h.disableLocked("write", err)
		return err
	}

	h.size += int64(n)
	if h.collector != nil {
		h.collector.TrackBytesWritten(int64(n))
	}
	return nil
}

// Close implements types.Handler: flushes, releases the process lock and
// waits for pending compressions.
func (h *FileHandler) Close(ctx context.Context) error {
	h.mu.Lock()
	var closeErr error
	if h.writer != nil {
		closeErr = h.writer.Flush()
	}
	if h.file != nil {
		if err := h.file.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		h.file = nil
		h.writer = nil
	}
	if h.lock != nil {
		h.lock.Unlock() //nolint:errcheck
	}
	h.disabled = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.compression.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return closeErr
}

// open opens the active log file for appending. Caller holds h.mu or has
// exclusive access during construction.
func (h *FileHandler) open() error {
	file, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening log file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return errors.Wrap(err, "stat log file")
	}

	h.file = file
	h.writer = bufio.NewWriterSize(file, fileBufferSize)
	h.size = info.Size()
	h.openedAt = time.Now()
	return nil
}

// rotateLocked closes the active file, renames it to its rotated name,
// queues compression when configured and reopens a fresh file. Caller holds
// h.mu.
func (h *FileHandler) rotateLocked() error {
	if err := h.writer.Flush(); err != nil {
		return errors.Wrap(err, "flush before rotation")
	}
	if err := h.file.Close(); err != nil {
		return errors.Wrap(err, "close before rotation")
	}
	h.file = nil
	h.writer = nil

	rotated := h.rotation.RotatedName(h.path)
	if err := os.Rename(h.path, rotated); err != nil {
		return errors.Wrap(err, "rename rotated file")
	}

	h.rotation.TrackRotation()
	if h.rotation.Policy().Compress {
		h.compression.Enqueue(rotated)
	}

	// Prune old files off the hot path.
	go h.rotation.RunCleanup(h.path) //nolint:errcheck

	return h.open()
}

// disableLocked marks the handler dead for the rest of the process and
// reports the fault once. Caller holds h.mu.
func (h *FileHandler) disableLocked(source string, err error) {
	if h.disabled {
		return
	}
	h.disabled = true
	h.warn("file_handler_"+source, "file handler disabled, log file unwritable", err)
	if h.file != nil {
		h.file.Close()
		h.file = nil
		h.writer = nil
	}
	if h.lock != nil {
		h.lock.Unlock() //nolint:errcheck
	}
}
