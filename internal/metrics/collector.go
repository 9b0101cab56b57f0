// Package metrics collects process-wide diagnostic counters for the logging
// engine. Counters are updated atomically, readable at any time, and reset
// only by explicit caller action or process restart.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Collector tracks diagnostic counters for the logging pipeline.
type Collector struct {
	// Pipeline counters
	sampledOut       uint64
	droppedFromQueue uint64
	flushErrors      uint64
	persisted        uint64
	handlerErrors    uint64

	// Message counts by level
	messagesByLevel sync.Map // map[int]*atomic.Uint64

	// File operations
	rotationCount    uint64
	compressionCount uint64
	bytesWritten     uint64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Stats is a point-in-time snapshot of the diagnostic counters.
type Stats struct {
	SampledOut       uint64         `json:"sampled_out"`
	DroppedFromQueue uint64         `json:"dropped_from_queue"`
	FlushErrors      uint64         `json:"flush_errors"`
	Persisted        uint64         `json:"persisted"`
	HandlerErrors    uint64         `json:"handler_errors"`
	MessagesByLevel  map[int]uint64 `json:"messages_by_level,omitempty"`
	RotationCount    uint64         `json:"rotation_count"`
	CompressionCount uint64         `json:"compression_count"`
	BytesWritten     uint64         `json:"bytes_written"`
}

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() Stats {
	stats := Stats{
		SampledOut:       atomic.LoadUint64(&c.sampledOut),
		DroppedFromQueue: atomic.LoadUint64(&c.droppedFromQueue),
		FlushErrors:      atomic.LoadUint64(&c.flushErrors),
		Persisted:        atomic.LoadUint64(&c.persisted),
		HandlerErrors:    atomic.LoadUint64(&c.handlerErrors),
		RotationCount:    atomic.LoadUint64(&c.rotationCount),
		CompressionCount: atomic.LoadUint64(&c.compressionCount),
		BytesWritten:     atomic.LoadUint64(&c.bytesWritten),
		MessagesByLevel:  make(map[int]uint64),
	}

	c.messagesByLevel.Range(func(key, value interface{}) bool {
		level := key.(int)
		counter := value.(*atomic.Uint64)
		if count := counter.Load(); count > 0 {
			stats.MessagesByLevel[level] = count
		}
		return true
	})

	return stats
}

// Reset clears all counters.
func (c *Collector) Reset() {
	atomic.StoreUint64(&c.sampledOut, 0)
	atomic.StoreUint64(&c.droppedFromQueue, 0)
	atomic.StoreUint64(&c.flushErrors, 0)
	atomic.StoreUint64(&c.persisted, 0)
	atomic.StoreUint64(&c.handlerErrors, 0)
	atomic.StoreUint64(&c.rotationCount, 0)
	atomic.StoreUint64(&c.compressionCount, 0)
	atomic.StoreUint64(&c.bytesWritten, 0)

	c.messagesByLevel.Range(func(key, value interface{}) bool {
		value.(*atomic.Uint64).Store(0)
		return true
	})
}

// TrackSampledOut counts an entry suppressed by the sampling controller.
func (c *Collector) TrackSampledOut() {
	atomic.AddUint64(&c.sampledOut, 1)
}

// TrackDroppedFromQueue counts entries evicted from the store queue under
// backpressure or discarded at shutdown.
func (c *Collector) TrackDroppedFromQueue(n int) {
	if n > 0 {
		atomic.AddUint64(&c.droppedFromQueue, uint64(n))
	}
}

// TrackFlushError counts a batch abandoned after its retry budget.
func (c *Collector) TrackFlushError() {
	atomic.AddUint64(&c.flushErrors, 1)
}

// TrackPersisted counts entries successfully delivered to the store.
func (c *Collector) TrackPersisted(n int) {
	if n > 0 {
		atomic.AddUint64(&c.persisted, uint64(n))
	}
}

// TrackHandlerError counts a delivery failure in a synchronous handler.
func (c *Collector) TrackHandlerError() {
	atomic.AddUint64(&c.handlerErrors, 1)
}

// TrackMessageLogged increments the per-level message counter.
func (c *Collector) TrackMessageLogged(level int) {
	val, _ := c.messagesByLevel.LoadOrStore(level, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}

// TrackRotation increments the file rotation counter.
func (c *Collector) TrackRotation() {
	atomic.AddUint64(&c.rotationCount, 1)
}

// TrackCompression increments the rotated-file compression counter.
func (c *Collector) TrackCompression() {
	atomic.AddUint64(&c.compressionCount, 1)
}

// TrackBytesWritten records bytes written by the file handler.
func (c *Collector) TrackBytesWritten(n int64) {
	if n > 0 {
		atomic.AddUint64(&c.bytesWritten, uint64(n))
	}
}

// SampledOut returns the current sampled-out count.
func (c *Collector) SampledOut() uint64 {
	return atomic.LoadUint64(&c.sampledOut)
}

// DroppedFromQueue returns the current queue-drop count.
func (c *Collector) DroppedFromQueue() uint64 {
	return atomic.LoadUint64(&c.droppedFromQueue)
}

// FlushErrors returns the current flush-error count.
func (c *Collector) FlushErrors() uint64 {
	return atomic.LoadUint64(&c.flushErrors)
}

// Persisted returns the number of entries delivered to the store.
func (c *Collector) Persisted() uint64 {
	return atomic.LoadUint64(&c.persisted)
}
