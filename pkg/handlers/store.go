package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/canopylog/canopy/internal/metrics"
	"github.com/canopylog/canopy/pkg/persist"
	"github.com/canopylog/canopy/pkg/types"
)

// StoreConfig controls the batching and retry behavior of the store
// handler.
type StoreConfig struct {
	// MinLevel is the minimum rank delivered to the store. Audit entries
	// bypass it.
	MinLevel types.Level
	// BatchSize is the maximum number of entries per persist call.
	BatchSize int
	// FlushInterval is how often the background loop flushes regardless of
	// batch fill.
	FlushInterval time.Duration
	// MaxQueueSize bounds the in-memory queue; the oldest entries are
	// evicted when it overflows.
	MaxQueueSize int
	// MaxRetries is the total number of persist attempts per batch.
	MaxRetries int
	// BaseDelay and MaxDelay bound the exponential backoff between
	// attempts.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// AuditOnly restricts the handler to audit entries. Used when the
	// store destination is disabled in configuration but a persister is
	// available: audit entries must still reach the store.
	AuditOnly bool
}

// queueItem wraps a queued entry with its enqueue time and attempt counter.
type queueItem struct {
	entry      *types.LogEntry
	enqueuedAt time.Time
	attempts   int
}

// StoreHandler batches entries in a bounded in-memory queue and flushes
// them asynchronously to an injected persistence capability. A log call
// never blocks on store I/O; under backpressure the oldest entries are
// evicted and counted, and a batch that exhausts its retry budget is
// dropped and counted. Failures are never raised back to application call
// sites.
type StoreHandler struct {
	mu       sync.Mutex
	queue    []queueItem
	flushing bool
	closed   bool

	cfg       StoreConfig
	persister persist.Persister
	collector *metrics.Collector
	warn      func(source, message string, err error)

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewStoreHandler creates and starts a store handler. The config is assumed
// to be validated by the logger configuration layer.
func NewStoreHandler(cfg StoreConfig, persister persist.Persister, collector *metrics.Collector, warn func(source, message string, err error)) *StoreHandler {
	if warn == nil {
		warn = func(string, string, error) {}
	}
	h := &StoreHandler{
		cfg:       cfg,
		persister: persister,
		collector: collector,
		warn:      warn,
		queue:     make([]queueItem, 0, cfg.BatchSize),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	h.wg.Add(1)
	go h.flushLoop()

	return h
}

// Name implements types.Handler.
func (h *StoreHandler) Name() string { return "store" }

// Handle implements types.Handler. Enqueue is O(1) with respect to store
// latency; the actual persist happens on the background flush loop.
func (h *StoreHandler) Handle(entry *types.LogEntry) error {
	if entry == nil {
		return nil
	}
	if entry.Level != types.LevelAudit {
		if h.cfg.AuditOnly {
			return nil
		}
		if entry.Level.Rank() < h.cfg.MinLevel {
			return nil
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}

	h.queue = append(h.queue, queueItem{entry: entry, enqueuedAt: time.Now()})

	// Backpressure: evict oldest first, favoring pipeline liveness over
	// log-stream completeness.
	if over := len(h.queue) - h.cfg.MaxQueueSize; over > 0 {
		h.queue = append(h.queue[:0], h.queue[over:]...)
		if h.collector != nil {
			h.collector.TrackDroppedFromQueue(over)
		}
	}

	full := len(h.queue) >= h.cfg.BatchSize
	h.mu.Unlock()

	if full {
		h.signal()
	}
	return nil
}

// Close drains the handler: one final flush pass bounded by ctx, after
// which anything still queued is counted as dropped rather than blocking
// process exit.
func (h *StoreHandler) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	close(h.done)
	h.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			h.discardRemaining()
			return ctx.Err()
		default:
		}

		batch := h.dequeueBatch()
		if len(batch) == 0 {
			return nil
		}
		h.persistWithRetry(ctx, batch)
	}
}

// Pending returns the current queue depth.
func (h *StoreHandler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// signal wakes the flush loop without blocking the caller.
func (h *StoreHandler) signal() {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

func (h *StoreHandler) flushLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.flushOnce()
		case <-h.kick:
			h.flushOnce()
		case <-h.done:
			return
		}
	}
}

// flushOnce drains up to one batch and persists it. A flush already in
// flight is never re-entered; re-entrant log calls made from inside a
// persist callback simply enqueue for the next cycle.
func (h *StoreHandler) flushOnce() {
	h.mu.Lock()
	if h.flushing {
		h.mu.Unlock()
		return
	}
	h.flushing = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.flushing = false
		refill := len(h.queue) >= h.cfg.BatchSize
		h.mu.Unlock()
		if refill {
			h.signal()
		}
	}()

	batch := h.dequeueBatch()
	if len(batch) == 0 {
		return
	}
	h.persistWithRetry(context.Background(), batch)
}

// dequeueBatch removes up to BatchSize items from the head of the queue,
// preserving FIFO order.
func (h *StoreHandler) dequeueBatch() []*types.LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.queue)
	if n == 0 {
		return nil
	}
	if n > h.cfg.BatchSize {
		n = h.cfg.BatchSize
	}

	batch := make([]*types.LogEntry, n)
	for i := 0; i < n; i++ {
		batch[i] = h.queue[i].entry
	}
	h.queue = append(h.queue[:0], h.queue[n:]...)
	return batch
}

// persistWithRetry attempts the batch up to MaxRetries times with
// exponential backoff. Permanent failures are dropped after the first
// attempt. An exhausted batch is dropped and counted; nothing propagates.
func (h *StoreHandler) persistWithRetry(ctx context.Context, batch []*types.LogEntry) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.cfg.BaseDelay
	bo.MaxInterval = h.cfg.MaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()

	maxAttempts := h.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := h.safePersist(ctx, batch)
		if err == nil {
			if h.collector != nil {
				h.collector.TrackPersisted(len(batch))
			}
			return
		}

		if persist.IsPermanent(err) || attempt >= maxAttempts {
			if h.collector != nil {
				h.collector.TrackFlushError()
			}
			h.warn("store_flush", "dropping batch after failed persist", err)
			return
		}

		wait := bo.NextBackOff()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			if h.collector != nil {
				h.collector.TrackFlushError()
			}
			return
		}
	}
}

// safePersist shields the flush loop from a panicking persister.
func (h *StoreHandler) safePersist(ctx context.Context, batch []*types.LogEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = persist.Permanent(panicError{r})
		}
	}()
	return h.persister.Persist(ctx, batch)
}

type panicError struct {
	value interface{}
}

func (e panicError) Error() string { return "persister panicked" }

// discardRemaining counts everything still queued as dropped.
func (h *StoreHandler) discardRemaining() {
	h.mu.Lock()
	remaining := len(h.queue)
	h.queue = nil
	h.mu.Unlock()

	if remaining > 0 && h.collector != nil {
		h.collector.TrackDroppedFromQueue(remaining)
	}
}
