package canopy

import (
	"context"
	"sync"

	"github.com/canopylog/canopy/internal/metrics"
	"github.com/canopylog/canopy/pkg/features"
	"github.com/canopylog/canopy/pkg/formatters"
	"github.com/canopylog/canopy/pkg/handlers"
	"github.com/canopylog/canopy/pkg/types"
)

// core is the engine state shared between a logger and all its children:
// configuration, destinations, sampling, scrubbing and diagnostics. Child
// loggers differ only in their bound context.
type core struct {
	cfg     *Config
	carrier ContextCarrier

	sampler   *features.SamplingController
	scrubber  *features.Scrubber
	collector *metrics.Collector

	// handlers in fan-out order; console, file, store refs kept separately
	// so Shutdown can drain asynchronous destinations first.
	handlers []types.Handler
	console  *handlers.ConsoleHandler
	file     *handlers.FileHandler
	store    *handlers.StoreHandler

	mu         sync.RWMutex
	defaultCtx *types.LogContext
	closed     bool

	warnMu sync.Mutex
	warned map[string]bool
}

// Logger is the engine's front door. One log call runs the enrichment
// pipeline exactly once, applies one sampling decision, and fans the
// resulting entry out to every enabled destination independently. No log
// call ever returns an error or panics into the application.
//
// Loggers are safe for concurrent use. Child loggers share destinations and
// diagnostics with their parent.
type Logger struct {
	*core

	// bound is layered over the ambient scope on every entry this logger
	// emits. Immutable after construction.
	bound *types.LogContext
}

// New builds a Logger from defaults plus the given options. Construction
// fails fast on invalid configuration; a constructed Logger never fails a
// log call.
func New(opts ...Option) (*Logger, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyRuntimeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &core{
		cfg:        cfg,
		carrier:    newCarrier(cfg.Runtime),
		scrubber:   features.NewScrubber(cfg.ScrubFields, cfg.ScrubPatterns),
		collector:  metrics.NewCollector(),
		defaultCtx: &types.LogContext{},
		warned:     make(map[string]bool),
	}
	l := &Logger{core: c}

	c.sampler = features.NewSamplingController(cfg.SamplingRate, cfg.SampledLevels)
	c.sampler.SetMetricsHandler(c.collector.TrackSampledOut)

	if cfg.ConsoleEnabled {
		var formatter types.Formatter
		if cfg.ConsoleJSON {
			formatter = formatters.NewJSONFormatter()
		} else {
			formatter = formatters.NewTextFormatter()
		}
		c.console = handlers.NewConsoleHandler(formatter, cfg.ConsoleMinLevel, cfg.ConsoleOut, cfg.ConsoleErr)
		c.handlers = append(c.handlers, c.console)
	}

	if cfg.FileEnabled {
		fh, err := handlers.NewFileHandler(cfg.FilePath, cfg.FileMinLevel, cfg.FileRotation, c.collector, l.internalWarn)
		if err != nil {
			return nil, err
		}
		c.file = fh
		c.handlers = append(c.handlers, fh)
	}

	// Audit entries must reach the store whenever a persister exists, even
	// with the store destination disabled.
	if cfg.Persister != nil {
		c.store = handlers.NewStoreHandler(handlers.StoreConfig{
			MinLevel:      cfg.StoreMinLevel,
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval,
			MaxQueueSize:  cfg.MaxQueueSize,
			MaxRetries:    cfg.MaxRetries,
			BaseDelay:     cfg.RetryBaseDelay,
			MaxDelay:      cfg.RetryMaxDelay,
			AuditOnly:     !cfg.StoreEnabled,
		}, cfg.Persister, c.collector, l.internalWarn)
		c.handlers = append(c.handlers, c.store)
	}

	return l, nil
}

// Trace logs at trace level.
func (l *Logger) Trace(ctx context.Context, msg string, metadata ...Metadata) {
	l.dispatch(ctx, types.LevelTrace, msg, nil, flatten(metadata))
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, metadata ...Metadata) {
	l.dispatch(ctx, types.LevelDebug, msg, nil, flatten(metadata))
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, metadata ...Metadata) {
	l.dispatch(ctx, types.LevelInfo, msg, nil, flatten(metadata))
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, metadata ...Metadata) {
	l.dispatch(ctx, types.LevelWarn, msg, nil, flatten(metadata))
}

// Error logs a failure requiring attention. err may be nil; when present it
// is categorized and fingerprinted.
func (l *Logger) Error(ctx context.Context, msg string, err error, metadata ...Metadata) {
	l.dispatch(ctx, types.LevelError, msg, err, flatten(metadata))
}

// Fatal logs an unrecoverable failure. It does not exit the process; that
// decision stays with the caller.
func (l *Logger) Fatal(ctx context.Context, msg string, err error, metadata ...Metadata) {
	l.dispatch(ctx, types.LevelFatal, msg, err, flatten(metadata))
}

// UserAction records a user-initiated action.
func (l *Logger) UserAction(ctx context.Context, msg string, metadata ...Metadata) {
	l.dispatch(ctx, types.LevelUserAction, msg, nil, flatten(metadata))
}

// Notice records a noteworthy non-error event.
func (l *Logger) Notice(ctx context.Context, msg string, metadata ...Metadata) {
	l.dispatch(ctx, types.LevelNotice, msg, nil, flatten(metadata))
}

// Success records a successful business operation.
func (l *Logger) Success(ctx context.Context, msg string, metadata ...Metadata) {
	l.dispatch(ctx, types.LevelSuccess, msg, nil, flatten(metadata))
}

// Failure records a failed business operation.
func (l *Logger) Failure(ctx context.Context, msg string, err error, metadata ...Metadata) {
	l.dispatch(ctx, types.LevelFailure, msg, err, flatten(metadata))
}

// WithContext attaches partial, merged over the currently active scope, to
// the returned context. Log calls made with that context see the merged
// identity fields.
func (l *Logger) WithContext(ctx context.Context, partial *types.LogContext) context.Context {
	return l.carrier.Attach(ctx, partial)
}

// WithScope runs fn with partial merged over the currently active scope.
// Every log call made synchronously or asynchronously inside fn's call
// graph (using the context fn receives) observes the merged scope; the
// outer scope is never mutated.
func (l *Logger) WithScope(ctx context.Context, partial *types.LogContext, fn func(ctx context.Context)) {
	fn(l.carrier.Attach(ctx, partial))
}

// AddContext merges partial into the logger's default context, visible to
// every subsequent log call on this logger and its children.
func (l *Logger) AddContext(partial *types.LogContext) {
	l.mu.Lock()
	l.defaultCtx = l.defaultCtx.Merge(partial)
	l.mu.Unlock()
}

// Child returns a logger sharing this logger's destinations and pipeline
// but with bindings layered over every entry it emits. Child bindings win
// over the ambient scope.
func (l *Logger) Child(bindings *types.LogContext) *Logger {
	return &Logger{
		core:  l.core,
		bound: l.bound.Merge(bindings),
	}
}

// GetStats returns a snapshot of the diagnostic counters.
func (l *Logger) GetStats() metrics.Stats {
	return l.collector.Snapshot()
}

// ResetStats clears the diagnostic counters.
func (l *Logger) ResetStats() {
	l.collector.Reset()
}

// Shutdown flushes and closes every destination: the store first (it holds
// queued entries), then the file, then the console. Bounded by ctx, or by
// the configured shutdown timeout when ctx carries no deadline. Log calls
// made after Shutdown are silently dropped.
func (l *Logger) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.ShutdownTimeout)
		defer cancel()
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.store != nil {
		record(l.store.Close(ctx))
	}
	if l.file != nil {
		record(l.file.Close(ctx))
	}
	if l.console != nil {
		record(l.console.Close(ctx))
	}
	return firstErr
}

// dispatch is the single choke point every log call funnels through:
// closed check, one sampling decision, one pipeline run, then independent
// fan-out.
func (l *Logger) dispatch(ctx context.Context, level types.Level, msg string, err error, metadata Metadata) {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return
	}

	// Audit entries are exempt from sampling.
	if level != types.LevelAudit && !l.sampler.ShouldSample(level) {
		return
	}

	entry := l.buildEntry(ctx, level, msg, err, metadata)
	l.collector.TrackMessageLogged(int(level))
	l.deliver(entry)
}

// deliver fans one entry out to every handler. A handler failure is counted
// and reported internally; it never reaches the application and never stops
// delivery to the remaining handlers.
func (l *Logger) deliver(entry *types.LogEntry) {
	for _, h := range l.handlers {
		if err := h.Handle(entry); err != nil {
			l.collector.TrackHandlerError()
			l.internalWarn(h.Name(), "handler failed to deliver entry", err)
		}
	}
}

// internalWarn reports an engine-internal fault through the console, once
// per source, so a persistent fault cannot flood the output or recurse into
// the failing destination.
func (l *Logger) internalWarn(source, message string, err error) {
	l.warnMu.Lock()
	if l.warned[source] {
		l.warnMu.Unlock()
		return
	}
	l.warned[source] = true
	l.warnMu.Unlock()

	if l.console == nil {
		return
	}
	entry := l.buildEntry(context.Background(), types.LevelWarn, message, err, Metadata{
		"internal": true,
		"source":   source,
	})
	l.console.Handle(entry) //nolint:errcheck
}

// flatten folds the variadic metadata maps into one. Later maps win.
func flatten(maps []Metadata) Metadata {
	switch len(maps) {
	case 0:
		return nil
	case 1:
		return maps[0]
	}
	out := make(Metadata)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
