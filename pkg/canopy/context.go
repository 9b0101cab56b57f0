package canopy

import (
	"context"
	"sync"

	"github.com/canopylog/canopy/pkg/types"
)

// logContextKey is the context.Context key under which the active
// LogContext travels.
type logContextKey struct{}

// WithLogContext returns a context carrying partial merged over whatever
// log context the parent already holds. Nested calls merge further without
// mutating the outer scope; two contexts derived from the same parent never
// observe each other's values.
func WithLogContext(ctx context.Context, partial *types.LogContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	parent := ActiveContext(ctx)
	return context.WithValue(ctx, logContextKey{}, parent.Merge(partial))
}

// ActiveContext returns the log context attached to ctx, or an empty
// context when none is attached. The returned value must not be mutated.
func ActiveContext(ctx context.Context) *types.LogContext {
	if ctx == nil {
		return &types.LogContext{}
	}
	if lc, ok := ctx.Value(logContextKey{}).(*types.LogContext); ok {
		return lc
	}
	return &types.LogContext{}
}

// ContextCarrier is the runtime-dependent mechanism that makes the ambient
// log context visible to log calls. Implicit propagation is an
// optimization, not a correctness dependency: explicitly passing a context
// always works on every carrier.
type ContextCarrier interface {
	// Attach binds partial (merged over the currently active context) to
	// the returned context.
	Attach(ctx context.Context, partial *types.LogContext) context.Context

	// Active resolves the context visible to a log call made with ctx.
	Active(ctx context.Context) *types.LogContext
}

// newCarrier selects the carrier variant for a runtime.
func newCarrier(rt types.Runtime) ContextCarrier {
	switch rt {
	case types.RuntimeBrowser:
		return &browserCarrier{}
	case types.RuntimeEdge:
		return edgeCarrier{}
	default:
		return serverCarrier{}
	}
}

// serverCarrier uses context.Context values, Go's execution-scoped storage.
// Concurrent units of work each derive their own context chain, so scopes
// are isolated without locks.
type serverCarrier struct{}

func (serverCarrier) Attach(ctx context.Context, partial *types.LogContext) context.Context {
	return WithLogContext(ctx, partial)
}

func (serverCarrier) Active(ctx context.Context) *types.LogContext {
	return ActiveContext(ctx)
}

// edgeCarrier is context-backed like the server carrier. Edge invocations
// are isolated per request, so a single overlay per invocation suffices;
// the distinction from serverCarrier is sizing, not storage.
type edgeCarrier struct{}

func (edgeCarrier) Attach(ctx context.Context, partial *types.LogContext) context.Context {
	return WithLogContext(ctx, partial)
}

func (edgeCarrier) Active(ctx context.Context) *types.LogContext {
	return ActiveContext(ctx)
}

// browserCarrier is best-effort: alongside the context chain it keeps one
// ambient slot, because browser code frequently logs without threading a
// context through every callback. There is no OS-level concurrency to
// isolate in a tab, so last-writer-wins on the ambient slot is acceptable.
type browserCarrier struct {
	mu      sync.Mutex
	ambient *types.LogContext
}

func (b *browserCarrier) Attach(ctx context.Context, partial *types.LogContext) context.Context {
	out := WithLogContext(ctx, partial)

	b.mu.Lock()
	b.ambient = b.ambient.Merge(partial)
	b.mu.Unlock()

	return out
}

func (b *browserCarrier) Active(ctx context.Context) *types.LogContext {
	if lc := ActiveContext(ctx); !isEmptyContext(lc) {
		return lc
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ambient == nil {
		return &types.LogContext{}
	}
	return b.ambient
}

func isEmptyContext(lc *types.LogContext) bool {
	if lc == nil {
		return true
	}
	return lc.RequestID == "" && lc.TraceID == "" && lc.CorrelationID == "" &&
		lc.UserID == "" && lc.TenantID == "" && lc.OrgID == "" &&
		lc.ResourceID == "" && lc.JobID == "" && lc.IP == "" &&
		lc.Entity == nil && len(lc.Tags) == 0 &&
		len(lc.FeatureFlags) == 0 && len(lc.Extra) == 0
}
