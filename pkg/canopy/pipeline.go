package canopy

import (
	"context"
	"time"

	"github.com/canopylog/canopy/pkg/types"
)

// Metadata is the free-form field bag accepted by every log call.
type Metadata map[string]interface{}

// Identity keys recognized inside metadata. Values under these keys are
// lifted onto the corresponding entry field instead of remaining in the
// metadata bag, so per-call metadata can override the ambient context.
const (
	keyRequestID     = "request_id"
	keyTraceID       = "trace_id"
	keyCorrelationID = "correlation_id"
	keyUserID        = "user_id"
	keyTenantID      = "tenant_id"
	keyOrgID         = "org_id"
	keyResourceID    = "resource_id"
	keyJobID         = "job_id"
	keyIP            = "ip"
	keyRequestSize   = "request_size"
	keyResponseSize  = "response_size"
	keyDurationMS    = "duration_ms"
	keyEntityType    = "entity_type"
	keyEntityID      = "entity_id"
)

// buildEntry runs the enrichment pipeline for one log call: resolve the
// effective context (logger defaults, then the ambient scope, then the
// logger's bound fields), fold in per-call metadata, classify any error,
// scrub the result, and stamp the invariant fields. The returned entry is
// complete and safe to hand to every handler.
func (l *Logger) buildEntry(ctx context.Context, level types.Level, msg string, err error, metadata Metadata) *types.LogEntry {
	lc := l.effectiveContext(ctx)

	entry := &types.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Service:   l.cfg.Service,
		Message:   msg,
		Runtime:   string(l.cfg.Runtime),
		SessionID: SessionID(),

		RequestID:     lc.RequestID,
		TraceID:       lc.TraceID,
		CorrelationID: lc.CorrelationID,
		UserID:        lc.UserID,
		TenantID:      lc.TenantID,
		OrgID:         lc.OrgID,
		ResourceID:    lc.ResourceID,
		JobID:         lc.JobID,
		IP:            lc.IP,

		Entity:       lc.Entity,
		Tags:         lc.Tags,
		FeatureFlags: lc.FeatureFlags,

		Version:      l.cfg.Version,
		CommitSHA:    l.cfg.CommitSHA,
		DeploymentID: l.cfg.DeploymentID,
		Region:       l.cfg.Region,
		Host:         l.cfg.Host,
	}

	if err != nil {
		entry.Error = err.Error()
		entry.ErrorCategory, entry.ErrorFingerprint = Classify(err)
	}

	merged := mergeMetadata(lc.Extra, metadata)
	merged = liftIdentityKeys(entry, merged)
	if len(merged) > 0 {
		entry.Metadata = l.scrubber.Scrub(merged)
	}
	entry.Message = l.scrubber.ScrubString(entry.Message)
	if entry.Error != "" {
		entry.Error = l.scrubber.ScrubString(entry.Error)
	}

	return entry
}

// effectiveContext resolves the identity context for one call: the logger's
// default context, overlaid by the ambient scope from the carrier, overlaid
// by the logger's bound fields (Child bindings win over inherited scope).
func (l *Logger) effectiveContext(ctx context.Context) *types.LogContext {
	l.mu.RLock()
	base := l.defaultCtx
	l.mu.RUnlock()

	out := base.Merge(l.carrier.Active(ctx))
	if l.bound != nil {
		out = out.Merge(l.bound)
	}
	return out
}

// mergeMetadata layers per-call metadata over the context's extra fields.
// Neither input map is mutated.
func mergeMetadata(extra map[string]interface{}, metadata Metadata) map[string]interface{} {
	if len(extra) == 0 && len(metadata) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(extra)+len(metadata))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

// liftIdentityKeys moves well-known identity and measurement keys from the
// metadata bag onto the entry's first-class fields, returning the remaining
// metadata.
func liftIdentityKeys(entry *types.LogEntry, metadata map[string]interface{}) map[string]interface{} {
	if len(metadata) == 0 {
		return metadata
	}

	lift := func(key string, dst *string) {
		if v, ok := metadata[key]; ok {
			if s, ok := v.(string); ok {
				*dst = s
				delete(metadata, key)
			}
		}
	}
	lift(keyRequestID, &entry.RequestID)
	lift(keyTraceID, &entry.TraceID)
	lift(keyCorrelationID, &entry.CorrelationID)
	lift(keyUserID, &entry.UserID)
	lift(keyTenantID, &entry.TenantID)
	lift(keyOrgID, &entry.OrgID)
	lift(keyResourceID, &entry.ResourceID)
	lift(keyJobID, &entry.JobID)
	lift(keyIP, &entry.IP)

	if n, ok := asInt64(metadata[keyRequestSize]); ok {
		entry.RequestSize = n
		delete(metadata, keyRequestSize)
	}
	if n, ok := asInt64(metadata[keyResponseSize]); ok {
		entry.ResponseSize = n
		delete(metadata, keyResponseSize)
	}
	if d, ok := asFloat64(metadata[keyDurationMS]); ok {
		if entry.Performance == nil {
			entry.Performance = &types.PerformanceMetrics{}
		}
		entry.Performance.DurationMS = d
		delete(metadata, keyDurationMS)
	}

	entityType, hasType := metadata[keyEntityType].(string)
	entityID, hasID := metadata[keyEntityID].(string)
	if hasType && hasID {
		entry.Entity = &types.EntityRef{Type: entityType, ID: entityID}
		delete(metadata, keyEntityType)
		delete(metadata, keyEntityID)
	}

	if v, ok := metadata["performance"]; ok {
		if perf, ok := v.(*types.PerformanceMetrics); ok {
			entry.Performance = perf
			delete(metadata, "performance")
		} else if perf, ok := v.(types.PerformanceMetrics); ok {
			entry.Performance = &perf
			delete(metadata, "performance")
		}
	}

	return metadata
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case time.Duration:
		return float64(n) / float64(time.Millisecond), true
	default:
		return 0, false
	}
}
