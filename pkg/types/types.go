// Package types holds the shared data model for the canopy logging engine:
// log levels, the canonical LogEntry record, the mergeable LogContext, and
// the interfaces implemented by destination handlers and formatters.
package types

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Level identifies the severity or semantic class of a log entry.
// Trace through Fatal form an ordered scale; the remaining levels are
// semantic and rank against the ordered scale via Rank().
type Level int

const (
	// LevelTrace is the most verbose diagnostic level
	LevelTrace Level = iota
	// LevelDebug is detailed diagnostic information
	LevelDebug
	// LevelInfo is general application flow
	LevelInfo
	// LevelWarn indicates potentially harmful situations
	LevelWarn
	// LevelError indicates failures that require attention
	LevelError
	// LevelFatal indicates unrecoverable failures
	LevelFatal

	// LevelUserAction records a user-initiated action (ranks as info)
	LevelUserAction
	// LevelNotice records a noteworthy non-error event (ranks as info)
	LevelNotice
	// LevelSuccess records a successful business operation (ranks as info)
	LevelSuccess
	// LevelFailure records a failed business operation (ranks as error)
	LevelFailure
	// LevelAudit records a compliance-relevant event. Audit entries bypass
	// sampling and destination severity thresholds.
	LevelAudit
)

// Rank maps a level onto the ordered trace..fatal scale for threshold
// comparisons. Semantic levels borrow the rank of their closest ordered
// counterpart; audit ranks above everything so thresholds never reject it.
func (l Level) Rank() Level {
	switch l {
	case LevelUserAction, LevelNotice, LevelSuccess:
		return LevelInfo
	case LevelFailure:
		return LevelError
	case LevelAudit:
		return LevelFatal
	default:
		return l
	}
}

// Ordered reports whether the level belongs to the ordered severity scale.
func (l Level) Ordered() bool {
	return l >= LevelTrace && l <= LevelFatal
}

// String returns the canonical lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	case LevelUserAction:
		return "user_action"
	case LevelNotice:
		return "notice"
	case LevelSuccess:
		return "success"
	case LevelFailure:
		return "failure"
	case LevelAudit:
		return "audit"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the level as its string name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level from its string name.
func (l *Level) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseLevel(name)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel converts a level name to its Level constant. Names are matched
// case-insensitively.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	case "user_action":
		return LevelUserAction, nil
	case "notice":
		return LevelNotice, nil
	case "success":
		return LevelSuccess, nil
	case "failure":
		return LevelFailure, nil
	case "audit":
		return LevelAudit, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// ErrorCategory classifies an error for grouping and alerting.
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryNetwork        ErrorCategory = "network"
	CategoryDatabase       ErrorCategory = "database"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryAuthorization  ErrorCategory = "authorization"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryBusinessLogic  ErrorCategory = "business_logic"
	CategoryUnknown        ErrorCategory = "unknown"
)

// Runtime identifies the execution environment the engine is running in.
type Runtime string

const (
	// RuntimeServer is a long-lived server process with a durable filesystem
	RuntimeServer Runtime = "server"
	// RuntimeBrowser is a wasm build running in a browser tab
	RuntimeBrowser Runtime = "browser"
	// RuntimeEdge is a short-lived edge/worker execution context
	RuntimeEdge Runtime = "edge"
)

// RedactedMarker replaces scrubbed values in log entries.
const RedactedMarker = "[REDACTED]"

// CircularMarker replaces cyclic references found in metadata.
const CircularMarker = "[CIRCULAR]"

// EntityRef identifies the business entity a log entry relates to.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// PerformanceMetrics carries caller-supplied performance measurements.
type PerformanceMetrics struct {
	DurationMS     float64 `json:"duration_ms,omitempty"`
	MemoryBytes    uint64  `json:"memory_bytes,omitempty"`
	CPUPercent     float64 `json:"cpu_percent,omitempty"`
	EventLoopLagMS float64 `json:"event_loop_lag_ms,omitempty"`
	DBCalls        int     `json:"db_calls,omitempty"`
	DBTimeMS       float64 `json:"db_time_ms,omitempty"`
	APICalls       int     `json:"api_calls,omitempty"`
	APITimeMS      float64 `json:"api_time_ms,omitempty"`
}

// LogContext is the partial, mergeable identity context threaded through a
// unit of work. Child contexts inherit and override ancestor keys; merging
// never deletes a key set by an ancestor.
type LogContext struct {
	RequestID     string                 `json:"request_id,omitempty"`
	TraceID       string                 `json:"trace_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	UserID        string                 `json:"user_id,omitempty"`
	TenantID      string                 `json:"tenant_id,omitempty"`
	OrgID         string                 `json:"org_id,omitempty"`
	ResourceID    string                 `json:"resource_id,omitempty"`
	JobID         string                 `json:"job_id,omitempty"`
	IP            string                 `json:"ip,omitempty"`
	Entity        *EntityRef             `json:"entity,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	FeatureFlags  map[string]bool        `json:"feature_flags,omitempty"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// Clone returns a deep copy of the context.
func (c *LogContext) Clone() *LogContext {
	if c == nil {
		return &LogContext{}
	}
	out := *c
	if c.Entity != nil {
		entity := *c.Entity
		out.Entity = &entity
	}
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.FeatureFlags != nil {
		out.FeatureFlags = make(map[string]bool, len(c.FeatureFlags))
		for k, v := range c.FeatureFlags {
			out.FeatureFlags[k] = v
		}
	}
	if c.Extra != nil {
		out.Extra = make(map[string]interface{}, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// Merge returns a new context with overlay's set fields layered over the
// receiver. Tags are unioned, feature flags and extra keys are merged with
// the overlay winning on conflict. Neither input is mutated.
func (c *LogContext) Merge(overlay *LogContext) *LogContext {
	out := c.Clone()
	if overlay == nil {
		return out
	}
	if overlay.RequestID != "" {
		out.RequestID = overlay.RequestID
	}
	if overlay.TraceID != "" {
		out.TraceID = overlay.TraceID
	}
	if overlay.CorrelationID != "" {
		out.CorrelationID = overlay.CorrelationID
	}
	if overlay.UserID != "" {
		out.UserID = overlay.UserID
	}
	if overlay.TenantID != "" {
		out.TenantID = overlay.TenantID
	}
	if overlay.OrgID != "" {
		out.OrgID = overlay.OrgID
	}
	if overlay.ResourceID != "" {
		out.ResourceID = overlay.ResourceID
	}
	if overlay.JobID != "" {
		out.JobID = overlay.JobID
	}
	if overlay.IP != "" {
		out.IP = overlay.IP
	}
	if overlay.Entity != nil {
		entity := *overlay.Entity
		out.Entity = &entity
	}
	for _, tag := range overlay.Tags {
		if !containsString(out.Tags, tag) {
			out.Tags = append(out.Tags, tag)
		}
	}
	if len(overlay.FeatureFlags) > 0 {
		if out.FeatureFlags == nil {
			out.FeatureFlags = make(map[string]bool, len(overlay.FeatureFlags))
		}
		for k, v := range overlay.FeatureFlags {
			out.FeatureFlags[k] = v
		}
	}
	if len(overlay.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]interface{}, len(overlay.Extra))
		}
		for k, v := range overlay.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// LogEntry is the canonical, fully-resolved record produced by the
// enrichment pipeline and handed to every destination handler. Handlers
// must treat entries as read-only; they may transform a copy into their own
// wire format but never mutate the entry itself.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     Level  `json:"level"`
	Service   string `json:"service"`
	Message   string `json:"message"`
	Runtime   string `json:"runtime"`
	SessionID string `json:"session_id"`

	RequestID     string `json:"request_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	TenantID      string `json:"tenant_id,omitempty"`
	OrgID         string `json:"org_id,omitempty"`
	ResourceID    string `json:"resource_id,omitempty"`
	JobID         string `json:"job_id,omitempty"`
	IP            string `json:"ip,omitempty"`

	RequestSize  int64 `json:"request_size,omitempty"`
	ResponseSize int64 `json:"response_size,omitempty"`

	Error            string        `json:"error,omitempty"`
	ErrorCategory    ErrorCategory `json:"error_category,omitempty"`
	ErrorFingerprint string        `json:"error_fingerprint,omitempty"`

	Entity       *EntityRef          `json:"entity,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	FeatureFlags map[string]bool     `json:"feature_flags,omitempty"`
	Performance  *PerformanceMetrics `json:"performance,omitempty"`

	// Compliance markers are present only on audit entries.
	Compliance    []string `json:"compliance,omitempty"`
	RetentionDays int      `json:"retention_days,omitempty"`

	Version      string `json:"version,omitempty"`
	CommitSHA    string `json:"commit_sha,omitempty"`
	DeploymentID string `json:"deployment_id,omitempty"`
	Region       string `json:"region,omitempty"`
	Host         string `json:"host,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Handler is an independent destination sink. Each enabled handler receives
// every non-sampled-out entry; a failure in one handler never affects the
// others and is never surfaced to the logging call site.
type Handler interface {
	// Name identifies the handler in diagnostics and internal warnings.
	Name() string

	// Handle delivers one entry. Handle must not mutate the entry.
	Handle(entry *LogEntry) error

	// Close drains and releases handler resources, bounded by ctx.
	Close(ctx context.Context) error
}

// Formatter renders an entry into a destination's wire format.
type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}
