package canopy

import (
	"context"

	"github.com/canopylog/canopy/pkg/types"
)

// AuditOption annotates an audit entry with compliance markers.
type AuditOption func(*auditSettings)

type auditSettings struct {
	compliance    []string
	retentionDays int
}

// WithCompliance tags the audit entry with the compliance standards it
// satisfies evidence requirements for (e.g. "soc2", "gdpr", "hipaa").
func WithCompliance(standards ...string) AuditOption {
	return func(s *auditSettings) {
		s.compliance = append(s.compliance, standards...)
	}
}

// WithRetention overrides the default retention period, in days, for this
// audit entry.
func WithRetention(days int) AuditOption {
	return func(s *auditSettings) {
		if days > 0 {
			s.retentionDays = days
		}
	}
}

// Audit records a compliance-relevant event. Audit entries bypass sampling
// and every destination severity threshold, and they reach the persistent
// store whenever a persister is configured, even with the store destination
// disabled.
func (l *Logger) Audit(ctx context.Context, msg string, metadata Metadata, opts ...AuditOption) {
	settings := auditSettings{retentionDays: l.cfg.DefaultAuditRetentionDays}
	for _, opt := range opts {
		opt(&settings)
	}

	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return
	}

	entry := l.buildEntry(ctx, types.LevelAudit, msg, nil, metadata)
	entry.Compliance = settings.compliance
	entry.RetentionDays = settings.retentionDays

	l.collector.TrackMessageLogged(int(types.LevelAudit))
	l.deliver(entry)
}
