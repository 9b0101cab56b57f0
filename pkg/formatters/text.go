package formatters

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/canopylog/canopy/pkg/types"
)

// TextFormatter renders entries as a human-readable line:
//
//	2024-01-15T14:30:52Z [INFO] checkout: payment captured request_id=abc user_id=42
type TextFormatter struct {
	// FieldSeparator joins the trailing key=value pairs. Defaults to a
	// single space.
	FieldSeparator string
}

// NewTextFormatter creates a text formatter with default separators.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{FieldSeparator: " "}
}

// Format implements types.Formatter.
func (f *TextFormatter) Format(entry *types.LogEntry) ([]byte, error) {
	if entry == nil {
		return nil, fmt.Errorf("nil log entry")
	}

	sep := f.FieldSeparator
	if sep == "" {
		sep = " "
	}

	var buf bytes.Buffer
	buf.WriteString(entry.Timestamp)
	buf.WriteString(" [")
	buf.WriteString(strings.ToUpper(entry.Level.String()))
	buf.WriteString("] ")
	if entry.Service != "" {
		buf.WriteString(entry.Service)
		buf.WriteString(": ")
	}
	buf.WriteString(entry.Message)

	for _, kv := range identityPairs(entry) {
		buf.WriteString(sep)
		buf.WriteString(kv)
	}

	if entry.Error != "" {
		buf.WriteString(sep)
		fmt.Fprintf(&buf, "error=%q", entry.Error)
		if entry.ErrorCategory != "" {
			buf.WriteString(sep)
			buf.WriteString("error_category=")
			buf.WriteString(string(entry.ErrorCategory))
		}
		if entry.ErrorFingerprint != "" {
			buf.WriteString(sep)
			buf.WriteString("error_fingerprint=")
			buf.WriteString(entry.ErrorFingerprint)
		}
	}

	if len(entry.Metadata) > 0 {
		keys := make([]string, 0, len(entry.Metadata))
		for k := range entry.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString(sep)
			fmt.Fprintf(&buf, "%s=%v", k, entry.Metadata[k])
		}
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// identityPairs renders the identifying context fields that are set.
func identityPairs(entry *types.LogEntry) []string {
	var out []string
	add := func(key, value string) {
		if value != "" {
			out = append(out, key+"="+value)
		}
	}
	add("request_id", entry.RequestID)
	add("trace_id", entry.TraceID)
	add("correlation_id", entry.CorrelationID)
	add("user_id", entry.UserID)
	add("tenant_id", entry.TenantID)
	add("org_id", entry.OrgID)
	add("resource_id", entry.ResourceID)
	add("job_id", entry.JobID)
	if entry.Entity != nil {
		out = append(out, fmt.Sprintf("entity=%s/%s", entry.Entity.Type, entry.Entity.ID))
	}
	if len(entry.Tags) > 0 {
		out = append(out, "tags="+strings.Join(entry.Tags, ","))
	}
	return out
}
