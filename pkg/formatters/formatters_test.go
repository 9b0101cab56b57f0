package formatters

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/canopylog/canopy/pkg/types"
)

func sampleEntry() *types.LogEntry {
	return &types.LogEntry{
		Timestamp: "2024-01-15T14:30:52Z",
		Level:     types.LevelInfo,
		Service:   "checkout",
		Message:   "payment captured",
		Runtime:   "server",
		SessionID: "sess-1",
		RequestID: "req-42",
		UserID:    "user-7",
		Metadata:  map[string]interface{}{"amount": 1999, "currency": "usd"},
	}
}

func TestJSONFormatterRoundTrip(t *testing.T) {
	f := NewJSONFormatter()
	line, err := f.Format(sampleEntry())
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.HasSuffix(string(line), "\n") {
		t.Error("JSON line must end with newline")
	}
	if strings.Count(string(line), "\n") != 1 {
		t.Error("compact output must be a single line")
	}

	var decoded types.LogEntry
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Level != types.LevelInfo || decoded.Message != "payment captured" {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestJSONFormatterNilEntry(t *testing.T) {
	if _, err := NewJSONFormatter().Format(nil); err == nil {
		t.Error("expected error for nil entry")
	}
}

func TestTextFormatterLine(t *testing.T) {
	f := NewTextFormatter()
	line, err := f.Format(sampleEntry())
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	got := string(line)

	for _, want := range []string{
		"2024-01-15T14:30:52Z",
		"[INFO]",
		"checkout: payment captured",
		"request_id=req-42",
		"user_id=user-7",
		"amount=1999",
		"currency=usd",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("line %q missing %q", got, want)
		}
	}
	if !strings.HasSuffix(got, "\n") {
		t.Error("text line must end with newline")
	}
}

func TestTextFormatterErrorFields(t *testing.T) {
	entry := sampleEntry()
	entry.Level = types.LevelError
	entry.Error = "connection refused"
	entry.ErrorCategory = types.CategoryNetwork
	entry.ErrorFingerprint = "abcd1234"

	line, err := NewTextFormatter().Format(entry)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	got := string(line)

	if !strings.Contains(got, "[ERROR]") {
		t.Errorf("missing level: %q", got)
	}
	if !strings.Contains(got, `error="connection refused"`) {
		t.Errorf("missing quoted error: %q", got)
	}
	if !strings.Contains(got, "error_category=network") {
		t.Errorf("missing category: %q", got)
	}
	if !strings.Contains(got, "error_fingerprint=abcd1234") {
		t.Errorf("missing fingerprint: %q", got)
	}
}

func TestTextFormatterMetadataSorted(t *testing.T) {
	entry := sampleEntry()
	entry.Metadata = map[string]interface{}{"zebra": 1, "alpha": 2, "mid": 3}

	line, err := NewTextFormatter().Format(entry)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	got := string(line)

	alpha := strings.Index(got, "alpha=")
	mid := strings.Index(got, "mid=")
	zebra := strings.Index(got, "zebra=")
	if !(alpha < mid && mid < zebra) {
		t.Errorf("metadata keys not sorted: %q", got)
	}
}

func TestTextFormatterEntityAndTags(t *testing.T) {
	entry := sampleEntry()
	entry.Entity = &types.EntityRef{Type: "invoice", ID: "inv-9"}
	entry.Tags = []string{"billing", "beta"}

	line, err := NewTextFormatter().Format(entry)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	got := string(line)

	if !strings.Contains(got, "entity=invoice/inv-9") {
		t.Errorf("missing entity: %q", got)
	}
	if !strings.Contains(got, "tags=billing,beta") {
		t.Errorf("missing tags: %q", got)
	}
}
