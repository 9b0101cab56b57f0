package types

import (
	"encoding/json"
	"testing"
)

func TestLevelRank(t *testing.T) {
	tests := []struct {
		level Level
		rank  Level
	}{
		{LevelTrace, LevelTrace},
		{LevelDebug, LevelDebug},
		{LevelInfo, LevelInfo},
		{LevelWarn, LevelWarn},
		{LevelError, LevelError},
		{LevelFatal, LevelFatal},
		{LevelUserAction, LevelInfo},
		{LevelNotice, LevelInfo},
		{LevelSuccess, LevelInfo},
		{LevelFailure, LevelError},
		{LevelAudit, LevelFatal},
	}

	for _, tt := range tests {
		if got := tt.level.Rank(); got != tt.rank {
			t.Errorf("%s.Rank() = %s, want %s", tt.level, got, tt.rank)
		}
	}
}

func TestLevelOrdered(t *testing.T) {
	for l := LevelTrace; l <= LevelFatal; l++ {
		if !l.Ordered() {
			t.Errorf("%s should be ordered", l)
		}
	}
	for _, l := range []Level{LevelUserAction, LevelNotice, LevelSuccess, LevelFailure, LevelAudit} {
		if l.Ordered() {
			t.Errorf("%s should not be ordered", l)
		}
	}
}

func TestParseLevelRoundTrip(t *testing.T) {
	levels := []Level{
		LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal,
		LevelUserAction, LevelNotice, LevelSuccess, LevelFailure, LevelAudit,
	}
	for _, l := range levels {
		parsed, err := ParseLevel(l.String())
		if err != nil {
			t.Fatalf("ParseLevel(%q) returned error: %v", l.String(), err)
		}
		if parsed != l {
			t.Errorf("ParseLevel(%q) = %v, want %v", l.String(), parsed, l)
		}
	}

	if _, err := ParseLevel("bogus"); err == nil {
		t.Error("ParseLevel should reject unknown names")
	}
	if l, err := ParseLevel("WARNING"); err != nil || l != LevelWarn {
		t.Errorf("ParseLevel(WARNING) = %v, %v, want warn", l, err)
	}
}

func TestLevelJSON(t *testing.T) {
	data, err := json.Marshal(LevelAudit)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"audit"` {
		t.Errorf("marshal = %s, want %q", data, "audit")
	}

	var l Level
	if err := json.Unmarshal([]byte(`"failure"`), &l); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if l != LevelFailure {
		t.Errorf("unmarshal = %v, want failure", l)
	}
}

func TestLogContextMergeOverrides(t *testing.T) {
	parent := &LogContext{
		RequestID: "req-1",
		UserID:    "user-1",
		Tags:      []string{"api"},
		Extra:     map[string]interface{}{"region": "us-east"},
	}
	child := parent.Merge(&LogContext{
		UserID: "user-2",
		Tags:   []string{"api", "billing"},
		Extra:  map[string]interface{}{"plan": "pro"},
	})

	if child.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want inherited req-1", child.RequestID)
	}
	if child.UserID != "user-2" {
		t.Errorf("UserID = %q, want overridden user-2", child.UserID)
	}
	if len(child.Tags) != 2 {
		t.Errorf("Tags = %v, want union of 2", child.Tags)
	}
	if child.Extra["region"] != "us-east" || child.Extra["plan"] != "pro" {
		t.Errorf("Extra = %v, want both keys", child.Extra)
	}

	// Merge never mutates its inputs.
	if parent.UserID != "user-1" {
		t.Errorf("parent mutated: UserID = %q", parent.UserID)
	}
	if len(parent.Tags) != 1 {
		t.Errorf("parent mutated: Tags = %v", parent.Tags)
	}
}

func TestLogContextMergeNeverDeletes(t *testing.T) {
	parent := &LogContext{
		RequestID:    "req-1",
		TraceID:      "trace-1",
		FeatureFlags: map[string]bool{"beta": true},
	}
	child := parent.Merge(&LogContext{})

	if child.RequestID != "req-1" || child.TraceID != "trace-1" {
		t.Errorf("empty overlay deleted inherited fields: %+v", child)
	}
	if !child.FeatureFlags["beta"] {
		t.Error("empty overlay deleted feature flags")
	}
}

func TestLogContextSiblingIsolation(t *testing.T) {
	parent := &LogContext{RequestID: "req-1"}
	a := parent.Merge(&LogContext{UserID: "user-a"})
	b := parent.Merge(&LogContext{TenantID: "tenant-b"})

	if a.TenantID != "" {
		t.Errorf("sibling a observed b's TenantID %q", a.TenantID)
	}
	if b.UserID != "" {
		t.Errorf("sibling b observed a's UserID %q", b.UserID)
	}
}

func TestLogContextCloneDeep(t *testing.T) {
	orig := &LogContext{
		Entity: &EntityRef{Type: "invoice", ID: "inv-1"},
		Extra:  map[string]interface{}{"k": "v"},
	}
	clone := orig.Clone()
	clone.Entity.ID = "inv-2"
	clone.Extra["k"] = "changed"

	if orig.Entity.ID != "inv-1" {
		t.Error("Clone shares Entity with the original")
	}
	if orig.Extra["k"] != "v" {
		t.Error("Clone shares Extra with the original")
	}
}

func TestNilLogContextMerge(t *testing.T) {
	var nilCtx *LogContext
	out := nilCtx.Merge(&LogContext{RequestID: "req-1"})
	if out.RequestID != "req-1" {
		t.Errorf("nil receiver merge = %+v", out)
	}
}
