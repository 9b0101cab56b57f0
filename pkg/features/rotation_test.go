package features

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNeedsRotationBySize(t *testing.T) {
	rm := NewRotationManager(RotationPolicy{MaxSize: 100})

	if rm.NeedsRotation(50, 10, time.Now()) {
		t.Error("60 bytes should fit under a 100 byte limit")
	}
	if !rm.NeedsRotation(95, 10, time.Now()) {
		t.Error("105 bytes should trigger rotation")
	}
	if rm.NeedsRotation(90, 10, time.Now()) {
		t.Error("exactly at the limit should not rotate")
	}
}

func TestNeedsRotationByAge(t *testing.T) {
	rm := NewRotationManager(RotationPolicy{MaxAge: time.Minute})

	if rm.NeedsRotation(0, 0, time.Now()) {
		t.Error("fresh file should not rotate")
	}
	if !rm.NeedsRotation(0, 0, time.Now().Add(-2*time.Minute)) {
		t.Error("file older than MaxAge should rotate")
	}
}

func TestNeedsRotationDisabled(t *testing.T) {
	rm := NewRotationManager(RotationPolicy{})
	if rm.NeedsRotation(1<<40, 1<<20, time.Now().Add(-24*time.Hour)) {
		t.Error("zero policy must never rotate")
	}
}

func TestRotatedNameSortable(t *testing.T) {
	rm := NewRotationManager(RotationPolicy{})
	a := rm.RotatedName("/var/log/app.log")
	if !strings.HasPrefix(a, "/var/log/app.log.") {
		t.Errorf("rotated name %q not derived from path", a)
	}
	time.Sleep(2 * time.Millisecond)
	b := rm.RotatedName("/var/log/app.log")
	if !(a < b) {
		t.Errorf("rotated names must sort chronologically: %q vs %q", a, b)
	}
}

func TestRunCleanupMaxFiles(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "app.log")
	if err := os.WriteFile(active, []byte("active"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Five rotated files with increasing mod times.
	for i := 0; i < 5; i++ {
		name := active + "." + time.Now().Add(time.Duration(i)*time.Hour).UTC().Format(RotationTimeFormat)
		if err := os.WriteFile(name, []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}
		mod := time.Now().Add(time.Duration(i-10) * time.Hour)
		if err := os.Chtimes(name, mod, mod); err != nil {
			t.Fatal(err)
		}
	}

	rm := NewRotationManager(RotationPolicy{MaxFiles: 2})
	if err := rm.RunCleanup(active); err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}

	rotated, err := listRotatedFiles(active)
	if err != nil {
		t.Fatal(err)
	}
	if len(rotated) != 2 {
		t.Errorf("kept %d rotated files, want 2", len(rotated))
	}
	if _, err := os.Stat(active); err != nil {
		t.Error("active file must never be removed")
	}
}

func TestRunCleanupRetention(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "app.log")
	if err := os.WriteFile(active, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	fresh := active + ".fresh"
	stale := active + ".stale"
	for _, name := range []string{fresh, stale} {
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	rm := NewRotationManager(RotationPolicy{Retention: 24 * time.Hour})
	if err := rm.RunCleanup(active); err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale rotated file should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh rotated file should be kept")
	}
}

func TestTrackRotationInvokesMetrics(t *testing.T) {
	rm := NewRotationManager(RotationPolicy{})
	count := 0
	rm.SetMetricsHandler(func() { count++ })
	rm.TrackRotation()
	rm.TrackRotation()
	if count != 2 {
		t.Errorf("metrics fired %d times, want 2", count)
	}
}
