package features

import (
	"sync/atomic"
	"testing"

	"github.com/canopylog/canopy/pkg/types"
)

func TestSamplingRateOneKeepsEverything(t *testing.T) {
	sc := NewSamplingController(1.0, nil)
	for i := 0; i < 1000; i++ {
		if !sc.ShouldSample(types.LevelTrace) {
			t.Fatal("rate 1.0 must never sample out")
		}
	}
}

func TestSamplingRateZeroDropsAffectedLevels(t *testing.T) {
	sc := NewSamplingController(0.0, nil)
	for i := 0; i < 100; i++ {
		if sc.ShouldSample(types.LevelTrace) {
			t.Fatal("rate 0.0 must drop every trace entry")
		}
		if sc.ShouldSample(types.LevelDebug) {
			t.Fatal("rate 0.0 must drop every debug entry")
		}
	}
}

func TestSamplingNeverAffectsWarnAndAbove(t *testing.T) {
	// Even with an explicit affected set naming high levels, warn and
	// above always pass.
	sc := NewSamplingController(0.0, []types.Level{
		types.LevelWarn, types.LevelError, types.LevelFatal,
	})
	for _, l := range []types.Level{types.LevelWarn, types.LevelError, types.LevelFatal} {
		for i := 0; i < 100; i++ {
			if !sc.ShouldSample(l) {
				t.Fatalf("%s was sampled out", l)
			}
		}
	}
}

func TestSamplingNeverAffectsSemanticLevels(t *testing.T) {
	sc := NewSamplingController(0.0, []types.Level{
		types.LevelUserAction, types.LevelAudit,
	})
	for _, l := range []types.Level{
		types.LevelUserAction, types.LevelNotice, types.LevelSuccess,
		types.LevelFailure, types.LevelAudit,
	} {
		if !sc.ShouldSample(l) {
			t.Errorf("semantic level %s was sampled out", l)
		}
	}
}

func TestSamplingUnaffectedLevelPasses(t *testing.T) {
	sc := NewSamplingController(0.0, []types.Level{types.LevelTrace})
	for i := 0; i < 100; i++ {
		if !sc.ShouldSample(types.LevelDebug) {
			t.Fatal("debug is outside the affected set and must pass")
		}
	}
}

func TestSamplingMetricsHandlerFires(t *testing.T) {
	sc := NewSamplingController(0.0, nil)
	var dropped uint64
	sc.SetMetricsHandler(func() { atomic.AddUint64(&dropped, 1) })

	for i := 0; i < 50; i++ {
		sc.ShouldSample(types.LevelDebug)
	}
	if got := atomic.LoadUint64(&dropped); got != 50 {
		t.Errorf("metrics handler fired %d times, want 50", got)
	}
}

func TestSamplingRateIsApproximate(t *testing.T) {
	sc := NewSamplingController(0.5, nil)
	kept := 0
	const n = 10000
	for i := 0; i < n; i++ {
		if sc.ShouldSample(types.LevelDebug) {
			kept++
		}
	}
	// Loose statistical bound; a fair 0.5 draw over 10k trials stays well
	// inside [0.4, 0.6].
	if kept < n*4/10 || kept > n*6/10 {
		t.Errorf("kept %d of %d at rate 0.5", kept, n)
	}
}

func TestSamplingRateClamped(t *testing.T) {
	if got := NewSamplingController(1.5, nil).Rate(); got != 1.0 {
		t.Errorf("rate clamped to %v, want 1.0", got)
	}
	if got := NewSamplingController(-0.1, nil).Rate(); got != 0.0 {
		t.Errorf("rate clamped to %v, want 0.0", got)
	}
}
