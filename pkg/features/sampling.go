package features

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/canopylog/canopy/pkg/types"
)

// SamplingController probabilistically suppresses low-severity entries
// before they reach any destination. Sampling is evaluated once per entry,
// so every destination sees the same subset of the call stream.
//
// Levels outside the affected set always pass. Entries ranking warn or
// above, and all semantic levels, are never sampled regardless of the
// configured set.
type SamplingController struct {
	mu             sync.RWMutex
	rate           float64
	affected       map[types.Level]bool
	metricsHandler func()
}

// DefaultSampledLevels are the levels sampling applies to unless configured
// otherwise.
var DefaultSampledLevels = []types.Level{types.LevelTrace, types.LevelDebug}

// NewSamplingController creates a controller that keeps entries with the
// given probability. A rate of 1.0 disables sampling. Levels lists the
// levels sampling applies to; nil means DefaultSampledLevels.
func NewSamplingController(rate float64, levels []types.Level) *SamplingController {
	if rate < 0 {
		rate = 0
	} else if rate > 1 {
		rate = 1
	}
	if levels == nil {
		levels = DefaultSampledLevels
	}

	affected := make(map[types.Level]bool, len(levels))
	for _, l := range levels {
		affected[l] = true
	}

	return &SamplingController{
		rate:     rate,
		affected: affected,
	}
}

// SetMetricsHandler sets the callback invoked when an entry is sampled out.
func (s *SamplingController) SetMetricsHandler(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsHandler = handler
}

// ShouldSample reports whether an entry at the given level passes the
// sampling draw. A false return means the entry must not be delivered to
// any destination.
func (s *SamplingController) ShouldSample(level types.Level) bool {
	s.mu.RLock()
	rate := s.rate
	affected := s.affected[level]
	handler := s.metricsHandler
	s.mu.RUnlock()

	if rate >= 1.0 {
		return true
	}

	// Warnings and above, and semantic levels, always pass.
	if !level.Ordered() || level.Rank() >= types.LevelWarn {
		return true
	}
	if !affected {
		return true
	}

	draw, err := secureRandomFloat64()
	if err != nil {
		// On entropy failure, fall back to always log.
		return true
	}
	if draw < rate {
		return true
	}

	if handler != nil {
		handler()
	}
	return false
}

// Rate returns the configured keep probability.
func (s *SamplingController) Rate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate
}

// secureRandomFloat64 generates a uniform random float64 in [0, 1).
func secureRandomFloat64() (float64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	// Use only 53 bits for precision (same as math/rand).
	uint64Val := binary.BigEndian.Uint64(b[:]) >> 11
	return float64(uint64Val) / float64(1<<53), nil
}
