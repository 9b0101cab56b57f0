package canopy

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/canopylog/canopy/pkg/features"
	"github.com/canopylog/canopy/pkg/persist"
	"github.com/canopylog/canopy/pkg/types"
)

// Config enumerates every construction-time knob of the engine. It is
// validated once by New and immutable afterwards; the only post-construction
// mutation the engine supports is default-context augmentation via
// Logger.AddContext.
type Config struct {
	// Environment names the deployment environment (production, staging…).
	Environment string
	// Service names the emitting service; it appears on every entry.
	Service string
	// Runtime overrides runtime detection when non-empty.
	Runtime types.Runtime

	// Console destination.
	ConsoleEnabled  bool
	ConsoleMinLevel types.Level
	// ConsoleJSON switches the console from human text to machine JSON.
	ConsoleJSON bool
	// ConsoleOut/ConsoleErr override the output streams (tests, embedding).
	ConsoleOut io.Writer
	ConsoleErr io.Writer

	// File destination (server runtime only).
	FileEnabled  bool
	FilePath     string
	FileMinLevel types.Level
	FileRotation features.RotationPolicy

	// Persistent-store destination.
	StoreEnabled   bool
	StoreMinLevel  types.Level
	Persister      persist.Persister
	BatchSize      int
	FlushInterval  time.Duration
	MaxQueueSize   int
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Sampling. Rate is the keep probability in [0,1]; 1 disables
	// sampling. SampledLevels defaults to trace and debug.
	SamplingRate  float64
	SampledLevels []types.Level

	// PII scrubbing rule additions. The built-in rules always apply.
	ScrubFields   []string
	ScrubPatterns []string

	// Enrichment constants stamped onto every entry.
	Version      string
	CommitSHA    string
	DeploymentID string
	Region       string
	Host         string

	// ShutdownTimeout bounds Shutdown when the caller's context carries no
	// deadline.
	ShutdownTimeout time.Duration

	// DefaultAuditRetentionDays applies to audit entries that do not carry
	// an explicit retention period.
	DefaultAuditRetentionDays int
}

// defaultConfig returns the baseline configuration before options are
// applied. Runtime-dependent sizing is filled in later by
// applyRuntimeDefaults so that a runtime override set by an option is
// honored.
func defaultConfig() *Config {
	return &Config{
		Environment:               "development",
		Service:                   "app",
		ConsoleEnabled:            true,
		ConsoleMinLevel:           types.LevelDebug,
		FileMinLevel:              types.LevelInfo,
		StoreMinLevel:             types.LevelInfo,
		SamplingRate:              1.0,
		MaxRetries:                3,
		RetryBaseDelay:            250 * time.Millisecond,
		RetryMaxDelay:             10 * time.Second,
		ShutdownTimeout:           5 * time.Second,
		DefaultAuditRetentionDays: 365,
		FileRotation: features.RotationPolicy{
			MaxSize:  100 * 1024 * 1024,
			MaxFiles: 10,
		},
	}
}

// applyRuntimeDefaults resolves the runtime and fills the sizing parameters
// the caller left at zero.
func (c *Config) applyRuntimeDefaults() {
	if c.Runtime == "" {
		c.Runtime = DetectRuntime()
	}
	d := defaultsFor(c.Runtime)
	if c.BatchSize == 0 {
		c.BatchSize = d.batchSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = d.flushInterval
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = d.maxQueueSize
	}
	if !d.fileCapable {
		// No durable filesystem outside the server runtime.
		c.FileEnabled = false
	}
}

// Validate rejects invalid combinations at startup so call sites never pay
// for configuration mistakes.
func (c *Config) Validate() error {
	if c.Service == "" {
		return errors.New("config: service name is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return errors.Errorf("config: sampling rate %v outside [0,1]", c.SamplingRate)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("config: batch size %d must be positive", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return errors.Errorf("config: flush interval %v must be positive", c.FlushInterval)
	}
	if c.MaxQueueSize < c.BatchSize {
		return errors.Errorf("config: max queue size %d smaller than batch size %d", c.MaxQueueSize, c.BatchSize)
	}
	if c.MaxRetries < 1 {
		return errors.Errorf("config: max retries %d must be at least 1", c.MaxRetries)
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return errors.New("config: retry delays must satisfy 0 < base <= max")
	}
	if c.FileEnabled && c.FilePath == "" {
		return errors.New("config: file destination enabled without a path")
	}
	if c.StoreEnabled && c.Persister == nil {
		return errors.New("config: store destination enabled without a persister")
	}
	if c.DefaultAuditRetentionDays < 0 {
		return errors.New("config: audit retention cannot be negative")
	}
	return nil
}
