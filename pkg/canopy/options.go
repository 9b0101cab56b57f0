package canopy

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/canopylog/canopy/pkg/features"
	"github.com/canopylog/canopy/pkg/persist"
	"github.com/canopylog/canopy/pkg/types"
)

// Option configures a Logger during construction. Options validate their
// own arguments and return an error rather than panic.
type Option func(*Config) error

// WithService sets the service name stamped on every entry.
func WithService(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return errors.New("service name cannot be empty")
		}
		c.Service = name
		return nil
	}
}

// WithEnvironment sets the deployment environment name.
func WithEnvironment(env string) Option {
	return func(c *Config) error {
		c.Environment = env
		return nil
	}
}

// WithRuntime overrides runtime detection.
func WithRuntime(rt types.Runtime) Option {
	return func(c *Config) error {
		switch rt {
		case types.RuntimeServer, types.RuntimeBrowser, types.RuntimeEdge:
			c.Runtime = rt
			return nil
		default:
			return errors.Errorf("unknown runtime %q", rt)
		}
	}
}

// WithConsole enables or disables the console destination.
func WithConsole(enabled bool) Option {
	return func(c *Config) error {
		c.ConsoleEnabled = enabled
		return nil
	}
}

// WithConsoleLevel sets the console minimum level.
func WithConsoleLevel(level types.Level) Option {
	return func(c *Config) error {
		c.ConsoleMinLevel = level
		return nil
	}
}

// WithConsoleJSON switches console output from human text to JSON lines.
func WithConsoleJSON() Option {
	return func(c *Config) error {
		c.ConsoleJSON = true
		return nil
	}
}

// WithConsoleWriters overrides the console output streams.
func WithConsoleWriters(out, errOut io.Writer) Option {
	return func(c *Config) error {
		c.ConsoleOut = out
		c.ConsoleErr = errOut
		return nil
	}
}

// WithFile enables the file destination writing to path. Ignored on
// runtimes without a durable filesystem.
func WithFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return errors.New("file path cannot be empty")
		}
		c.FileEnabled = true
		c.FilePath = path
		return nil
	}
}

// WithFileLevel sets the file destination minimum level.
func WithFileLevel(level types.Level) Option {
	return func(c *Config) error {
		c.FileMinLevel = level
		return nil
	}
}

// WithFileRotation sets the rotation policy for the file destination.
func WithFileRotation(policy features.RotationPolicy) Option {
	return func(c *Config) error {
		c.FileRotation = policy
		return nil
	}
}

// WithStore enables the persistent-store destination backed by p.
func WithStore(p persist.Persister) Option {
	return func(c *Config) error {
		if p == nil {
			return errors.New("persister cannot be nil")
		}
		c.StoreEnabled = true
		c.Persister = p
		return nil
	}
}

// WithPersister provides a persister without enabling the store
// destination. Audit entries still reach it.
func WithPersister(p persist.Persister) Option {
	return func(c *Config) error {
		if p == nil {
			return errors.New("persister cannot be nil")
		}
		c.Persister = p
		return nil
	}
}

// WithStoreLevel sets the store destination minimum level.
func WithStoreLevel(level types.Level) Option {
	return func(c *Config) error {
		c.StoreMinLevel = level
		return nil
	}
}

// WithBatching overrides the runtime-default batching parameters. Zero
// values keep the runtime default for that parameter.
func WithBatching(batchSize int, flushInterval time.Duration, maxQueueSize int) Option {
	return func(c *Config) error {
		if batchSize < 0 || maxQueueSize < 0 || flushInterval < 0 {
			return errors.New("batching parameters cannot be negative")
		}
		if batchSize > 0 {
			c.BatchSize = batchSize
		}
		if flushInterval > 0 {
			c.FlushInterval = flushInterval
		}
		if maxQueueSize > 0 {
			c.MaxQueueSize = maxQueueSize
		}
		return nil
	}
}

// WithRetry sets the persistence retry policy.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Config) error {
		if maxRetries < 1 {
			return errors.New("max retries must be at least 1")
		}
		c.MaxRetries = maxRetries
		if baseDelay > 0 {
			c.RetryBaseDelay = baseDelay
		}
		if maxDelay > 0 {
			c.RetryMaxDelay = maxDelay
		}
		return nil
	}
}

// WithSampling sets the keep probability for sampled levels. levels
// defaults to trace and debug when empty.
func WithSampling(rate float64, levels ...types.Level) Option {
	return func(c *Config) error {
		if rate < 0 || rate > 1 {
			return errors.Errorf("sampling rate %v outside [0,1]", rate)
		}
		c.SamplingRate = rate
		if len(levels) > 0 {
			c.SampledLevels = levels
		}
		return nil
	}
}

// WithScrubFields adds field names to the redaction denylist.
func WithScrubFields(fields ...string) Option {
	return func(c *Config) error {
		c.ScrubFields = append(c.ScrubFields, fields...)
		return nil
	}
}

// WithScrubPatterns adds regular expressions whose matches are redacted
// from string values.
func WithScrubPatterns(patterns ...string) Option {
	return func(c *Config) error {
		c.ScrubPatterns = append(c.ScrubPatterns, patterns...)
		return nil
	}
}

// WithRelease stamps build provenance onto every entry.
func WithRelease(version, commitSHA, deploymentID string) Option {
	return func(c *Config) error {
		c.Version = version
		c.CommitSHA = commitSHA
		c.DeploymentID = deploymentID
		return nil
	}
}

// WithLocation stamps region and host onto every entry.
func WithLocation(region, host string) Option {
	return func(c *Config) error {
		c.Region = region
		c.Host = host
		return nil
	}
}

// WithShutdownTimeout bounds Shutdown when the caller passes a context
// without a deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return errors.New("shutdown timeout must be positive")
		}
		c.ShutdownTimeout = d
		return nil
	}
}

// WithAuditRetention sets the default retention period, in days, for audit
// entries that do not specify one.
func WithAuditRetention(days int) Option {
	return func(c *Config) error {
		if days < 0 {
			return errors.New("audit retention cannot be negative")
		}
		c.DefaultAuditRetentionDays = days
		return nil
	}
}
