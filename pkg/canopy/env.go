package canopy

import (
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/canopylog/canopy/pkg/types"
)

// envPrefix namespaces the engine's environment variables, e.g.
// CANOPY_SERVICE, CANOPY_SAMPLING_RATE, CANOPY_FILE_PATH.
const envPrefix = "CANOPY_"

// envConfig is the flat shape environment variables unmarshal into before
// being folded onto a Config.
type envConfig struct {
	Service      string `koanf:"service"`
	Environment  string `koanf:"environment"`
	Runtime      string `koanf:"runtime"`
	Version      string `koanf:"version"`
	CommitSHA    string `koanf:"commit_sha"`
	DeploymentID string `koanf:"deployment_id"`
	Region       string `koanf:"region"`
	Host         string `koanf:"host"`

	ConsoleEnabled  *bool  `koanf:"console_enabled"`
	ConsoleLevel    string `koanf:"console_level"`
	ConsoleJSON     bool   `koanf:"console_json"`
	FilePath        string `koanf:"file_path"`
	FileLevel       string `koanf:"file_level"`
	StoreLevel      string `koanf:"store_level"`
	BatchSize       int    `koanf:"batch_size"`
	FlushIntervalMS int    `koanf:"flush_interval_ms"`
	MaxQueueSize    int    `koanf:"max_queue_size"`
	MaxRetries      int    `koanf:"max_retries"`

	SamplingRate  *float64 `koanf:"sampling_rate"`
	SampledLevels string   `koanf:"sampled_levels"`
	ScrubFields   string   `koanf:"scrub_fields"`

	AuditRetentionDays int `koanf:"audit_retention_days"`
}

// EnvOptions reads CANOPY_* environment variables and translates them into
// construction options, applied before any options the caller passes so
// explicit code wins over the environment.
func EnvOptions() ([]Option, error) {
	k := koanf.New(".")
	provider := env.Provider(envPrefix, ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, envPrefix))
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, errors.Wrap(err, "loading environment configuration")
	}

	var ec envConfig
	if err := k.Unmarshal("", &ec); err != nil {
		return nil, errors.Wrap(err, "parsing environment configuration")
	}
	return ec.options()
}

// NewFromEnv builds a Logger from the environment plus any explicit
// options, which take precedence.
func NewFromEnv(opts ...Option) (*Logger, error) {
	envOpts, err := EnvOptions()
	if err != nil {
		return nil, err
	}
	return New(append(envOpts, opts...)...)
}

func (ec *envConfig) options() ([]Option, error) {
	var opts []Option

	if ec.Service != "" {
		opts = append(opts, WithService(ec.Service))
	}
	if ec.Environment != "" {
		opts = append(opts, WithEnvironment(ec.Environment))
	}
	if ec.Runtime != "" {
		opts = append(opts, WithRuntime(types.Runtime(ec.Runtime)))
	}
	if ec.Version != "" || ec.CommitSHA != "" || ec.DeploymentID != "" {
		opts = append(opts, WithRelease(ec.Version, ec.CommitSHA, ec.DeploymentID))
	}
	if ec.Region != "" || ec.Host != "" {
		opts = append(opts, WithLocation(ec.Region, ec.Host))
	}

	if ec.ConsoleEnabled != nil {
		opts = append(opts, WithConsole(*ec.ConsoleEnabled))
	}
	if ec.ConsoleJSON {
		opts = append(opts, WithConsoleJSON())
	}
	if ec.ConsoleLevel != "" {
		level, err := types.ParseLevel(ec.ConsoleLevel)
		if err != nil {
			return nil, errors.Wrap(err, "console_level")
		}
		opts = append(opts, WithConsoleLevel(level))
	}
	if ec.FilePath != "" {
		opts = append(opts, WithFile(ec.FilePath))
	}
	if ec.FileLevel != "" {
		level, err := types.ParseLevel(ec.FileLevel)
		if err != nil {
			return nil, errors.Wrap(err, "file_level")
		}
		opts = append(opts, WithFileLevel(level))
	}
	if ec.StoreLevel != "" {
		level, err := types.ParseLevel(ec.StoreLevel)
		if err != nil {
			return nil, errors.Wrap(err, "store_level")
		}
		opts = append(opts, WithStoreLevel(level))
	}

	if ec.BatchSize > 0 || ec.FlushIntervalMS > 0 || ec.MaxQueueSize > 0 {
		opts = append(opts, WithBatching(
			ec.BatchSize,
			time.Duration(ec.FlushIntervalMS)*time.Millisecond,
			ec.MaxQueueSize,
		))
	}
	if ec.MaxRetries > 0 {
		opts = append(opts, WithRetry(ec.MaxRetries, 0, 0))
	}

	if ec.SamplingRate != nil {
		levels, err := parseLevelList(ec.SampledLevels)
		if err != nil {
			return nil, errors.Wrap(err, "sampled_levels")
		}
		opts = append(opts, WithSampling(*ec.SamplingRate, levels...))
	}
	if ec.ScrubFields != "" {
		opts = append(opts, WithScrubFields(splitList(ec.ScrubFields)...))
	}
	if ec.AuditRetentionDays > 0 {
		opts = append(opts, WithAuditRetention(ec.AuditRetentionDays))
	}

	return opts, nil
}

func parseLevelList(raw string) ([]types.Level, error) {
	var levels []types.Level
	for _, name := range splitList(raw) {
		level, err := types.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
