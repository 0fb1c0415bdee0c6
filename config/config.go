// Package config loads the immutable run configuration: defaults first, then
// a YAML overlay. A Config is constructed once per run and passed by
// reference to every component; there is no process-wide mutable state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that accepts YAML strings like "250ms" or
// "5m" as well as integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or integer nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full tradeflow configuration.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// RunConfig governs a single run's debate, retry, and concurrency behavior.
// It is read-only after construction.
type RunConfig struct {
	// MaxDebateRounds is the number of full Bull+Bear rounds; the debate's
	// hard turn cap is twice this.
	MaxDebateRounds int `yaml:"max_debate_rounds"`
	// MaxRiskRounds is the number of full risk cycles; the risk debate's
	// hard turn cap is three times this.
	MaxRiskRounds int `yaml:"max_risk_rounds"`

	ConvergenceEnabled bool    `yaml:"convergence_enabled"`
	SemanticThreshold  float64 `yaml:"semantic_threshold"`
	InfoGainThreshold  float64 `yaml:"info_gain_threshold"`

	MaxRetries          int      `yaml:"max_retries"`
	BaseDelay           Duration `yaml:"base_delay"`
	BackoffMultiplier   float64  `yaml:"backoff_multiplier"`
	RetryableFaultKinds []string `yaml:"retryable_fault_kinds"`

	// BranchTimeout is the per-branch deadline inside fan-out groups.
	BranchTimeout Duration `yaml:"branch_timeout"`
	// StepRateLimit caps step invocations per second across a run's
	// branches; zero disables the limiter.
	StepRateLimit float64 `yaml:"step_rate_limit"`
}

// CheckpointConfig selects and tunes the snapshot store backend.
type CheckpointConfig struct {
	// Backend is one of "memory", "redis", "sqlite".
	Backend    string      `yaml:"backend"`
	Redis      RedisConfig `yaml:"redis"`
	SQLitePath string      `yaml:"sqlite_path"`
}

// RedisConfig is the Redis checkpoint backend configuration.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

// LogConfig tunes the zap logger.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// MetricsConfig tunes the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			MaxDebateRounds:     1,
			MaxRiskRounds:       1,
			ConvergenceEnabled:  true,
			SemanticThreshold:   0.85,
			InfoGainThreshold:   0.10,
			MaxRetries:          3,
			BaseDelay:           Duration(time.Second),
			BackoffMultiplier:   2.0,
			RetryableFaultKinds: []string{"transient", "rate_limit", "network"},
			BranchTimeout:       Duration(5 * time.Minute),
		},
		Checkpoint: CheckpointConfig{
			Backend:    "memory",
			Redis:      RedisConfig{Addr: "localhost:6379"},
			SQLitePath: "tradeflow.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tradeflow",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	r := &c.Run
	if r.MaxDebateRounds < 1 {
		return fmt.Errorf("run.max_debate_rounds must be >= 1, got %d", r.MaxDebateRounds)
	}
	if r.MaxRiskRounds < 1 {
		return fmt.Errorf("run.max_risk_rounds must be >= 1, got %d", r.MaxRiskRounds)
	}
	if r.SemanticThreshold <= 0 || r.SemanticThreshold > 1 {
		return fmt.Errorf("run.semantic_threshold must be in (0, 1], got %v", r.SemanticThreshold)
	}
	if r.InfoGainThreshold <= 0 || r.InfoGainThreshold > 1 {
		return fmt.Errorf("run.info_gain_threshold must be in (0, 1], got %v", r.InfoGainThreshold)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("run.max_retries must be >= 0, got %d", r.MaxRetries)
	}
	if r.BaseDelay < 0 {
		return fmt.Errorf("run.base_delay must be >= 0, got %v", r.BaseDelay)
	}
	if r.BackoffMultiplier < 1 {
		return fmt.Errorf("run.backoff_multiplier must be >= 1, got %v", r.BackoffMultiplier)
	}
	if r.StepRateLimit < 0 {
		return fmt.Errorf("run.step_rate_limit must be >= 0, got %v", r.StepRateLimit)
	}

	switch c.Checkpoint.Backend {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("checkpoint.backend must be memory, redis, or sqlite, got %q", c.Checkpoint.Backend)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
