// Package config loads the kernel's ambient environment knobs (spec §6)
// from an optional YAML file, then lets process environment variables
// override individual fields — the same YAML-plus-env-expand layering
// tarsy's own config package uses, simplified to this kernel's flat
// knob set (no agent/chain/MCP registries survive from the teacher).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quaycorner/swarmkernel/pkg/retry"
)

// CheckpointBackend selects the checkpointer variant — spec §4.2/§6.
type CheckpointBackend string

const (
	CheckpointMemory       CheckpointBackend = "memory"
	CheckpointLocalDurable CheckpointBackend = "local_durable"
)

// Config is the full set of environment-level knobs from spec §6, plus
// the ambient listen address and Postgres DSN the local_durable backend
// needs (outside spec's explicit table, but required to make it usable).
type Config struct {
	MaxConcurrent    int               `yaml:"max_concurrent"`
	MaxRetries       int               `yaml:"max_retries"`
	RetryPolicy      retry.Policy      `yaml:"retry_policy"`
	BreakerThreshold int               `yaml:"breaker_threshold"`
	BreakerTimeoutS  int               `yaml:"breaker_timeout_s"`
	AgentTimeoutS    int               `yaml:"agent_timeout_s"`
	RunDeadlineS     int               `yaml:"run_deadline_s"`
	StreamHWM        int               `yaml:"stream_hwm"`
	CheckpointStore  CheckpointBackend `yaml:"checkpoint_store"`
	PostgresDSN      string            `yaml:"postgres_dsn"`
	ListenAddr       string            `yaml:"listen_addr"`
}

// Default returns the spec §6 defaults.
func Default() Config {
	return Config{
		MaxConcurrent:    3,
		MaxRetries:       3,
		RetryPolicy:      retry.PolicyExponential,
		BreakerThreshold: 5,
		BreakerTimeoutS:  60,
		AgentTimeoutS:    60,
		RunDeadlineS:     600,
		StreamHWM:        1024,
		CheckpointStore:  CheckpointMemory,
		ListenAddr:       ":8080",
	}
}

// Load reads path (if non-empty and it exists) as a YAML overlay on
// Default(), then applies environment variable overrides, then
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		body, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(body, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envInt("MAX_CONCURRENT", &cfg.MaxConcurrent)
	envInt("MAX_RETRIES", &cfg.MaxRetries)
	if v, ok := os.LookupEnv("RETRY_POLICY"); ok {
		cfg.RetryPolicy = retry.Policy(v)
	}
	envInt("BREAKER_THRESHOLD", &cfg.BreakerThreshold)
	envInt("BREAKER_TIMEOUT_S", &cfg.BreakerTimeoutS)
	envInt("AGENT_TIMEOUT_S", &cfg.AgentTimeoutS)
	envInt("RUN_DEADLINE_S", &cfg.RunDeadlineS)
	envInt("STREAM_HWM", &cfg.StreamHWM)
	if v, ok := os.LookupEnv("CHECKPOINT_STORE"); ok {
		cfg.CheckpointStore = CheckpointBackend(v)
	}
	if v, ok := os.LookupEnv("POSTGRES_DSN"); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := os.LookupEnv("LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
}

func envInt(name string, dst *int) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

// Validate rejects a config with out-of-range or unrecognized enum
// values — spec §6's knob table is the schema.
func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max_concurrent must be >= 1", ErrInvalidConfig)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be >= 1", ErrInvalidConfig)
	}
	if !c.RetryPolicy.IsValid() {
		return fmt.Errorf("%w: retry_policy %q not recognized", ErrInvalidConfig, c.RetryPolicy)
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("%w: breaker_threshold must be >= 1", ErrInvalidConfig)
	}
	if c.StreamHWM < 1 {
		return fmt.Errorf("%w: stream_hwm must be >= 1", ErrInvalidConfig)
	}
	switch c.CheckpointStore {
	case CheckpointMemory, CheckpointLocalDurable:
	default:
		return fmt.Errorf("%w: checkpoint_store %q not recognized", ErrInvalidConfig, c.CheckpointStore)
	}
	if c.CheckpointStore == CheckpointLocalDurable && c.PostgresDSN == "" {
		return fmt.Errorf("%w: postgres_dsn required when checkpoint_store=local_durable", ErrInvalidConfig)
	}
	return nil
}

// RetryConfig adapts Config into the retry package's Config shape.
func (c Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:   c.MaxRetries,
		Policy:       c.RetryPolicy,
		Base:         1 * time.Second,
		MaxDelay:     30 * time.Second,
		AgentTimeout: time.Duration(c.AgentTimeoutS) * time.Second,
	}
}

// BreakerTimeout returns BreakerTimeoutS as a time.Duration.
func (c Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutS) * time.Second
}

// RunDeadline returns RunDeadlineS as a time.Duration.
func (c Config) RunDeadline() time.Duration {
	return time.Duration(c.RunDeadlineS) * time.Second
}
