package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "ptp.yml"

// Defaults applied by Validate when a field is omitted.
const (
	DefaultWorkers          = 1
	DefaultSleepDuration    = time.Millisecond
	DefaultMemoryLimitMB    = 4000
	DefaultMemoryInterval   = 10 * time.Second
	DefaultHealthPort       = 8080
	DefaultPushIntervalMin  = time.Second
	DefaultPushIntervalMax  = 2 * time.Second
	DefaultPullIntervalMin  = 2 * time.Second
	DefaultPullIntervalMax  = 4 * time.Second
	DefaultRedisInstance    = "default"
	defaultSupportedVersion = "1.0"
	intervalGranularity     = time.Millisecond
	maxPort                 = 65535
	envRedisURL             = "PTP_REDIS_URL"
	envInstanceName         = "PTP_INSTANCE_NAME"
	envMemoryLimitMB        = "PTP_MEMORY_LIMIT_MB"
	envHealthPort           = "PTP_HEALTH_PORT"
)

// Config represents the top-level ptp.yml configuration
type Config struct {
	Version  string         `yaml:"version"`
	Pool     PoolConfig     `yaml:"pool,omitempty"`
	Listener ListenerConfig `yaml:"listener,omitempty"`
	Memory   MemoryConfig   `yaml:"memory,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
	Health   HealthConfig   `yaml:"health,omitempty"`
}

// PoolConfig sizes the search pool
type PoolConfig struct {
	Workers       int            `yaml:"workers,omitempty"`        // Default: 1
	SleepDuration *time.Duration `yaml:"sleep_duration,omitempty"` // Idle poll interval, 0 = yield. Default: 1ms
}

// ListenerConfig controls the clause-sharing workers
type ListenerConfig struct {
	ClauseSharing *bool    `yaml:"clause_sharing,omitempty"` // Default: true
	PushInterval  Interval `yaml:"push_interval,omitempty"`
	PullInterval  Interval `yaml:"pull_interval,omitempty"`
	Seed          int64    `yaml:"seed,omitempty"` // Picks the worker periods inside their intervals
}

// Interval is a closed range of durations
type Interval struct {
	Min time.Duration `yaml:"min,omitempty"`
	Max time.Duration `yaml:"max,omitempty"`
}

// MemoryConfig configures the memory watchdog
type MemoryConfig struct {
	LimitMB       *uint64       `yaml:"limit_mb,omitempty"`       // 0 disables the watchdog. Default: 4000
	CheckInterval time.Duration `yaml:"check_interval,omitempty"` // Default: 10s
}

// RedisConfig points at the lemma server. An empty URL means in-process exchange.
type RedisConfig struct {
	URL      string `yaml:"url,omitempty"`
	Instance string `yaml:"instance,omitempty"` // Default: "default"
}

// HealthConfig configures the health and metrics endpoint
type HealthConfig struct {
	Port *int `yaml:"port,omitempty"` // 0 disables the server. Default: 8080
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: defaultSupportedVersion}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: default configuration is invalid: %v", err))
	}
	return cfg
}

// Validate performs strict validation on the configuration and fills in
// defaults for omitted fields.
func (c *Config) Validate() error {
	// Required: version
	if c.Version != defaultSupportedVersion {
		return fmt.Errorf("unsupported version: %s (expected: %s)", c.Version, defaultSupportedVersion)
	}

	if c.Pool.Workers == 0 {
		c.Pool.Workers = DefaultWorkers
	}
	if c.Pool.Workers < 1 {
		return fmt.Errorf("pool.workers must be >= 1, got %d", c.Pool.Workers)
	}
	if c.Pool.SleepDuration == nil {
		d := DefaultSleepDuration
		c.Pool.SleepDuration = &d
	} else if *c.Pool.SleepDuration < 0 {
		return fmt.Errorf("pool.sleep_duration must be >= 0, got %s", *c.Pool.SleepDuration)
	}

	if c.Listener.ClauseSharing == nil {
		enabled := true
		c.Listener.ClauseSharing = &enabled
	}
	if err := c.Listener.PushInterval.validate("listener.push_interval", DefaultPushIntervalMin, DefaultPushIntervalMax); err != nil {
		return err
	}
	if err := c.Listener.PullInterval.validate("listener.pull_interval", DefaultPullIntervalMin, DefaultPullIntervalMax); err != nil {
		return err
	}

	if c.Memory.LimitMB == nil {
		limit := uint64(DefaultMemoryLimitMB)
		c.Memory.LimitMB = &limit
	}
	if c.Memory.CheckInterval == 0 {
		c.Memory.CheckInterval = DefaultMemoryInterval
	}
	if c.Memory.CheckInterval < 0 {
		return fmt.Errorf("memory.check_interval must be positive, got %s", c.Memory.CheckInterval)
	}

	if c.Redis.Instance == "" {
		c.Redis.Instance = DefaultRedisInstance
	}

	if c.Health.Port == nil {
		port := DefaultHealthPort
		c.Health.Port = &port
	}
	if *c.Health.Port < 0 || *c.Health.Port > maxPort {
		return fmt.Errorf("health.port must be between 0 and %d, got %d", maxPort, *c.Health.Port)
	}

	return nil
}

func (i *Interval) validate(field string, defMin, defMax time.Duration) error {
	if i.Min == 0 && i.Max == 0 {
		i.Min, i.Max = defMin, defMax
	}
	if i.Max == 0 {
		i.Max = i.Min
	}
	if i.Min <= 0 {
		return fmt.Errorf("%s.min must be positive, got %s", field, i.Min)
	}
	if i.Max < i.Min {
		return fmt.Errorf("%s.max (%s) must be >= min (%s)", field, i.Max, i.Min)
	}
	return nil
}

// Pick returns a deterministic duration within the interval for seed, at
// millisecond granularity.
func (i Interval) Pick(seed int64) time.Duration {
	span := int64((i.Max-i.Min)/intervalGranularity) + 1
	offset := seed % span
	if offset < 0 {
		offset += span
	}
	return i.Min + time.Duration(offset)*intervalGranularity
}

// ClauseSharingEnabled reports whether the clause workers exchange lemmas.
func (c *Config) ClauseSharingEnabled() bool {
	return c.Listener.ClauseSharing == nil || *c.Listener.ClauseSharing
}

// MemoryLimitMB returns the memory ceiling; 0 means disabled.
func (c *Config) MemoryLimitMB() uint64 {
	if c.Memory.LimitMB == nil {
		return DefaultMemoryLimitMB
	}
	return *c.Memory.LimitMB
}

// HealthPort returns the health server port; 0 means disabled.
func (c *Config) HealthPort() int {
	if c.Health.Port == nil {
		return DefaultHealthPort
	}
	return *c.Health.Port
}

// SleepDuration returns the search pool's idle poll interval.
func (c *Config) SleepDuration() time.Duration {
	if c.Pool.SleepDuration == nil {
		return DefaultSleepDuration
	}
	return *c.Pool.SleepDuration
}

// Load reads and validates ptp.yml from the specified path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ApplyEnv overrides fields from PTP_* environment variables read through
// getenv, then re-validates.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(envRedisURL); v != "" {
		c.Redis.URL = v
	}
	if v := getenv(envInstanceName); v != "" {
		c.Redis.Instance = v
	}
	if v := getenv(envMemoryLimitMB); v != "" {
		limit, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be a non-negative integer: %w", envMemoryLimitMB, err)
		}
		c.Memory.LimitMB = &limit
	}
	if v := getenv(envHealthPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", envHealthPort, err)
		}
		c.Health.Port = &port
	}
	return c.Validate()
}

// Resolve loads path (or the defaults when path is empty) and applies the
// process environment.
func Resolve(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return cfg, nil
}
