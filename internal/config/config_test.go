package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
pool:
  workers: 2
  sleep_duration: 0s
listener:
  clause_sharing: false
  push_interval:
    min: 100ms
    max: 200ms
  pull_interval:
    min: 300ms
  seed: 42
memory:
  limit_mb: 0
  check_interval: 1s
redis:
  url: redis://localhost:6379
  instance: smts-1
health:
  port: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pool.Workers)
	assert.Equal(t, time.Duration(0), cfg.SleepDuration())
	assert.False(t, cfg.ClauseSharingEnabled())
	assert.Equal(t, Interval{Min: 100 * time.Millisecond, Max: 200 * time.Millisecond}, cfg.Listener.PushInterval)
	assert.Equal(t, Interval{Min: 300 * time.Millisecond, Max: 300 * time.Millisecond}, cfg.Listener.PullInterval)
	assert.Equal(t, int64(42), cfg.Listener.Seed)
	assert.Equal(t, uint64(0), cfg.MemoryLimitMB())
	assert.Equal(t, time.Second, cfg.Memory.CheckInterval)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, "smts-1", cfg.Redis.Instance)
	assert.Equal(t, 0, cfg.HealthPort())
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `version: "1.0"`))
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkers, cfg.Pool.Workers)
	assert.Equal(t, DefaultSleepDuration, cfg.SleepDuration())
	assert.True(t, cfg.ClauseSharingEnabled())
	assert.Equal(t, Interval{Min: DefaultPushIntervalMin, Max: DefaultPushIntervalMax}, cfg.Listener.PushInterval)
	assert.Equal(t, Interval{Min: DefaultPullIntervalMin, Max: DefaultPullIntervalMax}, cfg.Listener.PullInterval)
	assert.Equal(t, uint64(DefaultMemoryLimitMB), cfg.MemoryLimitMB())
	assert.Equal(t, DefaultMemoryInterval, cfg.Memory.CheckInterval)
	assert.Equal(t, DefaultRedisInstance, cfg.Redis.Instance)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, DefaultHealthPort, cfg.HealthPort())

	assert.Equal(t, cfg, Default())
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/ptp.yml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "version: \"1.0\"\npool:\n  - this is invalid\n    yaml syntax\n"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{"unsupported version", `version: "2.0"`, "unsupported version: 2.0"},
		{"missing version", `pool: {workers: 1}`, "unsupported version"},
		{"negative workers", "version: \"1.0\"\npool: {workers: -1}", "pool.workers must be >= 1"},
		{"negative sleep", "version: \"1.0\"\npool: {sleep_duration: -1ms}", "pool.sleep_duration must be >= 0"},
		{"inverted push interval", "version: \"1.0\"\nlistener: {push_interval: {min: 2s, max: 1s}}", "listener.push_interval.max"},
		{"max without min", "version: \"1.0\"\nlistener: {pull_interval: {max: 1s}}", "listener.pull_interval.min must be positive"},
		{"negative memory interval", "version: \"1.0\"\nmemory: {check_interval: -1s}", "memory.check_interval must be positive"},
		{"port out of range", "version: \"1.0\"\nhealth: {port: 70000}", "health.port must be between 0 and 65535"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PTP_REDIS_URL":       "redis://redis:6379/1",
		"PTP_INSTANCE_NAME":   "portfolio",
		"PTP_MEMORY_LIMIT_MB": "512",
		"PTP_HEALTH_PORT":     "9090",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "redis://redis:6379/1", cfg.Redis.URL)
	assert.Equal(t, "portfolio", cfg.Redis.Instance)
	assert.Equal(t, uint64(512), cfg.MemoryLimitMB())
	assert.Equal(t, 9090, cfg.HealthPort())

	t.Run("invalid memory limit", func(t *testing.T) {
		err := Default().ApplyEnv(func(k string) string {
			if k == "PTP_MEMORY_LIMIT_MB" {
				return "-5"
			}
			return ""
		})
		assert.ErrorContains(t, err, "PTP_MEMORY_LIMIT_MB must be a non-negative integer")
	})

	t.Run("invalid port", func(t *testing.T) {
		err := Default().ApplyEnv(func(k string) string {
			if k == "PTP_HEALTH_PORT" {
				return "99999"
			}
			return ""
		})
		assert.ErrorContains(t, err, "health.port")
	})
}

func TestResolve(t *testing.T) {
	t.Setenv("PTP_INSTANCE_NAME", "from-env")

	cfg, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Redis.Instance)

	cfg, err = Resolve(writeConfig(t, "version: \"1.0\"\nredis: {instance: from-file}\npool: {workers: 3}"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Redis.Instance)
	assert.Equal(t, 3, cfg.Pool.Workers)

	_, err = Resolve("/nonexistent/ptp.yml")
	assert.Error(t, err)
}

func TestIntervalPick(t *testing.T) {
	i := Interval{Min: time.Second, Max: 2 * time.Second}
	for _, seed := range []int64{0, 1, 999, 1000, 1001, -7, 123456789} {
		d := i.Pick(seed)
		assert.GreaterOrEqual(t, d, i.Min)
		assert.LessOrEqual(t, d, i.Max)
	}
	assert.Equal(t, time.Second, i.Pick(0))
	assert.Equal(t, time.Second+999*time.Millisecond, i.Pick(999))
	assert.Equal(t, 2*time.Second, i.Pick(1000))
	assert.Equal(t, time.Second, i.Pick(1001))

	fixed := Interval{Min: 5 * time.Millisecond, Max: 5 * time.Millisecond}
	assert.Equal(t, 5*time.Millisecond, fixed.Pick(12345))
}
