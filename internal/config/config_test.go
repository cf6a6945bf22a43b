package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Pipeline.SeedTermCap)
	assert.Equal(t, 30, cfg.Pipeline.MentionBatchSize)
	assert.Equal(t, 20, cfg.Pipeline.ResolveThreshold)
	assert.Equal(t, 80, cfg.Pipeline.ResolveWindow)
	assert.Equal(t, 2, cfg.Resilience.Retry.MaxRetries)
	assert.Contains(t, cfg.Resilience.Limits, "llm")
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "reddit", cfg.Sources[0].Name)
}

func TestParseAndMerge(t *testing.T) {
	t.Parallel()

	raw := []byte(`
database:
  driver: sqlite
  dsn: file:scout.db
cache:
  driver: redis
  ttl: 2h
  redis:
    addr: redis:6379
resilience:
  limits:
    llm:
      capacity: 2
      refillPerSecond: 0.5
  retry:
    maxRetries: 4
    baseDelay: 250ms
pipeline:
  workers: 8
  pollInterval: 30s
sources:
  - name: reddit
    enabled: false
`)
	fileCfg, err := Parse(raw)
	require.NoError(t, err)

	cfg := mergeConfig(Default(), fileCfg)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:scout.db", cfg.Database.DSN)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2, cfg.Resilience.Limits["llm"].Capacity)
	assert.Contains(t, cfg.Resilience.Limits, "reddit", "unlisted limits keep defaults")
	assert.Equal(t, 4, cfg.Resilience.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Resilience.Retry.BaseDelay)
	assert.Equal(t, 5*time.Second, cfg.Resilience.Retry.MaxDelay)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.PollInterval)
	assert.Equal(t, 30, cfg.Pipeline.MentionBatchSize)
	require.Len(t, cfg.Sources, 1)
	assert.False(t, cfg.Sources[0].Enabled)
}

func TestParseRejectsBrokenYAML(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("pipeline: [unclosed"))
	assert.Error(t, err)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, "llm:\n  model: from-file\nserver:\n  addr: \":9000\"\n")
	t.Setenv(configPathEnv, "")
	t.Setenv(llmModelEnv, "from-env")
	t.Setenv(databaseDriverEnv, "POSTGRES")
	t.Setenv(natsURLEnv, "nats://localhost:4222")

	cfg := Load(path)

	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "nats://localhost:4222", cfg.Notifications.NATS.URL)
}

func TestLoadUsesConfigEnvPath(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: warn\n")
	t.Setenv(configPathEnv, path)
	t.Setenv(logLevelEnv, "")

	cfg := Load("")
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDriverEnv, "")

	cfg := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, Default().Database.Driver, cfg.Database.Driver)
}
