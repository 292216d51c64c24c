package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

const sampleYAML = `
batch:
  chunk_size: 5
  item_retry:
    max_attempts: 3
    retryable_exceptions: ["ItemError"]
  item_skip:
    skip_limit: 10
    skippable_exceptions: ["ItemError"]
system:
  logging:
    level: DEBUG
infrastructure:
  job_repository_type: sql
database:
  metadata:
    type: sqlite
    database: ${TEST_DB_PATH:-/tmp/batch.db}
    pool:
      max_open_conns: 1
scheduler:
  entries:
    - job_name: parameterJob
      spec: "@every 30s"
`

type dbSection struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Pool     struct {
		MaxOpenConns int `yaml:"max_open_conns"`
	} `yaml:"pool"`
}

func TestLoadConfig_YAMLOverDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("", config.EmbeddedConfig(sampleYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Batch.ChunkSize)
	assert.Equal(t, 3, cfg.Batch.ItemRetry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Batch.ItemRetry.Factor, "default kept when YAML omits it")
	assert.Equal(t, "DEBUG", cfg.System.Logging.Level)
	assert.Equal(t, "UTC", cfg.System.Timezone)
	assert.Equal(t, "skip-if-running", cfg.Scheduler.OverlapPolicy)
	require.Len(t, cfg.Scheduler.Entries, 1)
	assert.Equal(t, "@every 30s", cfg.Scheduler.Entries[0].Spec)

	var db dbSection
	require.NoError(t, config.DecodeSection(cfg.Database["metadata"], &db))
	assert.Equal(t, "/tmp/batch.db", db.Database)
	assert.Equal(t, 1, db.Pool.MaxOpenConns)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TEST_DB_PATH", "/data/meta.db")
	t.Setenv("BATCH_CHUNK_SIZE", "20")
	t.Setenv("SECURITY_MASKED_PARAMETER_KEYS", "token, password")
	t.Setenv("DATABASE_METADATA_HOST", "db.internal")
	t.Setenv("DATABASE_METADATA_PORT", "5432")

	cfg, err := config.LoadConfig("", config.EmbeddedConfig(sampleYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Batch.ChunkSize)
	assert.Equal(t, []string{"token", "password"}, cfg.Security.MaskedParameterKeys)

	var db dbSection
	require.NoError(t, config.DecodeSection(cfg.Database["metadata"], &db))
	assert.Equal(t, "/data/meta.db", db.Database)
	assert.Equal(t, "db.internal", db.Host)
	assert.Equal(t, 5432, db.Port)
	assert.Equal(t, "sqlite", db.Type)
}

func TestLoadConfig_RejectsUnknownExceptionNames(t *testing.T) {
	_, err := config.LoadConfig("", config.EmbeddedConfig(`
batch:
  item_skip:
    skippable_exceptions: ["NoSuchError"]
`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchError")
}

func TestLoadConfig_RejectsUnknownOverlapPolicy(t *testing.T) {
	_, err := config.LoadConfig("", config.EmbeddedConfig("scheduler:\n  overlap_policy: sometimes\n"), nil)
	assert.Error(t, err)
}

func TestOsEnvironmentExpander(t *testing.T) {
	t.Setenv("EXPANDER_SET", "value")
	out, err := config.NewOsEnvironmentExpander().Expand([]byte("a=${EXPANDER_SET} b=${EXPANDER_UNSET:-fallback} c=${EXPANDER_UNSET}"))
	require.NoError(t, err)
	assert.Equal(t, "a=value b=fallback c=", string(out))
}
