package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://eur-lex.europa.eu", cfg.Catalog.BaseURL)
	assert.Equal(t, "2023-10-02", cfg.Catalog.MinPeriod)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout())
	assert.Equal(t, 5, cfg.HTTP.MaxAttempts)
	assert.Equal(t, 4*time.Second, cfg.HTTP.BackoffInitial())
	assert.Equal(t, 60*time.Second, cfg.HTTP.BackoffMax())
	assert.Empty(t, cfg.HTTP.UserAgents)
	assert.Equal(t, 1, cfg.HTTP.RateLimitBurst)
	assert.Equal(t, 1, cfg.Harvest.Concurrency)
	assert.Equal(t, "data/documents", cfg.Storage.Root)
	assert.Equal(t, "records", cfg.Storage.GCSPrefix)
	assert.Equal(t, "stored_documents", cfg.DB.Table)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "metrics", cfg.Metrics.Dir)
	assert.Equal(t, "lexharvest", cfg.Telemetry.ServiceName)
	assert.Empty(t, cfg.Telemetry.ProjectID)
	assert.True(t, cfg.Logging.Development)

	minPeriod, err := cfg.Catalog.MinPeriodValue()
	require.NoError(t, err)
	assert.Equal(t, "20231002", minPeriod.ID())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
catalog:
  min_period: "2024-01-15"
http:
  timeout_seconds: 10
  max_attempts: 3
  backoff_initial_seconds: 1
  backoff_max_seconds: 5
  user_agents: ["agent-a", "agent-b"]
  rate_limit_rps: 2.5
  rate_limit_burst: 4
harvest:
  concurrency: 8
storage:
  root: /srv/records
  backup_dir: /srv/duplicates
  gcs_bucket: lex-bucket
db:
  dsn: postgres://localhost/lex
pubsub:
  project_id: lex-project
  topic_name: records
metrics:
  enabled: false
  dir: ""
telemetry:
  service_version: "1.2.0"
  project_id: lex-project
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15", cfg.Catalog.MinPeriod)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout())
	assert.Equal(t, 3, cfg.HTTP.MaxAttempts)
	assert.Equal(t, []string{"agent-a", "agent-b"}, cfg.HTTP.UserAgents)
	assert.InDelta(t, 2.5, cfg.HTTP.RateLimitRPS, 0.0001)
	assert.Equal(t, 4, cfg.HTTP.RateLimitBurst)
	assert.Equal(t, 8, cfg.Harvest.Concurrency)
	assert.Equal(t, "/srv/records", cfg.Storage.Root)
	assert.Equal(t, "/srv/duplicates", cfg.Storage.BackupDir)
	assert.Equal(t, "lex-bucket", cfg.Storage.GCSBucket)
	assert.Equal(t, "postgres://localhost/lex", cfg.DB.DSN)
	assert.Equal(t, "lex-project", cfg.PubSub.ProjectID)
	assert.Equal(t, "records", cfg.PubSub.TopicName)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "1.2.0", cfg.Telemetry.ServiceVersion)
	assert.Equal(t, "lex-project", cfg.Telemetry.ProjectID)
	assert.False(t, cfg.Logging.Development)
}

// Environment tests cannot run in parallel because t.Setenv mutates process state.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LEXHARVEST_STORAGE_ROOT", "/env/records")
	t.Setenv("LEXHARVEST_HARVEST_CONCURRENCY", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/records", cfg.Storage.Root)
	assert.Equal(t, 4, cfg.Harvest.Concurrency)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "bad url", mutate: func(c *Config) { c.Catalog.BaseURL = "::not a url" }, field: "BaseURL"},
		{name: "bad min period", mutate: func(c *Config) { c.Catalog.MinPeriod = "02/10/2023" }, field: "MinPeriod"},
		{name: "zero attempts", mutate: func(c *Config) { c.HTTP.MaxAttempts = 0 }, field: "MaxAttempts"},
		{name: "cap below initial", mutate: func(c *Config) { c.HTTP.BackoffMaxSeconds = 2 }, field: "BackoffMaxSeconds"},
		{name: "negative rps", mutate: func(c *Config) { c.HTTP.RateLimitRPS = -1 }, field: "RateLimitRPS"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Harvest.Concurrency = 0 }, field: "Concurrency"},
		{name: "empty root", mutate: func(c *Config) { c.Storage.Root = "" }, field: "Root"},
		{name: "dsn without table", mutate: func(c *Config) { c.DB.DSN = "postgres://x"; c.DB.Table = "" }, field: "Table"},
		{name: "project without topic", mutate: func(c *Config) { c.PubSub.ProjectID = "p" }, field: "TopicName"},
		{name: "metrics without dir", mutate: func(c *Config) { c.Metrics.Dir = "" }, field: "Dir"},
		{name: "unnamed service", mutate: func(c *Config) { c.Telemetry.ServiceName = "" }, field: "ServiceName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base
			cfg.HTTP.UserAgents = append([]string(nil), base.HTTP.UserAgents...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
