// Package config loads harvester settings from file and environment using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

// EnvPrefix prefixes every environment override, e.g. LEXHARVEST_STORAGE_ROOT.
const EnvPrefix = "LEXHARVEST"

// Config is the root configuration document.
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CatalogConfig locates the publication catalog.
type CatalogConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	MinPeriod string `mapstructure:"min_period"`
}

// HTTPConfig tunes page retrieval.
type HTTPConfig struct {
	TimeoutSeconds        int      `mapstructure:"timeout_seconds"`
	MaxAttempts           int      `mapstructure:"max_attempts"`
	BackoffInitialSeconds int      `mapstructure:"backoff_initial_seconds"`
	BackoffMaxSeconds     int      `mapstructure:"backoff_max_seconds"`
	UserAgents            []string `mapstructure:"user_agents"`
	RateLimitRPS          float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst        int      `mapstructure:"rate_limit_burst"`
}

// HarvestConfig controls the orchestrator.
type HarvestConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// StorageConfig locates the record store and its optional mirror.
type StorageConfig struct {
	Root      string `mapstructure:"root"`
	BackupDir string `mapstructure:"backup_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DBConfig enables the stored-document ledger when DSN is set.
type DBConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig enables stored-record notifications when ProjectID is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the metrics textfile and optional scrape endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// TelemetryConfig names the service in traces. Spans are exported to Cloud Trace when ProjectID is set.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	ProjectID      string `mapstructure:"project_id"`
}

// LoggingConfig selects the zap preset.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads configuration from path (optional) and LEXHARVEST_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.base_url", "https://eur-lex.europa.eu")
	v.SetDefault("catalog.min_period", "2023-10-02")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.backoff_initial_seconds", 4)
	v.SetDefault("http.backoff_max_seconds", 60)
	v.SetDefault("http.user_agents", []string{})
	v.SetDefault("http.rate_limit_rps", 0)
	v.SetDefault("http.rate_limit_burst", 1)
	v.SetDefault("harvest.concurrency", 1)
	v.SetDefault("storage.root", "data/documents")
	v.SetDefault("storage.backup_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_prefix", "records")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "stored_documents")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.dir", "metrics")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("telemetry.service_name", "lexharvest")
	v.SetDefault("telemetry.service_version", "dev")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	err := validation.Errors{
		"catalog": validation.ValidateStruct(&c.Catalog,
			validation.Field(&c.Catalog.BaseURL, validation.Required, is.URL),
			validation.Field(&c.Catalog.MinPeriod, validation.Required, validation.Date(time.DateOnly)),
		),
		"http": validation.ValidateStruct(&c.HTTP,
			validation.Field(&c.HTTP.TimeoutSeconds, validation.Required, validation.Min(1)),
			validation.Field(&c.HTTP.MaxAttempts, validation.Required, validation.Min(1)),
			validation.Field(&c.HTTP.BackoffInitialSeconds, validation.Required, validation.Min(1)),
			validation.Field(&c.HTTP.BackoffMaxSeconds, validation.Required, validation.Min(c.HTTP.BackoffInitialSeconds)),
			validation.Field(&c.HTTP.RateLimitRPS, validation.Min(0.0)),
			validation.Field(&c.HTTP.RateLimitBurst, validation.Required, validation.Min(1)),
		),
		"harvest": validation.ValidateStruct(&c.Harvest,
			validation.Field(&c.Harvest.Concurrency, validation.Required, validation.Min(1)),
		),
		"storage": validation.ValidateStruct(&c.Storage,
			validation.Field(&c.Storage.Root, validation.Required),
		),
		"db": validation.ValidateStruct(&c.DB,
			validation.Field(&c.DB.Table, validation.When(c.DB.DSN != "", validation.Required)),
		),
		"pubsub": validation.ValidateStruct(&c.PubSub,
			validation.Field(&c.PubSub.TopicName, validation.When(c.PubSub.ProjectID != "", validation.Required)),
		),
		"metrics": validation.ValidateStruct(&c.Metrics,
			validation.Field(&c.Metrics.Dir, validation.When(c.Metrics.Enabled, validation.Required)),
		),
		"telemetry": validation.ValidateStruct(&c.Telemetry,
			validation.Field(&c.Telemetry.ServiceName, validation.Required),
		),
	}.Filter()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Timeout returns the per-request timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the wait after the first failed attempt.
func (c HTTPConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialSeconds) * time.Second
}

// BackoffMax returns the cap on retry waits.
func (c HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSeconds) * time.Second
}

// MinPeriodValue parses catalog.min_period.
func (c CatalogConfig) MinPeriodValue() (harvest.Period, error) {
	return harvest.ParsePeriod(c.MinPeriod)
}
