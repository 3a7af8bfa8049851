// Package app builds the long-lived harvester services from configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/catalog"
	"github.com/JakeFAU/lexharvest/internal/clock/system"
	"github.com/JakeFAU/lexharvest/internal/config"
	"github.com/JakeFAU/lexharvest/internal/dedupe"
	"github.com/JakeFAU/lexharvest/internal/extract"
	collyfetcher "github.com/JakeFAU/lexharvest/internal/fetcher/colly"
	"github.com/JakeFAU/lexharvest/internal/harvest"
	"github.com/JakeFAU/lexharvest/internal/hash/sha256"
	"github.com/JakeFAU/lexharvest/internal/id/uuid"
	"github.com/JakeFAU/lexharvest/internal/metrics"
	"github.com/JakeFAU/lexharvest/internal/middleware"
	"github.com/JakeFAU/lexharvest/internal/pipeline"
	"github.com/JakeFAU/lexharvest/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/lexharvest/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/lexharvest/internal/publisher/pubsub"
	"github.com/JakeFAU/lexharvest/internal/record"
	gcsmirror "github.com/JakeFAU/lexharvest/internal/storage/gcs"
	"github.com/JakeFAU/lexharvest/internal/storage/local"
	"github.com/JakeFAU/lexharvest/internal/storage/postgres"
	"github.com/JakeFAU/lexharvest/internal/telemetry"
	"github.com/JakeFAU/lexharvest/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

// App holds the services shared by every command.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     *system.Clock
	metrics   harvest.Metrics
	registry  *prometheus.Registry
	store     *local.Store
	telemetry *telemetry.Providers
	server    *http.Server
	closers   []func()
}

// New builds the metrics sink, tracing and the record store. Optional integrations are created
// by the command that needs them.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: system.New()}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		collector, err := metrics.NewCollector(
			metrics.Config{Dir: cfg.Metrics.Dir, Clock: a.clock},
			a.registry,
			logger.Named("metrics"),
		)
		if err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		a.metrics = collector
	} else {
		a.metrics = metrics.Nop{}
	}

	var reg prometheus.Registerer
	if a.registry != nil {
		reg = a.registry
	}
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		ProjectID:      cfg.Telemetry.ProjectID,
	}, reg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.telemetry = providers

	store, err := local.New(
		local.Config{Root: cfg.Storage.Root},
		record.NewValidator(a.metrics, logger.Named("validator")),
		logger.Named("store"),
	)
	if err != nil {
		return nil, fmt.Errorf("init record store: %w", err)
	}
	a.store = store
	return a, nil
}

// Config returns the configuration the services were built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Metrics returns the active metrics sink.
func (a *App) Metrics() harvest.Metrics {
	return a.metrics
}

// Store returns the local record store.
func (a *App) Store() *local.Store {
	return a.store
}

// ServeMetrics starts the scrape endpoint when metrics.listen_addr is set.
func (a *App) ServeMetrics() {
	if a.registry == nil || a.cfg.Metrics.ListenAddr == "" || a.server != nil {
		return
	}
	instrument, err := middleware.Instrument(a.registry)
	if err != nil {
		a.logger.Warn("metrics server not started", zap.Error(err))
		return
	}
	a.server = metrics.NewServer(a.cfg.Metrics.ListenAddr, a.registry, a.logger.Named("metrics"), instrument)
	go func() {
		a.logger.Info("metrics server started", zap.String("addr", a.cfg.Metrics.ListenAddr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Harvester assembles the pipeline: tracker seeded from the store, rate-limited fetcher,
// extractors and any configured post-store hooks.
func (a *App) Harvester(ctx context.Context) (*pipeline.Harvester, error) {
	urls := catalog.NewURLs(a.cfg.Catalog.BaseURL)

	minPeriod, err := a.cfg.Catalog.MinPeriodValue()
	if err != nil {
		return nil, fmt.Errorf("parse min period: %w", err)
	}

	seen, err := tracker.New(ctx, a.store, a.logger.Named("tracker"))
	if err != nil {
		return nil, fmt.Errorf("rebuild tracker: %w", err)
	}
	a.logger.Info("tracker rebuilt", zap.Int("processed", seen.Count()))

	limiter := ratelimit.New(ratelimit.Config{
		RPS:   a.cfg.HTTP.RateLimitRPS,
		Burst: a.cfg.HTTP.RateLimitBurst,
	}, a.logger.Named("ratelimit"))
	fetcher := collyfetcher.New(collyfetcher.Config{
		Timeout:        a.cfg.HTTP.Timeout(),
		MaxAttempts:    a.cfg.HTTP.MaxAttempts,
		BackoffInitial: a.cfg.HTTP.BackoffInitial(),
		BackoffMax:     a.cfg.HTTP.BackoffMax(),
		UserAgents:     a.cfg.HTTP.UserAgents,
	}, limiter, a.metrics, a.logger.Named("fetcher"))

	links, err := catalog.NewLinkExtractor(urls.Base(), a.metrics, a.logger.Named("links"))
	if err != nil {
		return nil, fmt.Errorf("init link extractor: %w", err)
	}

	hooks, err := a.hooks(ctx)
	if err != nil {
		return nil, err
	}

	return pipeline.New(
		urls,
		fetcher,
		links,
		extract.NewMetadataParser(a.logger.Named("metadata")),
		extract.NewContentParser(urls),
		seen,
		a.store,
		a.metrics,
		hooks,
		pipeline.Config{
			Concurrency: a.cfg.Harvest.Concurrency,
			MinPeriod:   minPeriod,
			Topic:       a.cfg.PubSub.TopicName,
		},
		a.logger.Named("harvester"),
	)
}

// Deduplicator returns a deduplicator over the local record store.
func (a *App) Deduplicator() (*dedupe.Deduplicator, error) {
	return dedupe.New(a.store, a.logger.Named("dedupe"))
}

func (a *App) hooks(ctx context.Context) (pipeline.Hooks, error) {
	hooks := pipeline.Hooks{Hasher: sha256.New(), Clock: a.clock}

	if bucket := a.cfg.Storage.GCSBucket; bucket != "" {
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return hooks, fmt.Errorf("init gcs client: %w", err)
		}
		a.onClose(func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("gcs client close failed", zap.Error(err))
			}
		})
		mirror, err := gcsmirror.New(client, gcsmirror.Config{Bucket: bucket, Prefix: a.cfg.Storage.GCSPrefix})
		if err != nil {
			return hooks, fmt.Errorf("init gcs mirror: %w", err)
		}
		hooks.Mirror = mirror
		a.logger.Info("mirroring records to gcs", zap.String("bucket", bucket))
	}

	if dsn := a.cfg.DB.DSN; dsn != "" {
		ledger, err := postgres.NewLedger(ctx, postgres.LedgerConfig{DSN: dsn, Table: a.cfg.DB.Table}, uuid.NewGenerator())
		if err != nil {
			return hooks, fmt.Errorf("init ledger: %w", err)
		}
		a.onClose(ledger.Close)
		hooks.Ledger = ledger
		a.logger.Info("recording stored documents in postgres", zap.String("table", a.cfg.DB.Table))
	}

	switch project := a.cfg.PubSub.ProjectID; {
	case project == "" && a.cfg.PubSub.TopicName != "":
		mem := memorypublisher.New()
		hooks.Notifier = mem
		a.onClose(func() {
			a.logger.Info("notifications kept in memory (no pubsub project)",
				zap.String("topic", a.cfg.PubSub.TopicName),
				zap.Int("messages", len(mem.Messages())),
			)
		})
	case project != "":
		client, err := pubsub.NewClient(ctx, project)
		if err != nil {
			return hooks, fmt.Errorf("init pubsub client: %w", err)
		}
		a.onClose(func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("pubsub client close failed", zap.Error(err))
			}
		})
		publisher, err := pubsubpublisher.NewFromClient(ctx, client, a.cfg.PubSub.TopicName)
		if err != nil {
			return hooks, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.onClose(publisher.Stop)
		hooks.Notifier = publisher
		a.logger.Info("publishing stored records", zap.String("topic", a.cfg.PubSub.TopicName))
	}

	return hooks, nil
}

// onClose registers fn to run during Close. Closers run in reverse registration order.
func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close flushes metrics, stops the scrape endpoint and releases optional clients.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if err := a.metrics.Flush(); err != nil {
		a.logger.Warn("metrics flush failed", zap.Error(err))
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
		cancel()
		a.server = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	a.telemetry = nil
}
