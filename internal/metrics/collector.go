// Package metrics implements the harvest metrics sink on Prometheus collectors, with textfile
// export for batch runs and an optional HTTP exposition endpoint.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/clock/system"
	"github.com/JakeFAU/lexharvest/internal/harvest"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Config controls where flushed metric snapshots are written.
type Config struct {
	// Dir receives one metrics_YYYYMMDD_HHMMSS.prom file per Flush. Empty disables file export.
	Dir   string
	Clock harvest.Clock
}

// Collector records pipeline activity on a private Prometheus registry.
type Collector struct {
	requests         *prometheus.CounterVec
	retries          *prometheus.CounterVec
	documents        *prometheus.CounterVec
	validationErrors *prometheus.CounterVec
	events           *prometheus.CounterVec
	storageSize      prometheus.Gauge
	documentDuration *prometheus.HistogramVec
	periodDuration   *prometheus.HistogramVec

	registry *prometheus.Registry
	dir      string
	clock    harvest.Clock
	logger   *zap.Logger
}

var _ harvest.Metrics = (*Collector)(nil)

// NewCollector registers the harvest collectors on reg (a fresh registry when nil).
func NewCollector(cfg Config, reg *prometheus.Registry, logger *zap.Logger) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = system.New()
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create metrics dir %s: %w", cfg.Dir, err)
		}
	}
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexharvest_requests_total",
			Help: "Fetch attempts partitioned by outcome and site.",
		}, []string{"status", "site"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexharvest_retry_attempts_total",
			Help: "Failed fetch attempts that triggered the retry policy.",
		}, []string{"site"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexharvest_documents_processed_total",
			Help: "Documents processed partitioned by outcome and period.",
		}, []string{"status", "period"}),
		validationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexharvest_validation_errors_total",
			Help: "Validation failures partitioned by kind.",
		}, []string{"type"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexharvest_events_total",
			Help: "Diagnostic pipeline events.",
		}, []string{"event"}),
		storageSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lexharvest_storage_size_bytes",
			Help: "Total size of stored records.",
		}),
		documentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexharvest_document_processing_seconds",
			Help:    "Time spent processing one document.",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		periodDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexharvest_period_processing_seconds",
			Help:    "Time spent processing one period.",
			Buckets: []float64{10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		registry: reg,
		dir:      cfg.Dir,
		clock:    clock,
		logger:   logger,
	}
	for _, collector := range []prometheus.Collector{
		c.requests,
		c.retries,
		c.documents,
		c.validationErrors,
		c.events,
		c.storageSize,
		c.documentDuration,
		c.periodDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register harvest collector: %w", err)
		}
	}
	return c, nil
}

// Gatherer exposes the registry backing the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// RecordRequest counts one fetch attempt.
func (c *Collector) RecordRequest(success bool, target string) {
	c.requests.WithLabelValues(status(success), SanitizeSite(target)).Inc()
}

// RecordRetry counts one failed attempt.
func (c *Collector) RecordRetry(target string) {
	c.retries.WithLabelValues(SanitizeSite(target)).Inc()
}

// RecordDocumentProcessed counts a document outcome within a period.
func (c *Collector) RecordDocumentProcessed(success bool, period string) {
	c.documents.WithLabelValues(status(success), period).Inc()
}

// RecordValidationError counts a validation failure. The detail is logged, not labeled.
func (c *Collector) RecordValidationError(kind, detail string) {
	c.validationErrors.WithLabelValues(kind).Inc()
	c.logger.Debug("validation error", zap.String("type", kind), zap.String("detail", detail))
}

// RecordEvent counts a diagnostic event.
func (c *Collector) RecordEvent(kind, detail string) {
	c.events.WithLabelValues(kind).Inc()
	c.logger.Debug("pipeline event", zap.String("event", kind), zap.String("detail", detail))
}

// UpdateStorageSize sets the stored-bytes gauge.
func (c *Collector) UpdateStorageSize(bytes int64) {
	c.storageSize.Set(float64(bytes))
}

// StartSpan starts timing a document or period.
func (c *Collector) StartSpan(kind harvest.SpanKind, label string) harvest.Span {
	hist := c.documentDuration
	if kind == harvest.SpanPeriod {
		hist = c.periodDuration
	}
	return &span{
		hist:   hist,
		kind:   kind,
		label:  label,
		start:  c.clock.Now(),
		clock:  c.clock,
		logger: c.logger,
	}
}

// Flush writes a snapshot of every collector to the metrics directory.
func (c *Collector) Flush() error {
	if c.dir == "" {
		return nil
	}
	name := fmt.Sprintf("metrics_%s.prom", c.clock.Now().Format("20060102_150405"))
	path := filepath.Join(c.dir, name)
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	c.logger.Info("metrics saved", zap.String("path", path))
	return nil
}

type span struct {
	hist    *prometheus.HistogramVec
	kind    harvest.SpanKind
	label   string
	start   time.Time
	clock   harvest.Clock
	logger  *zap.Logger
	stopped atomic.Bool
}

// Stop observes the elapsed time once; later calls only report the duration.
func (s *span) Stop(outcome string) time.Duration {
	elapsed := s.clock.Now().Sub(s.start)
	if !s.stopped.CompareAndSwap(false, true) {
		return elapsed
	}
	s.hist.WithLabelValues(outcome).Observe(elapsed.Seconds())
	s.logger.Debug("span stopped",
		zap.String("kind", string(s.kind)),
		zap.String("label", s.label),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	)
	return elapsed
}

func status(success bool) string {
	if success {
		return statusSuccess
	}
	return statusFailure
}
