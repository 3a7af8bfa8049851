// Package ratelimit spaces out requests per host with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/JakeFAU/lexharvest/internal/policy/ratelimit"

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	delays       metric.Float64Histogram
	logger       *zap.Logger
}

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
	// MeterProvider receives the wait-time histogram. Nil uses the global provider.
	MeterProvider metric.MeterProvider
}

// New creates a new Limiter.
func New(cfg Config, logger *zap.Logger) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	delays, err := mp.Meter(instrumentationName).Float64Histogram(
		"lexharvest.ratelimit.delay",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent waiting for a per-host token."),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 30),
	)
	if err != nil {
		logger.Warn("rate limit delay histogram unavailable", zap.Error(err))
		delays = noop.Float64Histogram{}
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		delays:       delays,
		logger:       logger,
	}
}

// Wait blocks until a token is available for the URL's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	delay := time.Since(start)
	l.delays.Record(ctx, delay.Seconds(), metric.WithAttributes(attribute.String("host", host)))
	if delay > time.Millisecond {
		l.logger.Debug("rate limited", zap.String("host", host), zap.Duration("delay", delay))
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
