// Package collyfetcher implements harvest.Fetcher using gocolly with bounded retries.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/harvest"
	"github.com/JakeFAU/lexharvest/internal/metrics"
)

const (
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguageHeader = "en-US,en;q=0.5"

	defaultTimeout        = 30 * time.Second
	defaultMaxAttempts    = 5
	defaultBackoffInitial = 4 * time.Second
	defaultBackoffMax     = 60 * time.Second
)

// Config controls collector behavior and the retry budget.
type Config struct {
	Timeout        time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	UserAgents     []string
}

// Waiter paces outbound requests.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements harvest.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	agents        *UserAgentRotator
	limiter       Waiter
	metrics       harvest.Metrics
	logger        *zap.Logger

	get   func(ctx context.Context, url, userAgent string) (string, error)
	sleep func(ctx context.Context, d time.Duration) error
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter, m harvest.Metrics, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = defaultBackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())

	f := &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		agents:        NewUserAgentRotator(cfg.UserAgents),
		limiter:       limiter,
		metrics:       m,
		logger:        logger,
		sleep:         sleepWithContext,
	}
	f.get = f.visit
	return f
}

// Fetch retrieves url, retrying transient failures with exponential backoff. The user agent is
// rotated after every attempt. Exhausting the budget yields a *harvest.RetrievalError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	target := metrics.SanitizeSite(url)
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, url); err != nil {
				return "", fmt.Errorf("fetch %s: %w", url, err)
			}
		}

		body, err := f.get(ctx, url, f.agents.Current())
		f.metrics.RecordRequest(err == nil, target)
		f.agents.Rotate()
		if err == nil {
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("fetch %s: %w", url, ctxErr)
		}

		lastErr = err
		f.metrics.RecordRetry(target)
		if attempt == f.cfg.MaxAttempts {
			break
		}
		wait := f.backoff(attempt)
		f.logger.Warn("fetch attempt failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := f.sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("fetch %s: %w", url, err)
		}
	}

	f.logger.Error("fetch failed", zap.String("url", url), zap.Int("attempts", f.cfg.MaxAttempts), zap.Error(lastErr))
	return "", &harvest.RetrievalError{URL: url, Attempts: f.cfg.MaxAttempts, Err: lastErr}
}

// backoff returns the wait after the given failed attempt: initial doubled per attempt, capped.
func (f *Fetcher) backoff(attempt int) time.Duration {
	wait := f.cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= f.cfg.BackoffMax {
			return f.cfg.BackoffMax
		}
	}
	return min(wait, f.cfg.BackoffMax)
}

// visit performs one attempt through a cloned collector.
func (f *Fetcher) visit(ctx context.Context, url, userAgent string) (string, error) {
	var (
		body     string
		fetchErr error
	)
	collector := f.buildCollector(userAgent)
	f.configureCollectorHooks(collector, &body, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return "", err
	}
	return body, nil
}

func (f *Fetcher) buildCollector(userAgent string) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = userAgent
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, body *string, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
		r.Headers.Set("Accept-Language", acceptLanguageHeader)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*body = string(r.Body)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ harvest.Fetcher = (*Fetcher)(nil)
