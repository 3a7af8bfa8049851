// Package pipeline drives the period and document state machines of a harvest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/lexharvest/internal/catalog"
	"github.com/JakeFAU/lexharvest/internal/harvest"
	"github.com/JakeFAU/lexharvest/internal/metrics"
	"github.com/JakeFAU/lexharvest/internal/storage/local"
)

var tracer = otel.Tracer("github.com/JakeFAU/lexharvest/internal/pipeline")

// CandidateExtractor finds document references on an index page.
type CandidateExtractor interface {
	Extract(body string) ([]harvest.Candidate, error)
}

// Tracker is the processed-key set shared by all workers.
type Tracker interface {
	MarkProcessed(key string)
	Claim(key string) bool
	Release(key string)
}

// RecordStore persists records and reports the size of the store.
type RecordStore interface {
	Store(
		ctx context.Context,
		rec *harvest.Record,
		period harvest.Period,
		periodID string,
		id harvest.Identifier,
	) (harvest.Location, error)
	Size() (int64, error)
}

// Config controls Harvester behavior.
type Config struct {
	// Concurrency is the number of documents processed at once within a period.
	Concurrency int
	// MinPeriod is the earliest period RunRange accepts. Zero means catalog.EarliestPeriod.
	MinPeriod harvest.Period
	// Topic receives stored-record notifications when a Notifier is set.
	Topic string
}

// Hooks are optional post-store side effects. Their failures are logged and never undo a store.
type Hooks struct {
	Mirror   harvest.Mirror
	Ledger   harvest.Ledger
	Notifier harvest.Notifier
	Hasher   harvest.Hasher
	Clock    harvest.Clock
}

// Summary describes a RunRange pass.
type Summary struct {
	Periods      int
	EmptyPeriods []harvest.Period
	Locations    []harvest.Location
}

// Harvester runs the harvest for one or more periods.
type Harvester struct {
	urls     catalog.URLs
	fetcher  harvest.Fetcher
	links    CandidateExtractor
	metadata harvest.MetadataExtractor
	content  harvest.ContentExtractor
	tracker  Tracker
	store    RecordStore
	metrics  harvest.Metrics
	hooks    Hooks
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Harvester.
func New(
	urls catalog.URLs,
	fetcher harvest.Fetcher,
	links CandidateExtractor,
	metadata harvest.MetadataExtractor,
	content harvest.ContentExtractor,
	tracker Tracker,
	store RecordStore,
	m harvest.Metrics,
	hooks Hooks,
	cfg Config,
	logger *zap.Logger,
) (*Harvester, error) {
	switch {
	case fetcher == nil:
		return nil, errors.New("fetcher is required")
	case links == nil:
		return nil, errors.New("candidate extractor is required")
	case metadata == nil || content == nil:
		return nil, errors.New("metadata and content extractors are required")
	case tracker == nil:
		return nil, errors.New("tracker is required")
	case store == nil:
		return nil, errors.New("record store is required")
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MinPeriod.IsZero() {
		cfg.MinPeriod = catalog.EarliestPeriod
	}
	return &Harvester{
		urls:     urls,
		fetcher:  fetcher,
		links:    links,
		metadata: metadata,
		content:  content,
		tracker:  tracker,
		store:    store,
		metrics:  m,
		hooks:    hooks,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// RunRange harvests every period from start to end inclusive. Cancellation is honored between
// periods and between documents; records already stored stay stored.
func (h *Harvester) RunRange(ctx context.Context, start, end harvest.Period) (Summary, error) {
	var summary Summary
	if err := h.validateRange(start, end); err != nil {
		return summary, err
	}

	h.logger.Info("harvest started", zap.Stringer("start", start), zap.Stringer("end", end))
	for p := start; !end.Before(p); p = p.Next() {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("harvest interrupted before %s: %w", p, err)
		}
		h.logger.Info("processing period", zap.Stringer("period", p))
		locs := h.Run(ctx, p)
		summary.Periods++
		if len(locs) == 0 {
			summary.EmptyPeriods = append(summary.EmptyPeriods, p)
			h.logger.Info("no new documents stored for period", zap.Stringer("period", p))
		}
		summary.Locations = append(summary.Locations, locs...)
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("harvest interrupted: %w", err)
	}

	h.logger.Info("harvest finished",
		zap.Int("periods", summary.Periods),
		zap.Int("stored", len(summary.Locations)),
		zap.Int("empty_periods", len(summary.EmptyPeriods)),
	)
	return summary, nil
}

func (h *Harvester) validateRange(start, end harvest.Period) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", harvest.ErrInvalidPeriod)
	}
	if start.Before(h.cfg.MinPeriod) {
		return fmt.Errorf("%w: %s is before %s, the earliest period with the current page structure",
			harvest.ErrInvalidPeriod, start, h.cfg.MinPeriod)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end %s is before start %s", harvest.ErrInvalidPeriod, end, start)
	}
	return nil
}

// Run harvests a single period and returns the locations stored during this call. A failure to
// fetch or parse the index page aborts the period with an empty result.
func (h *Harvester) Run(ctx context.Context, period harvest.Period) []harvest.Location {
	span := h.metrics.StartSpan(harvest.SpanPeriod, period.String())
	outcome := harvest.OutcomeFailure
	ctx, tspan := tracer.Start(ctx, "harvest.period", trace.WithAttributes(attribute.String("period", period.ID())))
	defer func() {
		span.Stop(outcome)
		tspan.SetAttributes(attribute.String("outcome", outcome))
		tspan.End()
	}()

	indexURL := h.urls.Index(period)
	body, err := h.fetcher.Fetch(ctx, indexURL)
	if err != nil {
		h.abortPeriod(tspan, period, "fetch index", err)
		return []harvest.Location{}
	}
	candidates, err := h.links.Extract(body)
	if err != nil {
		h.abortPeriod(tspan, period, "extract candidates", err)
		return []harvest.Location{}
	}
	tspan.SetAttributes(attribute.Int("candidates", len(candidates)))
	h.logger.Debug("candidates found", zap.Stringer("period", period), zap.Int("count", len(candidates)))

	stored := h.processAll(ctx, period, candidates)

	if err := h.metrics.Flush(); err != nil {
		h.logger.Warn("metrics flush failed", zap.Stringer("period", period), zap.Error(err))
	}
	h.metrics.RecordEvent("journal_processed", fmt.Sprintf("Date: %s, Documents: %d", period, len(stored)))
	h.logger.Info("period finished", zap.Stringer("period", period), zap.Int("stored", len(stored)))
	if len(stored) > 0 {
		outcome = harvest.OutcomeSuccess
	} else {
		outcome = harvest.OutcomeSkipped
	}
	return stored
}

func (h *Harvester) abortPeriod(tspan trace.Span, period harvest.Period, stage string, err error) {
	tspan.RecordError(err)
	tspan.SetStatus(codes.Error, stage)
	h.metrics.RecordEvent("journal_processing_error", fmt.Sprintf("Date %s: %s: %v", period, stage, err))
	h.logger.Error("period aborted", zap.Stringer("period", period), zap.String("stage", stage), zap.Error(err))
}

func (h *Harvester) processAll(ctx context.Context, period harvest.Period, candidates []harvest.Candidate) []harvest.Location {
	periodID := period.ID()
	results := make([]harvest.Location, len(candidates))

	if h.cfg.Concurrency == 1 {
		for i, c := range candidates {
			if ctx.Err() != nil {
				h.logger.Warn("period interrupted", zap.Stringer("period", period), zap.Int("remaining", len(candidates)-i))
				break
			}
			results[i], _ = h.Process(ctx, c.Identifier, period, periodID)
		}
		return compact(results)
	}

	var g errgroup.Group
	g.SetLimit(h.cfg.Concurrency)
	for i, c := range candidates {
		if ctx.Err() != nil {
			h.logger.Warn("period interrupted", zap.Stringer("period", period), zap.Int("remaining", len(candidates)-i))
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i], _ = h.Process(ctx, c.Identifier, period, periodID)
			return nil
		})
	}
	_ = g.Wait()
	return compact(results)
}

func compact(locs []harvest.Location) []harvest.Location {
	out := make([]harvest.Location, 0, len(locs))
	for _, l := range locs {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Process harvests one document. It returns the stored location and true, or false when the
// document was already processed or failed. Failures never propagate past this call.
func (h *Harvester) Process(
	ctx context.Context,
	id harvest.Identifier,
	period harvest.Period,
	periodID string,
) (harvest.Location, bool) {
	span := h.metrics.StartSpan(harvest.SpanDocument, id.String())
	outcome := harvest.OutcomeFailure
	ctx, tspan := tracer.Start(ctx, "harvest.document", trace.WithAttributes(attribute.String("identifier", id.String())))
	defer func() {
		span.Stop(outcome)
		tspan.SetAttributes(attribute.String("outcome", outcome))
		tspan.End()
	}()

	h.logger.Debug("processing document", zap.String("identifier", id.String()))
	loc, err := h.process(ctx, id, period, periodID)
	switch {
	case errors.Is(err, errAlreadyProcessed):
		outcome = harvest.OutcomeSkipped
		return "", false
	case err != nil:
		tspan.RecordError(err)
		tspan.SetStatus(codes.Error, "document failed")
		h.metrics.RecordDocumentProcessed(false, period.String())
		h.metrics.RecordEvent("document_processing_error", fmt.Sprintf("Document %s: %v", id, err))
		h.logger.Error("document failed", zap.String("identifier", id.String()), zap.Stringer("period", period), zap.Error(err))
		return "", false
	}
	outcome = harvest.OutcomeSuccess
	return loc, true
}

var errAlreadyProcessed = errors.New("already processed")

func (h *Harvester) process(
	ctx context.Context,
	id harvest.Identifier,
	period harvest.Period,
	periodID string,
) (harvest.Location, error) {
	metaHTML, err := h.fetcher.Fetch(ctx, h.urls.Document(id, catalog.ViewAll))
	if err != nil {
		return "", fmt.Errorf("fetch metadata page: %w", err)
	}
	md, err := h.metadata.ExtractMetadata(metaHTML)
	if err != nil {
		return "", fmt.Errorf("extract metadata: %w", err)
	}
	key := md.LogicalKey
	if key == "" {
		return "", fmt.Errorf("%w: metadata page yielded no logical key", harvest.ErrParse)
	}
	if !h.tracker.Claim(key) {
		h.logger.Info("document already processed, skipping", zap.String("logical_key", key), zap.String("identifier", id.String()))
		return "", errAlreadyProcessed
	}

	loc, payload, err := h.fetchAndStore(ctx, id, period, periodID, md)
	if err != nil {
		h.tracker.Release(key)
		return "", err
	}
	h.tracker.MarkProcessed(key)
	h.reportSuccess(ctx, id, period, key, loc, payload)
	return loc, nil
}

func (h *Harvester) fetchAndStore(
	ctx context.Context,
	id harvest.Identifier,
	period harvest.Period,
	periodID string,
	md harvest.Metadata,
) (harvest.Location, []byte, error) {
	contentHTML, err := h.fetcher.Fetch(ctx, h.urls.Document(id, catalog.ViewText))
	if err != nil {
		return "", nil, fmt.Errorf("fetch content page: %w", err)
	}
	content, err := h.content.ExtractContent(contentHTML, id)
	if err != nil {
		return "", nil, fmt.Errorf("extract content: %w", err)
	}
	md.HTMLURL = content.HTMLURL
	md.PDFURL = content.PDFURL
	rec := &harvest.Record{Metadata: md, Content: content.FullText}

	loc, err := h.store.Store(ctx, rec, period, periodID, id)
	if err != nil {
		return "", nil, fmt.Errorf("store record: %w", err)
	}
	payload, err := local.Encode(rec)
	if err != nil {
		h.logger.Warn("encode stored record for hooks failed", zap.String("identifier", id.String()), zap.Error(err))
	}
	return loc, payload, nil
}

func (h *Harvester) reportSuccess(
	ctx context.Context,
	id harvest.Identifier,
	period harvest.Period,
	key string,
	loc harvest.Location,
	payload []byte,
) {
	h.metrics.RecordDocumentProcessed(true, period.String())
	if size, err := h.store.Size(); err != nil {
		h.logger.Warn("measure storage failed", zap.Error(err))
	} else {
		h.metrics.UpdateStorageSize(size)
	}
	h.metrics.RecordEvent("document_processed", fmt.Sprintf("Document %s processed successfully", id))
	h.logger.Debug("document stored", zap.String("identifier", id.String()), zap.String("location", loc.String()))

	if payload == nil {
		return
	}
	doc := harvest.StoredDocument{
		LogicalKey: key,
		Identifier: id,
		Period:     period,
		Location:   loc,
		Size:       int64(len(payload)),
		StoredAt:   h.now(),
	}
	h.runHooks(ctx, doc, payload)
}

func (h *Harvester) now() time.Time {
	if h.hooks.Clock != nil {
		return h.hooks.Clock.Now()
	}
	return time.Now().UTC()
}
