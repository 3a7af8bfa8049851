package harvest

import (
	"context"
	"time"
)

// Fetcher performs one logical page retrieval, retries included.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// MetadataExtractor turns a metadata page into structured Metadata.
type MetadataExtractor interface {
	ExtractMetadata(html string) (Metadata, error)
}

// ContentExtractor turns a content page into document text and links.
type ContentExtractor interface {
	ExtractContent(html string, id Identifier) (DocumentContent, error)
}

// SpanKind names what a timing span measures.
type SpanKind string

// Span kinds reported by the orchestrator.
const (
	SpanDocument SpanKind = "document"
	SpanPeriod   SpanKind = "period"
)

// Span outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailure = "failure"
)

// Span is a started timer. Stop must be called exactly once.
type Span interface {
	Stop(outcome string) time.Duration
}

// Metrics is the call contract into the metrics sink.
type Metrics interface {
	RecordRequest(success bool, target string)
	RecordRetry(target string)
	RecordDocumentProcessed(success bool, period string)
	RecordValidationError(kind, detail string)
	RecordEvent(kind, detail string)
	UpdateStorageSize(bytes int64)
	StartSpan(kind SpanKind, label string) Span
	Flush() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Mirror copies a stored record to secondary storage.
type Mirror interface {
	MirrorRecord(ctx context.Context, doc StoredDocument, payload []byte) (string, error)
}

// Ledger persists a row per stored record.
type Ledger interface {
	RecordStored(ctx context.Context, doc StoredDocument) error
}

// Notifier announces stored records to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
