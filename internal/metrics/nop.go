package metrics

import (
	"time"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

// Nop discards every measurement. Spans still report elapsed time.
type Nop struct{}

var _ harvest.Metrics = Nop{}

// RecordRequest implements harvest.Metrics.
func (Nop) RecordRequest(bool, string) {}

// RecordRetry implements harvest.Metrics.
func (Nop) RecordRetry(string) {}

// RecordDocumentProcessed implements harvest.Metrics.
func (Nop) RecordDocumentProcessed(bool, string) {}

// RecordValidationError implements harvest.Metrics.
func (Nop) RecordValidationError(string, string) {}

// RecordEvent implements harvest.Metrics.
func (Nop) RecordEvent(string, string) {}

// UpdateStorageSize implements harvest.Metrics.
func (Nop) UpdateStorageSize(int64) {}

// StartSpan implements harvest.Metrics.
func (Nop) StartSpan(harvest.SpanKind, string) harvest.Span {
	return nopSpan{start: time.Now()}
}

// Flush implements harvest.Metrics.
func (Nop) Flush() error { return nil }

type nopSpan struct {
	start time.Time
}

func (s nopSpan) Stop(string) time.Duration {
	return time.Since(s.start)
}
