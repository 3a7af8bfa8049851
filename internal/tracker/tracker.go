// Package tracker remembers which logical documents have already been stored.
package tracker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/harvest"
	"github.com/JakeFAU/lexharvest/internal/storage/local"
)

// Scanner enumerates stored records.
type Scanner interface {
	Scan(ctx context.Context, fn local.ScanFunc) error
}

// Tracker is the in-memory set of processed logical keys, seeded from storage at startup.
type Tracker struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// New builds a tracker from every readable record the scanner yields. Unreadable records are
// logged and skipped.
func New(ctx context.Context, scanner Scanner, logger *zap.Logger) (*Tracker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{keys: make(map[string]struct{})}
	if scanner == nil {
		return t, nil
	}

	skipped := 0
	err := scanner.Scan(ctx, func(loc harvest.Location, rec *harvest.Record, decodeErr error) error {
		if decodeErr != nil {
			skipped++
			logger.Warn("skipping unreadable record", zap.String("location", loc.String()), zap.Error(decodeErr))
			return nil
		}
		if rec.Metadata.LogicalKey == "" {
			skipped++
			logger.Warn("skipping record without logical key", zap.String("location", loc.String()))
			return nil
		}
		t.keys[rec.Metadata.LogicalKey] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed tracker: %w", err)
	}

	logger.Info("tracker seeded", zap.Int("processed", len(t.keys)), zap.Int("skipped", skipped))
	return t, nil
}

// IsProcessed reports whether key has been stored.
func (t *Tracker) IsProcessed(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.keys[key]
	return ok
}

// MarkProcessed records key. Marking twice is a no-op.
func (t *Tracker) MarkProcessed(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keys[key] = struct{}{}
}

// Claim marks key and reports true only for the first caller. Parallel workers use it to make
// the check and the mark a single step.
func (t *Tracker) Claim(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.keys[key]; ok {
		return false
	}
	t.keys[key] = struct{}{}
	return true
}

// Release forgets a claim whose document could not be stored.
func (t *Tracker) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.keys, key)
}

// Count returns the number of processed keys.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}
