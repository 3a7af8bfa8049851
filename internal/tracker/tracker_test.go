package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/lexharvest/internal/harvest"
	"github.com/JakeFAU/lexharvest/internal/metrics"
	"github.com/JakeFAU/lexharvest/internal/record"
	"github.com/JakeFAU/lexharvest/internal/storage/local"
)

func TestNewSeedsFromStorage(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := local.New(local.Config{Root: root}, record.NewValidator(metrics.Nop{}, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)

	period := harvest.NewPeriod(time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC))
	for i, key := range []string{"32024R0001", "32024D0002"} {
		rec := &harvest.Record{Metadata: harvest.Metadata{LogicalKey: key, Title: "Act " + key}}
		_, err := store.Store(context.Background(), rec, period, period.ID(), harvest.Identifier(fmt.Sprintf("20240000%d", i)))
		require.NoError(t, err)
	}
	corrupt := filepath.Join(root, "2024", "01", "20240105", "202400009.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{"), 0o600))

	core, logs := observer.New(zapcore.WarnLevel)
	tr, err := New(context.Background(), store, zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, 2, tr.Count())
	assert.True(t, tr.IsProcessed("32024R0001"))
	assert.True(t, tr.IsProcessed("32024D0002"))
	assert.False(t, tr.IsProcessed("32024R0003"))
	require.Equal(t, 1, logs.FilterMessage("skipping unreadable record").Len())
}

type scannerFunc func(ctx context.Context, fn local.ScanFunc) error

func (f scannerFunc) Scan(ctx context.Context, fn local.ScanFunc) error {
	return f(ctx, fn)
}

func TestNewPropagatesScanFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk gone")
	_, err := New(context.Background(), scannerFunc(func(context.Context, local.ScanFunc) error {
		return boom
	}), nil)
	assert.ErrorIs(t, err, boom)
}

func TestNewSkipsRecordsWithoutKey(t *testing.T) {
	t.Parallel()

	tr, err := New(context.Background(), scannerFunc(func(_ context.Context, fn local.ScanFunc) error {
		if err := fn("a.json", &harvest.Record{}, nil); err != nil {
			return err
		}
		return fn("b.json", &harvest.Record{Metadata: harvest.Metadata{LogicalKey: "32023R2400"}}, nil)
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Count())
}

func TestMarkProcessedIdempotent(t *testing.T) {
	t.Parallel()

	tr, err := New(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, tr.Count())

	tr.MarkProcessed("32023R2400")
	tr.MarkProcessed("32023R2400")
	assert.Equal(t, 1, tr.Count())
	assert.True(t, tr.IsProcessed("32023R2400"))
}

func TestClaimIsExclusive(t *testing.T) {
	t.Parallel()

	tr, err := New(context.Background(), nil, nil)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Claim("32023R2400") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	tr.Release("32023R2400")
	assert.False(t, tr.IsProcessed("32023R2400"))
	assert.True(t, tr.Claim("32023R2400"))
}
