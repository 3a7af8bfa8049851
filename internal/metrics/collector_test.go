package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

func newTestCollector(t *testing.T, dir string) (*Collector, *stepClock) {
	t.Helper()
	clk := &stepClock{now: time.Date(2024, time.March, 4, 10, 30, 0, 0, time.UTC), step: 2 * time.Second}
	c, err := NewCollector(Config{Dir: dir, Clock: clk}, prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	return c, clk
}

func TestCollectorCounters(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector(t, "")
	c.RecordRequest(true, "https://EUR-lex.example/oj/daily-view")
	c.RecordRequest(false, "https://eur-lex.example/legal-content")
	c.RecordRetry("https://eur-lex.example/legal-content")
	c.RecordDocumentProcessed(true, "2024-03-04")
	c.RecordDocumentProcessed(false, "2024-03-04")
	c.RecordValidationError("document_id", "invalid id: 202491015")
	c.RecordEvent("page_structure", "no main content found")
	c.UpdateStorageSize(2048)

	assert.InDelta(t, 1, testutil.ToFloat64(c.requests.WithLabelValues("success", "eur-lex.example")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.requests.WithLabelValues("failure", "eur-lex.example")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.retries.WithLabelValues("eur-lex.example")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.documents.WithLabelValues("failure", "2024-03-04")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.validationErrors.WithLabelValues("document_id")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.events.WithLabelValues("page_structure")), 0)
	assert.InDelta(t, 2048, testutil.ToFloat64(c.storageSize), 0)
}

func TestSpanStopsOnce(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector(t, "")
	s := c.StartSpan(harvest.SpanDocument, "202302400")
	assert.Equal(t, 2*time.Second, s.Stop(harvest.OutcomeSuccess))
	s.Stop(harvest.OutcomeFailure)

	assert.Equal(t, 1, testutil.CollectAndCount(c.documentDuration))
	assert.Equal(t, 0, testutil.CollectAndCount(c.periodDuration))

	c.StartSpan(harvest.SpanPeriod, "2024-03-04").Stop(harvest.OutcomeFailure)
	assert.Equal(t, 1, testutil.CollectAndCount(c.periodDuration))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewCollector(Config{}, reg, nil)
	require.NoError(t, err)
	_, err = NewCollector(Config{}, reg, nil)
	require.Error(t, err)
}

func TestFlushWritesTextfile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "metrics")
	c, _ := newTestCollector(t, dir)
	c.RecordDocumentProcessed(true, "2024-03-04")
	require.NoError(t, c.Flush())

	data, err := os.ReadFile(filepath.Join(dir, "metrics_20240304_103000.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `lexharvest_documents_processed_total{period="2024-03-04",status="success"} 1`)
}

func TestFlushWithoutDirIsNoop(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector(t, "")
	require.NoError(t, c.Flush())
}

func TestNopSpanReportsElapsed(t *testing.T) {
	t.Parallel()

	var m harvest.Metrics = Nop{}
	s := m.StartSpan(harvest.SpanPeriod, "x")
	assert.GreaterOrEqual(t, s.Stop(harvest.OutcomeSuccess), time.Duration(0))
	require.NoError(t, m.Flush())
}

func TestRouterServesMetricsAndHealth(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector(t, "")
	c.UpdateStorageSize(10)
	router := NewRouter(c.Gatherer(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "lexharvest_storage_size_bytes 10"))
}

func TestNewServerAddress(t *testing.T) {
	t.Parallel()

	srv := NewServer(":9100", prometheus.NewRegistry(), nil)
	assert.Equal(t, ":9100", srv.Addr)
	assert.NotNil(t, srv.Handler)
}
