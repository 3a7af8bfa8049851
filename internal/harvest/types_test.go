package harvest

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodSegments(t *testing.T) {
	t.Parallel()

	p := NewPeriod(time.Date(2023, time.October, 2, 17, 45, 0, 0, time.FixedZone("CET", 3600)))
	assert.Equal(t, "20231002", p.ID())
	assert.Equal(t, "2023", p.Year())
	assert.Equal(t, "10", p.Month())
	assert.Equal(t, "2023-10-02", p.String())
	assert.Equal(t, "2023-10-03", p.Next().String())
	assert.True(t, p.Before(p.Next()))
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	p, err := ParsePeriod("2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, "20240131", p.ID())
	assert.Equal(t, "2024-02-01", p.Next().String())

	_, err = ParsePeriod("31/01/2024")
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestRetrievalErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	cause := errors.New("503 Service Unavailable")
	err := fmt.Errorf("fetch index: %w", &RetrievalError{URL: "https://example.test", Attempts: 5, Err: cause})

	require.ErrorIs(t, err, ErrRetrieval)
	require.ErrorIs(t, err, cause)
	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "https://example.test", retrievalErr.URL)
	assert.Contains(t, err.Error(), "after 5 attempts")
}
