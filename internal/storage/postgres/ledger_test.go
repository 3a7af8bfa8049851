package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

type staticIDs struct {
	id  string
	err error
}

func (s staticIDs) NewID() (string, error) { return s.id, s.err }

func sampleDoc() harvest.StoredDocument {
	return harvest.StoredDocument{
		LogicalKey:  "32023R2400",
		Identifier:  "202302400",
		Period:      harvest.NewPeriod(time.Date(2023, time.November, 20, 0, 0, 0, 0, time.UTC)),
		Location:    "data/documents/2023/11/20231120/202302400.json",
		ContentHash: "abc123",
		Size:        512,
		StoredAt:    time.Unix(1700000000, 0).UTC(),
	}
}

func TestRecordStoredInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "", staticIDs{id: "0190f5c2-0000-7000-8000-000000000001"})
	require.NoError(t, err)

	doc := sampleDoc()
	mock.ExpectExec("INSERT INTO stored_documents").
		WithArgs(
			"0190f5c2-0000-7000-8000-000000000001",
			doc.LogicalKey,
			"202302400",
			doc.Period.Date(),
			"data/documents/2023/11/20231120/202302400.json",
			doc.ContentHash,
			doc.Size,
			doc.StoredAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, ledger.RecordStored(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStoredPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "ledger", staticIDs{id: "x"})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO ledger").WillReturnError(errors.New("relation does not exist"))
	err = ledger.RecordStored(context.Background(), sampleDoc())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert ledger row")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStoredValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "", staticIDs{err: errors.New("entropy")})
	require.NoError(t, err)
	assert.Error(t, ledger.RecordStored(context.Background(), sampleDoc()))
	assert.Error(t, ledger.RecordStored(context.Background(), harvest.StoredDocument{}))

	var unset *Ledger
	assert.Error(t, unset.RecordStored(context.Background(), sampleDoc()))
	unset.Close()
}

func TestNewLedgerValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewLedgerWithPool(nil, "", staticIDs{})
	assert.Error(t, err)
	_, err = NewLedgerWithPool(mock, "", nil)
	assert.Error(t, err)
	_, err = NewLedgerWithPool(mock, "bad;table", staticIDs{})
	assert.Error(t, err)

	_, err = NewLedger(context.Background(), LedgerConfig{}, staticIDs{})
	assert.Error(t, err)
	_, err = NewLedger(context.Background(), LedgerConfig{DSN: "postgres://u@localhost/db", Table: "drop table"}, staticIDs{})
	assert.Error(t, err)
}
