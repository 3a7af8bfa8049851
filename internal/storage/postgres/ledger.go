// Package postgres records stored documents in a Postgres ledger table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

const defaultTable = "stored_documents"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LedgerConfig controls the Postgres connection pool used for ledger rows.
type LedgerConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// IDGenerator yields row identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Ledger writes one row per stored record.
type Ledger struct {
	pool  execCloser
	table string
	ids   IDGenerator
}

var _ harvest.Ledger = (*Ledger)(nil)

// NewLedger connects a pool using cfg.
func NewLedger(ctx context.Context, cfg LedgerConfig, ids IDGenerator) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewLedgerWithPool(pool, table, ids)
}

// NewLedgerWithPool constructs a ledger from an existing pool (primarily for testing).
func NewLedgerWithPool(pool execCloser, table string, ids IDGenerator) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Ledger{pool: pool, table: table, ids: ids}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (l *Ledger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

// RecordStored inserts a ledger row for doc.
func (l *Ledger) RecordStored(ctx context.Context, doc harvest.StoredDocument) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("ledger is not configured")
	}
	if doc.LogicalKey == "" {
		return fmt.Errorf("logical key is required")
	}
	id, err := l.ids.NewID()
	if err != nil {
		return fmt.Errorf("row id: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	celex_number,
	identifier,
	period,
	location,
	content_hash,
	size_bytes,
	stored_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, l.table)

	args := []any{
		id,
		doc.LogicalKey,
		doc.Identifier.String(),
		doc.Period.Date(),
		doc.Location.String(),
		doc.ContentHash,
		doc.Size,
		doc.StoredAt,
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert ledger row: %w", err)
	}
	return nil
}
