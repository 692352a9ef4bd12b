// Package audit implements the optional structured writer of accepted
// samples and finalized publications described in spec §6, generalized
// from the teacher's single-table SaveAudit sketch
// (src/infrastructure/db/db.go) into the two-table append-only schema the
// oracle needs, built on the teacher's actual go.mod database stack
// (lib/pq + jmoiron/sqlx) rather than the unvendored pgx driver that
// sketch used.
package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/concordium/euro2ccd-oracle/internal/scalarmath"
)

// defaultSourceLabel backfills the label column for rows written before it
// existed, per spec §6's migration note.
const defaultSourceLabel = "bitfinex(v1)"

// Sink is the audit writer: one row per accepted sample, one row per
// finalized publication.
type Sink struct {
	db  *sqlx.DB
	log zerolog.Logger
}

// Open connects to databaseURL and ensures the schema exists, adding the
// read_values.label column to a pre-existing installation if absent.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (*Sink, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: connecting: %w", err)
	}

	s := &Sink{db: db, log: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrating: %w", err)
	}
	return s, nil
}

func (s *Sink) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS read_values (
			value DOUBLE PRECISION NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			label VARCHAR(15)
		)`); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		ALTER TABLE read_values
		ADD COLUMN IF NOT EXISTS label VARCHAR(15) DEFAULT '`+defaultSourceLabel+`'`); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS updates (
			numerator NUMERIC(20,0) NOT NULL,
			denominator NUMERIC(20,0) NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		)`)
	return err
}

// RecordSample implements source.AuditRecorder — one row per accepted raw
// sample.
func (s *Sink) RecordSample(ctx context.Context, label string, price float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO read_values (value, timestamp, label) VALUES ($1, $2, $3)`,
		price, at, label,
	)
	return err
}

// RecordUpdate implements publisher.AuditRecorder — one row per finalized
// publication. Num/Den are passed as decimal strings: database/sql has no
// driver.Value for uint64, and values above math.MaxInt64 are routine here.
func (s *Sink) RecordUpdate(ctx context.Context, f scalarmath.Fraction, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO updates (numerator, denominator, timestamp) VALUES ($1, $2, $3)`,
		strconv.FormatUint(f.Num, 10), strconv.FormatUint(f.Den, 10), at,
	)
	return err
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error { return s.db.Close() }
