// Package store persists run summaries to PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/internal/model"
)

// db is the subset of *pgxpool.Pool the store uses.
type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Store writes runs and their records.
type Store struct {
	db db
}

// Connect opens a small connection pool and verifies it.
func Connect(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("error parsing database config: %w", err)
	}
	config.MaxConns = 4
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return &Store{db: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() {
	s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS campwatch_runs (
	run_id                TEXT PRIMARY KEY,
	run_date              DATE NOT NULL,
	competitors_analyzed  INTEGER NOT NULL,
	data_completeness_avg DOUBLE PRECISION NOT NULL,
	alerts_generated      INTEGER NOT NULL,
	alerts                JSONB NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS campwatch_records (
	run_id                TEXT NOT NULL REFERENCES campwatch_runs(run_id) ON DELETE CASCADE,
	adapter               TEXT NOT NULL,
	company_name          TEXT NOT NULL,
	country               TEXT NOT NULL,
	currency              TEXT NOT NULL,
	search_location       TEXT NOT NULL,
	search_start_date     DATE,
	search_end_date       DATE,
	scraped_at            TIMESTAMPTZ,
	num_results           INTEGER NOT NULL,
	min_price             DOUBLE PRECISION,
	max_price             DOUBLE PRECISION,
	avg_price             DOUBLE PRECISION,
	base_nightly_rate     DOUBLE PRECISION,
	review_avg            DOUBLE PRECISION,
	review_count          INTEGER,
	data_completeness_pct DOUBLE PRECISION NOT NULL,
	success               BOOLEAN NOT NULL,
	retry_count           INTEGER NOT NULL,
	strategy              TEXT NOT NULL,
	notes                 TEXT NOT NULL,
	record                JSONB NOT NULL,
	PRIMARY KEY (run_id, adapter)
);
`

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

const insertRun = `
	INSERT INTO campwatch_runs (
		run_id, run_date, competitors_analyzed, data_completeness_avg, alerts_generated, alerts
	) VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (run_id) DO UPDATE SET
		competitors_analyzed = EXCLUDED.competitors_analyzed,
		data_completeness_avg = EXCLUDED.data_completeness_avg,
		alerts_generated = EXCLUDED.alerts_generated,
		alerts = EXCLUDED.alerts
`

const insertRecord = `
	INSERT INTO campwatch_records (
		run_id, adapter, company_name, country, currency, search_location,
		search_start_date, search_end_date, scraped_at, num_results,
		min_price, max_price, avg_price, base_nightly_rate, review_avg, review_count,
		data_completeness_pct, success, retry_count, strategy, notes, record
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	ON CONFLICT (run_id, adapter) DO UPDATE SET
		num_results = EXCLUDED.num_results,
		min_price = EXCLUDED.min_price,
		max_price = EXCLUDED.max_price,
		avg_price = EXCLUDED.avg_price,
		base_nightly_rate = EXCLUDED.base_nightly_rate,
		data_completeness_pct = EXCLUDED.data_completeness_pct,
		success = EXCLUDED.success,
		retry_count = EXCLUDED.retry_count,
		notes = EXCLUDED.notes,
		record = EXCLUDED.record
`

// Save writes the summary and its records in one transaction.
func (s *Store) Save(ctx context.Context, summary *model.RunSummary) error {
	alerts, err := json.Marshal(summary.Alerts)
	if err != nil {
		return fmt.Errorf("failed to encode alerts: %w", err)
	}
	runDate, err := time.Parse(model.DateLayout, summary.Date)
	if err != nil {
		return fmt.Errorf("invalid run date %q: %w", summary.Date, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertRun, summary.RunID, runDate, summary.CompetitorsAnalyzed,
		summary.DataCompletenessAvg, summary.AlertsGenerated, alerts); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, rec := range summary.Results {
		args, err := recordArgs(summary.RunID, rec)
		if err != nil {
			return err
		}
		batch.Queue(insertRecord, args...)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range summary.Results {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to insert record %d (%s): %w", i, summary.Results[i].Adapter, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	logger.Debug("run stored", "run_id", summary.RunID, "records", len(summary.Results))
	return nil
}

// recordArgs maps a record onto insertRecord's parameters.
func recordArgs(runID string, rec model.CompetitorRecord) ([]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.Adapter, err)
	}
	return []any{
		runID,
		rec.Adapter,
		rec.CompanyName,
		rec.Country,
		rec.Currency,
		rec.SearchLocation,
		parseTime(model.DateLayout, rec.SearchStartDate),
		parseTime(model.DateLayout, rec.SearchEndDate),
		parseTime(time.RFC3339, rec.Timestamp),
		rec.NumResults,
		rec.MinPrice,
		rec.MaxPrice,
		rec.AvgPrice,
		rec.BaseNightlyRate,
		rec.ReviewAvg,
		rec.ReviewCount,
		rec.DataCompletenessPct,
		rec.Success,
		rec.RetryCount,
		rec.Strategy,
		rec.Notes,
		raw,
	}, nil
}

// parseTime returns nil for values that do not parse, which store as NULL.
func parseTime(layout, v string) *time.Time {
	t, err := time.Parse(layout, v)
	if err != nil {
		return nil
	}
	return &t
}
