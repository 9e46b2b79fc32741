// Package postgres persists extracted records in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "records"

// Config controls the Postgres connection pool used for record rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RecordStore writes one row per entity per run.
type RecordStore struct {
	pool  pool
	table string
}

var _ crawler.RecordStore = (*RecordStore)(nil)

// New creates a Postgres-backed RecordStore using the provided config.
func New(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: p, table: table}, nil
}

// EnsureSchema creates the record table when missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id       TEXT        NOT NULL,
	id           TEXT        NOT NULL,
	display_name TEXT        NOT NULL,
	affiliation  TEXT        NOT NULL,
	region       TEXT        NOT NULL,
	district     TEXT        NOT NULL,
	committees   JSONB       NOT NULL,
	biography    TEXT        NOT NULL,
	email        TEXT        NOT NULL,
	phone        TEXT        NOT NULL,
	photo_url    TEXT        NOT NULL,
	period       TEXT        NOT NULL,
	source_url   TEXT        NOT NULL,
	fetched_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, id)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// SaveRecords upserts every record of a run in one transaction.
func (s *RecordStore) SaveRecords(ctx context.Context, runID string, records []crawler.Record) (err error) {
	if runID == "" {
		return errors.New("run id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id, id, display_name, affiliation, region, district, committees,
	biography, email, phone, photo_url, period, source_url, fetched_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (run_id, id) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	affiliation = EXCLUDED.affiliation,
	region = EXCLUDED.region,
	district = EXCLUDED.district,
	committees = EXCLUDED.committees,
	biography = EXCLUDED.biography,
	email = EXCLUDED.email,
	phone = EXCLUDED.phone,
	photo_url = EXCLUDED.photo_url,
	period = EXCLUDED.period,
	source_url = EXCLUDED.source_url,
	fetched_at = EXCLUDED.fetched_at`, s.table)

	for _, rec := range records {
		args, argErr := recordArgs(runID, rec)
		if argErr != nil {
			return argErr
		}
		if _, err = tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

// LoadRecords returns the stored records of a run ordered by display name.
func (s *RecordStore) LoadRecords(ctx context.Context, runID string) ([]crawler.Record, error) {
	query := fmt.Sprintf(`
SELECT id, display_name, affiliation, region, district, committees,
	biography, email, phone, photo_url, period, source_url, fetched_at
FROM %s
WHERE run_id = $1
ORDER BY display_name, id`, s.table)
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []crawler.Record{}
	for rows.Next() {
		var (
			rec        crawler.Record
			committees []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.DisplayName,
			&rec.Affiliation,
			&rec.Region,
			&rec.District,
			&committees,
			&rec.Biography,
			&rec.Email,
			&rec.Phone,
			&rec.PhotoURL,
			&rec.Period,
			&rec.SourceURL,
			&rec.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		if err := json.Unmarshal(committees, &rec.Committees); err != nil {
			return nil, fmt.Errorf("decode committees for %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func recordArgs(runID string, rec crawler.Record) ([]any, error) {
	committees := rec.Committees
	if committees == nil {
		committees = []string{}
	}
	committeesJSON, err := json.Marshal(committees)
	if err != nil {
		return nil, fmt.Errorf("marshal committees: %w", err)
	}
	return []any{
		runID,
		rec.ID,
		rec.DisplayName,
		rec.Affiliation,
		rec.Region,
		rec.District,
		committeesJSON,
		rec.Biography,
		rec.Email,
		rec.Phone,
		rec.PhotoURL,
		rec.Period,
		rec.SourceURL,
		rec.FetchedAt,
	}, nil
}
