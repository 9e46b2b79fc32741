// Package sqlite persists extracted records in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "records"

// Config locates the database file.
type Config struct {
	Path  string
	Table string
}

// RecordStore writes one row per entity per run.
type RecordStore struct {
	db    *sql.DB
	table string
}

var _ crawler.RecordStore = (*RecordStore)(nil)

// New opens or creates the database at cfg.Path and creates the schema if it
// does not exist.
func New(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &RecordStore{db: db, table: table}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RecordStore) createSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT NOT NULL,
			id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			affiliation TEXT NOT NULL,
			region TEXT NOT NULL,
			district TEXT NOT NULL,
			committees TEXT NOT NULL,
			biography TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			photo_url TEXT NOT NULL,
			period TEXT NOT NULL,
			source_url TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (run_id, id)
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_display_name ON %s(run_id, display_name)`, s.table, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// SaveRecords upserts every record of a run in one transaction.
func (s *RecordStore) SaveRecords(ctx context.Context, runID string, records []crawler.Record) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	run_id, id, display_name, affiliation, region, district, committees,
	biography, email, phone, photo_url, period, source_url, fetched_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(run_id, id) DO UPDATE SET
	display_name = excluded.display_name,
	affiliation = excluded.affiliation,
	region = excluded.region,
	district = excluded.district,
	committees = excluded.committees,
	biography = excluded.biography,
	email = excluded.email,
	phone = excluded.phone,
	photo_url = excluded.photo_url,
	period = excluded.period,
	source_url = excluded.source_url,
	fetched_at = excluded.fetched_at`, s.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		committees := rec.Committees
		if committees == nil {
			committees = []string{}
		}
		committeesJSON, err := json.Marshal(committees)
		if err != nil {
			return fmt.Errorf("marshal committees: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID, rec.ID, rec.DisplayName, rec.Affiliation, rec.Region, rec.District,
			string(committeesJSON), rec.Biography, rec.Email, rec.Phone, rec.PhotoURL,
			rec.Period, rec.SourceURL, rec.FetchedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

// LoadRecords returns the stored records of a run ordered by display name.
func (s *RecordStore) LoadRecords(ctx context.Context, runID string) ([]crawler.Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, display_name, affiliation, region, district, committees,
	biography, email, phone, photo_url, period, source_url, fetched_at
FROM %s
WHERE run_id = ?
ORDER BY display_name, id`, s.table), runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []crawler.Record{}
	for rows.Next() {
		var (
			rec        crawler.Record
			committees string
			fetchedAt  string
		)
		if err := rows.Scan(
			&rec.ID, &rec.DisplayName, &rec.Affiliation, &rec.Region, &rec.District,
			&committees, &rec.Biography, &rec.Email, &rec.Phone, &rec.PhotoURL,
			&rec.Period, &rec.SourceURL, &fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		if err := json.Unmarshal([]byte(committees), &rec.Committees); err != nil {
			return nil, fmt.Errorf("decode committees for %s: %w", rec.ID, err)
		}
		if rec.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt); err != nil {
			return nil, fmt.Errorf("parse fetched_at for %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Close releases the database connection.
func (s *RecordStore) Close() error {
	return s.db.Close()
}
