// Package sqlite stores dedup records in a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DeafMist/boletin-radar/internal/dedupe"
	"github.com/DeafMist/boletin-radar/internal/models"
)

const schema = `CREATE TABLE IF NOT EXISTS records (
	record_key TEXT PRIMARY KEY,
	timestamp  TEXT NOT NULL,
	message    TEXT NOT NULL
)`

// Store is a dedupe.Store over database/sql. The stored timestamp string
// is the record revision.
type Store struct {
	db *sql.DB
}

var _ dedupe.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle without touching the schema.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the records table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

// Get fetches the record stored under key.
func (s *Store) Get(ctx context.Context, key string) (models.Record, bool, error) {
	var raw string
	rec := models.Record{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp, message FROM records WHERE record_key = ?`, key,
	).Scan(&raw, &rec.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, false, nil
	}
	if err != nil {
		return models.Record{}, false, fmt.Errorf("get record: %w", err)
	}

	ts, err := models.ParseTimestamp(raw)
	if err != nil {
		return models.Record{}, false, fmt.Errorf("parse record timestamp: %w", err)
	}
	rec.Timestamp = ts
	rec.Revision = raw
	return rec, true, nil
}

// Create inserts rec unless its key exists.
func (s *Store) Create(ctx context.Context, rec models.Record) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (record_key, timestamp, message) VALUES (?, ?, ?)
		 ON CONFLICT(record_key) DO NOTHING`,
		rec.Key, models.FormatTimestamp(rec.Timestamp), rec.Message,
	)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return requireOneRow(res, "create record")
}

// Replace updates the record if its timestamp still equals prev.Revision.
func (s *Store) Replace(ctx context.Context, prev, next models.Record) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET timestamp = ?, message = ? WHERE record_key = ? AND timestamp = ?`,
		models.FormatTimestamp(next.Timestamp), next.Message, prev.Key, prev.Revision,
	)
	if err != nil {
		return fmt.Errorf("replace record: %w", err)
	}
	return requireOneRow(res, "replace record")
}

// DeleteOlderThan removes records whose timestamp is older than maxAge.
// batchSize is ignored; SQLite deletes in one statement.
func (s *Store) DeleteOlderThan(ctx context.Context, maxAge time.Duration, _ int) (int64, error) {
	cutoff := models.FormatTimestamp(time.Now().Add(-maxAge))
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE timestamp <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old records: %w", err)
	}
	return n, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return dedupe.ErrConflict
	}
	return nil
}
