// Package cdb provides record store and content source implementations
// backed by CockroachDB or PostgreSQL.
package cdb

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/ejacobg/link-validator/validator"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"time"
)

var (
	schemaQueries = []string{
		`CREATE TABLE IF NOT EXISTS bad_links (
			id UUID PRIMARY KEY,
			seq BIGSERIAL,
			content_id TEXT NOT NULL,
			url TEXT NOT NULL,
			status TEXT NOT NULL,
			checked_at TIMESTAMPTZ NOT NULL,
			UNIQUE (content_id, url)
		)`,
		`CREATE INDEX IF NOT EXISTS bad_links_checked_at_idx ON bad_links (checked_at)`,
	}

	insertRecordQuery = `
INSERT INTO bad_links (id, content_id, url, status, checked_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (content_id, url) DO NOTHING`

	deleteByContentQuery = "DELETE FROM bad_links WHERE content_id = $1"
	contentIDsQuery      = "SELECT DISTINCT content_id FROM bad_links"
	staleContentIDsQuery = "SELECT DISTINCT content_id FROM bad_links WHERE checked_at < $1"
	recordsQuery         = "SELECT id, content_id, url, status, checked_at FROM bad_links ORDER BY seq"
	clearQuery           = "TRUNCATE bad_links"

	// Compile-time check for ensuring Store implements validator.Store.
	_ validator.Store = (*Store)(nil)
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store implements a record store that persists records to a CockroachDB
// or PostgreSQL instance.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store instance that connects to the database at dsn
// and makes sure the bad_links table exists.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	for _, q := range schemaQueries {
		if _, err = db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close terminates the connection to the backing database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertIfAbsent stores r unless a record for the same content ID and URL
// already exists.
func (s *Store) InsertIfAbsent(ctx context.Context, r *validator.Record) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	inserted, err := insertRecord(ctx, s.db, r)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return inserted, nil
}

func insertRecord(ctx context.Context, ex execer, r *validator.Record) (bool, error) {
	id := uuid.New()
	res, err := ex.ExecContext(ctx, insertRecordQuery, id, r.ContentID, r.URL, string(r.Status), r.CheckedAt.UTC())
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	r.ID = id
	return true, nil
}

// ReplaceContent atomically swaps the records of contentID for records
// inside a single transaction.
func (s *Store) ReplaceContent(ctx context.Context, contentID string, records []*validator.Record) (int, error) {
	for _, r := range records {
		if r.ContentID != contentID {
			return 0, fmt.Errorf("replace content: record for %q does not belong to %q", r.ContentID, contentID)
		}
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("replace content: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("replace content: %w", err)
	}

	inserted, err := replaceContent(ctx, tx, contentID, records)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("replace content: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("replace content: %w", err)
	}
	return inserted, nil
}

func replaceContent(ctx context.Context, tx *sql.Tx, contentID string, records []*validator.Record) (int, error) {
	if _, err := tx.ExecContext(ctx, deleteByContentQuery, contentID); err != nil {
		return 0, err
	}

	var inserted int
	for _, r := range records {
		ok, err := insertRecord(ctx, tx, r)
		if err != nil {
			return 0, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// DeleteByContent removes all records for contentID.
func (s *Store) DeleteByContent(ctx context.Context, contentID string) error {
	if _, err := s.db.ExecContext(ctx, deleteByContentQuery, contentID); err != nil {
		return fmt.Errorf("delete by content: %w", err)
	}
	return nil
}

// ContentIDs returns the distinct content IDs that own at least one record.
func (s *Store) ContentIDs(ctx context.Context) ([]string, error) {
	ids, err := s.queryIDs(ctx, contentIDsQuery)
	if err != nil {
		return nil, fmt.Errorf("content IDs: %w", err)
	}
	return ids, nil
}

// StaleContentIDs returns the distinct content IDs owning at least one
// record checked before the provided timestamp.
func (s *Store) StaleContentIDs(ctx context.Context, checkedBefore time.Time) ([]string, error) {
	ids, err := s.queryIDs(ctx, staleContentIDsQuery, checkedBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("stale content IDs: %w", err)
	}
	return ids, nil
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Records returns an iterator over all records in insertion order.
func (s *Store) Records(ctx context.Context) (validator.RecordIterator, error) {
	rows, err := s.db.QueryContext(ctx, recordsQuery)
	if err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	return &recordIterator{rows: rows}, nil
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, clearQuery); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}
