// Package storage persists the authoritative record set of a board in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"SketchBoard/internal/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	seq        INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	body       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS records_seq ON records (seq);
`

// Store keeps records in their shared order. A record keeps its position
// when it is pushed again; a record that was deleted and pushed again goes
// to the end.
type Store struct {
	sqlDB *sql.DB
}

// Open opens or creates the board database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer keeps seq allocation serial
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns every stored record in shared order.
func (s *Store) Load(ctx context.Context) ([]state.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, body FROM records ORDER BY seq ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []state.Record
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec state.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", id, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Upsert stores rec. A new ID is appended after every stored record; an
// existing ID has its content replaced in place.
func (s *Store) Upsert(ctx context.Context, rec state.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO records (id, seq, kind, body, updated_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM records), ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   kind = excluded.kind,
		   body = excluded.body,
		   updated_at = excluded.updated_at`,
		rec.ID, string(rec.Kind), string(body), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes the record with the given ID. Unknown IDs are ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}
