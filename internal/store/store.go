// Package store persists the lifetime water total in a single SQLite row.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "watercontrol.db"

const (
	recordID   = 1
	recordName = "total_water"
)

// Store holds the lifetime total record.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and makes sure the record
// exists, seeded with 0 on first run.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps saves strictly serialised.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS watercontrol (
			id INTEGER PRIMARY KEY,
			name TEXT,
			value FLOAT
		)`); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO watercontrol (id, name, value)
		VALUES (?, ?, 0)
		ON CONFLICT(id) DO NOTHING`, recordID, recordName); err != nil {
		return fmt.Errorf("seed record: %w", err)
	}
	return nil
}

// Load returns the persisted lifetime total. A missing row reads as 0.
func (s *Store) Load(ctx context.Context) (float64, error) {
	var v float64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM watercontrol WHERE id = ?`, recordID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load total: %w", err)
	}
	return v, nil
}

// Save overwrites the persisted lifetime total.
func (s *Store) Save(ctx context.Context, total float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE watercontrol SET value = ? WHERE id = ?`, total, recordID)
	if err != nil {
		return fmt.Errorf("save total: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save total: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("save total: record %d missing", recordID)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
