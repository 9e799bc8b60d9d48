// Package history records the outputs the redaction service has published
// for each user, in a SQLite database.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when no entry matches.
var ErrNotFound = errors.New("history entry not found")

// Entry is one published output.
type Entry struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the history database. It owns its connection pool.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record inserts e. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Second)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO downloads (user_email, filename, format, digest, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.Email, e.Filename, e.Format, e.Digest, e.CreatedAt.Unix())
	if err != nil {
		return Entry{}, fmt.Errorf("recording download: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("reading download id: %w", err)
	}
	e.ID = id
	return e, nil
}

// List returns the entries for email, oldest first.
func (s *Store) List(ctx context.Context, email string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_email, filename, format, digest, created_at
		 FROM downloads WHERE user_email = ? ORDER BY created_at, id`, email)
	if err != nil {
		return nil, fmt.Errorf("listing downloads: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Email, &e.Filename, &e.Format, &e.Digest, &created); err != nil {
			return nil, fmt.Errorf("scanning download: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing downloads: %w", err)
	}
	return entries, nil
}

// Delete removes the entries for email with the given filename.
func (s *Store) Delete(ctx context.Context, email, filename string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM downloads WHERE user_email = ? AND filename = ?`, email, filename)
	if err != nil {
		return fmt.Errorf("deleting download: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting download: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every entry for email and returns what was removed, so
// the caller can remove the files too.
func (s *Store) DeleteAll(ctx context.Context, email string) ([]Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_email, filename, format, digest, created_at
		 FROM downloads WHERE user_email = ? ORDER BY created_at, id`, email)
	if err != nil {
		return nil, fmt.Errorf("listing downloads: %w", err)
	}
	var removed []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Email, &e.Filename, &e.Format, &e.Digest, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning download: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		removed = append(removed, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing downloads: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM downloads WHERE user_email = ?`, email); err != nil {
		return nil, fmt.Errorf("deleting downloads: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delete: %w", err)
	}
	return removed, nil
}
