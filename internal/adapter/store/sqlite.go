// Package store persists conversations and study data in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"planit/internal/domain"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements domain.ContextStore and domain.StudyStore.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ domain.ContextStore = (*SQLiteStore)(nil)
	_ domain.StudyStore   = (*SQLiteStore)(nil)
)

// Open opens (or creates) a SQLite database at dbPath and runs the schema
// migration. Use ":memory:" for an ephemeral database.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		nickname   TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_turns (
		owner_id   TEXT NOT NULL,
		ord        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		parts      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (owner_id, ord)
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		title      TEXT NOT NULL,
		semester   TEXT NOT NULL DEFAULT '',
		archived   INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_courses_owner ON courses(owner_id)`,
	`CREATE TABLE IF NOT EXISTS lectures (
		id        TEXT PRIMARY KEY,
		course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		title     TEXT NOT NULL,
		start_at  TEXT NOT NULL,
		end_at    TEXT NOT NULL,
		summary   TEXT NOT NULL DEFAULT '',
		present   INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lectures_start ON lectures(start_at)`,
	`CREATE TABLE IF NOT EXISTS evaluations (
		id        TEXT PRIMARY KEY,
		course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		type      TEXT NOT NULL,
		title     TEXT NOT NULL,
		start_at  TEXT NOT NULL,
		end_at    TEXT NOT NULL,
		present   INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_evaluations_start ON evaluations(start_at)`,
	`CREATE TABLE IF NOT EXISTS events (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_at    TEXT NOT NULL,
		end_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_owner_start ON events(owner_id, start_at)`,
	`CREATE TABLE IF NOT EXISTS routines (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		flexible    INTEGER NOT NULL DEFAULT 0,
		start_time  TEXT NOT NULL,
		end_time    TEXT NOT NULL,
		days        INTEGER NOT NULL
	)`,
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// newID draws from the process-wide monotonic entropy source, so ids made
// within one millisecond stay unique and ordered.
func newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}

// notFound turns sql.ErrNoRows into domain.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}

// inTx runs fn inside a transaction, committing on success.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func checkSpan(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end must not be before start", domain.ErrInvalidInput)
	}
	return nil
}
