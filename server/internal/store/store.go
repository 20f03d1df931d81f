package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is the SQLite-backed storage for shifts, goals and losses.
// It is safe for concurrent use.
type Store struct {
	db    *sql.DB
	retry RetryPolicy
	now   func() time.Time // injectable for deterministic tests
}

// Option configures a Store.
type Option func(*Store)

// WithRetry sets the retry policy for transient failures.
func WithRetry(p RetryPolicy) Option {
	return func(s *Store) { s.retry = p }
}

// WithClock sets the clock used for started/finished stamps and default
// loss timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir %q: %w", dir, err)
		}
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// One writer connection: SQLite serializes writes anyway, and a single
	// connection keeps transactions from tripping over each other's locks.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, retry: DefaultRetryPolicy(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shifts (
			id INTEGER PRIMARY KEY,
			turno_nome TEXT NOT NULL,
			data_turno TEXT NOT NULL,
			contador INTEGER NOT NULL DEFAULT 0,
			perdas INTEGER NOT NULL DEFAULT 0,
			inicio_turno TEXT NOT NULL,
			fim_turno TEXT NULL,
			UNIQUE(turno_nome, data_turno)
		);`,
		`CREATE TABLE IF NOT EXISTS metas (
			id INTEGER PRIMARY KEY,
			shift_id INTEGER NOT NULL REFERENCES shifts(id) ON DELETE CASCADE,
			meta_turno INTEGER NOT NULL,
			meta_dia INTEGER NULL,
			created_at TEXT NOT NULL,
			UNIQUE(shift_id)
		);`,
		`CREATE TABLE IF NOT EXISTS perdas (
			id INTEGER PRIMARY KEY,
			shift_id INTEGER NOT NULL REFERENCES shifts(id) ON DELETE CASCADE,
			quantidade INTEGER NOT NULL CHECK (quantidade >= 0),
			motivo TEXT NOT NULL,
			data_evento TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_shifts_data ON shifts(data_turno);`,
		`CREATE INDEX IF NOT EXISTS idx_perdas_shift ON perdas(shift_id);`,
		`CREATE INDEX IF NOT EXISTS idx_perdas_data ON perdas(data_evento);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// withTx runs fn in a transaction, rolling back when fn or the commit fails.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}
