package store

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS stats (
    id            TEXT    PRIMARY KEY,
    views         INTEGER NOT NULL DEFAULT 0,
    downloads     INTEGER NOT NULL DEFAULT 0,
    favorites     INTEGER NOT NULL DEFAULT 0,
    rating_sum    INTEGER NOT NULL DEFAULT 0,
    rating_count  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS downloads_log (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    template_name TEXT    NOT NULL,
    ip            TEXT    NOT NULL,
    date          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_downloads_log_ip_date ON downloads_log (ip, date);
CREATE TABLE IF NOT EXISTS user_ratings (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    template_id   TEXT    NOT NULL,
    ip            TEXT    NOT NULL,
    rating        INTEGER NOT NULL,
    date          INTEGER NOT NULL,
    UNIQUE(template_id, ip)
);
`

// Open opens the SQLite database at dataSource with the driver selected at
// build time. The pool is limited to a single connection so that concurrent
// handlers queue on the connection instead of failing with SQLITE_BUSY.
func Open(dataSource string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", dataSource, err)
	}
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database %q: %w", dataSource, err)
	}
	return db, nil
}

// SetupSchema creates the counter, download log and rating tables if they
// do not exist yet.
func SetupSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create store schema: %w", err)
	}
	return nil
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source. Used by tests to move through rate
// limit windows without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is the counter store. All methods are safe for concurrent use.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// New wraps an open database. SetupSchema must have been called on db.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Now returns the current time according to the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}
