// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user, session, preference and sound history persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// connPragmas are applied by the driver to every pooled connection.
// Writers wait on busy_timeout instead of failing with SQLITE_BUSY, and
// transactions take the write lock up front so a read-then-write never
// has to upgrade.
var connPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

// sqliteDSN builds the modernc.org/sqlite connection string for path.
func sqliteDSN(path string) string {
	params := make([]string, 0, len(connPragmas)+1)
	for _, p := range connPragmas {
		params = append(params, "_pragma="+p)
	}
	params = append(params, "_txlock=immediate")
	return path + "?" + strings.Join(params, "&")
}

// NewSQLiteStore creates a new SQLite store at the given path, logging
// through slog.Default().
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithLogger(path, slog.Default())
}

// NewSQLiteStoreWithLogger creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStoreWithLogger(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			display_name  TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			user_id       INTEGER NOT NULL,
			request_token TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			expires_at    TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

		CREATE TABLE IF NOT EXISTS user_prefs (
			user_id    INTEGER NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, key),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS sounds (
			id           TEXT PRIMARY KEY,
			user_id      INTEGER NOT NULL,
			rel_path     TEXT NOT NULL,
			size         INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			duration_ms  INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_sounds_user ON sounds(user_id, id DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping reports whether the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}
