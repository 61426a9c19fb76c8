// Package store persists the client's durable state in SQLite: the rotating
// session cookies, raw profile snapshots, the docking history, the fact base
// and a few settings.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"ocellus/internal/logging"
)

// DefaultSnapshotLimit is how many raw profiles are retained.
const DefaultSnapshotLimit = 50

// Store is the SQLite-backed state store.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string

	// dumpPath, when set, receives every archived body verbatim.
	dumpPath      string
	snapshotLimit int
}

// Option configures a Store.
type Option func(*Store)

// WithProfileDump writes every archived profile body to path as well.
func WithProfileDump(path string) Option {
	return func(s *Store) { s.dumpPath = path }
}

// WithSnapshotLimit caps retained snapshots. Zero or less keeps everything.
func WithSnapshotLimit(n int) Option {
	return func(s *Store) { s.snapshotLimit = n }
}

// Open initializes the database at path, creating parent directories.
func Open(path string, opts ...Option) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("opening store at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("%s failed: %v", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path, snapshotLimit: DefaultSnapshotLimit}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("schema ready")
	return s, nil
}

func (s *Store) initialize() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			account TEXT PRIMARY KEY,
			cookies TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profile_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fetched_at DATETIME NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS visited_systems (
			name TEXT PRIMARY KEY,
			first_visit DATETIME NOT NULL,
			last_visit DATETIME NOT NULL,
			visits INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS facts (
			scope TEXT NOT NULL,
			seq INTEGER NOT NULL,
			predicate TEXT NOT NULL,
			args TEXT NOT NULL,
			PRIMARY KEY (scope, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_fetched ON profile_snapshots(fetched_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
