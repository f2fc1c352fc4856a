// Package store implements nestling's persistence layer on SQLite.
// One database holds households, users, sessions, baby profiles and the
// event records. All access goes through Store methods; callers never see
// SQL or the underlying connection.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"nestling/internal/logging"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// New opens (or creates) the SQLite database at the given path and ensures
// the schema exists. Use ":memory:" for tests.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Boot("store opened: %s", path)
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	householdTable := `
	CREATE TABLE IF NOT EXISTS households (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		invite_code TEXT NOT NULL UNIQUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_households_invite ON households(invite_code);
	`

	userTable := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT DEFAULT '',
		household_id TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_users_household ON users(household_id);
	`

	sessionTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at);
	`

	profileTable := `
	CREATE TABLE IF NOT EXISTS baby_profiles (
		baby_id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL,
		name TEXT NOT NULL,
		birth_date DATETIME NOT NULL,
		sex TEXT DEFAULT '',
		avatar_url TEXT DEFAULT '',
		note TEXT DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_household ON baby_profiles(household_id);
	`

	recordTable := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		baby_id TEXT NOT NULL,
		type TEXT NOT NULL,
		happened_at DATETIME NOT NULL,
		note TEXT DEFAULT '',
		tags TEXT DEFAULT '[]',
		created_by TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		method TEXT DEFAULT '',
		side TEXT DEFAULT '',
		amount_ml REAL DEFAULT 0,
		duration_min REAL DEFAULT 0,
		kind TEXT DEFAULT '',
		ended_at DATETIME,
		food TEXT DEFAULT '',
		amount TEXT DEFAULT '',
		reaction TEXT DEFAULT '',
		height_cm REAL DEFAULT 0,
		weight_kg REAL DEFAULT 0,
		head_cm REAL DEFAULT 0,
		image_url TEXT DEFAULT '',
		caption TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_records_baby_type ON records(baby_id, type);
	CREATE INDEX IF NOT EXISTS idx_records_happened ON records(baby_id, happened_at);
	`

	for _, ddl := range []string{householdTable, userTable, sessionTable, profileTable, recordTable} {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Stats returns row counts per table, used by health checks and tests.
func (s *Store) Stats() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, table := range []string{"households", "users", "sessions", "baby_profiles", "records"} {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}
