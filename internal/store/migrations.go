package store

// Schema migrations for existing databases. Tables are created by
// Store.initialize; migrations here only add columns that newer builds
// expect on databases written by older ones.

import (
	"database/sql"
	"fmt"

	"nestling/internal/logging"
)

// Migration defines one additive schema change.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists all schema migrations to apply.
var pendingMigrations = []Migration{
	// Record tagging (added after the first release stored only notes)
	{"records", "tags", "TEXT DEFAULT '[]'"},
	// Snapshot captions split out of the note field
	{"records", "caption", "TEXT DEFAULT ''"},
	// Profile avatar support
	{"baby_profiles", "avatar_url", "TEXT DEFAULT ''"},
	// Who logged the record (multi-user households)
	{"records", "created_by", "TEXT DEFAULT ''"},
}

// RunMigrations applies schema migrations for existing databases.
// Missing columns are added; everything else is left untouched.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	applied := 0
	for _, m := range pendingMigrations {
		exists, err := columnExists(db, m.Table, m.Column)
		if err != nil {
			return fmt.Errorf("migration check %s.%s: %w", m.Table, m.Column, err)
		}
		if exists {
			continue
		}

		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %s.%s: %w", m.Table, m.Column, err)
		}
		applied++
		logging.Store("Migration applied: %s.%s", m.Table, m.Column)
	}

	if applied > 0 {
		logging.Store("Schema migrations complete: %d applied", applied)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
