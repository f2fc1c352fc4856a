package store

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}

	requiredTables := []string{"households", "users", "sessions", "baby_profiles", "records"}
	for _, table := range requiredTables {
		if _, ok := stats[table]; !ok {
			t.Errorf("Stats missing table: %s", table)
		}
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)

	// Fresh schema already has every migrated column; a second run must be
	// a no-op rather than a duplicate-column error.
	if err := RunMigrations(s.db); err != nil {
		t.Fatalf("RunMigrations on fresh schema: %v", err)
	}
	if err := RunMigrations(s.db); err != nil {
		t.Fatalf("RunMigrations second pass: %v", err)
	}
}

func TestMigrationsAddMissingColumn(t *testing.T) {
	s := newTestStore(t)

	// Simulate an old database without the caption column.
	if _, err := s.db.Exec("ALTER TABLE records DROP COLUMN caption"); err != nil {
		t.Skipf("sqlite build without DROP COLUMN: %v", err)
	}

	exists, err := columnExists(s.db, "records", "caption")
	if err != nil {
		t.Fatalf("columnExists: %v", err)
	}
	if exists {
		t.Fatal("caption should be dropped")
	}

	if err := RunMigrations(s.db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	exists, err = columnExists(s.db, "records", "caption")
	if err != nil {
		t.Fatalf("columnExists: %v", err)
	}
	if !exists {
		t.Error("caption column should be restored by migration")
	}
}
