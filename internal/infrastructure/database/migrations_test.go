package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func useMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = files, "."
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
}

var testMigrations = fstest.MapFS{
	"20260301_090000_create_widgets.up.sql": {Data: []byte(
		"CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
	"20260301_090000_create_widgets.down.sql": {Data: []byte(
		"DROP TABLE widgets;")},
	"20260302_100000_add_colour.up.sql": {Data: []byte(
		"ALTER TABLE widgets ADD COLUMN colour TEXT;")},
	"README.md": {Data: []byte("not a migration")},
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations)
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "widgets") {
		t.Fatal("table widgets not created")
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %d, want 2", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260301_090000_create_widgets.up.sql":   testMigrations["20260301_090000_create_widgets.up.sql"],
		"20260301_090000_create_widgets.down.sql": testMigrations["20260301_090000_create_widgets.down.sql"],
	})
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "widgets") {
		t.Error("table widgets still exists after rollback")
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 0 and 1", len(applied), len(pending))
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	useMigrations(t, testMigrations)
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// The latest migration has no .down.sql.
	if err := db.MigrateDown(ctx); err == nil {
		t.Error("MigrateDown() expected error for missing down SQL")
	}
}

func TestMigrate_FailureKeepsEarlierVersions(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260301_090000_ok.up.sql":     {Data: []byte("CREATE TABLE ok_table (id INTEGER);")},
		"20260302_090000_broken.up.sql": {Data: []byte("CREATE TABL broken;")},
	})
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() expected error for broken SQL")
	}
	if !tableExists(t, db, "ok_table") {
		t.Error("first migration should remain committed")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_090000_create_rules.up.sql", "20260301_090000", "create_rules", true, true},
		{"20260301_090000_create_rules.down.sql", "20260301_090000", "create_rules", false, true},
		{"20260301_090000.up.sql", "20260301_090000", "20260301_090000", true, true},
		{"create_rules.up.sql", "", "", false, false},
		{"20260301_090000_create_rules.sql", "", "", false, false},
		{"20260301_090000_create_rules.up.txt", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || isUp != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)",
					version, name, isUp, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
