package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, query string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return n
}

func TestApplyRecordsAndCreates(t *testing.T) {
	db := openMemoryDB(t)
	migrations := fstest.MapFS{
		"events/001_events.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE events(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE events;")},
		"events/README.md":      &fstest.MapFile{Data: []byte("ignored")},
	}

	if err := Apply(context.Background(), db, migrations, "events"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations WHERE name = 'events/001_events.sql'"); got != 1 {
		t.Fatalf("migration rows = %d, want 1", got)
	}
	if got := countRows(t, db, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'events'"); got != 1 {
		t.Fatalf("events table count = %d, want 1", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	db := openMemoryDB(t)
	migrations := fstest.MapFS{
		"001_items.sql": &fstest.MapFile{Data: []byte("CREATE TABLE items(id TEXT PRIMARY KEY);")},
	}
	for i := 0; i < 2; i++ {
		if err := Apply(context.Background(), db, migrations, ""); err != nil {
			t.Fatalf("apply pass %d: %v", i, err)
		}
	}
	if got := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); got != 1 {
		t.Fatalf("migration rows = %d, want 1", got)
	}
}

func TestApplyRejectsNilDB(t *testing.T) {
	if err := Apply(context.Background(), nil, fstest.MapFS{}, ""); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestApplyReportsBrokenSQL(t *testing.T) {
	db := openMemoryDB(t)
	migrations := fstest.MapFS{
		"001_bad.sql": &fstest.MapFile{Data: []byte("CREATE TABLE (")},
	}
	err := Apply(context.Background(), db, migrations, "")
	if err == nil {
		t.Fatal("expected error for broken migration")
	}
	if !strings.Contains(err.Error(), "exec migration 001_bad.sql") {
		t.Fatalf("err = %v, want exec migration context", err)
	}
}

func TestUpSection(t *testing.T) {
	content := "-- header\n-- +migrate Up\nCREATE TABLE a(x);\n-- +migrate Down\nDROP TABLE a;"
	got := strings.TrimSpace(UpSection(content))
	if got != "CREATE TABLE a(x);" {
		t.Fatalf("up section = %q", got)
	}
	if whole := UpSection("CREATE TABLE b(x);"); whole != "CREATE TABLE b(x);" {
		t.Fatalf("up section without marker = %q", whole)
	}
}

func TestIsAlreadyExistsError(t *testing.T) {
	if !IsAlreadyExistsError(errors.New("table events already exists")) {
		t.Fatal("expected already exists to match")
	}
	if IsAlreadyExistsError(errors.New("syntax error")) {
		t.Fatal("expected syntax error not to match")
	}
	if IsAlreadyExistsError(nil) {
		t.Fatal("expected nil not to match")
	}
}
