package migrate

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/duckdb/duckdb-go/v2"
)

const embeddedMigrations = 2

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunAppliesAllMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	n, err := NewRunner(db).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != embeddedMigrations {
		t.Errorf("applied = %d, want %d", n, embeddedMigrations)
	}

	for _, table := range []string{"inv_groups", "inv_hosts", "inv_items", "history", "trends", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := NewRunner(db)

	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	n, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if n != 0 {
		t.Errorf("second Run applied %d migrations, want 0", n)
	}

	cur, pending, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != embeddedMigrations || pending != 0 {
		t.Errorf("expected version=%d pending=0, got version=%d pending=%d", embeddedMigrations, cur, pending)
	}
}

func TestStatusBeforeRun(t *testing.T) {
	db := openTestDB(t)

	cur, pending, err := NewRunner(db).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 0 || pending != embeddedMigrations {
		t.Errorf("expected version=0 pending=%d, got version=%d pending=%d", embeddedMigrations, cur, pending)
	}
}

func TestRunFailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	files := fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE ok_table (id INTEGER);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE broken (id NOT_A_TYPE);")},
		"README.md":      {Data: []byte("ignored")},
	}
	r := NewRunnerFS(db, files)

	n, err := r.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "002_broken.sql") {
		t.Fatalf("Run error = %v, want failure naming 002_broken.sql", err)
	}
	if n != 1 {
		t.Errorf("applied = %d, want 1", n)
	}

	cur, pending, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 1 || pending != 1 {
		t.Errorf("expected version=1 pending=1, got version=%d pending=%d", cur, pending)
	}
}

func TestDuplicateVersionRejected(t *testing.T) {
	db := openTestDB(t)
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 2;")},
	}
	if _, err := NewRunnerFS(db, files).Run(context.Background()); err == nil {
		t.Error("expected duplicate version error")
	}
}
