package migration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"
)

func openTestDB(t *testing.T) *SQLiteExecutor {
	t.Helper()
	db, err := Open(InMemoryTestSQLiteConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteExecutor(db)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	executor := openTestDB(t)
	files := fstest.MapFS{
		"001_items.sql": {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY);")},
		"002_tags.sql":  {Data: []byte("CREATE TABLE tags (id TEXT PRIMARY KEY, item_id TEXT REFERENCES items(id));")},
	}
	manager := NewManager(NewFileScanner(), executor, files, discardLogger())

	applied, err := manager.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 applied migrations, got %d", applied)
	}

	applied, err = manager.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected second run to be a no-op, applied %d", applied)
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.CurrentVersion != "002" || len(status.Pending) != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestManager_FailedMigrationRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	executor := openTestDB(t)
	files := fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE half (id TEXT); INSERT INTO missing VALUES (1);")},
	}
	manager := NewManager(NewFileScanner(), executor, files, discardLogger())

	applied, err := manager.Run(ctx)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 applied migration before failure, got %d", applied)
	}

	var count int
	if err := executor.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'half'`).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Fatalf("table from failed migration should have been rolled back")
	}
}

func TestManager_DetectsConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	executor := openTestDB(t)
	original := fstest.MapFS{"001_items.sql": {Data: []byte("CREATE TABLE items (id TEXT);")}}
	if _, err := NewManager(NewFileScanner(), executor, original, discardLogger()).Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	t.Run("edited file", func(t *testing.T) {
		edited := fstest.MapFS{"001_items.sql": {Data: []byte("CREATE TABLE items (id TEXT, name TEXT);")}}
		_, err := NewManager(NewFileScanner(), executor, edited, discardLogger()).Status(ctx)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})

	t.Run("gap in versions", func(t *testing.T) {
		gap := fstest.MapFS{
			"001_items.sql": original["001_items.sql"],
			"003_later.sql": {Data: []byte("SELECT 1;")},
		}
		_, err := NewManager(NewFileScanner(), executor, gap, discardLogger()).Status(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("applied file removed", func(t *testing.T) {
		_, err := NewManager(NewFileScanner(), executor, fstest.MapFS{}, discardLogger()).Status(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})
}

func TestSQLiteConfig(t *testing.T) {
	t.Parallel()

	if err := (SQLiteConfig{}).Validate(); err == nil {
		t.Fatal("expected empty DSN to be rejected")
	}
	if err := (SQLiteConfig{DSN: "x.db", JournalMode: "BOGUS"}).Validate(); err == nil {
		t.Fatal("expected invalid journal mode to be rejected")
	}

	dsn := DefaultSQLiteConfig("data/app.db").DriverDSN()
	want := "file:data/app.db?_pragma=busy_timeout%2830000%29&_pragma=foreign_keys%281%29&_pragma=journal_mode%28WAL%29&_pragma=synchronous%28NORMAL%29"
	if dsn != want {
		t.Fatalf("DriverDSN() = %q, want %q", dsn, want)
	}

	if got := filePath("file:data/app.db?cache=shared"); got != "data/app.db" {
		t.Errorf("filePath = %q", got)
	}
	if got := filePath(":memory:"); got != "" {
		t.Errorf("filePath(:memory:) = %q", got)
	}
}
