package migration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func openTestDB(t *testing.T) *SQLiteExecutor {
	t.Helper()
	db, err := OpenDatabase(context.Background(), TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "migrate.db")))
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteExecutor(db)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerRun(t *testing.T) {
	ctx := context.Background()

	t.Run("applies pending migrations once", func(t *testing.T) {
		executor := openTestDB(t)
		fsys := fstest.MapFS{
			"schema/001_init.sql":  {Data: []byte("CREATE TABLE things (id TEXT PRIMARY KEY);")},
			"schema/002_names.sql": {Data: []byte("ALTER TABLE things ADD COLUMN name TEXT;")},
		}
		manager := NewManager(NewScanner(), executor, fsys, "schema", quietLogger())

		applied, err := manager.Run(ctx)
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if applied != 2 {
			t.Fatalf("expected 2 migrations applied, got %d", applied)
		}

		applied, err = manager.Run(ctx)
		if err != nil || applied != 0 {
			t.Fatalf("expected idempotent second run, got %d, %v", applied, err)
		}

		status, err := manager.Status(ctx)
		if err != nil {
			t.Fatalf("Status returned error: %v", err)
		}
		if status.CurrentVersion != "002" || len(status.Pending) != 0 || len(status.Applied) != 2 {
			t.Fatalf("unexpected status: %#v", status)
		}
	})

	t.Run("failed migration leaves no version record", func(t *testing.T) {
		executor := openTestDB(t)
		fsys := fstest.MapFS{
			"schema/001_init.sql":   {Data: []byte("CREATE TABLE things (id TEXT PRIMARY KEY);")},
			"schema/002_broken.sql": {Data: []byte("CREATE TABLE other (id TEXT);\nINSERT INTO missing VALUES (1);")},
		}
		manager := NewManager(NewScanner(), executor, fsys, "schema", quietLogger())

		applied, err := manager.Run(ctx)
		if !errors.Is(err, ErrMigrationFailed) {
			t.Fatalf("expected ErrMigrationFailed, got %v", err)
		}
		if applied != 1 {
			t.Fatalf("expected first migration to be applied, got %d", applied)
		}

		records, err := executor.AppliedMigrations(ctx)
		if err != nil {
			t.Fatalf("AppliedMigrations returned error: %v", err)
		}
		if len(records) != 1 || records[0].Version != "001" {
			t.Fatalf("unexpected applied records: %#v", records)
		}
	})

	t.Run("detects gaps and edited files", func(t *testing.T) {
		executor := openTestDB(t)
		gap := fstest.MapFS{
			"schema/001_init.sql": {Data: []byte("CREATE TABLE things (id TEXT);")},
			"schema/003_late.sql": {Data: []byte("CREATE TABLE later (id TEXT);")},
		}
		if _, err := NewManager(NewScanner(), executor, gap, "schema", quietLogger()).Run(ctx); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}

		original := fstest.MapFS{"schema/001_init.sql": {Data: []byte("CREATE TABLE things (id TEXT);")}}
		if _, err := NewManager(NewScanner(), executor, original, "schema", quietLogger()).Run(ctx); err != nil {
			t.Fatalf("Run returned error: %v", err)
		}

		edited := fstest.MapFS{"schema/001_init.sql": {Data: []byte("CREATE TABLE things (id TEXT, extra TEXT);")}}
		if _, err := NewManager(NewScanner(), executor, edited, "schema", quietLogger()).Run(ctx); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})
}

func TestSQLiteConfig(t *testing.T) {
	cfg := DefaultSQLiteConfig("/var/lib/hall/hall.db")
	dsn := cfg.ConnectionString()
	for _, want := range []string{"file:/var/lib/hall/hall.db?", "_pragma=busy_timeout(5000)", "_pragma=foreign_keys(1)", "_pragma=journal_mode(WAL)", "_txlock=immediate"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected %q in %q", want, dsn)
		}
	}

	bad := cfg
	bad.Path = " "
	bad.JournalMode = "fancy"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
