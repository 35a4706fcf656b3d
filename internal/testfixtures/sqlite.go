package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/matchbook/internal/persistence/sqlite"
	"github.com/example/matchbook/internal/persistence/sqlite/migration"
	"github.com/example/matchbook/internal/repository"
)

// SQLiteHarness provides repository access backed by a migrated temporary
// SQLite database for integration-style tests.
type SQLiteHarness struct {
	Storage      *sqlite.Storage
	Personas     *repository.PersonaStore
	Reservations *repository.ReservationStore

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
// Assignment identifiers come from ids when it is non-nil.
func NewSQLiteHarness(tb testing.TB, ids *IDGenerator) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "matchbook.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	storage, err := sqlite.OpenWithConfig(migration.TempFileTestSQLiteConfig(path), logger)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if _, err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	var next func() string
	if ids != nil {
		next = ids.NextFunc()
	}

	harness := &SQLiteHarness{
		Storage:      storage,
		Personas:     repository.NewPersonaStore(storage, next),
		Reservations: repository.NewReservationStore(storage),
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedCatalog stores the default persona catalog.
func (h *SQLiteHarness) SeedCatalog(tb testing.TB) {
	tb.Helper()
	for _, p := range Catalog(tb) {
		if err := h.Personas.UpsertPersona(context.Background(), p); err != nil {
			tb.Fatalf("seed persona %s: %v", p.Alias, err)
		}
	}
}
