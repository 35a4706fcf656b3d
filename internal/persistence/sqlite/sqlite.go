// Package sqlite implements the persistence repositories on SQLite through the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/example/matchbook/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("sqlite: embedded migrations: %v", err))
	}
	return sub
}

// Storage bundles the SQLite repositories over one connection pool.
type Storage struct {
	*PersonaRepository
	*ReservationRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

// Open opens the database at dsn with production settings.
func Open(dsn string) (*Storage, error) {
	return OpenWithConfig(migration.DefaultSQLiteConfig(dsn), nil)
}

// OpenWithConfig opens a database with explicit settings. A nil logger falls
// back to slog.Default.
func OpenWithConfig(config migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return NewStorage(pool, logger), nil
}

// NewStorage builds a Storage over an existing pool.
func NewStorage(pool *ConnectionPool, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		PersonaRepository:     NewPersonaRepository(pool),
		ReservationRepository: NewReservationRepository(pool),
		pool:                  pool,
		logger:                logger,
	}
}

// Migrate applies pending schema migrations and returns how many ran.
func (s *Storage) Migrate(ctx context.Context) (int, error) {
	manager := migration.NewManager(
		migration.NewFileScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		Migrations(),
		s.logger,
	)
	return manager.Run(ctx)
}

// MigrationStatus reports applied and pending migrations.
func (s *Storage) MigrationStatus(ctx context.Context) (migration.Status, error) {
	manager := migration.NewManager(
		migration.NewFileScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		Migrations(),
		s.logger,
	)
	return manager.Status(ctx)
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
