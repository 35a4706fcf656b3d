package migration

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  FileScanner
	executor Executor
	files    fs.FS
	logger   *slog.Logger
}

// NewManager wires a scanner and executor over the given migration files. A nil
// logger falls back to slog.Default.
func NewManager(scanner FileScanner, executor Executor, files fs.FS, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:  scanner,
		executor: executor,
		files:    files,
		logger:   logger.With("component", "migration"),
	}
}

// Run executes every pending migration and returns the number applied.
func (m *Manager) Run(ctx context.Context) (int, error) {
	start := time.Now()
	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}

	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return 0, nil
	}

	m.logger.InfoContext(ctx, "applying migrations",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)

	for i, migration := range status.Pending {
		elapsed, err := m.executor.ExecuteMigration(ctx, migration)
		if err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				"version", migration.Version,
				"file", migration.FilePath,
				"error", err,
			)
			return i, NewMigrationError(migration.Version, migration.FilePath, "execute migration",
				fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"duration", elapsed,
		)
	}

	m.logger.InfoContext(ctx, "migrations complete",
		"applied", len(status.Pending),
		"duration", time.Since(start),
	)
	return len(status.Pending), nil
}

// Status compares the migration files against schema_migrations. Applied
// migrations whose files changed or disappeared are reported as conflicts.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, fmt.Errorf("failed to initialize version table: %w", err)
	}

	available, err := m.scanner.ScanMigrations(m.files)
	if err != nil {
		return Status{}, fmt.Errorf("failed to scan migrations: %w", err)
	}
	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get applied versions: %w", err)
	}
	if err := validateSequence(available, applied); err != nil {
		return Status{}, err
	}

	appliedByVersion := make(map[int]AppliedMigration, len(applied))
	for _, a := range applied {
		appliedByVersion[versionNumber(a.Version)] = a
	}

	status := Status{Applied: applied}
	for _, migration := range available {
		if _, done := appliedByVersion[versionNumber(migration.Version)]; done {
			continue
		}
		status.Pending = append(status.Pending, migration)
	}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	return status, nil
}

func validateSequence(available []Migration, applied []AppliedMigration) error {
	files := make(map[int]Migration, len(available))
	for i, migration := range available {
		n := versionNumber(migration.Version)
		if i > 0 && n != versionNumber(available[i-1].Version)+1 {
			return fmt.Errorf("%w: missing migration version %03d in sequence",
				ErrVersionConflict, versionNumber(available[i-1].Version)+1)
		}
		files[n] = migration
	}

	for _, a := range applied {
		migration, ok := files[versionNumber(a.Version)]
		if !ok {
			return fmt.Errorf("%w: applied migration %s not found in available migrations",
				ErrVersionConflict, a.Version)
		}
		if a.Checksum != "" && a.Checksum != migration.Checksum {
			return NewMigrationError(a.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	return nil
}
