package migration

import (
	"context"
	"io/fs"
	"time"
)

// Migration is a single versioned schema change.
type Migration struct {
	Version     string // numeric version, e.g. "001"
	Description string
	SQL         string
	FilePath    string
	Checksum    string
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarises the migration state of a database.
type Status struct {
	CurrentVersion string
	Applied        []AppliedMigration
	Pending        []Migration
}

// FileScanner discovers migration files.
type FileScanner interface {
	ScanMigrations(fsys fs.FS) ([]Migration, error)
	ValidateFileName(filename string) error
	ParseMigrationFile(fsys fs.FS, path string) (*Migration, error)
}

// Executor runs migrations against a database and tracks their versions.
type Executor interface {
	InitializeVersionTable(ctx context.Context) error
	// ExecuteMigration runs the migration and records it in a single transaction.
	ExecuteMigration(ctx context.Context, migration Migration) (time.Duration, error)
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}
