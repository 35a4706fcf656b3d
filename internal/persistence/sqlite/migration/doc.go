// Package migration applies versioned SQL schema changes to SQLite databases.
//
// Migration files are read from an fs.FS (usually an embed.FS compiled into the
// binary) and must be named {version}_{description}.sql, e.g.
// "001_initial_schema.sql". Applied versions are tracked in a schema_migrations
// table together with the checksum of the file that was run.
//
//	manager := migration.NewManager(migration.NewFileScanner(), migration.NewSQLiteExecutor(db), files, logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
