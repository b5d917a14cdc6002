// Package migration applies versioned SQL schema files to a SQLite database.
//
// Migration files live in an fs.FS (usually an embedded directory) and follow
// the naming convention {version}_{description}.sql, for example
// "001_hall_schema.sql". Applied versions are tracked in the
// schema_migrations table so each file runs exactly once, inside its own
// transaction together with its version record.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(), migration.NewSQLiteExecutor(db), schemaFS, "schema", logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
