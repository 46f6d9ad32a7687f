// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files live in an fs.FS (normally an embed.FS compiled into the
// binary) and follow the naming convention {version}_{description}.sql, for
// example "001_projects_and_sessions.sql". A leading "-- Description:" comment
// overrides the description taken from the file name.
//
// Applied versions and file checksums are tracked in a schema_migrations
// table. Each migration and its version record commit in one transaction, so
// a failed migration leaves no partial schema behind.
//
// Example usage:
//
//	manager := NewMigrationManager(NewFileScanner(files), NewSQLiteExecutor(db), "migrations", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
