// Package migration applies versioned schema files to a SQLite database.
//
// Files follow the naming convention {version}_{description}.sql (for example
// "001_reservations.sql") and are read from an fs.FS, usually an embedded
// directory. Applied versions are tracked in the schema_migrations table so
// every file runs at most once.
//
// Example usage:
//
//	runner := migration.NewRunner(db, logger)
//	if err := runner.Apply(ctx, migrationFiles); err != nil {
//		return err
//	}
package migration
