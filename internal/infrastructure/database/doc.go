// Package database provides the embedded SQLite store for Tagwatch Core.
//
// Connection, tag and rule definitions live here when the database driver
// is "sqlite". The package manages:
//   - Opening the file with WAL mode and a busy timeout
//   - Versioned schema migrations embedded in the binary
//   - Small transaction helpers for repositories
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
