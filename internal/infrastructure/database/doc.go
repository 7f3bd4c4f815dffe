// Package database provides SQLite connectivity for the devicelink journal.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned schema migrations read from a registered filesystem
//   - Health checks for the observability endpoints
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is created with 0600 permissions
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live in the top-level migrations package, which embeds
// them and registers the filesystem from its init function. Each version
// has an .up.sql file and, optionally, a .down.sql file.
package database
