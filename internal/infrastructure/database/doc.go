// Package database provides SQLite connectivity for Synced Select.
//
// This package manages:
//   - The connection (single writer, optional WAL mode, busy timeout)
//   - Private in-memory databases for tests
//   - Versioned schema migrations read from an fs.FS
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT,
// and every .up.sql file has a matching .down.sql file.
package database
