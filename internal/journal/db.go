// Package journal keeps an append-only SQLite record of control cycles and
// faults for later inspection. Nothing is ever read back into the controller.
package journal

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const schemaEntries = `
CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    occurred_ms INTEGER NOT NULL,
    kind TEXT NOT NULL,
    state TEXT,
    mixed_c REAL,
    target_c REAL,
    diff_c REAL,
    pulse_ms INTEGER,
    reason TEXT
);
`

const schemaEntriesIndex = `
CREATE INDEX IF NOT EXISTS entries_occurred ON entries (occurred_ms);
`

// OpenDB opens or creates the journal database at path and ensures the
// schema exists.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// One writer; SQLite serialises anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{schemaEntries, schemaEntriesIndex} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
