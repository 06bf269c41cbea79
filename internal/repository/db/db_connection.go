package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens or creates the SQLite file holding snapshots, poll events and operators.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaDeviceSnapshot = `
CREATE TABLE IF NOT EXISTS device_snapshot (
    serial TEXT PRIMARY KEY,
    device_type TEXT NOT NULL,
    model TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT '',
    descr TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    metrics TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaPollEvents = `
CREATE TABLE IF NOT EXISTS poll_events (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    message TEXT NOT NULL,
    meta TEXT
);
`

const schemaPollEventsIndex = `
CREATE INDEX IF NOT EXISTS idx_poll_events_occurred_at ON poll_events (occurred_at);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range []string{
		schemaDeviceSnapshot,
		schemaPollEvents,
		schemaPollEventsIndex,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
