package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens or creates the run history database and applies the schema.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// single connection, sqlite has one writer
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

const schemaModelRuns = `
CREATE TABLE IF NOT EXISTS model_runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    image_dir TEXT NOT NULL,
    result_file TEXT,
    keep_images BOOLEAN NOT NULL,
    cancelled BOOLEAN NOT NULL,
    committed INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    message TEXT,
    points TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);
`

const schemaRunPoints = `
CREATE TABLE IF NOT EXISTS run_points (
    run_id TEXT NOT NULL REFERENCES model_runs(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    solved BOOLEAN NOT NULL,
    committed BOOLEAN NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (run_id, idx)
);
`

const schemaModelEvents = `
CREATE TABLE IF NOT EXISTS model_events (
    id TEXT PRIMARY KEY,
    run_id TEXT,
    occurred_at TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    message TEXT NOT NULL,
    meta TEXT
);
`

const indexModelEvents = `
CREATE INDEX IF NOT EXISTS idx_model_events_occurred_at ON model_events (occurred_at);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range []string{
		schemaModelRuns,
		schemaRunPoints,
		schemaModelEvents,
		indexModelEvents,
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
