// Package db provides the SQLite connection and schema used by huebridge's persistent stores.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Remote access credentials, one row per named slot
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS remote_tokens (
			slot TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			access_token_expiry INTEGER NOT NULL,
			refresh_token_expiry INTEGER NOT NULL,
			client_id TEXT NOT NULL,
			client_secret TEXT NOT NULL,
			app_id TEXT,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create remote_tokens table: %w", err)
	}

	// Refresh audit trail, useful when a refresh token dies unexpectedly
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS token_rotations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slot TEXT NOT NULL,
			access_token_expiry INTEGER NOT NULL,
			refresh_token_expiry INTEGER NOT NULL,
			rotated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_token_rotations_slot ON token_rotations(slot, rotated_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create token_rotations table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
