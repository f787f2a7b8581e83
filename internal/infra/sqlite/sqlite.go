// Package sqlite provides IdeaForge persistence on a single SQLite database:
// credit accounts, the append-only ledger, stored ideas, and saved artifacts.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection and exposes typed operations.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent debits.
	conn.SetMaxOpenConns(1)

	db := &DB{db: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.db.Close() }

// migrate applies the schema. Each string is a single SQL statement
// (SQLite executes one at a time).
func (db *DB) migrate() error {
	stmts := []string{
		// Credit accounts — balance never goes negative
		`CREATE TABLE IF NOT EXISTS credit_accounts (
			user_id    TEXT PRIMARY KEY,
			balance    INTEGER NOT NULL DEFAULT 0 CHECK(balance >= 0),
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Append-only credit ledger — one row per debit/grant
		`CREATE TABLE IF NOT EXISTS credit_ledger (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     TEXT NOT NULL,
			tx_type     TEXT NOT NULL,
			entry_type  TEXT NOT NULL,
			feature     TEXT NOT NULL DEFAULT '',
			amount      INTEGER NOT NULL CHECK(amount > 0),
			description TEXT NOT NULL DEFAULT '',
			balance     INTEGER NOT NULL,
			created_at  TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user ON credit_ledger(user_id, id DESC)`,

		// Stored ideas
		`CREATE TABLE IF NOT EXISTS ideas (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Saved artifacts — best-effort persistence keyed by user+idea+feature
		`CREATE TABLE IF NOT EXISTS artifacts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id      TEXT NOT NULL,
			idea_id      TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			content_data TEXT NOT NULL,
			created_at   TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_user ON artifacts(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_key ON artifacts(user_id, idea_id, content_type)`,
	}

	for _, stmt := range stmts {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
