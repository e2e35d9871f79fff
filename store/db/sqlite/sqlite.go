// Package sqlite implements the store driver on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DB is the sqlite store driver.
type DB struct {
	db *sql.DB
}

// New opens (or creates) the sqlite database at dsn.
func New(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite db %q", dsn)
	}
	// modernc sqlite is not safe for concurrent writers on one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	return &DB{db: db}, nil
}

// Close closes the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// EnsureTables creates missing tables and indexes.
func (d *DB) EnsureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			uid        TEXT    NOT NULL UNIQUE,
			title      TEXT    NOT NULL DEFAULT 'New Task',
			mode       TEXT    NOT NULL DEFAULT 'task',
			summary    TEXT    NOT NULL DEFAULT '',
			sandbox_id TEXT    NOT NULL DEFAULT '',
			created_ts BIGINT  NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_ts BIGINT  NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
			role            TEXT    NOT NULL,
			parts           TEXT    NOT NULL DEFAULT '[]',
			stats           TEXT    NOT NULL DEFAULT '',
			raw             TEXT    NOT NULL DEFAULT '',
			created_ts      BIGINT  NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message(conversation_id)`,
		`CREATE TABLE IF NOT EXISTS skill (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			uid        TEXT    NOT NULL UNIQUE,
			name       TEXT    NOT NULL UNIQUE,
			content    TEXT    NOT NULL DEFAULT '',
			created_ts BIGINT  NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_ts BIGINT  NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS skill_file (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			skill_id    INTEGER NOT NULL REFERENCES skill(id) ON DELETE CASCADE,
			name        TEXT    NOT NULL,
			storage_key TEXT    NOT NULL,
			size        BIGINT  NOT NULL DEFAULT 0,
			created_ts  BIGINT  NOT NULL DEFAULT (strftime('%s', 'now')),
			UNIQUE(skill_id, name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "ensure tables")
		}
	}
	return nil
}
