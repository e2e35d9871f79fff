// Package postgres implements the store driver on lib/pq.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// DB is the postgres store driver.
type DB struct {
	db *sql.DB
}

// New opens a postgres connection with the given DSN.
func New(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres db")
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
			id         SERIAL PRIMARY KEY,
			uid        TEXT   NOT NULL UNIQUE,
			title      TEXT   NOT NULL DEFAULT 'New Task',
			mode       TEXT   NOT NULL DEFAULT 'task',
			summary    TEXT   NOT NULL DEFAULT '',
			sandbox_id TEXT   NOT NULL DEFAULT '',
			created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			updated_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			id              SERIAL  PRIMARY KEY,
			conversation_id INTEGER NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
			role            TEXT    NOT NULL,
			parts           TEXT    NOT NULL DEFAULT '[]',
			stats           TEXT    NOT NULL DEFAULT '',
			raw             TEXT    NOT NULL DEFAULT '',
			created_ts      BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message(conversation_id)`,
		`CREATE TABLE IF NOT EXISTS skill (
			id         SERIAL PRIMARY KEY,
			uid        TEXT   NOT NULL UNIQUE,
			name       TEXT   NOT NULL UNIQUE,
			content    TEXT   NOT NULL DEFAULT '',
			created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			updated_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
		`CREATE TABLE IF NOT EXISTS skill_file (
			id          SERIAL  PRIMARY KEY,
			skill_id    INTEGER NOT NULL REFERENCES skill(id) ON DELETE CASCADE,
			name        TEXT    NOT NULL,
			storage_key TEXT    NOT NULL,
			size        BIGINT  NOT NULL DEFAULT 0,
			created_ts  BIGINT  NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
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
