// Package mysql implements the store driver on go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// DB is the mysql store driver.
type DB struct {
	db *sql.DB
}

// New opens a mysql connection with the given DSN.
func New(dsn string) (*DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql db")
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
			id         INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			uid        VARCHAR(256) NOT NULL UNIQUE,
			title      TEXT NOT NULL,
			mode       VARCHAR(64) NOT NULL DEFAULT 'task',
			summary    TEXT NOT NULL,
			sandbox_id VARCHAR(256) NOT NULL DEFAULT '',
			created_ts TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_ts TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			id              INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			conversation_id INT NOT NULL,
			role            VARCHAR(64) NOT NULL,
			parts           MEDIUMTEXT NOT NULL,
			stats           TEXT NOT NULL,
			raw             MEDIUMTEXT NOT NULL,
			created_ts      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_message_conversation FOREIGN KEY (conversation_id) REFERENCES conversation(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX idx_message_conversation ON message(conversation_id)`,
		`CREATE TABLE IF NOT EXISTS skill (
			id         INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			uid        VARCHAR(256) NOT NULL UNIQUE,
			name       VARCHAR(256) NOT NULL UNIQUE,
			content    MEDIUMTEXT NOT NULL,
			created_ts TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_ts TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS skill_file (
			id          INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			skill_id    INT NOT NULL,
			name        VARCHAR(512) NOT NULL,
			storage_key VARCHAR(1024) NOT NULL,
			size        BIGINT NOT NULL DEFAULT 0,
			created_ts  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_skill_file_skill FOREIGN KEY (skill_id) REFERENCES skill(id) ON DELETE CASCADE,
			UNIQUE KEY uq_skill_file (skill_id, name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			// Index creation is not idempotent on mysql; ignore duplicates.
			if isDuplicateObjectError(err) {
				continue
			}
			return errors.Wrap(err, "ensure tables")
		}
	}
	return nil
}

func isDuplicateObjectError(err error) bool {
	var mysqlErr *mysqldrv.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1061: duplicate key name.
		return mysqlErr.Number == 1061
	}
	return false
}
