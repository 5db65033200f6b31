// Package repository persists submission history to Postgres. The ledger is
// write-mostly bookkeeping; deduplication always goes through the
// filesystem, never through this database.
package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the sql handle used by the repositories
type DB struct {
	*sql.DB
}

// NewDB opens a Postgres connection and verifies it
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

// Migrate creates the ledger tables if they do not exist
func (db *DB) Migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS submissions (
			id UUID PRIMARY KEY,
			job TEXT NOT NULL,
			task_count INT NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS submission_tasks (
			id UUID PRIMARY KEY,
			submission_id UUID NOT NULL REFERENCES submissions(id),
			experiment_prefix TEXT NOT NULL,
			handle_id TEXT NOT NULL,
			params_json TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS submission_tasks_prefix_idx
			ON submission_tasks (experiment_prefix);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return nil
}
