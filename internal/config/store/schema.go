package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		name TEXT PRIMARY KEY,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		node_name TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (node_name, key),
		FOREIGN KEY (node_name) REFERENCES nodes(name) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS tag_sightings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_name TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		seen_at TEXT NOT NULL,
		notified INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (node_name) REFERENCES nodes(name) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tag_sightings_seen_at
		ON tag_sightings(node_name, seen_at DESC)`,
}

func applyPragmas(ctx context.Context, db *sql.DB, readOnly bool) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout.Milliseconds())),
		"PRAGMA foreign_keys = ON",
	}

	if !readOnly {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA temp_store = MEMORY",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("config: apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("config: begin schema transaction: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("config: apply schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("config: commit schema: %w", err)
	}

	return nil
}

func seedNode(ctx context.Context, db *sql.DB, nodeName string) error {
	_, err := db.ExecContext(ctx, `
        INSERT INTO nodes (name) VALUES (?)
        ON CONFLICT(name) DO NOTHING
    `, nodeName)
	if err != nil {
		return fmt.Errorf("config: seed node %q: %w", nodeName, err)
	}
	return nil
}
