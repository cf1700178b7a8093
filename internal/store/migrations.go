package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "records: owner-scoped medical records with embeddings and memory weights",
		SQL: `
CREATE TABLE records (
    id                  TEXT PRIMARY KEY,
    owner_id            TEXT NOT NULL,
    category            TEXT NOT NULL,
    content             TEXT NOT NULL,
    tags                TEXT NOT NULL DEFAULT '[]',

    -- Embedding (set once at ingestion, immutable)
    embedding           BLOB NOT NULL,
    embedding_model     TEXT NOT NULL,
    dimensions          INTEGER NOT NULL,

    -- Memory evolution
    access_count        INTEGER NOT NULL DEFAULT 0 CHECK (access_count >= 0),
    memory_weight       REAL NOT NULL DEFAULT 1.0 CHECK (memory_weight > 0),
    reinforcement_level INTEGER NOT NULL DEFAULT 0 CHECK (reinforcement_level >= 0),
    last_accessed       INTEGER,

    created_at          INTEGER NOT NULL
);

CREATE INDEX idx_records_owner         ON records(owner_id);
CREATE INDEX idx_records_owner_created ON records(owner_id, created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "maintenance_runs: per-owner decay maintenance stamps",
		SQL: `
CREATE TABLE maintenance_runs (
    owner_id   TEXT PRIMARY KEY,
    last_as_of INTEGER NOT NULL,
    run_at     INTEGER NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
