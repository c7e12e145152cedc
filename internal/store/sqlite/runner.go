package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/clustersmith/enginecore/internal/store/sqlite/migrations"
)

// migration names one schema step; version is its position in the ordered
// list below, one-indexed to match the schema_migrations row it leaves
// behind.
type migration struct {
	version int
	name    string
	apply   func(*sql.DB) error
}

var allMigrations = []migration{
	{1, "initial_schema", migrations.InitialSchema},
	{2, "action_ready_index", migrations.ActionReadyIndex},
	{3, "event_retention_column", migrations.EventRetentionColumn},
}

// runMigrations applies every migration newer than the database's recorded
// version, in order, each in its own transaction-less Exec (migrations
// issue DDL, which SQLite auto-commits anyway).
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range allMigrations {
		if m.version <= current {
			continue
		}
		if err := m.apply(db); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			return fmt.Errorf("failed to record migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}
