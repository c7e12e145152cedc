package migrations

import (
	"database/sql"
	"fmt"
)

// EventRetentionColumn adds retention_scope to events so pruning (I6) can
// scope its DELETE to one object's rows; it is populated from obj_id at
// insert time for every event, so cluster events prune per cluster and
// node events prune by their own node id.
func EventRetentionColumn(db *sql.DB) error {
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0 FROM pragma_table_info('events') WHERE name = 'retention_scope'
	`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check retention_scope column: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := db.Exec(`ALTER TABLE events ADD COLUMN retention_scope TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("failed to add retention_scope column: %w", err)
	}
	if _, err := db.Exec(`UPDATE events SET retention_scope = obj_id WHERE retention_scope = ''`); err != nil {
		return fmt.Errorf("failed to backfill retention_scope: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_retention ON events(retention_scope, timestamp)`); err != nil {
		return fmt.Errorf("failed to add retention_scope index: %w", err)
	}
	return nil
}
