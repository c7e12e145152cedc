package migrations

import (
	"database/sql"
	"fmt"
)

// ActionReadyIndex adds a composite index covering the GetFirstReady /
// GetAllReady scan (status = READY ordered by created_at), so claiming
// stays O(log n) as the actions table grows.
func ActionReadyIndex(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_actions_status_created
		ON actions(status, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to add actions ready index: %w", err)
	}
	return nil
}
