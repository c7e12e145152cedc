// Package migrations holds one function per schema change, applied in
// ascending numeric order by the runner in the parent package. Each
// function must be safe to call against a database that may already have
// it applied (checked via PRAGMA table_info / sqlite_master), matching the
// idempotent-migration style used throughout the retrieved reference
// migrations this package is modeled on.
package migrations

import (
	"database/sql"
	"fmt"
)

// InitialSchema creates every table the core reads and writes: clusters,
// nodes, profiles, policies, cluster_policies, actions, cluster_locks,
// node_locks, and events.
func InitialSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS clusters (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			profile_id TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			status_reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			deleted_at DATETIME
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_clusters_project_name_parent
			ON clusters(project_id, name, parent_id) WHERE deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_clusters_project ON clusters(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_clusters_parent ON clusters(parent_id)`,

		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			cluster_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			physical_id TEXT NOT NULL DEFAULT '',
			profile_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			status_reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_cluster ON nodes(cluster_id)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_physical_id ON nodes(physical_id)`,

		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			spec TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS policies (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			spec TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			deleted_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS cluster_policies (
			cluster_id TEXT NOT NULL,
			policy_id TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			priority INTEGER NOT NULL DEFAULT 0,
			cooldown INTEGER NOT NULL DEFAULT 0,
			level TEXT NOT NULL DEFAULT '',
			attached_at DATETIME NOT NULL,
			PRIMARY KEY (cluster_id, policy_id)
		)`,

		`CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			target_id TEXT NOT NULL,
			target_type TEXT NOT NULL,
			verb TEXT NOT NULL,
			inputs TEXT NOT NULL DEFAULT '',
			outputs TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			status_reason TEXT NOT NULL DEFAULT '',
			control TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_target ON actions(target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_owner ON actions(owner)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status)`,

		`CREATE TABLE IF NOT EXISTS action_dependencies (
			depended_id TEXT NOT NULL,
			dependent_id TEXT NOT NULL,
			PRIMARY KEY (depended_id, dependent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_action_deps_dependent ON action_dependencies(dependent_id)`,

		`CREATE TABLE IF NOT EXISTS cluster_locks (
			cluster_id TEXT PRIMARY KEY,
			worker_id TEXT NOT NULL,
			acquired_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS node_locks (
			node_id TEXT PRIMARY KEY,
			worker_id TEXT NOT NULL,
			acquired_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			obj_id TEXT NOT NULL,
			obj_type TEXT NOT NULL,
			level TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_obj ON events(obj_id, timestamp)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply initial schema statement: %w", err)
		}
	}
	return nil
}
