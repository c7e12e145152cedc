// Package store defines the persistence interface (component P, spec.md
// §4.1): typed row access, paginated listing, and the short transactional
// sections every multi-row mutation runs inside.
//
// Store is intentionally one wide interface, not a family of narrow ones —
// the SQLite implementation's own transactions (e.g. ClusterDelete cascading
// into node deletes, NodeMigrate's atomic size update) need same-connection
// access across what would otherwise be several narrow interfaces, the same
// shape the teacher's SQLiteStorage methods are grouped under.
package store

import (
	"context"

	"github.com/clustersmith/enginecore/internal/types"
)

// Store is the full persistence surface the core depends on.
type Store interface {
	ClusterStore
	NodeStore
	PolicyStore
	ProfileStore
	ActionStore
	LockStore
	EventStore

	// Close releases underlying resources (connections, watchdogs).
	Close() error
}

// ClusterStore is the Cluster CRUD + listing surface.
type ClusterStore interface {
	ClusterCreate(ctx context.Context, c *types.Cluster) error
	// ClusterGet returns the cluster by id, scoped to projectID (P6): a
	// cluster owned by a different project is reported as NotFound, never
	// leaked. showDeleted allows a soft-deleted row through.
	ClusterGet(ctx context.Context, id, projectID string, showDeleted bool) (*types.Cluster, error)
	ClusterGetByName(ctx context.Context, projectID, name, parentID string) (*types.Cluster, error)
	ClusterGetAll(ctx context.Context, projectID string, opts types.ListOptions, filter types.ClusterFilter) ([]*types.Cluster, error)
	ClusterCountByProject(ctx context.Context, projectID string) (int, error)
	ClusterUpdate(ctx context.Context, c *types.Cluster) error
	// ClusterDelete soft-deletes the cluster and hard-deletes its member
	// nodes and policy bindings in one transaction (I5).
	ClusterDelete(ctx context.Context, id string) error
	// ClusterDepth walks the ParentID chain and returns its length (0 for
	// a top-level cluster), used to enforce max_nested_cluster_depth.
	ClusterDepth(ctx context.Context, id string) (int, error)
}

// NodeStore is the Node CRUD surface.
type NodeStore interface {
	NodeCreate(ctx context.Context, n *types.Node) error
	NodeGet(ctx context.Context, id string) (*types.Node, error)
	NodeGetAllByCluster(ctx context.Context, clusterID string) ([]*types.Node, error)
	NodeGetByPhysicalID(ctx context.Context, physicalID string) (*types.Node, error)
	NodeUpdate(ctx context.Context, n *types.Node) error
	NodeDelete(ctx context.Context, id string) error
	// NodeMigrate atomically reassigns a node between clusters, adjusting
	// both clusters' Size in one transaction (L3).
	NodeMigrate(ctx context.Context, nodeID, fromCluster, toCluster string) error
}

// PolicyStore is the Policy + ClusterPolicy surface.
type PolicyStore interface {
	PolicyCreate(ctx context.Context, p *types.Policy) error
	PolicyGet(ctx context.Context, id string, showDeleted bool) (*types.Policy, error)
	PolicyGetAll(ctx context.Context, showDeleted bool) ([]*types.Policy, error)
	PolicyUpdate(ctx context.Context, p *types.Policy) error
	PolicyDelete(ctx context.Context, id string, force bool) error

	ClusterAttachPolicy(ctx context.Context, cp *types.ClusterPolicy) error
	ClusterDetachPolicy(ctx context.Context, clusterID, policyID string) error
	ClusterGetPolicies(ctx context.Context, clusterID string) ([]*types.ClusterPolicy, error)
	ClusterSetPolicyEnabled(ctx context.Context, clusterID, policyID string, enabled bool) error
}

// ProfileStore is the Profile surface.
type ProfileStore interface {
	ProfileCreate(ctx context.Context, p *types.Profile) error
	ProfileGet(ctx context.Context, id string) (*types.Profile, error)
	ProfileGetAll(ctx context.Context) ([]*types.Profile, error)
	ProfileUpdate(ctx context.Context, p *types.Profile) error
}

// ActionStore is the Action CRUD + dependency-DAG surface (component A
// persists through this; state-machine guards live in internal/actions).
type ActionStore interface {
	ActionCreate(ctx context.Context, a *types.Action) error
	ActionGet(ctx context.Context, id string) (*types.Action, error)
	ActionGetFirstReady(ctx context.Context) (*types.Action, error)
	ActionGetAllReady(ctx context.Context) ([]*types.Action, error)
	ActionGetAllByOwner(ctx context.Context, owner string) ([]*types.Action, error)
	ActionDelete(ctx context.Context, id string) error

	// ActionAddDependency adds edges for every (up, down) pair in the
	// Cartesian product of depended x dependent, maintaining both sides
	// in one transaction (I3), and rejects an action depending on itself.
	// Longer cycles are rejected by internal/actions.Registry before it
	// calls this.
	ActionAddDependency(ctx context.Context, depended, dependent []string) error
	ActionDelDependency(ctx context.Context, depended, dependent []string) error

	ActionSetStatus(ctx context.Context, id string, status types.ActionStatus, reason string) error
	ActionStartWorkOn(ctx context.Context, id, owner string) error
	ActionLockCheck(ctx context.Context, id string) (owner string, held bool, err error)
	ActionSetControl(ctx context.Context, id string, control types.ControlSignal) error
	ActionControlCheck(ctx context.Context, id string) (types.ControlSignal, error)

	// ActionMarkSucceeded implements the completion hook: sets SUCCEEDED,
	// removes id from every depended_by action's depends_on (promoting
	// empties to READY), and clears depended_by — all in one transaction.
	// Returns the ids of any actions promoted to READY.
	ActionMarkSucceeded(ctx context.Context, id string) (promoted []string, err error)
	// ActionMarkTerminal sets the action (and, cascading, every action in
	// its depended_by closure) to status, unless already terminal.
	// Returns the ids touched by the cascade (excluding id itself).
	ActionMarkTerminal(ctx context.Context, id string, status types.ActionStatus, reason string) (cascaded []string, err error)
}

// LockStore is the raw lock-row CRUD the lock manager drives (component L
// persists through this). Every method runs its read-modify-write inside
// one transaction.
type LockStore interface {
	// ClusterLockCreate inserts a lock row if none exists, returning the
	// empty string. If a row already exists, returns its worker_id.
	ClusterLockCreate(ctx context.Context, clusterID, workerID string) (existingOwner string, err error)
	// ClusterLockSteal atomically reassigns the lock from oldWorker to
	// newWorker. Returns ("", true) if stolen, ("", false) if the row was
	// gone (released mid-steal), or (currentOwner, false) if a third
	// party already holds it under a different worker_id.
	ClusterLockSteal(ctx context.Context, clusterID, oldWorker, newWorker string) (currentOwner string, stolen bool, err error)
	// ClusterLockRelease deletes the row owned by workerID. Returns false
	// if no row was affected (double-release).
	ClusterLockRelease(ctx context.Context, clusterID, workerID string) (released bool, err error)

	NodeLockCreate(ctx context.Context, nodeID, workerID string) (existingOwner string, err error)
	NodeLockSteal(ctx context.Context, nodeID, oldWorker, newWorker string) (currentOwner string, stolen bool, err error)
	NodeLockRelease(ctx context.Context, nodeID, workerID string) (released bool, err error)
}

// EventStore is the append-only Event surface.
type EventStore interface {
	// EventCreate prunes the oldest events for a cluster target before
	// inserting when the per-cluster cap is reached (I6), all in one
	// logical unit.
	EventCreate(ctx context.Context, e *types.Event, maxPerCluster, purgeBatchSize int) error
	EventGetAllByCluster(ctx context.Context, clusterID string, opts types.ListOptions, filter types.EventFilter) ([]*types.Event, error)
	EventCountByCluster(ctx context.Context, clusterID string) (int, error)
}
