// Package types holds the persisted entities of the orchestration core:
// clusters, nodes, policies, profiles, actions, locks, and events.
package types

import "time"

// Cluster is a named, project-scoped group of managed nodes derived from a
// profile. Clusters may nest via ParentID.
type Cluster struct {
	ID           string
	ProjectID    string
	Name         string
	ParentID     string // empty if top-level
	ProfileID    string
	Size         int
	Status       ClusterStatus
	StatusReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time // soft-delete marker; nil means active
}

// IsDeleted reports whether the cluster has been soft-deleted.
func (c *Cluster) IsDeleted() bool {
	return c != nil && c.DeletedAt != nil
}

// LockID and LockName satisfy internal/lock.Target.
func (c *Cluster) LockID() string   { return c.ID }
func (c *Cluster) LockName() string { return c.Name }

// ClusterStatus is the lifecycle status of a cluster.
type ClusterStatus string

const (
	ClusterStatusInit      ClusterStatus = "INIT"
	ClusterStatusActive    ClusterStatus = "ACTIVE"
	ClusterStatusUpdating  ClusterStatus = "UPDATING"
	ClusterStatusSuspended ClusterStatus = "SUSPENDED"
	ClusterStatusError     ClusterStatus = "ERROR"
	ClusterStatusDeleting  ClusterStatus = "DELETING"
	ClusterStatusDeleted   ClusterStatus = "DELETED"
)

// ClusterFilter narrows a ClusterGetAll listing.
type ClusterFilter struct {
	Name   string
	Status ClusterStatus
}

// SortDir is an ORDER BY direction.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// ListOptions is the common pagination/sort/filter envelope shared by the
// paginated listing operations in the store.
type ListOptions struct {
	Limit       int
	Marker      string // id of the last-seen row, for keyset pagination
	SortKeys    []string
	SortDir     SortDir
	ShowNested  bool
	ShowDeleted bool
}

// Node is a single managed resource, optionally a member of a cluster.
type Node struct {
	ID           string
	ClusterID    string // empty if not currently a cluster member
	Name         string
	PhysicalID   string
	ProfileID    string
	Status       NodeStatus
	StatusReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LockID and LockName satisfy internal/lock.Target.
func (n *Node) LockID() string   { return n.ID }
func (n *Node) LockName() string { return n.Name }

// NodeStatus is the lifecycle status of a node.
type NodeStatus string

const (
	NodeStatusInit     NodeStatus = "INIT"
	NodeStatusActive   NodeStatus = "ACTIVE"
	NodeStatusError    NodeStatus = "ERROR"
	NodeStatusDeleting NodeStatus = "DELETING"
)

// Profile is a reusable template describing how to materialize a node or
// cluster. Its Spec is treated as an opaque JSON blob by this core.
type Profile struct {
	ID        string
	Type      string
	Spec      string // opaque JSON
	CreatedAt time.Time
}

// Policy is a reusable behavior modifier attached to clusters. Its Spec is
// opaque here; concrete policy semantics are out of scope.
type Policy struct {
	ID        string
	Type      string
	Spec      string // opaque JSON
	CreatedAt time.Time
	DeletedAt *time.Time
}

// IsDeleted reports whether the policy has been soft-deleted.
func (p *Policy) IsDeleted() bool {
	return p != nil && p.DeletedAt != nil
}

// ClusterPolicy binds a Policy to a Cluster with its attach-time settings.
type ClusterPolicy struct {
	ClusterID  string
	PolicyID   string
	Enabled    bool
	Priority   int
	Cooldown   int // seconds
	Level      string
	AttachedAt time.Time
}
