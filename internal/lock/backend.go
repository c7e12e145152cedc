package lock

import (
	"context"

	"github.com/clustersmith/enginecore/internal/store"
)

// ClusterBackend adapts store.LockStore's cluster_locks methods to Backend.
type ClusterBackend struct{ Store store.LockStore }

func (b ClusterBackend) Create(ctx context.Context, id, worker string) (string, error) {
	return b.Store.ClusterLockCreate(ctx, id, worker)
}
func (b ClusterBackend) Steal(ctx context.Context, id, oldWorker, newWorker string) (string, bool, error) {
	return b.Store.ClusterLockSteal(ctx, id, oldWorker, newWorker)
}
func (b ClusterBackend) Release(ctx context.Context, id, worker string) (bool, error) {
	return b.Store.ClusterLockRelease(ctx, id, worker)
}

// NodeBackend adapts store.LockStore's node_locks methods to Backend.
type NodeBackend struct{ Store store.LockStore }

func (b NodeBackend) Create(ctx context.Context, id, worker string) (string, error) {
	return b.Store.NodeLockCreate(ctx, id, worker)
}
func (b NodeBackend) Steal(ctx context.Context, id, oldWorker, newWorker string) (string, bool, error) {
	return b.Store.NodeLockSteal(ctx, id, oldWorker, newWorker)
}
func (b NodeBackend) Release(ctx context.Context, id, worker string) (bool, error) {
	return b.Store.NodeLockRelease(ctx, id, worker)
}
