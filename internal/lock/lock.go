// Package lock implements the distributed lock-stealing algorithm every
// cluster/node mutation is guarded by, generalizing senlin_lock.BaseLock
// (and its ClusterLock/NodeLock subclasses) into one generic Manager
// parameterized over the lock target type, the same algorithm the Go
// generics feature exists to let us express without the subclass-per-kind
// duplication the original carries.
package lock

import (
	"context"
	"fmt"
	"log"

	"github.com/clustersmith/enginecore/internal/apierr"
)

// Target is the minimal shape a lockable entity (Cluster, Node) exposes.
type Target interface {
	LockID() string
	LockName() string
}

// Backend is the persistence primitive a Manager drives: one row per
// target id, keyed by the current owning engine's id. Implemented by
// internal/store/sqlite's cluster_locks/node_locks tables.
type Backend interface {
	// Create inserts a lock row if none exists. Returns the empty string
	// on success, or the current owner if a row already exists.
	Create(ctx context.Context, targetID, workerID string) (existingOwner string, err error)
	// Steal reassigns the lock from oldWorker to newWorker if oldWorker
	// still owns it. Returns stolen=true on success, or
	// (currentOwner, false) — currentOwner empty means the row was gone
	// (released mid-steal), non-empty means a third party now owns it.
	Steal(ctx context.Context, targetID, oldWorker, newWorker string) (currentOwner string, stolen bool, err error)
	// Release deletes the row if still owned by workerID. Returns false
	// if there was nothing to release (double-release).
	Release(ctx context.Context, targetID, workerID string) (released bool, err error)
}

// Prober answers whether a peer engine is still alive, standing in for
// BaseLock.engine_alive's RPC "listening" probe.
type Prober interface {
	IsAlive(ctx context.Context, engineID string) bool
}

// Manager drives the lock-stealing state machine for one target kind
// (cluster or node) on behalf of one local engine.
type Manager[T Target] struct {
	backend    Backend
	prober     Prober
	engineID   string
	targetKind string // "cluster" or "node", used in ActionInProgressErr
}

// NewManager builds a Manager bound to engineID, using backend for
// persistence and prober to decide whether a stale-looking lock's owner is
// actually dead.
func NewManager[T Target](backend Backend, prober Prober, engineID, targetKind string) *Manager[T] {
	return &Manager[T]{backend: backend, prober: prober, engineID: engineID, targetKind: targetKind}
}

// TryAcquire attempts to create the lock without stealing or raising on
// contention — it reports whether the lock was acquired.
func (m *Manager[T]) TryAcquire(ctx context.Context, target T) (bool, error) {
	owner, err := m.backend.Create(ctx, target.LockID(), m.engineID)
	if err != nil {
		return false, fmt.Errorf("failed to try-acquire lock on %s: %w", target.LockID(), err)
	}
	return owner == "", nil
}

// Acquire acquires the lock on target, stealing it from a dead engine if
// necessary, and returns an ActionInProgressErr if a live engine holds it.
func (m *Manager[T]) Acquire(ctx context.Context, target T) error {
	_, _, err := m.AcquireReportingSteal(ctx, target)
	return err
}

// AcquireReportingSteal is Acquire, but also reports whether the lock was
// stolen from a dead engine and, if so, which engine it was stolen from —
// the caller needs that to finalize the stale work the dead engine left
// RUNNING on this same target.
func (m *Manager[T]) AcquireReportingSteal(ctx context.Context, target T) (stolen bool, previousOwner string, err error) {
	return m.acquire(ctx, target, true)
}

func (m *Manager[T]) acquire(ctx context.Context, target T, retry bool) (stolen bool, previousOwner string, err error) {
	owner, err := m.backend.Create(ctx, target.LockID(), m.engineID)
	if err != nil {
		return false, "", fmt.Errorf("failed to acquire lock on %s: %w", target.LockID(), err)
	}
	if owner == "" {
		return false, "", nil
	}

	if owner == m.engineID || m.prober.IsAlive(ctx, owner) {
		return false, "", &apierr.ActionInProgressErr{TargetType: m.targetKind, TargetID: target.LockID(), Owner: owner}
	}

	currentOwner, didSteal, err := m.backend.Steal(ctx, target.LockID(), owner, m.engineID)
	if err != nil {
		return false, "", fmt.Errorf("failed to steal lock on %s: %w", target.LockID(), err)
	}
	if didSteal {
		return true, owner, nil
	}
	if currentOwner == "" {
		// Released mid-steal: try once more from scratch, same as the
		// original's acquire(retry=False) re-entry.
		if retry {
			return m.acquire(ctx, target, false)
		}
		return false, "", &apierr.ActionInProgressErr{TargetType: m.targetKind, TargetID: target.LockID(), Owner: ""}
	}
	return false, "", &apierr.ActionInProgressErr{TargetType: m.targetKind, TargetID: target.LockID(), Owner: currentOwner}
}

// Release releases the lock held by this engine on targetID. A
// double-release is logged away, not returned as an error — the caller
// asked for the lock to be gone and it is.
func (m *Manager[T]) Release(ctx context.Context, targetID string) error {
	released, err := m.backend.Release(ctx, targetID, m.engineID)
	if err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", targetID, err)
	}
	if !released {
		log.Printf("lock: %s %s was not held by engine %s (double release)", m.targetKind, targetID, m.engineID)
	}
	return nil
}

// ThreadLock acquires the lock, runs fn, and releases the lock only if fn
// returns an error — mirroring BaseLock.thread_lock's "release on exception
// only" contract (the happy path leaves the lock held for a caller that
// still has work left to do under it, e.g. a RUNNING action).
func (m *Manager[T]) ThreadLock(ctx context.Context, target T, fn func() error) error {
	if err := m.Acquire(ctx, target); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rerr := m.Release(ctx, target.LockID()); rerr != nil {
			return fmt.Errorf("%w (also failed to release lock: %v)", err, rerr)
		}
		return err
	}
	return nil
}

// TryThreadLock is ThreadLock's try_acquire counterpart: fn is always
// invoked with whether the lock was freshly acquired by this call
// (acquired=true) or already held by someone else (acquired=false, the
// non-blocking "note and move on" path). The lock is released on error only
// if this call is the one that acquired it.
func (m *Manager[T]) TryThreadLock(ctx context.Context, target T, fn func(acquired bool) error) error {
	acquired, err := m.TryAcquire(ctx, target)
	if err != nil {
		return err
	}
	if err := fn(acquired); err != nil {
		if acquired {
			if rerr := m.Release(ctx, target.LockID()); rerr != nil {
				return fmt.Errorf("%w (also failed to release lock: %v)", err, rerr)
			}
		}
		return err
	}
	return nil
}
