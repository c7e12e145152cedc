// Lock row CRUD grounded on senlin_lock.BaseLock's cluster_lock_create/
// steal/release and node_lock_create/steal/release primitives: a lock is
// just one row keyed by target id, and "steal" is a conditional UPDATE that
// only succeeds if the row still names the expected old owner.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *Store) ClusterLockCreate(ctx context.Context, clusterID, workerID string) (string, error) {
	return lockCreate(ctx, s, "cluster_locks", "cluster_id", clusterID, workerID)
}

func (s *Store) ClusterLockSteal(ctx context.Context, clusterID, oldWorker, newWorker string) (string, bool, error) {
	return lockSteal(ctx, s, "cluster_locks", "cluster_id", clusterID, oldWorker, newWorker)
}

func (s *Store) ClusterLockRelease(ctx context.Context, clusterID, workerID string) (bool, error) {
	return lockRelease(ctx, s, "cluster_locks", "cluster_id", clusterID, workerID)
}

func (s *Store) NodeLockCreate(ctx context.Context, nodeID, workerID string) (string, error) {
	return lockCreate(ctx, s, "node_locks", "node_id", nodeID, workerID)
}

func (s *Store) NodeLockSteal(ctx context.Context, nodeID, oldWorker, newWorker string) (string, bool, error) {
	return lockSteal(ctx, s, "node_locks", "node_id", nodeID, oldWorker, newWorker)
}

func (s *Store) NodeLockRelease(ctx context.Context, nodeID, workerID string) (bool, error) {
	return lockRelease(ctx, s, "node_locks", "node_id", nodeID, workerID)
}

// lockCreate inserts a lock row for targetID if none exists. If a row
// already exists it returns the current owner without modifying anything,
// the same "someone already holds it" signal cluster_lock_create returns to
// its caller instead of raising.
func lockCreate(ctx context.Context, s *Store, table, col, targetID, workerID string) (string, error) {
	var existingOwner string
	err := s.withTx(ctx, "lockCreate:"+table, func(q querier) error {
		row := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT worker_id FROM %s WHERE %s = ?`, table, col), targetID)
		err := row.Scan(&existingOwner)
		if err == nil {
			return nil // row exists, existingOwner already set
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check existing lock on %s: %w", targetID, err)
		}
		_, err = q.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s, worker_id, acquired_at) VALUES (?, ?, CURRENT_TIMESTAMP)`, table, col),
			targetID, workerID)
		if err != nil {
			return fmt.Errorf("failed to create lock on %s: %w", targetID, err)
		}
		existingOwner = ""
		return nil
	})
	return existingOwner, err
}

// lockSteal reassigns the lock row from oldWorker to newWorker, but only if
// it is still owned by oldWorker at the moment of the UPDATE — the same
// atomic compare-and-swap senlin_lock.BaseLock.steal relies on to make the
// last-writer-wins race safe.
func lockSteal(ctx context.Context, s *Store, table, col, targetID, oldWorker, newWorker string) (string, bool, error) {
	var currentOwner string
	var stolen bool
	err := s.withTx(ctx, "lockSteal:"+table, func(q querier) error {
		res, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET worker_id = ?, acquired_at = CURRENT_TIMESTAMP WHERE %s = ? AND worker_id = ?`,
			table, col), newWorker, targetID, oldWorker)
		if err != nil {
			return fmt.Errorf("failed to steal lock on %s: %w", targetID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected stealing lock: %w", err)
		}
		if n > 0 {
			stolen = true
			return nil
		}

		row := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT worker_id FROM %s WHERE %s = ?`, table, col), targetID)
		err = row.Scan(&currentOwner)
		if err == sql.ErrNoRows {
			currentOwner = "" // released mid-steal
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read current lock owner of %s: %w", targetID, err)
		}
		return nil
	})
	return currentOwner, stolen, err
}

func lockRelease(ctx context.Context, s *Store, table, col, targetID, workerID string) (bool, error) {
	var released bool
	err := s.withTx(ctx, "lockRelease:"+table, func(q querier) error {
		res, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND worker_id = ?`, table, col), targetID, workerID)
		if err != nil {
			return fmt.Errorf("failed to release lock on %s: %w", targetID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected releasing lock: %w", err)
		}
		released = n > 0
		return nil
	})
	return released, err
}
