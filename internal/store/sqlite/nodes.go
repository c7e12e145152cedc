package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/types"
)

const nodeColumns = `id, cluster_id, name, physical_id, profile_id, status, status_reason, created_at, updated_at`

func scanNode(row interface{ Scan(...any) error }) (*types.Node, error) {
	n := &types.Node{}
	if err := row.Scan(&n.ID, &n.ClusterID, &n.Name, &n.PhysicalID, &n.ProfileID, &n.Status, &n.StatusReason, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Store) NodeCreate(ctx context.Context, n *types.Node) error {
	return s.withTx(ctx, "NodeCreate", func(q querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO nodes
			(id, cluster_id, name, physical_id, profile_id, status, status_reason, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.ClusterID, n.Name, n.PhysicalID, n.ProfileID, n.Status, n.StatusReason, n.CreatedAt, n.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert node: %w", err)
		}
		if n.ClusterID != "" {
			if _, err := q.ExecContext(ctx, `UPDATE clusters SET size = size + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, n.ClusterID); err != nil {
				return fmt.Errorf("failed to increment cluster %s size: %w", n.ClusterID, err)
			}
		}
		return nil
	})
}

func (s *Store) NodeGet(ctx context.Context, id string) (*types.Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("node %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query node %s: %w", id, err)
	}
	return n, nil
}

func (s *Store) NodeGetAllByCluster(ctx context.Context, clusterID string) ([]*types.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE cluster_id = ? ORDER BY created_at, id`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes of cluster %s: %w", clusterID, err)
	}
	defer rows.Close()

	var out []*types.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) NodeGetByPhysicalID(ctx context.Context, physicalID string) (*types.Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE physical_id = ?`, physicalID)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("node with physical id %q not found", physicalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query node by physical id %s: %w", physicalID, err)
	}
	return n, nil
}

func (s *Store) NodeUpdate(ctx context.Context, n *types.Node) error {
	return s.withTx(ctx, "NodeUpdate", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE nodes SET
			name = ?, physical_id = ?, profile_id = ?, status = ?, status_reason = ?, updated_at = ?
			WHERE id = ?`,
			n.Name, n.PhysicalID, n.ProfileID, n.Status, n.StatusReason, n.UpdatedAt, n.ID)
		if err != nil {
			return fmt.Errorf("failed to update node %s: %w", n.ID, err)
		}
		return requireRowsAffected(res, "node", n.ID)
	})
}

func (s *Store) NodeDelete(ctx context.Context, id string) error {
	return s.withTx(ctx, "NodeDelete", func(q querier) error {
		var clusterID string
		err := q.QueryRowContext(ctx, `SELECT cluster_id FROM nodes WHERE id = ?`, id).Scan(&clusterID)
		if err == sql.ErrNoRows {
			return apierr.NotFoundf("node %q not found", id)
		}
		if err != nil {
			return fmt.Errorf("failed to look up node %s before delete: %w", id, err)
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete node %s: %w", id, err)
		}
		if clusterID != "" {
			if _, err := q.ExecContext(ctx, `UPDATE clusters SET size = size - 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, clusterID); err != nil {
				return fmt.Errorf("failed to decrement cluster %s size: %w", clusterID, err)
			}
		}
		return nil
	})
}

// NodeMigrate atomically reassigns a node from fromCluster to toCluster,
// adjusting both clusters' Size in the same transaction (L3). Either side
// may be empty, meaning "no cluster" (detach/attach at the boundary).
func (s *Store) NodeMigrate(ctx context.Context, nodeID, fromCluster, toCluster string) error {
	return s.withTx(ctx, "NodeMigrate", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE nodes SET cluster_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND cluster_id = ?`,
			toCluster, nodeID, fromCluster)
		if err != nil {
			return fmt.Errorf("failed to migrate node %s: %w", nodeID, err)
		}
		if err := requireRowsAffected(res, "node", nodeID); err != nil {
			return err
		}
		if fromCluster != "" {
			if _, err := q.ExecContext(ctx, `UPDATE clusters SET size = size - 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, fromCluster); err != nil {
				return fmt.Errorf("failed to decrement source cluster %s size: %w", fromCluster, err)
			}
		}
		if toCluster != "" {
			if _, err := q.ExecContext(ctx, `UPDATE clusters SET size = size + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, toCluster); err != nil {
				return fmt.Errorf("failed to increment destination cluster %s size: %w", toCluster, err)
			}
		}
		return nil
	})
}
