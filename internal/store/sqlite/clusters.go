package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/types"
)

func (s *Store) ClusterCreate(ctx context.Context, c *types.Cluster) error {
	return s.withTx(ctx, "ClusterCreate", func(q querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO clusters
			(id, project_id, name, parent_id, profile_id, size, status, status_reason, created_at, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ProjectID, c.Name, c.ParentID, c.ProfileID, c.Size, c.Status, c.StatusReason, c.CreatedAt, c.UpdatedAt, c.DeletedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return apierr.Conflictf("cluster %q already exists under parent %q", c.Name, c.ParentID)
			}
			return fmt.Errorf("failed to insert cluster: %w", err)
		}
		return nil
	})
}

func scanCluster(row interface{ Scan(...any) error }) (*types.Cluster, error) {
	c := &types.Cluster{}
	var deletedAt sql.NullTime
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.ParentID, &c.ProfileID, &c.Size,
		&c.Status, &c.StatusReason, &c.CreatedAt, &c.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	return c, nil
}

const clusterColumns = `id, project_id, name, parent_id, profile_id, size, status, status_reason, created_at, updated_at, deleted_at`

var allowedClusterSort = map[string]bool{
	"id": true, "name": true, "status": true, "created_at": true, "updated_at": true,
}

func (s *Store) ClusterGet(ctx context.Context, id, projectID string, showDeleted bool) (*types.Cluster, error) {
	ctx, span := tracer.Start(ctx, "ClusterGet")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE id = ? AND project_id = ?`, id, projectID)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("cluster %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster %s: %w", id, err)
	}
	if c.IsDeleted() && !showDeleted {
		return nil, apierr.NotFoundf("cluster %q not found", id)
	}
	return c, nil
}

func (s *Store) ClusterGetByName(ctx context.Context, projectID, name, parentID string) (*types.Cluster, error) {
	ctx, span := tracer.Start(ctx, "ClusterGetByName")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `SELECT `+clusterColumns+` FROM clusters
		WHERE project_id = ? AND name = ? AND parent_id = ? AND deleted_at IS NULL`, projectID, name, parentID)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("cluster %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster by name %s: %w", name, err)
	}
	return c, nil
}

func (s *Store) ClusterGetAll(ctx context.Context, projectID string, opts types.ListOptions, filter types.ClusterFilter) ([]*types.Cluster, error) {
	ctx, span := tracer.Start(ctx, "ClusterGetAll")
	defer span.End()

	var where []string
	var args []any
	where = append(where, "project_id = ?")
	args = append(args, projectID)

	if !opts.ShowDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if !opts.ShowNested {
		where = append(where, "parent_id = ''")
	}
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if opts.Marker != "" {
		where = append(where, "id > ?")
		args = append(args, opts.Marker)
	}

	order, err := orderByClause(opts.SortKeys, opts.SortDir, allowedClusterSort)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM clusters WHERE %s ORDER BY %s`, clusterColumns, strings.Join(where, " AND "), order)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	defer rows.Close()

	var out []*types.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ClusterCountByProject(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clusters WHERE project_id = ? AND deleted_at IS NULL`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count clusters for project %s: %w", projectID, err)
	}
	return n, nil
}

func (s *Store) ClusterUpdate(ctx context.Context, c *types.Cluster) error {
	return s.withTx(ctx, "ClusterUpdate", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE clusters SET
			name = ?, parent_id = ?, profile_id = ?, size = ?, status = ?, status_reason = ?, updated_at = ?, deleted_at = ?
			WHERE id = ?`,
			c.Name, c.ParentID, c.ProfileID, c.Size, c.Status, c.StatusReason, c.UpdatedAt, c.DeletedAt, c.ID)
		if err != nil {
			return fmt.Errorf("failed to update cluster %s: %w", c.ID, err)
		}
		return requireRowsAffected(res, "cluster", c.ID)
	})
}

// ClusterDelete soft-deletes the cluster row and hard-deletes its nodes and
// policy bindings, all inside one transaction (I5).
func (s *Store) ClusterDelete(ctx context.Context, id string) error {
	return s.withTx(ctx, "ClusterDelete", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE clusters SET status = ?, deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND deleted_at IS NULL`, types.ClusterStatusDeleted, id)
		if err != nil {
			return fmt.Errorf("failed to soft-delete cluster %s: %w", id, err)
		}
		if err := requireRowsAffected(res, "cluster", id); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM nodes WHERE cluster_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete member nodes of cluster %s: %w", id, err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM cluster_policies WHERE cluster_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete policy bindings of cluster %s: %w", id, err)
		}
		return nil
	})
}

func (s *Store) ClusterDepth(ctx context.Context, id string) (int, error) {
	depth := 0
	cur := id
	for {
		var parentID string
		err := s.db.QueryRowContext(ctx, `SELECT parent_id FROM clusters WHERE id = ?`, cur).Scan(&parentID)
		if err == sql.ErrNoRows {
			return depth, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to walk cluster ancestry from %s: %w", id, err)
		}
		if parentID == "" {
			return depth, nil
		}
		depth++
		cur = parentID
		if depth > 1000 {
			return 0, fmt.Errorf("cluster ancestry chain from %s exceeds sane depth, possible cycle", id)
		}
	}
}
