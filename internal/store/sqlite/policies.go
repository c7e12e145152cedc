package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/types"
)

const policyColumns = `id, type, spec, created_at, deleted_at`

func scanPolicy(row interface{ Scan(...any) error }) (*types.Policy, error) {
	p := &types.Policy{}
	var deletedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Type, &p.Spec, &p.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return p, nil
}

func (s *Store) PolicyCreate(ctx context.Context, p *types.Policy) error {
	return s.withTx(ctx, "PolicyCreate", func(q querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO policies (id, type, spec, created_at, deleted_at) VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.Type, p.Spec, p.CreatedAt, p.DeletedAt)
		if err != nil {
			return fmt.Errorf("failed to insert policy: %w", err)
		}
		return nil
	})
}

func (s *Store) PolicyGet(ctx context.Context, id string, showDeleted bool) (*types.Policy, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = ?`, id)
	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("policy %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query policy %s: %w", id, err)
	}
	if p.IsDeleted() && !showDeleted {
		return nil, apierr.NotFoundf("policy %q not found", id)
	}
	return p, nil
}

func (s *Store) PolicyGetAll(ctx context.Context, showDeleted bool) ([]*types.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies`
	if !showDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var out []*types.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PolicyUpdate(ctx context.Context, p *types.Policy) error {
	return s.withTx(ctx, "PolicyUpdate", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE policies SET type = ?, spec = ? WHERE id = ? AND deleted_at IS NULL`, p.Type, p.Spec, p.ID)
		if err != nil {
			return fmt.Errorf("failed to update policy %s: %w", p.ID, err)
		}
		return requireRowsAffected(res, "policy", p.ID)
	})
}

// PolicyDelete soft-deletes the policy. force is accepted for symmetry with
// operator tooling that bypasses the "still attached" guard enforced one
// layer up; the store itself never refuses a delete.
func (s *Store) PolicyDelete(ctx context.Context, id string, force bool) error {
	return s.withTx(ctx, "PolicyDelete", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE policies SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
		if err != nil {
			return fmt.Errorf("failed to delete policy %s: %w", id, err)
		}
		return requireRowsAffected(res, "policy", id)
	})
}

func (s *Store) ClusterAttachPolicy(ctx context.Context, cp *types.ClusterPolicy) error {
	return s.withTx(ctx, "ClusterAttachPolicy", func(q querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO cluster_policies
			(cluster_id, policy_id, enabled, priority, cooldown, level, attached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			cp.ClusterID, cp.PolicyID, cp.Enabled, cp.Priority, cp.Cooldown, cp.Level, cp.AttachedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return apierr.Conflictf("policy %q is already attached to cluster %q", cp.PolicyID, cp.ClusterID)
			}
			return fmt.Errorf("failed to attach policy %s to cluster %s: %w", cp.PolicyID, cp.ClusterID, err)
		}
		return nil
	})
}

func (s *Store) ClusterDetachPolicy(ctx context.Context, clusterID, policyID string) error {
	return s.withTx(ctx, "ClusterDetachPolicy", func(q querier) error {
		res, err := q.ExecContext(ctx, `DELETE FROM cluster_policies WHERE cluster_id = ? AND policy_id = ?`, clusterID, policyID)
		if err != nil {
			return fmt.Errorf("failed to detach policy %s from cluster %s: %w", policyID, clusterID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected detaching policy: %w", err)
		}
		if n == 0 {
			return apierr.NotFoundf("policy %q is not attached to cluster %q", policyID, clusterID)
		}
		return nil
	})
}

func (s *Store) ClusterGetPolicies(ctx context.Context, clusterID string) ([]*types.ClusterPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cluster_id, policy_id, enabled, priority, cooldown, level, attached_at
		FROM cluster_policies WHERE cluster_id = ? ORDER BY priority DESC, attached_at`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies of cluster %s: %w", clusterID, err)
	}
	defer rows.Close()

	var out []*types.ClusterPolicy
	for rows.Next() {
		cp := &types.ClusterPolicy{}
		if err := rows.Scan(&cp.ClusterID, &cp.PolicyID, &cp.Enabled, &cp.Priority, &cp.Cooldown, &cp.Level, &cp.AttachedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cluster policy row: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *Store) ClusterSetPolicyEnabled(ctx context.Context, clusterID, policyID string, enabled bool) error {
	return s.withTx(ctx, "ClusterSetPolicyEnabled", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE cluster_policies SET enabled = ? WHERE cluster_id = ? AND policy_id = ?`,
			enabled, clusterID, policyID)
		if err != nil {
			return fmt.Errorf("failed to set policy %s enabled=%v on cluster %s: %w", policyID, enabled, clusterID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected enabling policy: %w", err)
		}
		if n == 0 {
			return apierr.NotFoundf("policy %q is not attached to cluster %q", policyID, clusterID)
		}
		return nil
	})
}
