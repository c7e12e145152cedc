package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/types"
)

const actionColumns = `id, target_id, target_type, verb, inputs, outputs, owner, status, status_reason, control, created_at, updated_at`

func scanAction(row interface{ Scan(...any) error }) (*types.Action, error) {
	a := &types.Action{}
	if err := row.Scan(&a.ID, &a.TargetID, &a.TargetType, &a.Verb, &a.Inputs, &a.Outputs, &a.Owner,
		&a.Status, &a.StatusReason, &a.Control, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

// loadDependencies fills in a.DependsOn and a.DependedBy from the
// action_dependencies join table. Called outside any write transaction
// (read-only), so it takes the plain *sql.DB rather than a querier.
func (s *Store) loadDependencies(ctx context.Context, a *types.Action) error {
	a.DependsOn = map[string]struct{}{}
	a.DependedBy = map[string]struct{}{}

	rows, err := s.db.QueryContext(ctx, `SELECT depended_id FROM action_dependencies WHERE dependent_id = ?`, a.ID)
	if err != nil {
		return fmt.Errorf("failed to load dependencies of action %s: %w", a.ID, err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan dependency row: %w", err)
		}
		a.DependsOn[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT dependent_id FROM action_dependencies WHERE depended_id = ?`, a.ID)
	if err != nil {
		return fmt.Errorf("failed to load dependents of action %s: %w", a.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan dependent row: %w", err)
		}
		a.DependedBy[id] = struct{}{}
	}
	return rows.Err()
}

func (s *Store) ActionCreate(ctx context.Context, a *types.Action) error {
	return s.withTx(ctx, "ActionCreate", func(q querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO actions
			(id, target_id, target_type, verb, inputs, outputs, owner, status, status_reason, control, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.TargetID, a.TargetType, a.Verb, a.Inputs, a.Outputs, a.Owner, a.Status, a.StatusReason, a.Control, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert action: %w", err)
		}
		return nil
	})
}

func (s *Store) ActionGet(ctx context.Context, id string) (*types.Action, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("action %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query action %s: %w", id, err)
	}
	if err := s.loadDependencies(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) ActionGetFirstReady(ctx context.Context) (*types.Action, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions
		WHERE status = ? ORDER BY created_at, id LIMIT 1`, types.ActionReady)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query first ready action: %w", err)
	}
	if err := s.loadDependencies(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) ActionGetAllReady(ctx context.Context) ([]*types.Action, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE status = ? ORDER BY created_at, id`, types.ActionReady)
	if err != nil {
		return nil, fmt.Errorf("failed to query ready actions: %w", err)
	}
	defer rows.Close()

	var out []*types.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, a := range out {
		if err := s.loadDependencies(ctx, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) ActionGetAllByOwner(ctx context.Context, owner string) ([]*types.Action, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE owner = ? ORDER BY created_at, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions owned by %s: %w", owner, err)
	}
	defer rows.Close()

	var out []*types.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ActionDelete(ctx context.Context, id string) error {
	return s.withTx(ctx, "ActionDelete", func(q querier) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM action_dependencies WHERE depended_id = ? OR dependent_id = ?`, id, id); err != nil {
			return fmt.Errorf("failed to delete dependency edges of action %s: %w", id, err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM actions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete action %s: %w", id, err)
		}
		return requireRowsAffected(res, "action", id)
	})
}

// ActionAddDependency adds an edge for every (up, down) pair in the
// Cartesian product of depended x dependent, maintaining both directions
// via the same join-table row, all in one transaction (I3).
func (s *Store) ActionAddDependency(ctx context.Context, depended, dependent []string) error {
	return s.withTx(ctx, "ActionAddDependency", func(q querier) error {
		for _, up := range depended {
			for _, down := range dependent {
				if up == down {
					return apierr.Invalidf("action %s cannot depend on itself", up)
				}
				_, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO action_dependencies (depended_id, dependent_id) VALUES (?, ?)`, up, down)
				if err != nil {
					return fmt.Errorf("failed to add dependency %s -> %s: %w", up, down, err)
				}
			}
		}
		return nil
	})
}

func (s *Store) ActionDelDependency(ctx context.Context, depended, dependent []string) error {
	return s.withTx(ctx, "ActionDelDependency", func(q querier) error {
		for _, up := range depended {
			for _, down := range dependent {
				if _, err := q.ExecContext(ctx, `DELETE FROM action_dependencies WHERE depended_id = ? AND dependent_id = ?`, up, down); err != nil {
					return fmt.Errorf("failed to remove dependency %s -> %s: %w", up, down, err)
				}
			}
		}
		return nil
	})
}

func (s *Store) ActionSetStatus(ctx context.Context, id string, status types.ActionStatus, reason string) error {
	return s.withTx(ctx, "ActionSetStatus", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE actions SET status = ?, status_reason = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			status, types.TruncateReason(reason), id)
		if err != nil {
			return fmt.Errorf("failed to set status of action %s: %w", id, err)
		}
		return requireRowsAffected(res, "action", id)
	})
}

// ActionStartWorkOn claims an action for owner, but only from READY, the
// same guard the original's action_start_work_on enforces (no claiming an
// action that is already RUNNING or terminal).
func (s *Store) ActionStartWorkOn(ctx context.Context, id, owner string) error {
	return s.withTx(ctx, "ActionStartWorkOn", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE actions SET owner = ?, status = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?`, owner, types.ActionRunning, id, types.ActionReady)
		if err != nil {
			return fmt.Errorf("failed to start work on action %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected starting action: %w", err)
		}
		if n == 0 {
			return apierr.Conflictf("action %q is not READY", id)
		}
		return nil
	})
}

func (s *Store) ActionLockCheck(ctx context.Context, id string) (string, bool, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT owner FROM actions WHERE id = ?`, id).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", false, apierr.NotFoundf("action %q not found", id)
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to check lock on action %s: %w", id, err)
	}
	return owner, owner != "", nil
}

func (s *Store) ActionSetControl(ctx context.Context, id string, control types.ControlSignal) error {
	return s.withTx(ctx, "ActionSetControl", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE actions SET control = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, control, id)
		if err != nil {
			return fmt.Errorf("failed to set control of action %s: %w", id, err)
		}
		return requireRowsAffected(res, "action", id)
	})
}

func (s *Store) ActionControlCheck(ctx context.Context, id string) (types.ControlSignal, error) {
	var c types.ControlSignal
	err := s.db.QueryRowContext(ctx, `SELECT control FROM actions WHERE id = ?`, id).Scan(&c)
	if err == sql.ErrNoRows {
		return "", apierr.NotFoundf("action %q not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to check control of action %s: %w", id, err)
	}
	return c, nil
}

// ActionMarkSucceeded sets id to SUCCEEDED, removes it from every
// dependent's depends_on edge set, and promotes any dependent whose
// depends_on is now empty to READY, all in one transaction.
func (s *Store) ActionMarkSucceeded(ctx context.Context, id string) ([]string, error) {
	var promoted []string
	err := s.withTx(ctx, "ActionMarkSucceeded", func(q querier) error {
		var current types.ActionStatus
		if err := q.QueryRowContext(ctx, `SELECT status FROM actions WHERE id = ?`, id).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return apierr.NotFoundf("action %q not found", id)
			}
			return fmt.Errorf("failed to read status of action %s: %w", id, err)
		}
		if current != types.ActionRunning {
			// Already CANCELLED/FAILED by a concurrent control-signal
			// observation, or otherwise not RUNNING: a late-finishing
			// handler must not resurrect a terminal action to SUCCEEDED.
			return nil
		}

		res, err := q.ExecContext(ctx, `UPDATE actions SET status = ?, status_reason = '', updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?`,
			types.ActionSucceeded, id, types.ActionRunning)
		if err != nil {
			return fmt.Errorf("failed to mark action %s succeeded: %w", id, err)
		}
		if err := requireRowsAffected(res, "action", id); err != nil {
			return err
		}

		rows, err := q.QueryContext(ctx, `SELECT dependent_id FROM action_dependencies WHERE depended_id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to load dependents of action %s: %w", id, err)
		}
		var dependents []string
		for rows.Next() {
			var d string
			if err := rows.Scan(&d); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan dependent row: %w", err)
			}
			dependents = append(dependents, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM action_dependencies WHERE depended_id = ?`, id); err != nil {
			return fmt.Errorf("failed to clear dependency edges from action %s: %w", id, err)
		}

		for _, d := range dependents {
			var remaining int
			if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_dependencies WHERE dependent_id = ?`, d).Scan(&remaining); err != nil {
				return fmt.Errorf("failed to count remaining dependencies of action %s: %w", d, err)
			}
			if remaining > 0 {
				continue
			}
			res, err := q.ExecContext(ctx, `UPDATE actions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
				types.ActionReady, d, types.ActionWaiting)
			if err != nil {
				return fmt.Errorf("failed to promote action %s to ready: %w", d, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				promoted = append(promoted, d)
			}
		}
		return nil
	})
	return promoted, err
}

// ActionMarkTerminal sets id (if not already terminal) to status and
// cascades the same status over every action reachable through depended_by
// edges, matching the cascade senlin's own mark_failed/mark_cancelled never
// implemented (resolving that gap per the documented completion-hook
// design). Returns every id the cascade touched besides id itself.
func (s *Store) ActionMarkTerminal(ctx context.Context, id string, status types.ActionStatus, reason string) ([]string, error) {
	var cascaded []string
	err := s.withTx(ctx, "ActionMarkTerminal", func(q querier) error {
		var current types.ActionStatus
		if err := q.QueryRowContext(ctx, `SELECT status FROM actions WHERE id = ?`, id).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return apierr.NotFoundf("action %q not found", id)
			}
			return fmt.Errorf("failed to read status of action %s: %w", id, err)
		}
		if current.IsTerminal() {
			return nil
		}

		visited := map[string]bool{id: true}
		queue := []string{id}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]

			res, err := q.ExecContext(ctx, `UPDATE actions SET status = ?, status_reason = ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND status NOT IN (?, ?, ?)`,
				status, types.TruncateReason(reason), cur, types.ActionSucceeded, types.ActionFailed, types.ActionCancelled)
			if err != nil {
				return fmt.Errorf("failed to mark action %s %s: %w", cur, status, err)
			}
			if n, _ := res.RowsAffected(); n > 0 && cur != id {
				cascaded = append(cascaded, cur)
			}

			rows, err := q.QueryContext(ctx, `SELECT dependent_id FROM action_dependencies WHERE depended_id = ?`, cur)
			if err != nil {
				return fmt.Errorf("failed to load dependents of action %s: %w", cur, err)
			}
			var next []string
			for rows.Next() {
				var d string
				if err := rows.Scan(&d); err != nil {
					rows.Close()
					return fmt.Errorf("failed to scan dependent row: %w", err)
				}
				next = append(next, d)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
			for _, d := range next {
				if !visited[d] {
					visited[d] = true
					queue = append(queue, d)
				}
			}
		}
		return nil
	})
	return cascaded, err
}
