// Event persistence, grounded on the original's _delete_event_rows /
// event_create pruning pair: before an insert would push a cluster past its
// retention cap, delete the oldest rows first, in the same transaction as
// the insert, so a reader never observes a cluster's count above the cap.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/clustersmith/enginecore/internal/types"
)

func (s *Store) EventCreate(ctx context.Context, e *types.Event, maxPerCluster, purgeBatchSize int) error {
	return s.withTx(ctx, "EventCreate", func(q querier) error {
		scope := e.ObjID
		var count int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE retention_scope = ?`, scope).Scan(&count); err != nil {
			return fmt.Errorf("failed to count events for retention scope %s: %w", scope, err)
		}
		if maxPerCluster > 0 && count >= maxPerCluster {
			batch := purgeBatchSize
			if batch <= 0 {
				batch = 1
			}
			_, err := q.ExecContext(ctx, `DELETE FROM events WHERE id IN (
				SELECT id FROM events WHERE retention_scope = ? ORDER BY timestamp ASC LIMIT ?
			)`, scope, batch)
			if err != nil {
				return fmt.Errorf("failed to prune old events for retention scope %s: %w", scope, err)
			}
		}

		_, err := q.ExecContext(ctx, `INSERT INTO events (id, obj_id, obj_type, level, payload, timestamp, retention_scope)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, e.ID, e.ObjID, e.ObjType, e.Level, e.Payload, e.Timestamp, scope)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	})
}

func (s *Store) EventGetAllByCluster(ctx context.Context, clusterID string, opts types.ListOptions, filter types.EventFilter) ([]*types.Event, error) {
	var where []string
	var args []any
	where = append(where, "retention_scope = ?")
	args = append(args, clusterID)

	if filter.ObjType != "" {
		where = append(where, "obj_type = ?")
		args = append(args, filter.ObjType)
	}
	if filter.Level != "" {
		where = append(where, "level = ?")
		args = append(args, filter.Level)
	}
	if opts.Marker != "" {
		where = append(where, "id > ?")
		args = append(args, opts.Marker)
	}

	order, err := orderByClause(opts.SortKeys, opts.SortDir, allowedEventSort)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, obj_id, obj_type, level, payload, timestamp FROM events WHERE %s ORDER BY %s`,
		strings.Join(where, " AND "), order)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for cluster %s: %w", clusterID, err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		e := &types.Event{}
		if err := rows.Scan(&e.ID, &e.ObjID, &e.ObjType, &e.Level, &e.Payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) EventCountByCluster(ctx context.Context, clusterID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE retention_scope = ?`, clusterID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events for cluster %s: %w", clusterID, err)
	}
	return n, nil
}

var allowedEventSort = map[string]bool{
	"id": true, "timestamp": true, "level": true,
}
