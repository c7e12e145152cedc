package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/types"
)

const profileColumns = `id, type, spec, created_at`

func scanProfile(row interface{ Scan(...any) error }) (*types.Profile, error) {
	p := &types.Profile{}
	if err := row.Scan(&p.ID, &p.Type, &p.Spec, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) ProfileCreate(ctx context.Context, p *types.Profile) error {
	return s.withTx(ctx, "ProfileCreate", func(q querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO profiles (id, type, spec, created_at) VALUES (?, ?, ?, ?)`,
			p.ID, p.Type, p.Spec, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}
		return nil
	})
}

func (s *Store) ProfileGet(ctx context.Context, id string) (*types.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("profile %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) ProfileGetAll(ctx context.Context) ([]*types.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []*types.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ProfileUpdate(ctx context.Context, p *types.Profile) error {
	return s.withTx(ctx, "ProfileUpdate", func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE profiles SET type = ?, spec = ? WHERE id = ?`, p.Type, p.Spec, p.ID)
		if err != nil {
			return fmt.Errorf("failed to update profile %s: %w", p.ID, err)
		}
		return requireRowsAffected(res, "profile", p.ID)
	})
}
