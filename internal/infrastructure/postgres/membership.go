package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/teamup/internal/application/access"
	"github.com/jackc/pgx/v5"
)

var _ access.Membership = (*Repository)(nil)

func (r *Repository) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)
	`, groupID, userID).Scan(&ok)
	if err != nil {
		return false, mapErr("membership", err)
	}
	return ok, nil
}

func (r *Repository) CanManageGames(ctx context.Context, groupID, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM group_members
			WHERE group_id = $1 AND user_id = $2 AND role IN ('manager', 'owner')
		)
	`, groupID, userID).Scan(&ok)
	if err != nil {
		return false, mapErr("membership role", err)
	}
	return ok, nil
}

// MemberSince returns the zero time for non-members.
func (r *Repository) MemberSince(ctx context.Context, groupID, userID string) (time.Time, error) {
	var since time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT joined_at FROM group_members WHERE group_id = $1 AND user_id = $2
	`, groupID, userID).Scan(&since)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, mapErr("member since", err)
	}
	return since.UTC(), nil
}

// UpsertMember is used by the group sync consumer and dev seeding.
func (r *Repository) UpsertMember(ctx context.Context, groupID, userID, role string, since time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, groupID, userID, role, since)
	return mapErr("upsert member", err)
}
