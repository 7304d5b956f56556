package access

import (
	"context"
	"time"

	"github.com/baechuer/teamup/internal/domain"
)

// Membership is the group directory owned by the surrounding application.
type Membership interface {
	IsGroupMember(ctx context.Context, groupID, userID string) (bool, error)
	CanManageGames(ctx context.Context, groupID, userID string) (bool, error)
	// MemberSince returns the zero time for non-members.
	MemberSince(ctx context.Context, groupID, userID string) (time.Time, error)
}

type Guard struct {
	members Membership
}

func NewGuard(m Membership) *Guard { return &Guard{members: m} }

func (g *Guard) RequireMember(ctx context.Context, actor domain.Actor, groupID string) error {
	if actor.Privileged() {
		return nil
	}
	if actor.UserID == "" {
		return domain.ErrForbidden("authentication required")
	}
	ok, err := g.members.IsGroupMember(ctx, groupID, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden("not a member of this group")
	}
	return nil
}

func (g *Guard) RequireManager(ctx context.Context, actor domain.Actor, groupID string) error {
	if actor.Privileged() {
		return nil
	}
	if actor.UserID == "" {
		return domain.ErrForbidden("authentication required")
	}
	ok, err := g.members.CanManageGames(ctx, groupID, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden("manager role required")
	}
	return nil
}

// RequireSelfOrManager lets users act on their own registration and
// managers act on anyone's.
func (g *Guard) RequireSelfOrManager(ctx context.Context, actor domain.Actor, groupID, userID string) error {
	if actor.UserID != "" && actor.UserID == userID {
		return g.RequireMember(ctx, actor, groupID)
	}
	return g.RequireManager(ctx, actor, groupID)
}

func (g *Guard) MemberSince(ctx context.Context, groupID, userID string) (time.Time, error) {
	return g.members.MemberSince(ctx, groupID, userID)
}
