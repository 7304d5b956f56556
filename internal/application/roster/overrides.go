package roster

import (
	"context"

	"github.com/baechuer/teamup/internal/domain"
)

// SetPriorityOverride pins (or with nil, clears) a user's waitlist score in
// a group. Already waitlisted entries keep the score they joined with.
func (s *Service) SetPriorityOverride(ctx context.Context, actor domain.Actor, groupID, userID string, score *int) error {
	groupID, err := requireID("group_id", groupID)
	if err != nil {
		return err
	}
	userID, err = requireID("user_id", userID)
	if err != nil {
		return err
	}
	if err := domain.ValidateOverride(score); err != nil {
		return err
	}
	if err := s.guard.RequireManager(ctx, actor, groupID); err != nil {
		return err
	}
	if err := s.ledger.SetPriorityOverride(ctx, groupID, userID, score, s.clock.Now()); err != nil {
		return err
	}
	s.audit.OverrideSet(ctx, groupID, userID, actor.UserID, score)
	return nil
}
