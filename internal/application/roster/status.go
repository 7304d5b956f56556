package roster

import (
	"context"

	"github.com/baechuer/teamup/internal/domain"
)

// GetUserPriorityStatus reports where userID stands in the game. Users may
// look at themselves; managers may look at anyone.
func (s *Service) GetUserPriorityStatus(ctx context.Context, actor domain.Actor, gameID, userID string) (domain.PriorityStatus, error) {
	if userID == "" {
		userID = actor.UserID
	}
	userID, err := requireID("user_id", userID)
	if err != nil {
		return domain.PriorityStatus{}, err
	}
	g, err := s.gameForActor(ctx, gameID)
	if err != nil {
		return domain.PriorityStatus{}, err
	}
	if err := s.guard.RequireSelfOrManager(ctx, actor, g.GroupID, userID); err != nil {
		return domain.PriorityStatus{}, err
	}

	p, err := s.ledger.GetParticipant(ctx, g.ID, userID)
	if err != nil {
		return domain.PriorityStatus{}, err
	}
	waitlist, err := s.ledger.ListWaitlist(ctx, g.ID)
	if err != nil {
		return domain.PriorityStatus{}, err
	}
	return domain.NewPriorityStatus(p, waitlist), nil
}

func (s *Service) ListWaitlist(ctx context.Context, actor domain.Actor, gameID string) ([]domain.Participant, error) {
	g, err := s.gameForActor(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireManager(ctx, actor, g.GroupID); err != nil {
		return nil, err
	}
	return s.ledger.ListWaitlist(ctx, g.ID)
}
