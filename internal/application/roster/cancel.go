package roster

import (
	"context"

	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/logger"
)

// Cancel declines a registration. A freed seat is offered to the waitlist
// after the decline commits; a promotion failure is logged and does not
// undo the decline.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, gameID, userID string) (CancelResult, error) {
	if userID == "" {
		userID = actor.UserID
	}
	userID, err := requireID("user_id", userID)
	if err != nil {
		return CancelResult{}, err
	}
	g, err := s.gameForActor(ctx, gameID)
	if err != nil {
		return CancelResult{}, err
	}
	gameID = g.ID
	if err := s.guard.RequireSelfOrManager(ctx, actor, g.GroupID, userID); err != nil {
		return CancelResult{}, err
	}

	var res CancelResult
	err = s.runLocked(ctx, "cancel", gameID, func(ctx context.Context, tx LedgerTx, g *domain.Game) error {
		res = CancelResult{GameID: g.ID, UserID: userID}
		if g.Status == domain.GameCompleted {
			return domain.ErrStateConflict("game is completed")
		}
		p, err := tx.GetParticipant(ctx, userID)
		if err != nil {
			return err
		}
		res.Previous = p.Status
		if p.Status == domain.StatusDeclined {
			return nil
		}

		now := s.clock.Now()
		res.FreedSeat = domain.Decline(g, p, now)
		if err := tx.SaveParticipant(ctx, p); err != nil {
			return err
		}
		if res.FreedSeat {
			if err := tx.SaveGame(ctx, g); err != nil {
				return err
			}
		}
		return tx.AppendOutbox(ctx, participantMessage(event.RKParticipantDeclined, g, p, now))
	})
	if err != nil {
		return CancelResult{}, err
	}
	if res.Previous == domain.StatusDeclined {
		return res, nil
	}
	s.audit.Declined(ctx, gameID, userID, actor.UserID, res.FreedSeat)

	if res.FreedSeat {
		n, perr := s.processWaitlist(ctx, gameID, false)
		res.Promoted = n
		if perr != nil {
			logger.WithCtx(ctx).Warn().Err(perr).Str("game_id", gameID).Msg("waitlist promotion after cancel failed")
		}
	}
	return res, nil
}
