package roster

import (
	"context"
	"strings"

	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
)

// CancelGame closes a game: every active registration is declined and the
// counter drops to zero. Cancelling an already cancelled game is a no-op.
func (s *Service) CancelGame(ctx context.Context, actor domain.Actor, gameID, reason string) (int, error) {
	g, err := s.gameForActor(ctx, gameID)
	if err != nil {
		return 0, err
	}
	if err := s.guard.RequireManager(ctx, actor, g.GroupID); err != nil {
		return 0, err
	}
	reason = strings.TrimSpace(reason)

	declined := 0
	changed := false
	err = s.runLocked(ctx, "cancel_game", g.ID, func(ctx context.Context, tx LedgerTx, g *domain.Game) error {
		declined, changed = 0, false
		switch g.Status {
		case domain.GameCancelled:
			return nil
		case domain.GameCompleted:
			return domain.ErrStateConflict("game is completed")
		}
		now := s.clock.Now()

		active, err := tx.ListActive(ctx)
		if err != nil {
			return err
		}
		for i := range active {
			p := &active[i]
			domain.Decline(g, p, now)
			if err := tx.SaveParticipant(ctx, p); err != nil {
				return err
			}
			declined++
		}

		g.Status = domain.GameCancelled
		g.CurrentParticipants = 0
		g.UpdatedAt = now
		if err := tx.SaveGame(ctx, g); err != nil {
			return err
		}
		changed = true
		return tx.AppendOutbox(ctx, domain.OutboxMessage{
			RoutingKey: event.RKGameCanceled,
			OccurredAt: now,
			Payload: event.GameCanceledPayload{
				GameID:   g.ID,
				GroupID:  g.GroupID,
				Reason:   reason,
				Declined: declined,
			},
		})
	})
	if err != nil {
		return 0, err
	}
	if changed {
		s.setCachedCapacity(ctx, g.ID, closedCapacity)
		s.audit.GameCanceled(ctx, g.ID, actor.UserID, reason, declined)
	}
	return declined, nil
}
