package roster

import (
	"context"

	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/metrics"
)

// ProcessWaitlist is the manager-triggered promotion run.
func (s *Service) ProcessWaitlist(ctx context.Context, actor domain.Actor, gameID string) (int, error) {
	g, err := s.gameForActor(ctx, gameID)
	if err != nil {
		return 0, err
	}
	if err := s.guard.RequireManager(ctx, actor, g.GroupID); err != nil {
		return 0, err
	}
	return s.processWaitlist(ctx, g.ID, false)
}

// processWaitlist promotes one participant per locked unit until the game is
// full or the waitlist is empty. Each promotion commits on its own, so a
// failure part-way leaves earlier promotions in place and is reported as a
// PromotionError. Unlimited games are skipped unless drainUnlimited is set,
// which is how a cap removal lets the whole waitlist in.
func (s *Service) processWaitlist(ctx context.Context, gameID string, drainUnlimited bool) (int, error) {
	promoted := 0
	for {
		var next *domain.Participant
		err := s.runLocked(ctx, "promote", gameID, func(ctx context.Context, tx LedgerTx, g *domain.Game) error {
			next = nil
			if g.Status == domain.GameCancelled || g.Status == domain.GameCompleted {
				return nil
			}
			if g.Unlimited() {
				if !drainUnlimited {
					return nil
				}
			} else if g.FreeSlots() == 0 {
				return nil
			}
			p, err := tx.NextWaitlisted(ctx)
			if err != nil || p == nil {
				return err
			}

			now := s.clock.Now()
			domain.Promote(g, p, now)
			if err := tx.SaveParticipant(ctx, p); err != nil {
				return err
			}
			if err := tx.SaveGame(ctx, g); err != nil {
				return err
			}
			if err := tx.AppendOutbox(ctx, participantMessage(event.RKParticipantPromoted, g, p, now)); err != nil {
				return err
			}
			next = p
			return nil
		})
		if err != nil {
			metrics.RecordPromotions(promoted)
			if promoted == 0 {
				return 0, err
			}
			metrics.RecordPromotionFailure()
			return promoted, &domain.PromotionError{GameID: gameID, Promoted: promoted, Err: err}
		}
		if next == nil {
			break
		}
		promoted++
		s.audit.Promoted(ctx, gameID, next.UserID, next.Score())
	}
	metrics.RecordPromotions(promoted)
	return promoted, nil
}
