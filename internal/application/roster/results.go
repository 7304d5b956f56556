package roster

import (
	"context"

	"github.com/baechuer/teamup/internal/domain"
)

// RecordResults marks the game COMPLETED and stores who showed up. Only
// CONFIRMED participants can be marked; the counts feed later priority scores.
func (s *Service) RecordResults(ctx context.Context, actor domain.Actor, gameID string, sheet []domain.Attendance) (ResultsSummary, error) {
	if len(sheet) == 0 {
		return ResultsSummary{}, domain.ErrValidation("attendance must not be empty")
	}
	seen := make(map[string]bool, len(sheet))
	for _, a := range sheet {
		if a.UserID == "" {
			return ResultsSummary{}, domain.ErrValidation("attendance user_id is required")
		}
		if seen[a.UserID] {
			return ResultsSummary{}, domain.ErrValidationMeta("duplicate attendance entry", map[string]string{"user_id": a.UserID})
		}
		seen[a.UserID] = true
	}

	g, err := s.gameForActor(ctx, gameID)
	if err != nil {
		return ResultsSummary{}, err
	}
	if err := s.guard.RequireManager(ctx, actor, g.GroupID); err != nil {
		return ResultsSummary{}, err
	}

	var sum ResultsSummary
	err = s.runLocked(ctx, "results", g.ID, func(ctx context.Context, tx LedgerTx, g *domain.Game) error {
		sum = ResultsSummary{GameID: g.ID}
		switch g.Status {
		case domain.GameCancelled:
			return domain.ErrStateConflict("game is cancelled")
		case domain.GameCompleted:
			return domain.ErrStateConflict("results already recorded")
		}
		now := s.clock.Now()

		for _, a := range sheet {
			p, err := tx.GetParticipant(ctx, a.UserID)
			if err != nil {
				if domain.IsCode(err, domain.CodeNotFound) {
					return domain.ErrValidationMeta("user is not registered for this game", map[string]string{"user_id": a.UserID})
				}
				return err
			}
			if p.Status != domain.StatusConfirmed {
				return domain.ErrValidationMeta("only confirmed participants can be marked", map[string]string{"user_id": a.UserID})
			}
			attended := a.Attended
			p.Attended = &attended
			p.UpdatedAt = now
			if err := tx.SaveParticipant(ctx, p); err != nil {
				return err
			}
			if attended {
				sum.Attended++
			} else {
				sum.NoShows++
			}
		}

		g.Status = domain.GameCompleted
		g.UpdatedAt = now
		return tx.SaveGame(ctx, g)
	})
	if err != nil {
		return ResultsSummary{}, err
	}
	s.setCachedCapacity(ctx, g.ID, closedCapacity)
	s.audit.ResultsRecorded(ctx, g.ID, actor.UserID, sum.Attended, sum.NoShows)
	return sum, nil
}
