package roster

import (
	"context"
	"errors"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/logger"
)

// UpdateCapacity changes a game's cap. Lowering it below the confirmed
// count keeps everyone and only blocks new admissions; raising it (or
// removing it) runs the promoter.
func (s *Service) UpdateCapacity(ctx context.Context, actor domain.Actor, gameID string, max int) (CapacityResult, error) {
	if max < 0 {
		return CapacityResult{}, domain.ErrValidation("max_participants must be >= 0 (0 means unlimited)")
	}
	g, err := s.gameForActor(ctx, gameID)
	if err != nil {
		return CapacityResult{}, err
	}
	if err := s.guard.RequireManager(ctx, actor, g.GroupID); err != nil {
		return CapacityResult{}, err
	}

	var res CapacityResult
	err = s.runLocked(ctx, "capacity", g.ID, func(ctx context.Context, tx LedgerTx, g *domain.Game) error {
		res = CapacityResult{GameID: g.ID, Previous: g.MaxParticipants, Max: max}
		if err := g.AcceptsRegistrations(); err != nil {
			return err
		}
		if g.MaxParticipants == max {
			return nil
		}
		g.MaxParticipants = max
		g.UpdatedAt = s.clock.Now()
		return tx.SaveGame(ctx, g)
	})
	if err != nil {
		return CapacityResult{}, err
	}
	if res.Previous == res.Max {
		return res, nil
	}
	s.audit.CapacityChanged(ctx, res.GameID, actor.UserID, res.Previous, res.Max)
	s.setCachedCapacity(ctx, res.GameID, res.Max)

	change := domain.InstanceChange{GameID: res.GameID, PrevMax: res.Previous, NewMax: res.Max}
	if change.CapacityRaised() {
		n, perr := s.processWaitlist(ctx, res.GameID, res.Max == 0)
		res.Promoted = n
		if perr != nil {
			logger.WithCtx(ctx).Warn().Err(perr).Str("game_id", res.GameID).Msg("waitlist promotion after capacity raise failed")
		}
	}
	return res, nil
}

// PromoteAfterCapacityChange runs the promoter for instances whose cap went
// up during a series edit. It is the series package's hook into the ledger.
func (s *Service) PromoteAfterCapacityChange(ctx context.Context, changes []domain.InstanceChange) (int, error) {
	total := 0
	var errs []error
	for _, c := range changes {
		s.setCachedCapacity(ctx, c.GameID, c.NewMax)
		if !c.CapacityRaised() {
			continue
		}
		n, err := s.processWaitlist(ctx, c.GameID, c.NewMax == 0)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}
