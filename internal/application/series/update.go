package series

import (
	"context"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/logger"
)

// UpdateFutureInstances applies patch to instances that are still UPCOMING
// and scheduled after now. Confirmed players are never removed when the cap
// drops; a raised cap runs the promoter for each affected game.
func (s *Service) UpdateFutureInstances(ctx context.Context, actor domain.Actor, seriesID string, patch domain.GamePatch) (UpdateResult, error) {
	if err := patch.Validate(); err != nil {
		return UpdateResult{}, err
	}
	sr, err := s.loadForManager(ctx, actor, seriesID)
	if err != nil {
		return UpdateResult{}, err
	}
	changes, err := s.repo.UpdateFutureInstances(ctx, sr.ID, patch, s.clock.Now())
	if err != nil {
		return UpdateResult{}, err
	}
	res := UpdateResult{Series: sr, InstancesUpdated: len(changes)}
	res.Promoted = s.promote(ctx, changes)
	s.audit.SeriesUpdated(ctx, sr.ID, actor.UserID, res.InstancesUpdated)
	return res, nil
}

// UpdateSeries edits the series itself. Template edits are copied to future
// instances when cascade is set.
func (s *Service) UpdateSeries(ctx context.Context, actor domain.Actor, seriesID string, patch domain.SeriesPatch, cascade bool) (UpdateResult, error) {
	sr, err := s.loadForManager(ctx, actor, seriesID)
	if err != nil {
		return UpdateResult{}, err
	}
	if sr.Deleted() {
		return UpdateResult{}, domain.ErrStateConflict("series is deleted")
	}
	if err := patch.Validate(sr); err != nil {
		return UpdateResult{}, err
	}

	now := s.clock.Now()
	patch.Apply(sr, now)
	var instances *domain.GamePatch
	if cascade && !patch.Game.Empty() {
		instances = &patch.Game
	}

	changes, err := s.repo.UpdateSeries(ctx, sr, instances, now)
	if err != nil {
		return UpdateResult{}, err
	}
	res := UpdateResult{Series: sr, InstancesUpdated: len(changes)}
	res.Promoted = s.promote(ctx, changes)
	s.audit.SeriesUpdated(ctx, sr.ID, actor.UserID, res.InstancesUpdated)
	return res, nil
}

// promote hands cap changes to the roster. The instance edit has already
// committed, so failures are logged rather than returned.
func (s *Service) promote(ctx context.Context, changes []domain.InstanceChange) int {
	if s.waitlist == nil || len(changes) == 0 {
		return 0
	}
	n, err := s.waitlist.PromoteAfterCapacityChange(ctx, changes)
	if err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Int("promoted", n).Msg("promotion after series edit failed")
	}
	return n
}
