package series

import (
	"context"

	"github.com/baechuer/teamup/internal/domain"
)

// DeleteSeries stops generation. With cascade, UPCOMING instances in the
// future go too; past or finished games are always kept. Repeating the call
// is harmless.
func (s *Service) DeleteSeries(ctx context.Context, actor domain.Actor, seriesID string, cascade bool) (int, error) {
	sr, err := s.loadForManager(ctx, actor, seriesID)
	if err != nil {
		return 0, err
	}
	removed, err := s.repo.DeleteSeries(ctx, sr.ID, s.clock.Now(), cascade)
	if err != nil {
		return 0, err
	}
	s.audit.SeriesDeleted(ctx, sr.ID, actor.UserID, cascade, removed)
	return removed, nil
}
