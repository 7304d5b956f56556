package series

import (
	"context"

	"github.com/baechuer/teamup/internal/domain"
)

// CreateSeries stores a new recurring series. No instances are generated here.
func (s *Service) CreateSeries(ctx context.Context, actor domain.Actor, groupID string, in domain.Series) (*domain.Series, error) {
	groupID, err := requireID("group_id", groupID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireManager(ctx, actor, groupID); err != nil {
		return nil, err
	}
	sr, err := domain.NewSeries(s.newID(), groupID, actor.UserID, in, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sr); err != nil {
		return nil, err
	}
	s.audit.SeriesCreated(ctx, sr.ID, groupID, actor.UserID)
	return sr, nil
}

func (s *Service) GetSeries(ctx context.Context, actor domain.Actor, seriesID string) (*domain.Series, error) {
	seriesID, err := requireID("series_id", seriesID)
	if err != nil {
		return nil, err
	}
	sr, err := s.repo.Get(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireMember(ctx, actor, sr.GroupID); err != nil {
		return nil, err
	}
	return sr, nil
}

// loadForManager fetches a live series the actor may manage.
func (s *Service) loadForManager(ctx context.Context, actor domain.Actor, seriesID string) (*domain.Series, error) {
	seriesID, err := requireID("series_id", seriesID)
	if err != nil {
		return nil, err
	}
	sr, err := s.repo.Get(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireManager(ctx, actor, sr.GroupID); err != nil {
		return nil, err
	}
	return sr, nil
}
