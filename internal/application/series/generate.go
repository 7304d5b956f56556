package series

import (
	"context"
	"time"

	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/metrics"
)

// GenerateInstances materializes the series between from and to (inclusive
// civil dates). Dates that already have an instance are skipped, so the call
// is safe to repeat. Only new instances are returned.
func (s *Service) GenerateInstances(ctx context.Context, actor domain.Actor, seriesID string, from, to time.Time) ([]*domain.Game, error) {
	sr, err := s.loadForManager(ctx, actor, seriesID)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, sr, from, to, actor.UserID)
}

func (s *Service) generate(ctx context.Context, sr *domain.Series, from, to time.Time, createdBy string) ([]*domain.Game, error) {
	if sr.Deleted() {
		return nil, domain.ErrStateConflict("series is deleted")
	}
	// all validation happens here, before anything is written
	dates, err := domain.InstanceDates(sr, from, to)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return []*domain.Game{}, nil
	}
	from, to = domain.CivilDate(from), domain.CivilDate(to)

	existing, err := s.repo.ExistingDates(ctx, sr.ID, dates[0], dates[len(dates)-1])
	if err != nil {
		return nil, err
	}
	have := make(map[time.Time]struct{}, len(existing))
	for _, d := range existing {
		have[domain.CivilDate(d)] = struct{}{}
	}

	now := s.clock.Now()
	games := make([]*domain.Game, 0, len(dates))
	for _, d := range dates {
		if _, ok := have[d]; ok {
			continue
		}
		g, err := domain.NewInstance(s.newID(), sr, d, createdBy, now)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	if len(games) == 0 {
		return []*domain.Game{}, nil
	}

	inserted, err := s.repo.InsertInstances(ctx, games, func(inserted []*domain.Game) *domain.OutboxMessage {
		if len(inserted) == 0 {
			return nil
		}
		ids := make([]string, 0, len(inserted))
		for _, g := range inserted {
			ids = append(ids, g.ID)
		}
		return &domain.OutboxMessage{
			RoutingKey: event.RKSeriesInstancesCreated,
			OccurredAt: now,
			Payload: event.SeriesInstancesPayload{
				SeriesID: sr.ID,
				GroupID:  sr.GroupID,
				GameIDs:  ids,
				From:     from.Format(time.DateOnly),
				To:       to.Format(time.DateOnly),
			},
		}
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordInstancesCreated(len(inserted))
	s.audit.InstancesGenerated(ctx, sr.ID, createdBy, from, to, len(inserted))
	return inserted, nil
}
