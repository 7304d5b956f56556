package memory

import (
	"context"
	"sort"
	"time"

	"github.com/baechuer/teamup/internal/application/series"
	"github.com/baechuer/teamup/internal/domain"
)

var _ series.Repo = (*Store)(nil)

func (s *Store) Create(ctx context.Context, sr *domain.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[sr.ID]; ok {
		return domain.ErrStateConflict("series already exists")
	}
	s.series[sr.ID] = *sr
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[id]
	if !ok {
		return nil, domain.ErrNotFound("series not found")
	}
	return &sr, nil
}

func (s *Store) ListActive(ctx context.Context) ([]*domain.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Series, 0, len(s.series))
	for _, sr := range s.series {
		if sr.Deleted() {
			continue
		}
		cp := sr
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ExistingDates(ctx context.Context, seriesID string, from, to time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []time.Time
	for d := range s.instances[seriesID] {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// InsertInstances mirrors ON CONFLICT (series_id, instance_date) DO NOTHING.
func (s *Store) InsertInstances(ctx context.Context, games []*domain.Game, announce series.Announce) ([]*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, domain.ErrPersistence("insert instances", err)
	}

	inserted := make([]*domain.Game, 0, len(games))
	for _, g := range games {
		if g.SeriesID == "" || g.InstanceDate == nil {
			return nil, domain.ErrPersistence("instance without series reference", nil)
		}
		day := domain.CivilDate(*g.InstanceDate)
		byDate, ok := s.instances[g.SeriesID]
		if !ok {
			byDate = make(map[time.Time]string)
			s.instances[g.SeriesID] = byDate
		}
		if _, dup := byDate[day]; dup {
			continue
		}
		byDate[day] = g.ID
		s.games[g.ID] = *g
		inserted = append(inserted, g)
	}
	if announce != nil {
		if msg := announce(inserted); msg != nil {
			s.outbox = append(s.outbox, *msg)
		}
	}
	return inserted, nil
}

func (s *Store) UpdateSeries(ctx context.Context, sr *domain.Series, instances *domain.GamePatch, now time.Time) ([]domain.InstanceChange, error) {
	ids := s.instanceIDs(sr.ID)
	unlock := s.lockGames(ids)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[sr.ID]; !ok {
		return nil, domain.ErrNotFound("series not found")
	}
	s.series[sr.ID] = *sr
	if instances == nil {
		return nil, nil
	}
	return s.patchInstances(sr.ID, *instances, now), nil
}

func (s *Store) UpdateFutureInstances(ctx context.Context, seriesID string, patch domain.GamePatch, now time.Time) ([]domain.InstanceChange, error) {
	ids := s.instanceIDs(seriesID)
	unlock := s.lockGames(ids)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[seriesID]; !ok {
		return nil, domain.ErrNotFound("series not found")
	}
	return s.patchInstances(seriesID, patch, now), nil
}

// patchInstances edits mutable instances in place. Caller holds mu and the
// game locks.
func (s *Store) patchInstances(seriesID string, patch domain.GamePatch, now time.Time) []domain.InstanceChange {
	var changes []domain.InstanceChange
	for _, id := range s.instances[seriesID] {
		g, ok := s.games[id]
		if !ok || !domain.MutableByCascade(&g, now) {
			continue
		}
		prev := g.MaxParticipants
		patch.Apply(&g)
		g.UpdatedAt = now
		s.games[id] = g
		changes = append(changes, domain.InstanceChange{GameID: id, PrevMax: prev, NewMax: g.MaxParticipants})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].GameID < changes[j].GameID })
	return changes
}

func (s *Store) DeleteSeries(ctx context.Context, seriesID string, now time.Time, cascade bool) (int, error) {
	ids := s.instanceIDs(seriesID)
	unlock := s.lockGames(ids)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.series[seriesID]
	if !ok {
		return 0, domain.ErrNotFound("series not found")
	}
	if sr.DeletedAt == nil {
		t := now
		sr.DeletedAt = &t
		sr.UpdatedAt = now
		s.series[seriesID] = sr
	}
	if !cascade {
		return 0, nil
	}

	removed := 0
	for day, id := range s.instances[seriesID] {
		g, ok := s.games[id]
		if !ok || !domain.MutableByCascade(&g, now) {
			continue
		}
		delete(s.games, id)
		delete(s.participants, id)
		delete(s.instances[seriesID], day)
		removed++
	}
	return removed, nil
}

func (s *Store) instanceIDs(seriesID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.instances[seriesID]))
	for _, id := range s.instances[seriesID] {
		ids = append(ids, id)
	}
	return ids
}
