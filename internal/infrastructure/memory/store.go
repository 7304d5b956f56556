package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/baechuer/teamup/internal/domain"
)

// Store keeps games, registrations and series in process memory. It backs
// local development (STORE_BACKEND=memory) and the service tests.
//
// Lock order: a game's mutex, then mu. Code holding mu never waits on a
// game mutex.
type Store struct {
	mu           sync.RWMutex
	games        map[string]domain.Game
	participants map[string]map[string]domain.Participant // gameID -> userID
	series       map[string]domain.Series
	instances    map[string]map[time.Time]string // seriesID -> date -> gameID
	overrides    map[string]int
	members      map[string]member
	outbox       []domain.OutboxMessage

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

type member struct {
	role  string
	since time.Time
}

func NewStore() *Store {
	return &Store{
		games:        make(map[string]domain.Game),
		participants: make(map[string]map[string]domain.Participant),
		series:       make(map[string]domain.Series),
		instances:    make(map[string]map[time.Time]string),
		overrides:    make(map[string]int),
		members:      make(map[string]member),
		locks:        make(map[string]*sync.Mutex),
	}
}

func key(a, b string) string { return a + "\x00" + b }

func (s *Store) gameLock(gameID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[gameID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[gameID] = m
	}
	return m
}

// lockGames takes several game locks in a stable order and returns the unlock.
func (s *Store) lockGames(ids []string) func() {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	held := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		m := s.gameLock(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// PutGame inserts or replaces a game. Used for seeding and by tests.
func (s *Store) PutGame(g domain.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
	if g.SeriesID != "" && g.InstanceDate != nil {
		byDate, ok := s.instances[g.SeriesID]
		if !ok {
			byDate = make(map[time.Time]string)
			s.instances[g.SeriesID] = byDate
		}
		byDate[domain.CivilDate(*g.InstanceDate)] = g.ID
	}
}

// PutParticipant inserts or replaces a registration without touching the
// game counter. Seeding only; callers keep the counter consistent.
func (s *Store) PutParticipant(p domain.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.participants[p.GameID]
	if !ok {
		rows = make(map[string]domain.Participant)
		s.participants[p.GameID] = rows
	}
	rows[p.UserID] = p
}

// SeriesGames returns every game of a series, ordered by date.
func (s *Store) SeriesGames(seriesID string) []domain.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Game
	for _, id := range s.instances[seriesID] {
		if g, ok := s.games[id]; ok {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out
}

// Participants returns a game's registrations in registration order.
func (s *Store) Participants(gameID string) []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedParticipants(gameID, nil)
}

// Outbox returns a copy of every message appended so far.
func (s *Store) Outbox() []domain.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.OutboxMessage(nil), s.outbox...)
}

// sortedParticipants merges committed rows with staged ones. Caller holds mu.
func (s *Store) sortedParticipants(gameID string, staged map[string]domain.Participant) []domain.Participant {
	merged := make(map[string]domain.Participant, len(s.participants[gameID])+len(staged))
	for uid, p := range s.participants[gameID] {
		merged[uid] = p
	}
	for uid, p := range staged {
		merged[uid] = p
	}
	out := make([]domain.Participant, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func orderedWaitlist(all []domain.Participant) []domain.Participant {
	var out []domain.Participant
	for _, p := range all {
		if p.Status == domain.StatusWaitlist {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return domain.WaitlistLess(&out[i], &out[j]) })
	return out
}
