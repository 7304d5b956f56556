package memory

import (
	"context"
	"time"

	"github.com/baechuer/teamup/internal/application/roster"
	"github.com/baechuer/teamup/internal/domain"
)

var _ roster.Ledger = (*Store)(nil)

func (s *Store) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return nil, domain.ErrNotFound("game not found")
	}
	return &g, nil
}

func (s *Store) GetParticipant(ctx context.Context, gameID, userID string) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[gameID][userID]
	if !ok {
		return nil, domain.ErrNotFound("registration not found")
	}
	return &p, nil
}

func (s *Store) ListWaitlist(ctx context.Context, gameID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.games[gameID]; !ok {
		return nil, domain.ErrNotFound("game not found")
	}
	return orderedWaitlist(s.sortedParticipants(gameID, nil)), nil
}

func (s *Store) SetPriorityOverride(ctx context.Context, groupID, userID string, score *int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if score == nil {
		delete(s.overrides, key(groupID, userID))
		return nil
	}
	s.overrides[key(groupID, userID)] = *score
	return nil
}

// WithGameLock serializes units per game. Writes are staged on the tx and
// only copied into the store if fn succeeds and ctx is still live.
func (s *Store) WithGameLock(ctx context.Context, gameID string, fn func(ctx context.Context, tx roster.LedgerTx, g *domain.Game) error) error {
	m := s.gameLock(gameID)
	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.ErrConcurrentUpdate("lock wait aborted", err)
	}

	s.mu.RLock()
	g, ok := s.games[gameID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound("game not found")
	}

	tx := &ledgerTx{store: s, gameID: gameID, staged: make(map[string]domain.Participant)}
	if err := fn(ctx, tx, &g); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.ErrPersistence("unit timed out before commit", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.game != nil {
		s.games[gameID] = *tx.game
	}
	if len(tx.staged) > 0 {
		rows, ok := s.participants[gameID]
		if !ok {
			rows = make(map[string]domain.Participant)
			s.participants[gameID] = rows
		}
		for uid, p := range tx.staged {
			rows[uid] = p
		}
	}
	s.outbox = append(s.outbox, tx.outbox...)
	return nil
}

type ledgerTx struct {
	store  *Store
	gameID string

	game   *domain.Game
	staged map[string]domain.Participant
	outbox []domain.OutboxMessage
}

func (t *ledgerTx) GetParticipant(ctx context.Context, userID string) (*domain.Participant, error) {
	if p, ok := t.staged[userID]; ok {
		return &p, nil
	}
	return t.store.GetParticipant(ctx, t.gameID, userID)
}

func (t *ledgerTx) SaveParticipant(ctx context.Context, p *domain.Participant) error {
	if p.GameID != t.gameID {
		return domain.ErrPersistence("participant belongs to another game", nil)
	}
	t.staged[p.UserID] = *p
	return nil
}

func (t *ledgerTx) SaveGame(ctx context.Context, g *domain.Game) error {
	cp := *g
	t.game = &cp
	return nil
}

func (t *ledgerTx) NextWaitlisted(ctx context.Context) (*domain.Participant, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	wl := orderedWaitlist(t.store.sortedParticipants(t.gameID, t.staged))
	if len(wl) == 0 {
		return nil, nil
	}
	return &wl[0], nil
}

func (t *ledgerTx) ListActive(ctx context.Context) ([]domain.Participant, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	var out []domain.Participant
	for _, p := range t.store.sortedParticipants(t.gameID, t.staged) {
		if p.Status.Active() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *ledgerTx) AttendanceHistory(ctx context.Context, groupID, userID string) (int, int, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	attended, noShows := 0, 0
	for gameID, g := range t.store.games {
		if g.GroupID != groupID {
			continue
		}
		p, ok := t.store.participants[gameID][userID]
		if !ok || p.Attended == nil {
			continue
		}
		if *p.Attended {
			attended++
		} else {
			noShows++
		}
	}
	return attended, noShows, nil
}

func (t *ledgerTx) PriorityOverride(ctx context.Context, groupID, userID string) (*int, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	v, ok := t.store.overrides[key(groupID, userID)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (t *ledgerTx) AppendOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	t.outbox = append(t.outbox, msg)
	return nil
}
