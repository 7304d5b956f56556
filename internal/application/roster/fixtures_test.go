package roster_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/teamup/internal/application/roster"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/infrastructure/memory"
	"github.com/brianvoe/gofakeit/v7"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	store   *memory.Store
	svc     *roster.Service
	clock   *fakeClock
	faker   *gofakeit.Faker
	groupID string
	manager domain.Actor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithLedger(t, nil)
}

// newEnvWithLedger lets a test wrap the store's ledger to inject failures.
func newEnvWithLedger(t *testing.T, wrap func(roster.Ledger) roster.Ledger) *env {
	t.Helper()
	store := memory.NewStore()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	faker := gofakeit.New(42)

	var ledger roster.Ledger = store
	if wrap != nil {
		ledger = wrap(store)
	}
	svc := roster.New(ledger, store, clock, nil, nil, roster.Config{
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	})

	e := &env{
		store:   store,
		svc:     svc,
		clock:   clock,
		faker:   faker,
		groupID: faker.UUID(),
	}
	e.manager = domain.Actor{UserID: faker.UUID()}
	store.AddMember(e.groupID, e.manager.UserID, memory.RoleManager, clock.Now().AddDate(-2, 0, 0))
	return e
}

func (e *env) member(since time.Time) domain.Actor {
	a := domain.Actor{UserID: e.faker.UUID()}
	e.store.AddMember(e.groupID, a.UserID, memory.RoleMember, since)
	return a
}

func (e *env) newMember() domain.Actor {
	return e.member(e.clock.Now().AddDate(0, -1, 0))
}

func (e *env) game(max int) domain.Game {
	now := e.clock.Now()
	g := domain.Game{
		ID:              e.faker.UUID(),
		GroupID:         e.groupID,
		Title:           e.faker.Sentence(3),
		Location:        e.faker.Address().Street,
		ScheduledTime:   now.Add(72 * time.Hour),
		Status:          domain.GameUpcoming,
		MaxParticipants: max,
		CreatedBy:       e.manager.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	e.store.PutGame(g)
	return g
}

func (e *env) seedWaitlisted(gameID string, userID string, score int, joined time.Time) {
	s, j := score, joined
	e.store.PutParticipant(domain.Participant{
		GameID:           gameID,
		UserID:           userID,
		Status:           domain.StatusWaitlist,
		PriorityScore:    &s,
		WaitlistJoinedAt: &j,
		RegisteredAt:     joined,
		UpdatedAt:        joined,
	})
}

func (e *env) seedConfirmed(gameID, userID string) {
	now := e.clock.Now()
	e.store.PutParticipant(domain.Participant{
		GameID:       gameID,
		UserID:       userID,
		Status:       domain.StatusConfirmed,
		RegisteredAt: now,
		UpdatedAt:    now,
	})
}

// confirmedCount returns the stored counter and the number of CONFIRMED rows.
func (e *env) confirmedCount(gameID string) (counter, confirmed int) {
	g, _ := e.store.GetGame(context.Background(), gameID)
	for _, p := range e.store.Participants(gameID) {
		if p.Status == domain.StatusConfirmed {
			confirmed++
		}
	}
	return g.CurrentParticipants, confirmed
}

func statuses(ps []domain.Participant) map[string]domain.ParticipantStatus {
	out := make(map[string]domain.ParticipantStatus, len(ps))
	for _, p := range ps {
		out[p.UserID] = p.Status
	}
	return out
}

func intPtr(v int) *int { return &v }
