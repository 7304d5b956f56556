package roster_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_AdmitsThenWaitlists(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.game(2)

	var results []domain.ParticipantStatus
	for i := 0; i < 4; i++ {
		u := e.newMember()
		res, err := e.svc.Register(ctx, u, g.ID, "", false)
		require.NoError(t, err)
		assert.True(t, res.Created)
		results = append(results, res.Status)
		if res.Status == domain.StatusWaitlist {
			require.NotNil(t, res.PriorityScore)
		} else {
			assert.Nil(t, res.PriorityScore)
		}
		e.clock.Advance(time.Second)
	}

	assert.Equal(t, []domain.ParticipantStatus{
		domain.StatusConfirmed, domain.StatusConfirmed, domain.StatusWaitlist, domain.StatusWaitlist,
	}, results)

	counter, confirmed := e.confirmedCount(g.ID)
	assert.Equal(t, 2, counter)
	assert.Equal(t, 2, confirmed)

	var keys []string
	for _, m := range e.store.Outbox() {
		keys = append(keys, m.RoutingKey)
	}
	assert.Equal(t, []string{
		event.RKParticipantConfirmed, event.RKParticipantConfirmed,
		event.RKParticipantWaitlisted, event.RKParticipantWaitlisted,
	}, keys)
}

func TestRegister_UnlimitedNeverWaitlists(t *testing.T) {
	e := newEnv(t)
	g := e.game(0)

	for i := 0; i < 25; i++ {
		res, err := e.svc.Register(context.Background(), e.newMember(), g.ID, "", false)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, res.Status)
	}
	counter, confirmed := e.confirmedCount(g.ID)
	assert.Equal(t, 25, counter)
	assert.Equal(t, 25, confirmed)
}

func TestRegister_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.game(1)

	t.Run("confirmed_twice", func(t *testing.T) {
		u := e.newMember()
		first, err := e.svc.Register(ctx, u, g.ID, "", false)
		require.NoError(t, err)
		second, err := e.svc.Register(ctx, u, g.ID, "", false)
		require.NoError(t, err)

		assert.Equal(t, first.Status, second.Status)
		assert.False(t, second.Created)
		counter, _ := e.confirmedCount(g.ID)
		assert.Equal(t, 1, counter)
	})

	t.Run("waitlisted_twice", func(t *testing.T) {
		u := e.newMember()
		first, err := e.svc.Register(ctx, u, g.ID, "", false)
		require.NoError(t, err)
		require.Equal(t, domain.StatusWaitlist, first.Status)

		outboxBefore := len(e.store.Outbox())
		second, err := e.svc.Register(ctx, u, g.ID, "", false)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusWaitlist, second.Status)
		assert.Equal(t, *first.PriorityScore, *second.PriorityScore)
		assert.Len(t, e.store.Outbox(), outboxBefore)
	})
}

func TestRegister_ReRegisterAfterDecline(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.game(1)
	u := e.newMember()

	_, err := e.svc.Register(ctx, u, g.ID, "", false)
	require.NoError(t, err)
	_, err = e.svc.Cancel(ctx, u, g.ID, "")
	require.NoError(t, err)

	// someone else takes the seat meanwhile
	_, err = e.svc.Register(ctx, e.newMember(), g.ID, "", false)
	require.NoError(t, err)

	e.clock.Advance(time.Minute)
	res, err := e.svc.Register(ctx, u, g.ID, "", false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitlist, res.Status)
	assert.True(t, res.Created)

	p, err := e.store.GetParticipant(ctx, g.ID, u.UserID)
	require.NoError(t, err)
	assert.Equal(t, e.clock.Now(), *p.WaitlistJoinedAt)
	assert.True(t, p.RegisteredAt.Before(*p.WaitlistJoinedAt), "row is reused, registered_at kept")
}

func TestRegister_Failures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t.Run("missing_game", func(t *testing.T) {
		_, err := e.svc.Register(ctx, e.newMember(), "nope", "", false)
		assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	})

	t.Run("cancelled_game", func(t *testing.T) {
		g := e.game(5)
		g.Status = domain.GameCancelled
		e.store.PutGame(g)
		_, err := e.svc.Register(ctx, e.newMember(), g.ID, "", false)
		assert.True(t, domain.IsCode(err, domain.CodeStateConflict))
	})

	t.Run("completed_game", func(t *testing.T) {
		g := e.game(5)
		g.Status = domain.GameCompleted
		e.store.PutGame(g)
		_, err := e.svc.Register(ctx, e.newMember(), g.ID, "", false)
		assert.True(t, domain.IsCode(err, domain.CodeStateConflict))
	})

	t.Run("non_member", func(t *testing.T) {
		g := e.game(5)
		_, err := e.svc.Register(ctx, domain.Actor{UserID: e.faker.UUID()}, g.ID, "", false)
		assert.True(t, domain.IsCode(err, domain.CodeForbidden))
	})

	t.Run("member_registering_someone_else", func(t *testing.T) {
		g := e.game(5)
		other := e.newMember()
		_, err := e.svc.Register(ctx, e.newMember(), g.ID, other.UserID, false)
		assert.True(t, domain.IsCode(err, domain.CodeForbidden))
	})

	t.Run("missing_user", func(t *testing.T) {
		g := e.game(5)
		_, err := e.svc.Register(ctx, domain.Actor{}, g.ID, "", false)
		assert.True(t, domain.IsCode(err, domain.CodeValidation))
	})
}

func TestRegister_ManagerAddsGuest(t *testing.T) {
	e := newEnv(t)
	g := e.game(3)
	guest := e.faker.UUID() // not a group member

	res, err := e.svc.Register(context.Background(), e.manager, g.ID, guest, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, res.Status)

	p, err := e.store.GetParticipant(context.Background(), g.ID, guest)
	require.NoError(t, err)
	assert.True(t, p.IsGuest)

	_, err = e.svc.Register(context.Background(), e.manager, g.ID, e.faker.UUID(), false)
	assert.True(t, domain.IsCode(err, domain.CodeValidation), "non-guest outsider is rejected")
}

func TestRegister_WaitlistScoreUsesHistoryAndOverride(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	full := e.game(1)
	_, err := e.svc.Register(ctx, e.newMember(), full.ID, "", false)
	require.NoError(t, err)

	t.Run("new_member_without_history_is_neutral", func(t *testing.T) {
		res, err := e.svc.Register(ctx, e.newMember(), full.ID, "", false)
		require.NoError(t, err)
		assert.Equal(t, 50, *res.PriorityScore)
	})

	t.Run("override", func(t *testing.T) {
		u := e.newMember()
		require.NoError(t, e.svc.SetPriorityOverride(ctx, e.manager, e.groupID, u.UserID, intPtr(95)))
		res, err := e.svc.Register(ctx, u, full.ID, "", false)
		require.NoError(t, err)
		assert.Equal(t, 95, *res.PriorityScore)
	})

	t.Run("recorded_no_shows_lower_the_score", func(t *testing.T) {
		u := e.member(e.clock.Now())
		past := e.game(0)
		_, err := e.svc.Register(ctx, u, past.ID, "", false)
		require.NoError(t, err)
		_, err = e.svc.RecordResults(ctx, e.manager, past.ID, []domain.Attendance{{UserID: u.UserID, Attended: false}})
		require.NoError(t, err)

		res, err := e.svc.Register(ctx, u, full.ID, "", false)
		require.NoError(t, err)
		assert.Equal(t, 0, *res.PriorityScore)
	})
}

func TestRegister_ConcurrentNeverOverbooks(t *testing.T) {
	e := newEnv(t)
	g := e.game(10)

	const n = 50
	users := make([]domain.Actor, n)
	for i := range users {
		users[i] = e.newMember()
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, u := range users {
		wg.Add(1)
		go func(u domain.Actor) {
			defer wg.Done()
			if _, err := e.svc.Register(context.Background(), u, g.ID, "", false); err != nil {
				errs <- err
			}
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	counter, confirmed := e.confirmedCount(g.ID)
	assert.Equal(t, 10, counter)
	assert.Equal(t, 10, confirmed)

	wl, err := e.store.ListWaitlist(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Len(t, wl, 40)
}

// A seat freed by a cancel whose promotion has not run yet.
func TestRegister_QueuesBehindPendingWaitlist(t *testing.T) {
	t.Run("higher_priority_head_gets_the_seat", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		g := e.game(1)
		e.seedWaitlisted(g.ID, "veteran", 90, e.clock.Now().Add(-time.Hour))

		res, err := e.svc.Register(ctx, e.newMember(), g.ID, "", false)
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Equal(t, domain.StatusWaitlist, res.Status)
		require.NotNil(t, res.PriorityScore)
		assert.Equal(t, 50, *res.PriorityScore)

		got := statuses(e.store.Participants(g.ID))
		assert.Equal(t, domain.StatusConfirmed, got["veteran"])

		counter, confirmed := e.confirmedCount(g.ID)
		assert.Equal(t, 1, counter)
		assert.Equal(t, 1, confirmed)
	})

	t.Run("newcomer_outranking_the_head_is_promoted", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		g := e.game(1)
		e.seedWaitlisted(g.ID, "flaky", 30, e.clock.Now().Add(-time.Hour))

		u := e.newMember()
		res, err := e.svc.Register(ctx, u, g.ID, "", false)
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Equal(t, domain.StatusConfirmed, res.Status)

		got := statuses(e.store.Participants(g.ID))
		assert.Equal(t, domain.StatusConfirmed, got[u.UserID])
		assert.Equal(t, domain.StatusWaitlist, got["flaky"])

		var keys []string
		for _, m := range e.store.Outbox() {
			keys = append(keys, m.RoutingKey)
		}
		assert.Equal(t, []string{event.RKParticipantWaitlisted, event.RKParticipantPromoted}, keys)

		counter, confirmed := e.confirmedCount(g.ID)
		assert.Equal(t, 1, counter)
		assert.Equal(t, 1, confirmed)
	})
}
