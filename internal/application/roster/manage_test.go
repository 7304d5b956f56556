package roster_test

import (
	"context"
	"testing"

	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(t *testing.T, e *env, gameID string, n int) []domain.Actor {
	t.Helper()
	out := make([]domain.Actor, 0, n)
	for i := 0; i < n; i++ {
		u := e.newMember()
		_, err := e.svc.Register(context.Background(), u, gameID, "", false)
		require.NoError(t, err)
		out = append(out, u)
	}
	return out
}

func TestUpdateCapacity(t *testing.T) {
	ctx := context.Background()

	t.Run("lowering_never_evicts", func(t *testing.T) {
		e := newEnv(t)
		g := e.game(4)
		fill(t, e, g.ID, 4)

		res, err := e.svc.UpdateCapacity(ctx, e.manager, g.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, 4, res.Previous)
		assert.Equal(t, 0, res.Promoted)

		counter, confirmed := e.confirmedCount(g.ID)
		assert.Equal(t, 4, counter)
		assert.Equal(t, 4, confirmed)

		late, err := e.svc.Register(ctx, e.newMember(), g.ID, "", false)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusWaitlist, late.Status)

		// attrition brings the count to the new cap before anyone is promoted
		cancelled := 0
		for _, p := range e.store.Participants(g.ID) {
			if p.Status != domain.StatusConfirmed || cancelled == 2 {
				continue
			}
			_, err := e.svc.Cancel(ctx, domain.Actor{UserID: p.UserID}, g.ID, "")
			require.NoError(t, err)
			cancelled++
		}
		counter, _ = e.confirmedCount(g.ID)
		assert.Equal(t, 2, counter)
		wl, _ := e.store.ListWaitlist(ctx, g.ID)
		assert.Len(t, wl, 1)
	})

	t.Run("raising_promotes", func(t *testing.T) {
		e := newEnv(t)
		g := e.game(1)
		fill(t, e, g.ID, 4)

		res, err := e.svc.UpdateCapacity(ctx, e.manager, g.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Promoted)

		counter, confirmed := e.confirmedCount(g.ID)
		assert.Equal(t, 3, counter)
		assert.Equal(t, 3, confirmed)
	})

	t.Run("removing_the_cap_admits_everyone", func(t *testing.T) {
		e := newEnv(t)
		g := e.game(1)
		fill(t, e, g.ID, 4)

		res, err := e.svc.UpdateCapacity(ctx, e.manager, g.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Promoted)
		wl, _ := e.store.ListWaitlist(ctx, g.ID)
		assert.Empty(t, wl)
	})

	t.Run("validation_and_auth", func(t *testing.T) {
		e := newEnv(t)
		g := e.game(1)
		_, err := e.svc.UpdateCapacity(ctx, e.manager, g.ID, -1)
		assert.True(t, domain.IsCode(err, domain.CodeValidation))
		_, err = e.svc.UpdateCapacity(ctx, e.newMember(), g.ID, 5)
		assert.True(t, domain.IsCode(err, domain.CodeForbidden))
	})
}

func TestCancelGame(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.game(2)
	fill(t, e, g.ID, 3)

	declined, err := e.svc.CancelGame(ctx, e.manager, g.ID, "rain")
	require.NoError(t, err)
	assert.Equal(t, 3, declined)

	got, err := e.store.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GameCancelled, got.Status)
	assert.Equal(t, 0, got.CurrentParticipants)
	for _, p := range e.store.Participants(g.ID) {
		assert.Equal(t, domain.StatusDeclined, p.Status)
	}

	last := e.store.Outbox()[len(e.store.Outbox())-1]
	assert.Equal(t, event.RKGameCanceled, last.RoutingKey)
	assert.Equal(t, "rain", last.Payload.(event.GameCanceledPayload).Reason)

	again, err := e.svc.CancelGame(ctx, e.manager, g.ID, "rain")
	require.NoError(t, err)
	assert.Equal(t, 0, again)

	_, err = e.svc.Register(ctx, e.newMember(), g.ID, "", false)
	assert.True(t, domain.IsCode(err, domain.CodeStateConflict))
}

func TestRecordResults(t *testing.T) {
	ctx := context.Background()

	t.Run("marks_completed", func(t *testing.T) {
		e := newEnv(t)
		g := e.game(3)
		us := fill(t, e, g.ID, 3)

		sum, err := e.svc.RecordResults(ctx, e.manager, g.ID, []domain.Attendance{
			{UserID: us[0].UserID, Attended: true},
			{UserID: us[1].UserID, Attended: true},
			{UserID: us[2].UserID, Attended: false},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Attended)
		assert.Equal(t, 1, sum.NoShows)

		got, _ := e.store.GetGame(ctx, g.ID)
		assert.Equal(t, domain.GameCompleted, got.Status)

		_, err = e.svc.RecordResults(ctx, e.manager, g.ID, []domain.Attendance{{UserID: us[0].UserID, Attended: true}})
		assert.True(t, domain.IsCode(err, domain.CodeStateConflict))

		_, err = e.svc.Cancel(ctx, us[0], g.ID, "")
		assert.True(t, domain.IsCode(err, domain.CodeStateConflict))
	})

	t.Run("rejects_bad_sheets", func(t *testing.T) {
		e := newEnv(t)
		g := e.game(1)
		us := fill(t, e, g.ID, 2) // second one is waitlisted

		_, err := e.svc.RecordResults(ctx, e.manager, g.ID, nil)
		assert.True(t, domain.IsCode(err, domain.CodeValidation))

		_, err = e.svc.RecordResults(ctx, e.manager, g.ID, []domain.Attendance{
			{UserID: us[0].UserID, Attended: true},
			{UserID: us[0].UserID, Attended: false},
		})
		assert.True(t, domain.IsCode(err, domain.CodeValidation))

		_, err = e.svc.RecordResults(ctx, e.manager, g.ID, []domain.Attendance{{UserID: us[1].UserID, Attended: true}})
		assert.True(t, domain.IsCode(err, domain.CodeValidation))

		got, _ := e.store.GetGame(ctx, g.ID)
		assert.Equal(t, domain.GameUpcoming, got.Status, "rejected sheet leaves the game untouched")
	})
}

func TestSetPriorityOverride_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.newMember()

	err := e.svc.SetPriorityOverride(ctx, e.manager, e.groupID, u.UserID, intPtr(101))
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	err = e.svc.SetPriorityOverride(ctx, u, e.groupID, u.UserID, intPtr(100))
	assert.True(t, domain.IsCode(err, domain.CodeForbidden))

	require.NoError(t, e.svc.SetPriorityOverride(ctx, e.manager, e.groupID, u.UserID, nil))
}
