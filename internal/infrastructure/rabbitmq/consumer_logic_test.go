package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/baechuer/teamup/internal/application/roster"
	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockGames struct {
	mock.Mock
}

func (m *MockGames) CancelGame(ctx context.Context, actor domain.Actor, gameID, reason string) (int, error) {
	args := m.Called(ctx, actor, gameID, reason)
	return args.Int(0), args.Error(1)
}

func (m *MockGames) UpdateCapacity(ctx context.Context, actor domain.Actor, gameID string, max int) (roster.CapacityResult, error) {
	args := m.Called(ctx, actor, gameID, max)
	return args.Get(0).(roster.CapacityResult), args.Error(1)
}

type MockDeduper struct {
	mock.Mock
}

func (m *MockDeduper) AlreadyProcessed(ctx context.Context, messageID, handlerName string) (bool, error) {
	args := m.Called(ctx, messageID, handlerName)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeduper) MarkProcessed(ctx context.Context, messageID, handlerName string) error {
	args := m.Called(ctx, messageID, handlerName)
	return args.Error(0)
}

func delivery(t *testing.T, rk, messageID string, payload any) amqp.Delivery {
	t.Helper()
	raw, err := json.Marshal(payload)
	assert.NoError(t, err)
	body, err := json.Marshal(event.DomainEventEnvelope[json.RawMessage]{
		Version:    1,
		Producer:   "group-service",
		TraceID:    "trace-1",
		MessageID:  messageID,
		OccurredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload:    raw,
	})
	assert.NoError(t, err)
	return amqp.Delivery{RoutingKey: rk, Body: body}
}

func TestHandleDelivery_CancelRequested(t *testing.T) {
	games := new(MockGames)
	dd := new(MockDeduper)
	c := NewConsumer("", "teamup", games, dd)

	dd.On("AlreadyProcessed", mock.Anything, "m-1", handlerCancelGame).Return(false, nil).Once()
	games.On("CancelGame", mock.Anything, domain.SystemActor(), "game-1", "rain").Return(4, nil).Once()
	dd.On("MarkProcessed", mock.Anything, "m-1", handlerCancelGame).Return(nil).Once()

	d := delivery(t, event.RKGameCancelRequested, "m-1", event.GameCancelRequestedPayload{GameID: "game-1", Reason: "rain"})
	assert.NoError(t, c.handleDelivery(context.Background(), d))

	games.AssertExpectations(t)
	dd.AssertExpectations(t)
}

func TestHandleDelivery_CancelRequestedLegacyID(t *testing.T) {
	games := new(MockGames)
	c := NewConsumer("", "teamup", games, nil)

	games.On("CancelGame", mock.Anything, domain.SystemActor(), "game-legacy", "game_canceled").Return(0, nil).Once()

	d := delivery(t, event.RKGameCancelRequested, "m-2", event.GameCancelRequestedPayload{ID: "game-legacy"})
	assert.NoError(t, c.handleDelivery(context.Background(), d))
	games.AssertExpectations(t)
}

func TestHandleDelivery_CapacityChanged(t *testing.T) {
	games := new(MockGames)
	c := NewConsumer("", "teamup", games, nil)
	max := 14

	games.On("UpdateCapacity", mock.Anything, domain.SystemActor(), "game-1", 14).
		Return(roster.CapacityResult{GameID: "game-1", Previous: 10, Max: 14, Promoted: 2}, nil).Once()

	d := delivery(t, event.RKGameCapacityChanged, "m-3", event.GameCapacityChangedPayload{GameID: "game-1", MaxParticipants: &max})
	assert.NoError(t, c.handleDelivery(context.Background(), d))
	games.AssertExpectations(t)
}

func TestHandleDelivery_Duplicate(t *testing.T) {
	games := new(MockGames)
	dd := new(MockDeduper)
	c := NewConsumer("", "teamup", games, dd)

	dd.On("AlreadyProcessed", mock.Anything, "m-1", handlerCancelGame).Return(true, nil).Once()

	d := delivery(t, event.RKGameCancelRequested, "m-1", event.GameCancelRequestedPayload{GameID: "game-1"})
	assert.NoError(t, c.handleDelivery(context.Background(), d))

	games.AssertNotCalled(t, "CancelGame", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	dd.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleDelivery_Requeue(t *testing.T) {
	t.Run("retryable_conflict", func(t *testing.T) {
		games := new(MockGames)
		dd := new(MockDeduper)
		c := NewConsumer("", "teamup", games, dd)

		dd.On("AlreadyProcessed", mock.Anything, "m-1", handlerCancelGame).Return(false, nil).Once()
		games.On("CancelGame", mock.Anything, mock.Anything, "game-1", mock.Anything).
			Return(0, domain.ErrConcurrentUpdate("busy", nil)).Once()

		d := delivery(t, event.RKGameCancelRequested, "m-1", event.GameCancelRequestedPayload{GameID: "game-1"})
		assert.Error(t, c.handleDelivery(context.Background(), d))
		dd.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("persistence_failure", func(t *testing.T) {
		games := new(MockGames)
		c := NewConsumer("", "teamup", games, nil)
		games.On("CancelGame", mock.Anything, mock.Anything, "game-1", mock.Anything).
			Return(0, domain.ErrPersistence("commit", errors.New("conn reset"))).Once()

		d := delivery(t, event.RKGameCancelRequested, "m-1", event.GameCancelRequestedPayload{GameID: "game-1"})
		assert.Error(t, c.handleDelivery(context.Background(), d))
	})

	t.Run("dedupe_lookup_failure", func(t *testing.T) {
		games := new(MockGames)
		dd := new(MockDeduper)
		c := NewConsumer("", "teamup", games, dd)
		dd.On("AlreadyProcessed", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("db down")).Once()

		d := delivery(t, event.RKGameCancelRequested, "m-1", event.GameCancelRequestedPayload{GameID: "game-1"})
		assert.Error(t, c.handleDelivery(context.Background(), d))
		games.AssertNotCalled(t, "CancelGame", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHandleDelivery_RejectedIsAckedAndMarked(t *testing.T) {
	games := new(MockGames)
	dd := new(MockDeduper)
	c := NewConsumer("", "teamup", games, dd)
	max := 3

	dd.On("AlreadyProcessed", mock.Anything, "m-9", handlerCapacityChanged).Return(false, nil).Once()
	games.On("UpdateCapacity", mock.Anything, mock.Anything, "missing", 3).
		Return(roster.CapacityResult{}, domain.ErrNotFound("game not found")).Once()
	dd.On("MarkProcessed", mock.Anything, "m-9", handlerCapacityChanged).Return(nil).Once()

	d := delivery(t, event.RKGameCapacityChanged, "m-9", event.GameCapacityChangedPayload{GameID: "missing", MaxParticipants: &max})
	assert.NoError(t, c.handleDelivery(context.Background(), d))
	dd.AssertExpectations(t)
}

func TestHandleDelivery_PoisonIsDropped(t *testing.T) {
	games := new(MockGames)
	c := NewConsumer("", "teamup", games, nil)

	assert.NoError(t, c.handleDelivery(context.Background(), amqp.Delivery{RoutingKey: event.RKGameCancelRequested, Body: []byte("{not json")}))

	d := delivery(t, event.RKGameCancelRequested, "m-1", event.GameCancelRequestedPayload{GameID: "game-1"})
	var env map[string]any
	assert.NoError(t, json.Unmarshal(d.Body, &env))
	env["version"] = 2
	d.Body, _ = json.Marshal(env)
	assert.NoError(t, c.handleDelivery(context.Background(), d))

	// capacity message without a max is dropped before the roster is called
	d = delivery(t, event.RKGameCapacityChanged, "m-2", event.GameCapacityChangedPayload{GameID: "game-1"})
	assert.NoError(t, c.handleDelivery(context.Background(), d))

	d = delivery(t, "game.renamed", "m-3", map[string]string{"game_id": "game-1"})
	assert.NoError(t, c.handleDelivery(context.Background(), d))

	games.AssertNotCalled(t, "CancelGame", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	games.AssertNotCalled(t, "UpdateCapacity", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageID_Fallbacks(t *testing.T) {
	d := amqp.Delivery{RoutingKey: "game.cancel_requested", Body: []byte(`{"version":1}`), MessageId: "amqp-1"}

	assert.Equal(t, "env-1", messageID(event.DomainEventEnvelope[json.RawMessage]{MessageID: " env-1 "}, d))
	assert.Equal(t, "amqp-1", messageID(event.DomainEventEnvelope[json.RawMessage]{}, d))

	d.MessageId = ""
	a := messageID(event.DomainEventEnvelope[json.RawMessage]{}, d)
	b := messageID(event.DomainEventEnvelope[json.RawMessage]{}, d)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "hash:")
}
