package rabbitmq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/baechuer/teamup/internal/application/roster"
	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/logger"
	"github.com/baechuer/teamup/internal/metrics"
	pkgctx "github.com/baechuer/teamup/internal/pkg/context"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	supportedVersion = 1
	queueName        = "game-service.game-commands"

	handlerCancelGame      = "cancel_game"
	handlerCapacityChanged = "capacity_changed"
)

// GameCommands is the roster surface driven by inbound messages.
type GameCommands interface {
	CancelGame(ctx context.Context, actor domain.Actor, gameID, reason string) (int, error)
	UpdateCapacity(ctx context.Context, actor domain.Actor, gameID string, max int) (roster.CapacityResult, error)
}

// Deduper keeps processed_messages markers. A nil Deduper disables dedupe.
type Deduper interface {
	AlreadyProcessed(ctx context.Context, messageID, handlerName string) (bool, error)
	MarkProcessed(ctx context.Context, messageID, handlerName string) error
}

type Consumer struct {
	rabbitURL string
	exchange  string
	games     GameCommands
	dedupe    Deduper
}

func NewConsumer(rabbitURL, exchange string, games GameCommands, dedupe Deduper) *Consumer {
	return &Consumer{
		rabbitURL: strings.TrimSpace(rabbitURL),
		exchange:  strings.TrimSpace(exchange),
		games:     games,
		dedupe:    dedupe,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	log := logger.Logger.With().Str("component", "rabbitmq_consumer").Logger()

	conn, err := amqp.Dial(c.rabbitURL)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	closeAll := func() {
		_ = ch.Close()
		_ = conn.Close()
	}

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		closeAll()
		return err
	}
	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		closeAll()
		return err
	}
	for _, rk := range []string{event.RKGameCancelRequested, event.RKGameCapacityChanged} {
		if err := ch.QueueBind(q.Name, rk, c.exchange, false, nil); err != nil {
			closeAll()
			return err
		}
	}
	if err := ch.Qos(10, 0, false); err != nil {
		closeAll()
		return err
	}
	deliveries, err := ch.Consume(q.Name, event.Producer, false, false, false, false, nil)
	if err != nil {
		closeAll()
		return err
	}

	go func() {
		defer closeAll()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warn().Msg("delivery channel closed")
					return
				}
				if err := c.handleDelivery(ctx, d); err != nil {
					_ = d.Nack(false, true)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	log.Info().Str("queue", q.Name).Msg("consumer started")
	return nil
}

// messageID prefers the envelope id, then the AMQP id, then a body hash.
func messageID(env event.DomainEventEnvelope[json.RawMessage], d amqp.Delivery) string {
	if id := strings.TrimSpace(env.MessageID); id != "" {
		return id
	}
	if id := strings.TrimSpace(d.MessageId); id != "" {
		return id
	}
	h := sha256.Sum256(append([]byte(d.RoutingKey+"\n"), d.Body...))
	return "hash:" + hex.EncodeToString(h[:])
}

// handleDelivery returns an error only when the message should be requeued.
// Poison messages and business rejections are acked and logged.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	baseLog := logger.Logger.With().
		Str("component", "rabbitmq_consumer").
		Str("routing_key", d.RoutingKey).
		Logger()

	var env event.DomainEventEnvelope[json.RawMessage]
	if err := json.Unmarshal(d.Body, &env); err != nil {
		baseLog.Warn().Err(err).Msg("invalid envelope json; dropping")
		metrics.RecordMessageConsumed(d.RoutingKey, "poison")
		return nil
	}
	if env.Version != supportedVersion {
		baseLog.Warn().Int("version", env.Version).Msg("unsupported envelope version; dropping")
		metrics.RecordMessageConsumed(d.RoutingKey, "poison")
		return nil
	}

	msgID := messageID(env, d)
	traceID := strings.TrimSpace(env.TraceID)
	if traceID == "" {
		traceID = strings.TrimSpace(d.CorrelationId)
	}
	log := baseLog.With().Str("message_id", msgID).Str("trace_id", traceID).Logger()
	if traceID != "" {
		ctx = pkgctx.WithTraceID(ctx, traceID)
	}

	handler := handlerName(d.RoutingKey)
	if handler == "" {
		log.Warn().Msg("unknown routing key; ignoring")
		metrics.RecordMessageConsumed(d.RoutingKey, "ignored")
		return nil
	}

	if c.dedupe != nil {
		seen, err := c.dedupe.AlreadyProcessed(ctx, msgID, handler)
		if err != nil {
			log.Error().Err(err).Msg("processed_messages lookup failed (requeue)")
			metrics.RecordMessageConsumed(d.RoutingKey, "requeued")
			return err
		}
		if seen {
			log.Info().Msg("duplicate delivery ignored")
			metrics.RecordMessageConsumed(d.RoutingKey, "duplicate")
			return nil
		}
	}

	if err := c.apply(ctx, d.RoutingKey, env.Payload, log); err != nil {
		if domain.IsRetryable(err) || domain.IsCode(err, domain.CodePersistence) {
			log.Error().Err(err).Msg("processing failed (requeue)")
			metrics.RecordMessageConsumed(d.RoutingKey, "requeued")
			return err
		}
		log.Warn().Err(err).Str("code", string(domain.CodeOf(err))).Msg("command rejected; dropping")
		metrics.RecordMessageConsumed(d.RoutingKey, "rejected")
	} else {
		metrics.RecordMessageConsumed(d.RoutingKey, "ok")
	}

	if c.dedupe != nil {
		if err := c.dedupe.MarkProcessed(ctx, msgID, handler); err != nil {
			// the handlers are idempotent; a replay is harmless
			log.Warn().Err(err).Msg("processed_messages insert failed")
		}
	}
	return nil
}

func handlerName(routingKey string) string {
	switch routingKey {
	case event.RKGameCancelRequested:
		return handlerCancelGame
	case event.RKGameCapacityChanged:
		return handlerCapacityChanged
	}
	return ""
}

func (c *Consumer) apply(ctx context.Context, routingKey string, raw json.RawMessage, log zerolog.Logger) error {
	actor := domain.SystemActor()

	switch routingKey {
	case event.RKGameCancelRequested:
		var p event.GameCancelRequestedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Msg("invalid payload json; dropping")
			return nil
		}
		gameID := strings.TrimSpace(p.GameID)
		if gameID == "" {
			gameID = strings.TrimSpace(p.ID)
		}
		if gameID == "" {
			log.Warn().Msg("missing game_id; dropping")
			return nil
		}
		reason := strings.TrimSpace(p.Reason)
		if reason == "" {
			reason = "game_canceled"
		}
		declined, err := c.games.CancelGame(ctx, actor, gameID, reason)
		if err != nil {
			return err
		}
		log.Info().Str("game_id", gameID).Int("declined", declined).Msg("game canceled")
		return nil

	case event.RKGameCapacityChanged:
		var p event.GameCapacityChangedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Msg("invalid payload json; dropping")
			return nil
		}
		gameID := strings.TrimSpace(p.GameID)
		if gameID == "" || p.MaxParticipants == nil {
			log.Warn().Msg("missing fields; dropping")
			return nil
		}
		res, err := c.games.UpdateCapacity(ctx, actor, gameID, *p.MaxParticipants)
		if err != nil {
			return err
		}
		log.Info().
			Str("game_id", gameID).
			Int("previous_max", res.Previous).
			Int("max_participants", res.Max).
			Int("promoted", res.Promoted).
			Msg("capacity applied")
		return nil
	}
	return nil
}
