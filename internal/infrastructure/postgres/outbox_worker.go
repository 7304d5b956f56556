package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/baechuer/teamup/internal/audit"
	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/logger"
	"github.com/baechuer/teamup/internal/metrics"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	relayBatch       = 20
	relayMaxAttempts = 12
	relayPoll        = 500 * time.Millisecond
	relayLease       = 15 * time.Second
	relayConfirmWait = 600 * time.Millisecond

	minRetry = 5 * time.Second
	maxRetry = 30 * time.Minute
)

// retryDelay doubles per attempt between minRetry and maxRetry. jitter gets
// n and returns a value in [0, n); the result lands within +/-10%.
func retryDelay(attempt int, jitter func(n int64) int64) time.Duration {
	d := minRetry
	for i := 0; i < attempt && d < maxRetry; i++ {
		d *= 2
	}
	if d < minRetry {
		d = minRetry
	}
	if d > maxRetry {
		d = maxRetry
	}
	spread := int64(d / 5)
	return d - d/10 + time.Duration(jitter(spread))
}

type pendingMessage struct {
	ID         int64
	MessageID  uuid.UUID
	TraceID    string
	RoutingKey string
	Payload    []byte
	Attempt    int
}

var errUnconfirmed = errors.New("broker did not confirm in time")

// relay owns one confirm-mode channel.
type relay struct {
	repo     *Repository
	ch       *amqp.Channel
	exchange string
	confirms <-chan amqp.Confirmation
	returns  <-chan amqp.Return
	audit    *audit.Logger
	log      zerolog.Logger
}

// StartOutboxWorker publishes pending outbox rows to the topic exchange in
// the background until ctx ends. Unroutable or nacked messages are retried
// with backoff and parked as dead after relayMaxAttempts.
func (r *Repository) StartOutboxWorker(ctx context.Context, rabbitURL, exchange string, al *audit.Logger) {
	if al == nil {
		al = audit.Nop()
	}
	log := logger.Logger.With().Str("component", "outbox_relay").Str("exchange", exchange).Logger()

	go func() {
		conn, err := amqp.Dial(rabbitURL)
		if err != nil {
			log.Error().Err(err).Msg("rabbitmq dial failed, outbox relay not running")
			return
		}
		defer conn.Close()

		rl, err := r.newRelay(conn, exchange, al, log)
		if err != nil {
			log.Error().Err(err).Msg("outbox relay setup failed")
			return
		}
		defer rl.ch.Close()
		rl.run(ctx)
	}()
}

func (r *Repository) newRelay(conn *amqp.Connection, exchange string, al *audit.Logger, log zerolog.Logger) (*relay, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &relay{
		repo:     r,
		ch:       ch,
		exchange: exchange,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, relayBatch)),
		returns:  ch.NotifyReturn(make(chan amqp.Return, relayBatch)),
		audit:    al,
		log:      log,
	}, nil
}

func (rl *relay) run(ctx context.Context) {
	t := time.NewTicker(relayPoll)
	defer t.Stop()

	// repeated identical failures are logged at most every 10s
	var lastErr string
	var lastLogged time.Time

	for {
		select {
		case <-ctx.Done():
			rl.log.Info().Msg("outbox relay stopped")
			return
		case <-t.C:
		}

		err := rl.drainOnce(ctx)
		switch {
		case err == nil:
			lastErr = ""
		case err.Error() != lastErr || time.Since(lastLogged) > 10*time.Second:
			rl.log.Warn().Err(err).Msg("outbox batch failed")
			lastErr, lastLogged = err.Error(), time.Now()
		}
	}
}

func (rl *relay) drainOnce(ctx context.Context) error {
	batch, err := rl.repo.leaseOutbox(ctx, relayBatch, relayLease)
	if err != nil {
		return err
	}
	for _, m := range batch {
		rl.settle(ctx, m, rl.publish(ctx, m))
	}
	return nil
}

// publish sends one message and waits for its confirm. A Return for an
// unroutable message arrives before the matching Confirm.
func (rl *relay) publish(ctx context.Context, m pendingMessage) error {
	rl.discardStale()

	err := rl.ch.PublishWithContext(ctx, rl.exchange, m.RoutingKey, true, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		MessageId:     m.MessageID.String(),
		CorrelationId: m.TraceID,
		AppId:         event.Producer,
		Body:          m.Payload,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	timeout := time.After(relayConfirmWait)
	var routeErr error
	for {
		select {
		case ret := <-rl.returns:
			routeErr = fmt.Errorf("unroutable: %d %s (rk=%s)", ret.ReplyCode, ret.ReplyText, ret.RoutingKey)
		case c := <-rl.confirms:
			if routeErr != nil {
				return routeErr
			}
			if !c.Ack {
				return fmt.Errorf("nack for delivery %d", c.DeliveryTag)
			}
			return nil
		case <-timeout:
			if routeErr != nil {
				return routeErr
			}
			return errUnconfirmed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// discardStale drops confirms and returns left over from a timed-out publish.
func (rl *relay) discardStale() {
	for {
		select {
		case <-rl.returns:
		case <-rl.confirms:
		default:
			return
		}
	}
}

func (rl *relay) settle(ctx context.Context, m pendingMessage, pubErr error) {
	id := m.MessageID.String()
	if pubErr == nil {
		if err := rl.repo.markOutboxSent(ctx, m.ID); err != nil {
			rl.log.Warn().Err(err).Str("message_id", id).Msg("published but not marked sent")
		}
		metrics.RecordOutbox("sent")
		rl.audit.OutboxMessageSent(id, m.RoutingKey)
		return
	}

	attempt := m.Attempt + 1
	if attempt >= relayMaxAttempts {
		_ = rl.repo.markOutboxDead(ctx, m.ID, attempt, pubErr.Error())
		metrics.RecordOutbox("dead")
		rl.audit.OutboxMessageDead(id, m.RoutingKey, attempt)
		return
	}

	delay := retryDelay(attempt, rand.Int64N)
	_ = rl.repo.rescheduleOutbox(ctx, m.ID, attempt, delay, pubErr.Error())
	metrics.RecordOutbox("retry")
	rl.log.Warn().
		Str("message_id", id).
		Str("routing_key", m.RoutingKey).
		Int("attempt", attempt).
		Dur("retry_in", delay).
		Err(pubErr).
		Msg("outbox publish failed")
}

// leaseOutbox claims up to limit due rows and pushes their next_retry_at out
// by lease, so concurrent relays skip them while this one publishes outside
// the transaction.
func (r *Repository) leaseOutbox(ctx context.Context, limit int, lease time.Duration) ([]pendingMessage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("lease outbox: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, message_id, trace_id, routing_key, payload, attempt
		FROM outbox
		WHERE status = 'pending' AND next_retry_at <= NOW()
		ORDER BY next_retry_at, occurred_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("lease outbox: %w", err)
	}
	var (
		batch []pendingMessage
		ids   []int64
	)
	for rows.Next() {
		var m pendingMessage
		if err := rows.Scan(&m.ID, &m.MessageID, &m.TraceID, &m.RoutingKey, &m.Payload, &m.Attempt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		batch = append(batch, m)
		ids = append(ids, m.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lease outbox: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE outbox SET next_retry_at = NOW() + make_interval(secs => $2) WHERE id = ANY($1)`,
		ids, lease.Seconds(),
	); err != nil {
		return nil, fmt.Errorf("lease outbox: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("lease outbox: %w", err)
	}
	return batch, nil
}

func (r *Repository) markOutboxSent(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET status = 'sent', last_error = NULL WHERE id = $1`, id)
	return err
}

func (r *Repository) markOutboxDead(ctx context.Context, id int64, attempt int, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox SET status = 'dead', attempt = $2, last_error = $3 WHERE id = $1`,
		id, attempt, reason)
	return err
}

func (r *Repository) rescheduleOutbox(ctx context.Context, id int64, attempt int, delay time.Duration, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox
		SET attempt = $2, next_retry_at = NOW() + make_interval(secs => $3), last_error = $4
		WHERE id = $1
	`, id, attempt, delay.Seconds(), reason)
	return err
}
