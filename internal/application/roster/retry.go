package roster

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/logger"
	"github.com/baechuer/teamup/internal/metrics"
)

type lockedFn func(ctx context.Context, tx LedgerTx, g *domain.Game) error

// runLocked executes fn under the game lock and re-runs it when the store
// reports a retryable conflict. fn must reset any captured results on entry.
func (s *Service) runLocked(ctx context.Context, op, gameID string, fn lockedFn) error {
	start := time.Now()
	var err error
	for attempt := 0; ; attempt++ {
		err = s.attempt(ctx, gameID, fn)
		if err == nil || !domain.IsRetryable(err) || attempt >= s.cfg.MaxRetries {
			break
		}
		metrics.RecordLedgerRetry(op)
		logger.WithCtx(ctx).Debug().Err(err).Str("op", op).Str("game_id", gameID).Int("attempt", attempt+1).Msg("ledger conflict, retrying")

		if werr := sleepCtx(ctx, backoff(s.cfg.RetryBaseDelay, attempt)); werr != nil {
			break
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = string(domain.CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.RecordLedgerOp(op, outcome, time.Since(start))
	return err
}

func (s *Service) attempt(ctx context.Context, gameID string, fn lockedFn) error {
	if s.cfg.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.OpTimeout)
		defer cancel()
	}
	return s.ledger.WithGameLock(ctx, gameID, fn)
}

// backoff doubles per attempt with +/-20% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d > time.Second {
		d = time.Second
	}
	if d < 5 {
		return d
	}
	j := time.Duration(rand.Int64N(int64(d/5)*2+1)) - d/5
	return d + j
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
