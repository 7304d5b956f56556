package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/baechuer/teamup/internal/logger"
	"github.com/riverqueue/river"
)

// HorizonGenerator is the series use case the job drives.
type HorizonGenerator interface {
	GenerateHorizon(ctx context.Context, days int) (int, error)
}

type HorizonWorker struct {
	river.WorkerDefaults[HorizonArgs]
	gen         HorizonGenerator
	defaultDays int
}

func NewHorizonWorker(gen HorizonGenerator, defaultDays int) *HorizonWorker {
	return &HorizonWorker{gen: gen, defaultDays: defaultDays}
}

func (w *HorizonWorker) Work(ctx context.Context, job *river.Job[HorizonArgs]) error {
	days := job.Args.Days
	if days <= 0 {
		days = w.defaultDays
	}
	log := logger.WithCtx(ctx).With().
		Str("component", "river_worker").
		Str("kind", job.Kind).
		Int64("job_id", job.ID).
		Int("attempt", job.Attempt).
		Int("days", days).
		Logger()

	start := time.Now()
	created, err := w.gen.GenerateHorizon(ctx, days)
	if err != nil {
		log.Error().Err(err).Int("created", created).Msg("horizon generation failed")
		return fmt.Errorf("generate horizon: %w", err)
	}
	log.Info().Int("created", created).Dur("took", time.Since(start)).Msg("horizon generated")
	return nil
}

// Timeout bounds one horizon pass.
func (w *HorizonWorker) Timeout(*river.Job[HorizonArgs]) time.Duration { return 5 * time.Minute }

// RunTicker drives the generator without River, for deployments that keep
// the job tables out of their database.
func RunTicker(ctx context.Context, gen HorizonGenerator, days int, interval time.Duration) {
	log := logger.Logger.With().Str("component", "horizon_ticker").Logger()
	run := func() {
		created, err := gen.GenerateHorizon(ctx, days)
		if err != nil {
			log.Error().Err(err).Int("created", created).Msg("horizon generation failed")
			return
		}
		log.Info().Int("created", created).Msg("horizon generated")
	}

	go func() {
		run()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				run()
			}
		}
	}()
}
