package series

import (
	"context"
	"errors"
	"fmt"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/logger"
)

// GenerateHorizon rolls every live series forward so instances exist for the
// next `days` days. A failing series is logged and does not stop the others.
func (s *Service) GenerateHorizon(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, domain.ErrValidation("horizon days must be > 0")
	}
	all, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	from := domain.CivilDate(s.clock.Now())
	to := from.AddDate(0, 0, days)

	created := 0
	var errs []error
	for _, sr := range all {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		games, err := s.generate(ctx, sr, from, to, sr.CreatedBy)
		if err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Str("series_id", sr.ID).Msg("horizon generation failed")
			errs = append(errs, fmt.Errorf("series %s: %w", sr.ID, err))
			continue
		}
		created += len(games)
	}
	return created, errors.Join(errs...)
}
