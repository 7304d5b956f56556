package roster

import (
	"context"
	"strings"
	"time"

	"github.com/baechuer/teamup/internal/application/access"
	"github.com/baechuer/teamup/internal/audit"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/logger"
)

type Config struct {
	Weights domain.PriorityWeights

	// MaxRetries bounds re-runs of a unit that lost a lock race.
	MaxRetries     int
	RetryBaseDelay time.Duration
	// OpTimeout bounds each locked unit; 0 leaves the caller's deadline alone.
	OpTimeout time.Duration
}

type Service struct {
	ledger Ledger
	guard  *access.Guard
	clock  Clock
	cache  CapacityCache
	audit  *audit.Logger
	cfg    Config
}

func New(ledger Ledger, members access.Membership, clock Clock, cache CapacityCache, al *audit.Logger, cfg Config) *Service {
	if cfg.Weights == (domain.PriorityWeights{}) {
		cfg.Weights = domain.DefaultPriorityWeights()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 20 * time.Millisecond
	}
	if al == nil {
		al = audit.Nop()
	}
	return &Service{
		ledger: ledger,
		guard:  access.NewGuard(members),
		clock:  clock,
		cache:  cache,
		audit:  al,
		cfg:    cfg,
	}
}

func requireID(name, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", domain.ErrValidation(name + " is required")
	}
	return v, nil
}

// gameForActor loads the game so authorization can be checked against its group.
func (s *Service) gameForActor(ctx context.Context, gameID string) (*domain.Game, error) {
	id, err := requireID("game_id", gameID)
	if err != nil {
		return nil, err
	}
	return s.ledger.GetGame(ctx, id)
}

func (s *Service) setCachedCapacity(ctx context.Context, gameID string, capacity int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetCapacity(ctx, gameID, capacity); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("game_id", gameID).Msg("capacity cache update failed")
	}
}

// closedInCache reports a cached "closed" marker. Cache errors fall through
// to the ledger.
func (s *Service) closedInCache(ctx context.Context, gameID string) bool {
	if s.cache == nil {
		return false
	}
	c, err := s.cache.GetCapacity(ctx, gameID)
	return err == nil && c == closedCapacity
}
