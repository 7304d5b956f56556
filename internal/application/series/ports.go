package series

import (
	"context"
	"time"

	"github.com/baechuer/teamup/internal/domain"
)

type Clock interface {
	Now() time.Time
}

// Announce builds the outbox message for a batch of freshly inserted
// instances. Returning nil skips the message.
type Announce func(inserted []*domain.Game) *domain.OutboxMessage

type Repo interface {
	Create(ctx context.Context, s *domain.Series) error
	// Get returns soft-deleted series too; callers check DeletedAt.
	Get(ctx context.Context, id string) (*domain.Series, error)
	ListActive(ctx context.Context) ([]*domain.Series, error)

	// ExistingDates lists instance dates of the series inside [from, to].
	ExistingDates(ctx context.Context, seriesID string, from, to time.Time) ([]time.Time, error)
	// InsertInstances stores games, silently skipping any date the series
	// already has, and returns only the rows actually inserted.
	InsertInstances(ctx context.Context, games []*domain.Game, announce Announce) ([]*domain.Game, error)

	// UpdateSeries saves the series row and, when instances is non-nil,
	// applies it to future UPCOMING instances in the same unit.
	UpdateSeries(ctx context.Context, s *domain.Series, instances *domain.GamePatch, now time.Time) ([]domain.InstanceChange, error)
	// UpdateFutureInstances touches only UPCOMING instances scheduled after now.
	UpdateFutureInstances(ctx context.Context, seriesID string, patch domain.GamePatch, now time.Time) ([]domain.InstanceChange, error)
	// DeleteSeries soft-deletes the series; with cascade it also removes
	// UPCOMING instances scheduled after now. It returns removed instances.
	DeleteSeries(ctx context.Context, seriesID string, now time.Time, cascade bool) (int, error)
}

// WaitlistProcessor is the roster hook run after caps change on instances.
type WaitlistProcessor interface {
	PromoteAfterCapacityChange(ctx context.Context, changes []domain.InstanceChange) (int, error)
}

type UpdateResult struct {
	Series           *domain.Series `json:"-"`
	InstancesUpdated int            `json:"instances_updated"`
	Promoted         int            `json:"promoted"`
}
