package roster

import (
	"context"
	"time"

	"github.com/baechuer/teamup/internal/domain"
)

type Clock interface {
	Now() time.Time
}

// Ledger owns games and their participant sets.
type Ledger interface {
	// WithGameLock runs fn while holding the game's exclusive lock. Writes made
	// through tx become visible together when fn returns nil and are discarded
	// otherwise. A missing game yields a not_found error without calling fn.
	WithGameLock(ctx context.Context, gameID string, fn func(ctx context.Context, tx LedgerTx, g *domain.Game) error) error

	GetGame(ctx context.Context, gameID string) (*domain.Game, error)
	GetParticipant(ctx context.Context, gameID, userID string) (*domain.Participant, error)
	// ListWaitlist returns WAITLIST entries in promotion order.
	ListWaitlist(ctx context.Context, gameID string) ([]domain.Participant, error)

	SetPriorityOverride(ctx context.Context, groupID, userID string, score *int, now time.Time) error
}

// LedgerTx is scoped to the locked game.
type LedgerTx interface {
	GetParticipant(ctx context.Context, userID string) (*domain.Participant, error)
	SaveParticipant(ctx context.Context, p *domain.Participant) error
	SaveGame(ctx context.Context, g *domain.Game) error

	// NextWaitlisted returns the head of the waitlist, or nil when it is empty.
	NextWaitlisted(ctx context.Context) (*domain.Participant, error)
	// ListActive returns CONFIRMED and WAITLIST participants.
	ListActive(ctx context.Context) ([]domain.Participant, error)

	// AttendanceHistory counts recorded results for the user across the group.
	AttendanceHistory(ctx context.Context, groupID, userID string) (attended, noShows int, err error)
	PriorityOverride(ctx context.Context, groupID, userID string) (*int, error)

	AppendOutbox(ctx context.Context, msg domain.OutboxMessage) error
}

// CapacityCache mirrors game capacity for a fast fail on closed games.
// -1 marks a game that no longer accepts registrations.
type CapacityCache interface {
	GetCapacity(ctx context.Context, gameID string) (int, error)
	SetCapacity(ctx context.Context, gameID string, capacity int) error
}

const closedCapacity = -1

type RegisterResult struct {
	GameID        string                   `json:"game_id"`
	UserID        string                   `json:"user_id"`
	Status        domain.ParticipantStatus `json:"status"`
	PriorityScore *int                     `json:"priority_score,omitempty"`
	Created       bool                     `json:"created"`
}

type CancelResult struct {
	GameID    string                   `json:"game_id"`
	UserID    string                   `json:"user_id"`
	Previous  domain.ParticipantStatus `json:"previous_status"`
	FreedSeat bool                     `json:"freed_seat"`
	Promoted  int                      `json:"promoted"`
}

type CapacityResult struct {
	GameID   string `json:"game_id"`
	Previous int    `json:"previous_max"`
	Max      int    `json:"max_participants"`
	Promoted int    `json:"promoted"`
}

type ResultsSummary struct {
	GameID   string `json:"game_id"`
	Attended int    `json:"attended"`
	NoShows  int    `json:"no_shows"`
}
