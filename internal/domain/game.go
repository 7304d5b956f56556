package domain

import (
	"strings"
	"time"
)

type GameStatus string

const (
	GameUpcoming   GameStatus = "UPCOMING"
	GameInProgress GameStatus = "IN_PROGRESS"
	GameCompleted  GameStatus = "COMPLETED"
	GameCancelled  GameStatus = "CANCELLED"
)

func (s GameStatus) Valid() bool {
	switch s {
	case GameUpcoming, GameInProgress, GameCompleted, GameCancelled:
		return true
	}
	return false
}

type Game struct {
	ID           string
	GroupID      string
	SeriesID     string     // empty for one-off games
	InstanceDate *time.Time // civil date (UTC midnight) for series instances

	Title       string
	Description string
	Location    string

	ScheduledTime time.Time
	Status        GameStatus

	MaxParticipants     int // 0 = unlimited
	CurrentParticipants int // CONFIRMED only

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (g *Game) Unlimited() bool { return g.MaxParticipants == 0 }

// FreeSlots is 0 for unlimited games; callers check Unlimited first.
// A cap lowered below the confirmed count yields 0, never a negative.
func (g *Game) FreeSlots() int {
	if g.Unlimited() {
		return 0
	}
	if free := g.MaxParticipants - g.CurrentParticipants; free > 0 {
		return free
	}
	return 0
}

func (g *Game) CanAdmit() bool {
	return g.Unlimited() || g.CurrentParticipants < g.MaxParticipants
}

// AcceptsRegistrations reports whether the game is still open for sign-ups.
func (g *Game) AcceptsRegistrations() error {
	switch g.Status {
	case GameCancelled:
		return ErrStateConflict("game is cancelled")
	case GameCompleted:
		return ErrStateConflict("game is completed")
	}
	return nil
}

// GamePatch is the subset of game fields a series edit may touch.
// A nil field is left unchanged.
type GamePatch struct {
	Title           *string
	Description     *string
	Location        *string
	MaxParticipants *int
}

func (p GamePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil && p.MaxParticipants == nil
}

func (p GamePatch) Validate() error {
	if p.Empty() {
		return ErrValidation("at least one field must be provided")
	}
	if p.Title != nil {
		v := strings.TrimSpace(*p.Title)
		if v == "" || len(v) > 120 {
			return ErrValidation("title must be non-empty and <= 120 chars")
		}
	}
	if p.Description != nil && len(*p.Description) > 4000 {
		return ErrValidation("description must be <= 4000 chars")
	}
	if p.Location != nil && len(*p.Location) > 200 {
		return ErrValidation("location must be <= 200 chars")
	}
	if p.MaxParticipants != nil && *p.MaxParticipants < 0 {
		return ErrValidation("max_participants must be >= 0 (0 means unlimited)")
	}
	return nil
}

// Apply copies the set fields onto g. It never touches CurrentParticipants.
func (p GamePatch) Apply(g *Game) {
	if p.Title != nil {
		g.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		g.Description = strings.TrimSpace(*p.Description)
	}
	if p.Location != nil {
		g.Location = strings.TrimSpace(*p.Location)
	}
	if p.MaxParticipants != nil {
		g.MaxParticipants = *p.MaxParticipants
	}
}

// InstanceChange describes one series instance touched by a cascade edit.
type InstanceChange struct {
	GameID  string
	PrevMax int
	NewMax  int
}

// CapacityRaised reports whether the edit opened room for waitlisted players.
func (c InstanceChange) CapacityRaised() bool {
	if c.PrevMax == 0 {
		return false
	}
	return c.NewMax == 0 || c.NewMax > c.PrevMax
}

// MutableByCascade reports whether series-driven edits may touch g at now.
func MutableByCascade(g *Game, now time.Time) bool {
	return g.Status == GameUpcoming && g.ScheduledTime.After(now)
}
