package memory

import (
	"time"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/google/uuid"
)

// Demo is what Seed created, for logging on startup.
type Demo struct {
	GroupID   string
	ManagerID string
	MemberIDs []string
	GameID    string
}

// Seed loads a small group with one upcoming game so a dev server has
// something to register against.
func Seed(s *Store, now time.Time) Demo {
	d := Demo{
		GroupID:   uuid.NewString(),
		ManagerID: uuid.NewString(),
		GameID:    uuid.NewString(),
	}
	s.AddMember(d.GroupID, d.ManagerID, RoleOwner, now.AddDate(-2, 0, 0))
	for i := 0; i < 4; i++ {
		id := uuid.NewString()
		s.AddMember(d.GroupID, id, RoleMember, now.AddDate(0, -3*(i+1), 0))
		d.MemberIDs = append(d.MemberIDs, id)
	}

	s.PutGame(domain.Game{
		ID:              d.GameID,
		GroupID:         d.GroupID,
		Title:           "Saturday pickup",
		Location:        "Centennial Park, field 3",
		ScheduledTime:   now.Add(72 * time.Hour).Truncate(time.Hour),
		Status:          domain.GameUpcoming,
		MaxParticipants: 2,
		CreatedBy:       d.ManagerID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	return d
}
