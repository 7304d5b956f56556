package domain

import "time"

type ParticipantStatus string

const (
	StatusConfirmed ParticipantStatus = "CONFIRMED"
	StatusWaitlist  ParticipantStatus = "WAITLIST"
	StatusDeclined  ParticipantStatus = "DECLINED"
)

// Active reports whether the registration holds a seat or a place in line.
func (s ParticipantStatus) Active() bool {
	return s == StatusConfirmed || s == StatusWaitlist
}

type Participant struct {
	GameID  string
	UserID  string
	Status  ParticipantStatus
	IsGuest bool

	// PriorityScore is stamped when the participant enters the waitlist and
	// kept afterwards so promotion order stays stable.
	PriorityScore    *int
	WaitlistJoinedAt *time.Time

	Attended *bool

	RegisteredAt time.Time
	UpdatedAt    time.Time
}

func (p *Participant) Score() int {
	if p.PriorityScore == nil {
		return 0
	}
	return *p.PriorityScore
}

// WaitlistLess orders waitlisted participants: score desc, joined asc, user asc.
func WaitlistLess(a, b *Participant) bool {
	if sa, sb := a.Score(), b.Score(); sa != sb {
		return sa > sb
	}
	ja, jb := joinedAt(a), joinedAt(b)
	if !ja.Equal(jb) {
		return ja.Before(jb)
	}
	return a.UserID < b.UserID
}

func joinedAt(p *Participant) time.Time {
	if p.WaitlistJoinedAt == nil {
		return p.RegisteredAt
	}
	return *p.WaitlistJoinedAt
}

// Admit puts p into the game as CONFIRMED and bumps the counter.
func Admit(g *Game, p *Participant, now time.Time) {
	p.Status = StatusConfirmed
	p.PriorityScore = nil
	p.WaitlistJoinedAt = nil
	p.UpdatedAt = now
	g.CurrentParticipants++
	g.UpdatedAt = now
}

// Waitlist parks p behind the game's confirmed players with the given score.
func Waitlist(p *Participant, score int, now time.Time) {
	s := score
	t := now
	p.Status = StatusWaitlist
	p.PriorityScore = &s
	p.WaitlistJoinedAt = &t
	p.UpdatedAt = now
}

// Promote flips a waitlisted participant to CONFIRMED. The stored score is kept.
func Promote(g *Game, p *Participant, now time.Time) {
	p.Status = StatusConfirmed
	p.UpdatedAt = now
	g.CurrentParticipants++
	g.UpdatedAt = now
}

// Decline releases p's seat or waitlist place. It returns true when a seat was freed.
func Decline(g *Game, p *Participant, now time.Time) bool {
	freed := p.Status == StatusConfirmed
	p.Status = StatusDeclined
	p.WaitlistJoinedAt = nil
	p.UpdatedAt = now
	if freed && g.CurrentParticipants > 0 {
		g.CurrentParticipants--
		g.UpdatedAt = now
	}
	return freed
}

// PriorityStatus is a user's standing in one game.
type PriorityStatus struct {
	GameID            string            `json:"game_id"`
	UserID            string            `json:"user_id"`
	Status            ParticipantStatus `json:"status"`
	PriorityScore     int               `json:"priority_score"`
	EstimatedPosition int               `json:"estimated_position"`
	TotalWaitlisted   int               `json:"total_waitlisted"`
}

// NewPriorityStatus positions p inside an already ordered waitlist.
// EstimatedPosition is 1-based and 0 when p is not waitlisted.
func NewPriorityStatus(p *Participant, ordered []Participant) PriorityStatus {
	st := PriorityStatus{
		GameID:          p.GameID,
		UserID:          p.UserID,
		Status:          p.Status,
		PriorityScore:   p.Score(),
		TotalWaitlisted: len(ordered),
	}
	if p.Status != StatusWaitlist {
		return st
	}
	for i := range ordered {
		if ordered[i].UserID == p.UserID {
			st.EstimatedPosition = i + 1
			break
		}
	}
	return st
}

// Attendance is one entry of a result sheet.
type Attendance struct {
	UserID   string
	Attended bool
}
