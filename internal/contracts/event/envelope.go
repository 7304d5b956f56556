package event

import "time"

const (
	EnvelopeVersion = 1
	Producer        = "game-service"
)

// Routing keys published through the outbox.
const (
	RKParticipantConfirmed   = "participant.confirmed"
	RKParticipantWaitlisted  = "participant.waitlisted"
	RKParticipantPromoted    = "participant.promoted"
	RKParticipantDeclined    = "participant.declined"
	RKGameCanceled           = "game.canceled"
	RKSeriesInstancesCreated = "series.instances_generated"
)

// Routing keys consumed from the group/game management side.
const (
	RKGameCancelRequested = "game.cancel_requested"
	RKGameCapacityChanged = "game.capacity_changed"
)

// DomainEventEnvelope is the canonical envelope on the wire.
// message_id is optional; consumers fall back to a body hash.
type DomainEventEnvelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

type ParticipantPayload struct {
	GameID        string `json:"game_id"`
	GroupID       string `json:"group_id"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
	IsGuest       bool   `json:"is_guest,omitempty"`
	PriorityScore *int   `json:"priority_score,omitempty"`
}

type GameCanceledPayload struct {
	GameID   string `json:"game_id"`
	GroupID  string `json:"group_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Declined int    `json:"declined"`
}

type SeriesInstancesPayload struct {
	SeriesID string   `json:"series_id"`
	GroupID  string   `json:"group_id"`
	GameIDs  []string `json:"game_ids"`
	From     string   `json:"from"`
	To       string   `json:"to"`
}

// GameCancelRequestedPayload accepts both game_id and legacy id.
type GameCancelRequestedPayload struct {
	GameID string `json:"game_id,omitempty"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// GameCapacityChangedPayload uses a pointer so a missing field is detectable.
type GameCapacityChangedPayload struct {
	GameID          string `json:"game_id"`
	MaxParticipants *int   `json:"max_participants,omitempty"`
}

// Wrap builds the envelope an outbox row carries.
func Wrap(messageID, traceID string, occurredAt time.Time, payload any) DomainEventEnvelope[any] {
	return DomainEventEnvelope[any]{
		Version:    EnvelopeVersion,
		Producer:   Producer,
		TraceID:    traceID,
		MessageID:  messageID,
		OccurredAt: occurredAt.UTC(),
		Payload:    payload,
	}
}
