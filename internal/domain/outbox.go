package domain

import "time"

// OutboxMessage is a domain event written in the same unit as the state
// change it describes. Adapters wrap Payload in the wire envelope.
type OutboxMessage struct {
	RoutingKey string
	Payload    any
	OccurredAt time.Time
}
