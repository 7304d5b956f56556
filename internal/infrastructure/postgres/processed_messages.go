package postgres

import (
	"context"
	"strings"
)

func normalizeMarker(messageID, handlerName string) (string, string) {
	messageID = strings.TrimSpace(messageID)
	handlerName = strings.TrimSpace(handlerName)
	if handlerName == "" {
		handlerName = "unknown"
	}
	return messageID, handlerName
}

// AlreadyProcessed reports whether (message_id, handler) has a marker.
// An empty message id is never considered processed.
func (r *Repository) AlreadyProcessed(ctx context.Context, messageID, handlerName string) (bool, error) {
	messageID, handlerName = normalizeMarker(messageID, handlerName)
	if messageID == "" {
		return false, nil
	}
	var seen bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM processed_messages WHERE message_id = $1 AND handler_name = $2
		)
	`, messageID, handlerName).Scan(&seen)
	if err != nil {
		return false, mapErr("processed lookup", err)
	}
	return seen, nil
}

// MarkProcessed writes the marker after the handler succeeded. Handlers are
// idempotent, so a crash between the side effect and the marker only causes
// a harmless replay.
func (r *Repository) MarkProcessed(ctx context.Context, messageID, handlerName string) error {
	messageID, handlerName = normalizeMarker(messageID, handlerName)
	if messageID == "" {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO processed_messages (message_id, handler_name)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, messageID, handlerName)
	return mapErr("mark processed", err)
}
