package audit

import (
	"context"
	"time"

	"github.com/baechuer/teamup/internal/domain"
	pkgctx "github.com/baechuer/teamup/internal/pkg/context"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for roster and series changes.
type Logger struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// Nop discards everything. Handy for tests and tools.
func Nop() *Logger { return &Logger{log: zerolog.Nop()} }

func (l *Logger) Registered(ctx context.Context, gameID, userID, actorID string, status domain.ParticipantStatus, score *int) {
	ev := l.log.Info().
		Str("action", "registered").
		Str("game_id", gameID).
		Str("user_id", userID).
		Str("actor_user_id", actorID).
		Str("status", string(status)).
		Str("trace_id", pkgctx.GetTraceID(ctx))
	if score != nil {
		ev = ev.Int("priority_score", *score)
	}
	ev.Msg("Participant registered")
}

func (l *Logger) Declined(ctx context.Context, gameID, userID, actorID string, freedSeat bool) {
	l.log.Info().
		Str("action", "declined").
		Str("game_id", gameID).
		Str("user_id", userID).
		Str("actor_user_id", actorID).
		Bool("freed_seat", freedSeat).
		Str("trace_id", pkgctx.GetTraceID(ctx)).
		Msg("Participant declined")
}

func (l *Logger) Promoted(ctx context.Context, gameID, userID string, score int) {
	l.log.Info().
		Str("action", "promoted").
		Str("game_id", gameID).
		Str("user_id", userID).
		Int("priority_score", score).
		Str("trace_id", pkgctx.GetTraceID(ctx)).
		Msg("Participant promoted from waitlist")
}

func (l *Logger) CapacityChanged(ctx context.Context, gameID, actorID string, prev, next int) {
	l.log.Info().
		Str("action", "capacity_changed").
		Str("game_id", gameID).
		Str("actor_user_id", actorID).
		Int("prev_max", prev).
		Int("new_max", next).
		Str("trace_id", pkgctx.GetTraceID(ctx)).
		Msg("Game capacity changed")
}

func (l *Logger) GameCanceled(ctx context.Context, gameID, actorID, reason string, declined int) {
	l.log.Warn().
		Str("action", "game_canceled").
		Str("game_id", gameID).
		Str("actor_user_id", actorID).
		Str("reason", reason).
		Int("declined", declined).
		Str("trace_id", pkgctx.GetTraceID(ctx)).
		Msg("Game canceled")
}

func (l *Logger) ResultsRecorded(ctx context.Context, gameID, actorID string, attended, noShows int) {
	l.log.Info().
		Str("action", "results_recorded").
		Str("game_id", gameID).
		Str("actor_user_id", actorID).
		Int("attended", attended).
		Int("no_shows", noShows).
		Str("trace_id", pkgctx.GetTraceID(ctx)).
		Msg("Game results recorded")
}

func (l *Logger) OverrideSet(ctx context.Context, groupID, userID, actorID string, score *int) {
	ev := l.log.Info().
		Str("action", "priority_override_set").
		Str("group_id", groupID).
		Str("user_id", userID).
		Str("actor_user_id", actorID).
		Str("trace_id", pkgctx.GetTraceID(ctx))
	if score != nil {
		ev = ev.Int("override", *score)
	} else {
		ev = ev.Bool("cleared", true)
	}
	ev.Msg("Priority override changed")
}

func (l *Logger) SeriesCreated(ctx context.Context, seriesID, groupID, actorID string) {
	l.log.Info().
		Str("action", "series_created").
		Str("series_id", seriesID).
		Str("group_id", groupID).
		Str("actor_user_id", actorID).
		Str("trace_id", pkgctx.GetTraceID(ctx)).
		Msg("Recurring series created")
}

func (l *Logger) InstancesGenerated(ctx context.Context, seriesID, actorID string, from, to time.Time, created int) {
	l.log.Info().
		Str("action", "instances_generated").
		Str("series_id", seriesID).
		Str("actor_user_id", actorID).
		Str("from", from.Format(time.DateOnly)).
		Str("to", to.Format(time.DateOnly)).
		Int("created", created).
		Str("trace_id", pkgctx.GetTraceID(ctx)).
		Msg("Series instances generated")
}

func (l *Logger) SeriesUpdated(ctx context.Context, seriesID, actorID string, instances int) {
	l.log.Info().
		Str("action", "series_updated").
		Str("series_id", seriesID).
		Str("actor_user_id", actorID).
		Int("instances_updated", instances).
		Str("trace_id", pkgctx.GetTraceID(ctx)).
		Msg("Series instances updated")
}

func (l *Logger) SeriesDeleted(ctx context.Context, seriesID, actorID string, cascade bool, removed int) {
	l.log.Warn().
		Str("action", "series_deleted").
		Str("series_id", seriesID).
		Str("actor_user_id", actorID).
		Bool("cascade", cascade).
		Int("instances_deleted", removed).
		Str("trace_id", pkgctx.GetTraceID(ctx)).
		Msg("Recurring series deleted")
}

func (l *Logger) OutboxMessageSent(messageID, routingKey string) {
	l.log.Debug().
		Str("action", "outbox_sent").
		Str("message_id", messageID).
		Str("routing_key", routingKey).
		Msg("Outbox message sent")
}

func (l *Logger) OutboxMessageDead(messageID, routingKey string, retries int) {
	l.log.Error().
		Str("action", "outbox_dead").
		Str("message_id", messageID).
		Str("routing_key", routingKey).
		Int("retries", retries).
		Msg("Outbox message moved to dead status")
}
