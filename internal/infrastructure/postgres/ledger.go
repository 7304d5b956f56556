package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baechuer/teamup/internal/application/roster"
	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
	pkgctx "github.com/baechuer/teamup/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ roster.Ledger = (*Repository)(nil)

const gameColumns = `
	id::text, group_id, series_id::text, instance_date, title, description, location,
	scheduled_time, status, max_participants, current_participants,
	created_by, created_at, updated_at`

const participantColumns = `
	game_id::text, user_id, status, is_guest, priority_score, waitlist_joined_at,
	attended, registered_at, updated_at`

// Repository is the Postgres-backed game ledger.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, lockTimeout: 2 * time.Second}
}

// WithLockTimeout bounds how long a unit waits on another unit's row lock.
// Zero disables the bound.
func (r *Repository) WithLockTimeout(d time.Duration) *Repository {
	r.lockTimeout = d
	return r
}

var errUnknownStatus = errors.New("unknown game status")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.Game, error) {
	var (
		g        domain.Game
		seriesID *string
		status   string
	)
	err := row.Scan(
		&g.ID, &g.GroupID, &seriesID, &g.InstanceDate, &g.Title, &g.Description, &g.Location,
		&g.ScheduledTime, &status, &g.MaxParticipants, &g.CurrentParticipants,
		&g.CreatedBy, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if seriesID != nil {
		g.SeriesID = *seriesID
	}
	if g.InstanceDate != nil {
		d := domain.CivilDate(*g.InstanceDate)
		g.InstanceDate = &d
	}
	g.Status = domain.GameStatus(status)
	if !g.Status.Valid() {
		return nil, fmt.Errorf("game %s: %w %q", g.ID, errUnknownStatus, status)
	}
	g.ScheduledTime = g.ScheduledTime.UTC()
	return &g, nil
}

func scanParticipant(row rowScanner) (*domain.Participant, error) {
	var (
		p      domain.Participant
		status string
	)
	err := row.Scan(
		&p.GameID, &p.UserID, &status, &p.IsGuest, &p.PriorityScore, &p.WaitlistJoinedAt,
		&p.Attended, &p.RegisteredAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.ParticipantStatus(status)
	return &p, nil
}

func collectParticipants(rows pgx.Rows) ([]domain.Participant, error) {
	defer rows.Close()
	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	if !validUUID(gameID) {
		return nil, domain.ErrNotFound("game not found")
	}
	g, err := scanGame(r.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound("game not found")
	}
	if err != nil {
		return nil, mapErr("get game", err)
	}
	return g, nil
}

func (r *Repository) GetParticipant(ctx context.Context, gameID, userID string) (*domain.Participant, error) {
	if !validUUID(gameID) {
		return nil, domain.ErrNotFound("registration not found")
	}
	return getParticipant(ctx, r.pool, gameID, userID, false)
}

func (r *Repository) ListWaitlist(ctx context.Context, gameID string) ([]domain.Participant, error) {
	if _, err := r.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE game_id = $1 AND status = 'WAITLIST'
		ORDER BY priority_score DESC NULLS LAST, waitlist_joined_at ASC, user_id ASC
	`, gameID)
	if err != nil {
		return nil, mapErr("list waitlist", err)
	}
	out, err := collectParticipants(rows)
	if err != nil {
		return nil, mapErr("list waitlist", err)
	}
	return out, nil
}

func (r *Repository) SetPriorityOverride(ctx context.Context, groupID, userID string, score *int, now time.Time) error {
	if score == nil {
		_, err := r.pool.Exec(ctx, `DELETE FROM priority_overrides WHERE group_id = $1 AND user_id = $2`, groupID, userID)
		return mapErr("clear override", err)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO priority_overrides (group_id, user_id, score, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id)
		DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at
	`, groupID, userID, *score, now)
	return mapErr("set override", err)
}

// WithGameLock opens a tx, locks the game row and hands the tx to fn.
// Lock order is always games then participants, matching every writer.
func (r *Repository) WithGameLock(ctx context.Context, gameID string, fn func(ctx context.Context, tx roster.LedgerTx, g *domain.Game) error) error {
	if !validUUID(gameID) {
		return domain.ErrNotFound("game not found")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if r.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
			return mapErr("set lock timeout", err)
		}
	}

	g, err := scanGame(tx.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound("game not found")
	}
	if err != nil {
		return mapErr("lock game", err)
	}

	if err := fn(ctx, &ledgerTx{tx: tx, gameID: gameID}, g); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getParticipant(ctx context.Context, q querier, gameID, userID string, lock bool) (*domain.Participant, error) {
	sql := `SELECT ` + participantColumns + ` FROM participants WHERE game_id = $1 AND user_id = $2`
	if lock {
		sql += ` FOR UPDATE`
	}
	p, err := scanParticipant(q.QueryRow(ctx, sql, gameID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound("registration not found")
	}
	if err != nil {
		return nil, mapErr("get participant", err)
	}
	return p, nil
}

type ledgerTx struct {
	tx     pgx.Tx
	gameID string
}

func (t *ledgerTx) GetParticipant(ctx context.Context, userID string) (*domain.Participant, error) {
	return getParticipant(ctx, t.tx, t.gameID, userID, true)
}

func (t *ledgerTx) SaveParticipant(ctx context.Context, p *domain.Participant) error {
	if p.GameID != t.gameID {
		return domain.ErrPersistence("participant belongs to another game", nil)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO participants
			(game_id, user_id, status, is_guest, priority_score, waitlist_joined_at, attended, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (game_id, user_id) DO UPDATE SET
			status             = EXCLUDED.status,
			is_guest           = EXCLUDED.is_guest,
			priority_score     = EXCLUDED.priority_score,
			waitlist_joined_at = EXCLUDED.waitlist_joined_at,
			attended           = EXCLUDED.attended,
			updated_at         = EXCLUDED.updated_at
	`, p.GameID, p.UserID, string(p.Status), p.IsGuest, p.PriorityScore, p.WaitlistJoinedAt,
		p.Attended, p.RegisteredAt, p.UpdatedAt)
	return mapErr("save participant", err)
}

func (t *ledgerTx) SaveGame(ctx context.Context, g *domain.Game) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE games SET
			title = $2, description = $3, location = $4, status = $5,
			max_participants = $6, current_participants = $7, updated_at = $8
		WHERE id = $1
	`, g.ID, g.Title, g.Description, g.Location, string(g.Status),
		g.MaxParticipants, g.CurrentParticipants, g.UpdatedAt)
	return mapErr("save game", err)
}

func (t *ledgerTx) NextWaitlisted(ctx context.Context) (*domain.Participant, error) {
	p, err := scanParticipant(t.tx.QueryRow(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE game_id = $1 AND status = 'WAITLIST'
		ORDER BY priority_score DESC NULLS LAST, waitlist_joined_at ASC, user_id ASC
		LIMIT 1
		FOR UPDATE
	`, t.gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("next waitlisted", err)
	}
	return p, nil
}

func (t *ledgerTx) ListActive(ctx context.Context) ([]domain.Participant, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE game_id = $1 AND status IN ('CONFIRMED', 'WAITLIST')
		ORDER BY registered_at ASC, user_id ASC
		FOR UPDATE
	`, t.gameID)
	if err != nil {
		return nil, mapErr("list active", err)
	}
	out, err := collectParticipants(rows)
	if err != nil {
		return nil, mapErr("list active", err)
	}
	return out, nil
}

func (t *ledgerTx) AttendanceHistory(ctx context.Context, groupID, userID string) (int, int, error) {
	var attended, noShows int
	err := t.tx.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE p.attended),
			COUNT(*) FILTER (WHERE NOT p.attended)
		FROM participants p
		JOIN games g ON g.id = p.game_id
		WHERE g.group_id = $1 AND p.user_id = $2 AND p.attended IS NOT NULL
	`, groupID, userID).Scan(&attended, &noShows)
	if err != nil {
		return 0, 0, mapErr("attendance history", err)
	}
	return attended, noShows, nil
}

func (t *ledgerTx) PriorityOverride(ctx context.Context, groupID, userID string) (*int, error) {
	var score int
	err := t.tx.QueryRow(ctx, `
		SELECT score FROM priority_overrides WHERE group_id = $1 AND user_id = $2
	`, groupID, userID).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("priority override", err)
	}
	return &score, nil
}

func (t *ledgerTx) AppendOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	return insertOutbox(ctx, t.tx, msg)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertOutbox(ctx context.Context, ex execer, msg domain.OutboxMessage) error {
	messageID := uuid.New()
	traceID := strings.TrimSpace(pkgctx.GetTraceID(ctx))
	body, err := json.Marshal(event.Wrap(messageID.String(), traceID, msg.OccurredAt, msg.Payload))
	if err != nil {
		return domain.ErrPersistence("encode outbox payload", err)
	}
	_, err = ex.Exec(ctx, `
		INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status, attempt, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, NOW())
	`, messageID, traceID, msg.RoutingKey, body, msg.OccurredAt)
	return mapErr("append outbox", err)
}
