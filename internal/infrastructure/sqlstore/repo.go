// Package sqlstore keeps recurring series in Postgres through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/baechuer/teamup/internal/application/series"
	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
	pkgctx "github.com/baechuer/teamup/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var _ series.Repo = (*Repo)(nil)

type Repo struct {
	db *sql.DB
}

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return domain.ErrConcurrentUpdate("series instances are busy, retry", err)
		}
	}
	return domain.ErrPersistence(op, err)
}

func (r *Repo) Create(ctx context.Context, s *domain.Series) error {
	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	_, err := r.db.ExecContext(ctx, insertSeriesSQL,
		s.ID, s.GroupID, string(s.Frequency), s.DayOfWeek, s.StartDate, s.EndDate,
		s.TimeOfDay.String(), tz,
		s.Template.Title, s.Template.Description, s.Template.Location, s.Template.MaxParticipants,
		s.CreatedBy, s.CreatedAt, s.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return domain.ErrStateConflict("series already exists")
	}
	return persistence("create series", err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSeries(row scanner) (*domain.Series, error) {
	var (
		s         domain.Series
		frequency string
		tod       string
	)
	err := row.Scan(
		&s.ID, &s.GroupID, &frequency, &s.DayOfWeek, &s.StartDate, &s.EndDate, &tod, &s.Timezone,
		&s.Template.Title, &s.Template.Description, &s.Template.Location, &s.Template.MaxParticipants,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Frequency = domain.Frequency(frequency)
	t, err := domain.ParseTimeOfDay(tod)
	if err != nil {
		return nil, fmt.Errorf("series %s: bad time_of_day %q: %w", s.ID, tod, err)
	}
	s.TimeOfDay = &t
	s.StartDate = domain.CivilDate(s.StartDate)
	if s.EndDate != nil {
		end := domain.CivilDate(*s.EndDate)
		s.EndDate = &end
	}
	return &s, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*domain.Series, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound("series not found")
	}
	s, err := scanSeries(r.db.QueryRowContext(ctx, getSeriesSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("series not found")
	}
	if err != nil {
		return nil, persistence("get series", err)
	}
	return s, nil
}

func (r *Repo) ListActive(ctx context.Context) ([]*domain.Series, error) {
	rows, err := r.db.QueryContext(ctx, listActiveSeriesSQL)
	if err != nil {
		return nil, persistence("list series", err)
	}
	defer rows.Close()

	var out []*domain.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, persistence("list series", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list series", err)
	}
	return out, nil
}

func (r *Repo) ExistingDates(ctx context.Context, seriesID string, from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, existingDatesSQL, seriesID, from, to)
	if err != nil {
		return nil, persistence("existing dates", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, persistence("existing dates", err)
		}
		out = append(out, domain.CivilDate(d))
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("existing dates", err)
	}
	return out, nil
}

// InsertInstances writes the batch and its announcement in one tx.
func (r *Repo) InsertInstances(ctx context.Context, games []*domain.Game, announce series.Announce) ([]*domain.Game, error) {
	if len(games) == 0 {
		return []*domain.Game{}, nil
	}
	first := games[0]
	ids := make([]string, 0, len(games))
	dates := make([]string, 0, len(games))
	times := make([]string, 0, len(games))
	byID := make(map[string]*domain.Game, len(games))
	for _, g := range games {
		if g.SeriesID != first.SeriesID || g.InstanceDate == nil {
			return nil, domain.ErrPersistence("instance batch must share one series", nil)
		}
		ids = append(ids, g.ID)
		dates = append(dates, g.InstanceDate.Format(time.DateOnly))
		times = append(times, g.ScheduledTime.UTC().Format(time.RFC3339Nano))
		byID[g.ID] = g
	}

	var inserted []*domain.Game
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, insertInstancesSQL,
			first.GroupID, first.SeriesID, first.Title, first.Description, first.Location,
			first.MaxParticipants, first.CreatedBy, first.CreatedAt,
			pq.Array(ids), pq.Array(dates), pq.Array(times),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		inserted = make([]*domain.Game, 0, len(games))
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			if g, ok := byID[id]; ok {
				inserted = append(inserted, g)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		if announce == nil {
			return nil
		}
		if msg := announce(inserted); msg != nil {
			return insertOutbox(ctx, tx, *msg)
		}
		return nil
	})
	if err != nil {
		return nil, persistence("insert instances", err)
	}
	sortByDate(inserted)
	return inserted, nil
}

func (r *Repo) UpdateSeries(ctx context.Context, s *domain.Series, instances *domain.GamePatch, now time.Time) ([]domain.InstanceChange, error) {
	var changes []domain.InstanceChange
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, updateSeriesSQL,
			s.ID, s.EndDate, s.Template.Title, s.Template.Description, s.Template.Location,
			s.Template.MaxParticipants, s.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound("series not found")
		}
		if instances == nil {
			return nil
		}
		changes, err = patchInstances(ctx, tx, s.ID, *instances, now)
		return err
	})
	if err != nil {
		return nil, persistence("update series", err)
	}
	return changes, nil
}

func (r *Repo) UpdateFutureInstances(ctx context.Context, seriesID string, patch domain.GamePatch, now time.Time) ([]domain.InstanceChange, error) {
	if _, err := r.Get(ctx, seriesID); err != nil {
		return nil, err
	}
	var changes []domain.InstanceChange
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		changes, err = patchInstances(ctx, tx, seriesID, patch, now)
		return err
	})
	if err != nil {
		return nil, persistence("update instances", err)
	}
	return changes, nil
}

// patchInstances locks the mutable instances, applies patch and reports the
// capacity edits so the roster can promote.
func patchInstances(ctx context.Context, tx *sql.Tx, seriesID string, patch domain.GamePatch, now time.Time) ([]domain.InstanceChange, error) {
	rows, err := tx.QueryContext(ctx, selectMutableInstancesSQL, seriesID, now)
	if err != nil {
		return nil, err
	}
	var games []domain.Game
	for rows.Next() {
		var g domain.Game
		if err := rows.Scan(&g.ID, &g.Title, &g.Description, &g.Location, &g.MaxParticipants); err != nil {
			rows.Close()
			return nil, err
		}
		games = append(games, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	changes := make([]domain.InstanceChange, 0, len(games))
	for i := range games {
		g := &games[i]
		prev := g.MaxParticipants
		patch.Apply(g)
		if _, err := tx.ExecContext(ctx, updateInstanceSQL,
			g.ID, g.Title, g.Description, g.Location, g.MaxParticipants, now,
		); err != nil {
			return nil, err
		}
		changes = append(changes, domain.InstanceChange{GameID: g.ID, PrevMax: prev, NewMax: g.MaxParticipants})
	}
	return changes, nil
}

func (r *Repo) DeleteSeries(ctx context.Context, seriesID string, now time.Time, cascade bool) (int, error) {
	if _, err := uuid.Parse(seriesID); err != nil {
		return 0, domain.ErrNotFound("series not found")
	}
	removed := 0
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, softDeleteSeriesSQL, seriesID, now)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound("series not found")
		}
		if !cascade {
			return nil
		}

		rows, err := tx.QueryContext(ctx, lockFutureInstanceIDsSQL, seriesID, now)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		res, err = tx.ExecContext(ctx, deleteFutureInstancesSQL, pq.Array(ids))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		removed = int(n)
		return nil
	})
	if err != nil {
		return 0, persistence("delete series", err)
	}
	return removed, nil
}

func (r *Repo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertOutbox(ctx context.Context, tx *sql.Tx, msg domain.OutboxMessage) error {
	messageID := uuid.NewString()
	traceID := strings.TrimSpace(pkgctx.GetTraceID(ctx))
	body, err := json.Marshal(event.Wrap(messageID, traceID, msg.OccurredAt, msg.Payload))
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}
	// lib/pq sends the body as text and the statement casts it to jsonb
	_, err = tx.ExecContext(ctx, insertOutboxSQL, messageID, traceID, msg.RoutingKey, string(body), msg.OccurredAt.UTC())
	return err
}

func sortByDate(games []*domain.Game) {
	sort.Slice(games, func(i, j int) bool { return games[i].InstanceDate.Before(*games[j].InstanceDate) })
}
