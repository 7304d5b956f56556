//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/teamup/internal/application/roster"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/infrastructure/postgres"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func setupRepo(t *testing.T) (*postgres.Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("teamup"),
		tcpostgres.WithUsername("teamup"),
		tcpostgres.WithPassword("teamup"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("Skipping integration test: postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://../../../migrations", dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return postgres.New(pool), pool
}

func insertGame(t *testing.T, pool *pgxpool.Pool, groupID string, max int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO games (id, group_id, title, scheduled_time, max_participants, created_by)
		VALUES ($1, $2, 'Thursday futsal', NOW() + INTERVAL '2 days', $3, 'mgr')
	`, id, groupID, max)
	require.NoError(t, err)
	return id
}

func TestConcurrentRegister_DoesNotOversellCapacity(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	groupID := uuid.NewString()
	gameID := insertGame(t, pool, groupID, 5)

	svc := roster.New(repo, repo, wallClock{}, nil, nil, roster.Config{MaxRetries: 5, RetryBaseDelay: 5 * time.Millisecond})

	n := 30
	users := make([]string, n)
	for i := range users {
		users[i] = uuid.NewString()
		require.NoError(t, repo.UpsertMember(ctx, groupID, users[i], "member", time.Now().AddDate(-1, 0, 0)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, u := range users {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			_, err := svc.Register(ctx, domain.Actor{UserID: uid}, gameID, "", false)
			errs <- err
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var confirmed, waitlisted, counter int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE game_id=$1 AND status='CONFIRMED'`, gameID).Scan(&confirmed))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE game_id=$1 AND status='WAITLIST'`, gameID).Scan(&waitlisted))
	require.NoError(t, pool.QueryRow(ctx, `SELECT current_participants FROM games WHERE id=$1`, gameID).Scan(&counter))

	assert.Equal(t, 5, confirmed)
	assert.Equal(t, n-5, waitlisted)
	assert.Equal(t, confirmed, counter)

	var outbox int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&outbox))
	assert.Equal(t, n, outbox)
}

func TestCancel_PromotesHeadOfWaitlist(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()

	groupID := uuid.NewString()
	gameID := insertGame(t, pool, groupID, 1)
	svc := roster.New(repo, repo, wallClock{}, nil, nil, roster.Config{MaxRetries: 3})

	seated := uuid.NewString()
	veteran := uuid.NewString()
	rookie := uuid.NewString()
	require.NoError(t, repo.UpsertMember(ctx, groupID, seated, "member", time.Now()))
	require.NoError(t, repo.UpsertMember(ctx, groupID, rookie, "member", time.Now()))
	require.NoError(t, repo.UpsertMember(ctx, groupID, veteran, "member", time.Now().AddDate(-5, 0, 0)))
	require.NoError(t, repo.SetPriorityOverride(ctx, groupID, veteran, ptr(95), time.Now()))

	_, err := svc.Register(ctx, domain.Actor{UserID: seated}, gameID, "", false)
	require.NoError(t, err)
	_, err = svc.Register(ctx, domain.Actor{UserID: rookie}, gameID, "", false)
	require.NoError(t, err)
	_, err = svc.Register(ctx, domain.Actor{UserID: veteran}, gameID, "", false)
	require.NoError(t, err)

	wl, err := repo.ListWaitlist(ctx, gameID)
	require.NoError(t, err)
	require.Len(t, wl, 2)
	assert.Equal(t, veteran, wl[0].UserID)

	res, err := svc.Cancel(ctx, domain.Actor{UserID: seated}, gameID, seated)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)

	p, err := repo.GetParticipant(ctx, gameID, veteran)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, p.Status)
	require.NotNil(t, p.PriorityScore)
	assert.Equal(t, 95, *p.PriorityScore)
}

func TestDedupeMarkers(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	seen, err := repo.AlreadyProcessed(ctx, "m-1", "cancel_game")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, repo.MarkProcessed(ctx, "m-1", "cancel_game"))
	require.NoError(t, repo.MarkProcessed(ctx, "m-1", "cancel_game"))

	seen, err = repo.AlreadyProcessed(ctx, "m-1", "cancel_game")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = repo.AlreadyProcessed(ctx, "m-1", "capacity_changed")
	require.NoError(t, err)
	assert.False(t, seen)
}

func ptr(v int) *int { return &v }
