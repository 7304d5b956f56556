package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baechuer/teamup/internal/application/access"
	"github.com/baechuer/teamup/internal/application/roster"
	"github.com/baechuer/teamup/internal/application/series"
	"github.com/baechuer/teamup/internal/audit"
	"github.com/baechuer/teamup/internal/config"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/infrastructure/memory"
	"github.com/baechuer/teamup/internal/infrastructure/postgres"
	"github.com/baechuer/teamup/internal/infrastructure/queue"
	"github.com/baechuer/teamup/internal/infrastructure/rabbitmq"
	"github.com/baechuer/teamup/internal/infrastructure/redis"
	"github.com/baechuer/teamup/internal/infrastructure/sqlstore"
	"github.com/baechuer/teamup/internal/logger"
	"github.com/baechuer/teamup/internal/security"
	"github.com/baechuer/teamup/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// backend is everything the services need from storage.
type backend struct {
	ledger  roster.Ledger
	members access.Membership
	series  series.Repo

	// postgres only
	pg   *postgres.Repository
	pool *pgxpool.Pool

	ready func(ctx context.Context) error
	close func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		NoColor: !cfg.LogColor,
		Caller:  cfg.LogCaller,
	})
	log := logger.Logger.With().
		Str("env", cfg.AppEnv).
		Str("store", cfg.StoreBackend).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var be *backend
	if cfg.StoreBackend == config.BackendMemory {
		be = memoryBackend(cfg, log)
	} else {
		be = postgresBackend(rootCtx, cfg, log)
	}
	defer be.close()

	al := audit.New(logger.Logger)
	clock := realClock{}

	// ---- Redis ----
	var (
		capCache roster.CapacityCache
		limiter  rest.RateLimiter
	)
	if cfg.RedisEnabled {
		cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer cache.Client.Close()

		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		if err := cache.Ping(pingCtx); err != nil {
			// roster falls through to the ledger on cache errors and the
			// limiter fails open, so redis stays optional
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
		cancel()
		capCache = cache
		limiter = cache
	}

	// ---- Application services ----
	rosterSvc := roster.New(be.ledger, be.members, clock, capCache, al, roster.Config{
		Weights: domain.PriorityWeights{
			Reliability:  cfg.PriorityReliabilityWeight,
			Seniority:    cfg.PrioritySeniorityWeight,
			HalfLifeDays: cfg.PriorityHalfLifeDays,
			Neutral:      cfg.PriorityNeutral,
		},
		MaxRetries:     cfg.LedgerMaxRetries,
		RetryBaseDelay: cfg.LedgerRetryBase,
		OpTimeout:      cfg.LedgerOpTimeout,
	})
	seriesSvc := series.New(be.series, be.members, rosterSvc, clock, al)

	// ---- Messaging ----
	if be.pg != nil {
		if cfg.OutboxEnabled {
			be.pg.StartOutboxWorker(rootCtx, cfg.RabbitURL, cfg.RabbitExchange, al)
			log.Info().Msg("outbox worker started")
		}
		if cfg.ConsumerEnabled {
			consumer := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitExchange, rosterSvc, be.pg)
			if err := consumer.Start(rootCtx); err != nil {
				log.Error().Err(err).Msg("rabbitmq consumer start failed (continuing without inbound commands)")
			}
		}
	}

	// ---- Series horizon ----
	var riverSvc *queue.Service
	if be.pool != nil && cfg.RiverEnabled {
		if err := queue.Migrate(rootCtx, be.pool); err != nil {
			log.Fatal().Err(err).Msg("river migrate failed")
		}
		riverSvc, err = queue.NewService(be.pool, seriesSvc, cfg.SeriesHorizonDays, cfg.SeriesHorizonInterval)
		if err != nil {
			log.Fatal().Err(err).Msg("river client create failed")
		}
		if err := riverSvc.Start(rootCtx); err != nil {
			log.Fatal().Err(err).Msg("river start failed")
		}
	} else {
		queue.RunTicker(rootCtx, seriesSvc, cfg.SeriesHorizonDays, cfg.SeriesHorizonInterval)
		log.Info().Dur("interval", cfg.SeriesHorizonInterval).Msg("horizon ticker started")
	}

	// ---- HTTP ----
	verifier := security.NewHS256Verifier(cfg.JWTSecret, cfg.JWTIssuer)
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Handler:   rest.NewHandler(rosterSvc, seriesSvc),
		Verifier:  verifier,
		JWTIssuer: cfg.JWTIssuer,
		Limiter:   limiter,
		RLEnabled: cfg.RLEnabled,
		RLLimit:   cfg.RLLimit,
		RLWindow:  cfg.RLWindow,
		Ready:     be.ready,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if riverSvc != nil {
		if err := riverSvc.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("river stop failed")
		}
	}
	log.Info().Msg("shutdown complete")
}

func memoryBackend(cfg *config.Config, log zerolog.Logger) *backend {
	store := memory.NewStore()
	if cfg.SeedDemo {
		demo := memory.Seed(store, time.Now().UTC())
		log.Info().
			Str("group_id", demo.GroupID).
			Str("manager_id", demo.ManagerID).
			Strs("member_ids", demo.MemberIDs).
			Str("game_id", demo.GameID).
			Msg("demo data seeded")
	}
	return &backend{
		ledger:  store,
		members: store,
		series:  store,
		ready:   func(context.Context) error { return nil },
		close:   func() {},
	}
}

func postgresBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) *backend {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	{
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
	}
	log.Info().Msg("postgres connected")

	// lib/pq registers the "postgres" driver through sqlstore
	sqlDB, err := sql.Open("postgres", cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database/sql open failed")
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	repo := postgres.New(pool).WithLockTimeout(cfg.LedgerLockTimeout)
	return &backend{
		ledger:  repo,
		members: repo,
		series:  sqlstore.New(sqlDB),
		pg:      repo,
		pool:    pool,
		ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return sqlDB.PingContext(ctx)
		},
		close: func() {
			_ = sqlDB.Close()
			pool.Close()
		},
	}
}
