package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/example/matchbook/internal/application"
	"github.com/example/matchbook/internal/config"
	httptransport "github.com/example/matchbook/internal/http"
	"github.com/example/matchbook/internal/locking"
	"github.com/example/matchbook/internal/metrics"
	"github.com/example/matchbook/internal/persistence/sqlite"
	"github.com/example/matchbook/internal/persistence/sqlite/migration"
	"github.com/example/matchbook/internal/persona"
	"github.com/example/matchbook/internal/repository"
	"github.com/example/matchbook/internal/venue"
)

// app holds the fully wired services behind the HTTP handler.
type app struct {
	handler      http.Handler
	personas     *application.PersonaService
	reservations *application.ReservationService
	catalog      []persona.Persona
	registry     *prometheus.Registry

	closers []func() error
	logger  *slog.Logger
}

// Close releases storage and the Redis client in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlite.Storage, int, error) {
	storage, err := sqlite.OpenWithConfig(migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
	if err != nil {
		return nil, 0, fmt.Errorf("open storage: %w", err)
	}
	applied, err := storage.Migrate(ctx)
	if err != nil {
		_ = storage.Close()
		return nil, 0, fmt.Errorf("apply migrations: %w", err)
	}
	return storage, applied, nil
}

// redisPinger adapts a Redis client to the health check interface.
type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func newLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (application.Locker, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		return locking.NewKeyedMutex(), nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("using redis locker", "addr", cfg.RedisAddr, "ttl", cfg.LockTTL)
	return locking.NewRedisLocker(client, cfg.LockTTL, locking.WithLogger(logger)), client, nil
}

func newRegistry() (*prometheus.Registry, *metrics.Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return nil, nil, fmt.Errorf("register metrics: %w", err)
	}
	return registry, m, nil
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.catalog, err = persona.DefaultCatalog(); err != nil {
		return nil, fmt.Errorf("load persona catalog: %w", err)
	}

	directory, err := venue.Load(cfg.VenueCatalog)
	if err != nil {
		return nil, err
	}

	storage, _, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, storage.Close)

	checks := map[string]httptransport.Pinger{"sqlite": storage}
	locker, redisClient, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		a.closers = append(a.closers, redisClient.Close)
		checks["redis"] = redisPinger{client: redisClient}
	}

	var m *metrics.Metrics
	if a.registry, m, err = newRegistry(); err != nil {
		return nil, err
	}

	now := func() time.Time { return time.Now().UTC() }

	personaStore := repository.NewPersonaStore(storage, nil)
	a.personas = application.NewPersonaServiceWithOptions(
		personaStore,
		personaStore,
		now,
		application.PersonaServiceOptions{
			CacheSize:       cfg.PersonaCacheSize,
			CacheTTL:        cfg.PersonaCacheTTL,
			RankConcurrency: cfg.RankConcurrency,
			Locker:          locker,
			Metrics:         m,
			Logger:          logger,
		},
	)
	a.reservations = application.NewReservationServiceWithOptions(
		repository.NewReservationStore(storage),
		directory,
		uuid.NewString,
		now,
		application.ReservationServiceOptions{
			MaxPartySize: cfg.MaxPartySize,
			Locker:       locker,
			Metrics:      m,
			Logger:       logger,
		},
	)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Personas:     httptransport.NewPersonaHandler(a.personas, logger),
		Scores:       httptransport.NewScoreHandler(a.personas, logger),
		Reservations: httptransport.NewReservationHandler(a.reservations, logger),
		Venues:       httptransport.NewVenueHandler(directory, logger),
		Health:       httptransport.NewHealthHandler(checks, logger),
		Gatherer:     a.registry,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequestMetrics(m),
		},
	})
	return a, nil
}
