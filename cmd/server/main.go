// Command server wires every ridecore package into an HTTP process: the
// Persistence Store, Geo Index, Update Bus, Lock Service, Idempotency
// Store, Location Ingest Pipeline, Ride Engine, Payment Settlement, and the
// chi-based API layer, the same shape the teacher's cmd/server main.go uses
// around internal/dispatch, retargeted at the new core packages.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ridecore/internal/api"
	"ridecore/internal/bus"
	"ridecore/internal/config"
	"ridecore/internal/geo"
	"ridecore/internal/idempotency"
	"ridecore/internal/location"
	"ridecore/internal/lockservice"
	"ridecore/internal/metrics"
	"ridecore/internal/payment"
	"ridecore/internal/ride"
	"ridecore/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := storage.DefaultPool(ctx, cfg.Postgres.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	if err := storage.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	store := storage.NewPostgres(pool)

	identities := storage.NewIdentityStore(pool)
	if err := identities.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply identity schema")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	var geoIdx geo.Index
	var locks lockservice.Service
	var idem idempotency.Store
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, falling back to in-memory geo/lock/idempotency backends")
		geoIdx = geo.NewInMemoryGeo()
		locks = lockservice.NewMemoryLock()
		idem = idempotency.NewMemoryStore()
	} else {
		geoIdx = geo.NewRedisIndex(redisClient)
		locks = lockservice.NewRedisLock(redisClient)
		idem = idempotency.NewRedisStore(redisClient)
	}

	b := bus.New()

	matchCfg := ride.Config{
		MaxAttempts:    cfg.Matching.MaxAttempts,
		SearchRadiusKM: cfg.Matching.SearchRadiusKM,
		SearchLimit:    cfg.Matching.SearchLimit,
		Backoff:        cfg.Matching.Backoff,
		MatchLockTTL:   cfg.Matching.LockTTL,
		DefaultRegion:  cfg.Matching.DefaultRegion,
		TierTieBreakKM: cfg.Matching.TierTieBreakKM,
	}
	engine := ride.NewEngine(matchCfg, store, geoIdx, locks, b)

	reg := metrics.New(prometheus.DefaultRegisterer)

	pipelineCfg := location.Config{
		BatchSize:     cfg.Location.BatchSize,
		BatchInterval: cfg.Location.BatchInterval,
		HighWaterMark: cfg.Location.HighWaterMark,
	}
	pipeline := location.New(pipelineCfg, geoIdx, store, b, engine, metrics.NewLocationAdapter(reg))
	pipeline.Start()
	defer pipeline.Stop()

	settlement := payment.NewSettlement(store, idem, payment.NewMockGateway())

	r := chi.NewRouter()
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	api.AttachRoutes(r, engine, settlement, pipeline, b, identities, reg, 720*time.Hour)

	server := &http.Server{
		Addr:              cfg.Server.ServerAddr(),
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", server.Addr).Msg("ridecore server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
