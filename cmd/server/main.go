package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iho/balanceledger/internal/adapter/commit"
	httpAdapter "github.com/iho/balanceledger/internal/adapter/http"
	"github.com/iho/balanceledger/internal/adapter/http/handler"
	"github.com/iho/balanceledger/internal/adapter/http/middleware"
	"github.com/iho/balanceledger/internal/adapter/repository/idgen"
	"github.com/iho/balanceledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/balanceledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/balanceledger/internal/adapter/repository/redis"
	"github.com/iho/balanceledger/internal/adapter/repository/sqlite"
	"github.com/iho/balanceledger/internal/infrastructure/auth"
	"github.com/iho/balanceledger/internal/infrastructure/config"
	"github.com/iho/balanceledger/internal/infrastructure/eventpublisher"
	"github.com/iho/balanceledger/internal/infrastructure/logger"
	"github.com/iho/balanceledger/internal/infrastructure/metrics"
	"github.com/iho/balanceledger/internal/infrastructure/postgres"
	"github.com/iho/balanceledger/internal/infrastructure/redis"
	"github.com/iho/balanceledger/internal/usecase"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.SetGlobal(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, appLogger zerolog.Logger) error {
	ids := idgen.NewULIDGenerator()

	b, err := openBackend(ctx, cfg, ids)
	if err != nil {
		return err
	}
	defer b.close()
	log.Info().Str("driver", cfg.StorageDriver).Msg("storage ready")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var redisClient *goredis.Client
	if cfg.CacheEnabled || cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL, redis.Options{DialTimeout: 5 * time.Second})
		if err != nil {
			if cfg.CacheEnabled {
				return err
			}
			// Redis only backs idempotency keys here; run without them.
			log.Warn().Err(err).Msg("redis unavailable, idempotency keys disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
			b.checkers = append(b.checkers, redis.NewChecker(redisClient))
			log.Info().Msg("connected to redis")
		}
	}

	store, authority := decorate(b, cfg, m, redisClient)
	balanceUC := usecase.NewBalanceUseCase(store, authority, b.history, idgen.NewUUIDGenerator(), ids, usecase.NewNodeIdentity(cfg.NodeIdentity))
	ledgerUC := usecase.NewLedgerUseCase(b.history)

	routerCfg := httpAdapter.RouterConfig{
		BalanceHandler: handler.NewBalanceHandler(balanceUC),
		LedgerHandler:  handler.NewLedgerHandler(ledgerUC, m),
		HealthHandler:  handler.NewHealthHandler(b.checkers...),
		Logger:         appLogger,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		IdempotencyTTL: cfg.IdempotencyTTL,
		JWTManager:     jwtManager(cfg),
	}
	if redisClient != nil {
		routerCfg.IdempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
	}
	if cfg.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
		go limiter.RunCleanup(ctx, 10*time.Minute)
		routerCfg.RateLimiter = limiter
	}

	if cfg.EventsEnabled {
		publisher, closePublisher, err := newPublisher(ctx, cfg, appLogger)
		if err != nil {
			return err
		}
		defer closePublisher()

		ep := eventpublisher.NewEventPublisher(eventpublisher.Config{
			OutboxRepo: b.outbox,
			Publisher:  publisher,
			Logger:     appLogger,
			Metrics:    m,
			BatchSize:  cfg.EventsBatchSize,
			Interval:   cfg.EventsInterval,
			Retention:  cfg.EventsRetention,
		})
		go func() {
			if err := ep.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("event publisher stopped")
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      httpAdapter.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	return nil
}

// backend is the storage selected by STORAGE_DRIVER.
type backend struct {
	store     usecase.RecordStore
	authority usecase.CommitAuthority
	history   usecase.HistoryReader
	outbox    usecase.OutboxRepository
	checkers  []handler.Checker
	close     func()
}

func openBackend(ctx context.Context, cfg *config.Config, eventIDs usecase.IDGenerator) (*backend, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		s := memory.NewStore(eventIDs)
		return &backend{store: s, authority: s, history: s, outbox: s, close: func() {}}, nil

	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s := sqlite.NewStore(db, eventIDs)
		return &backend{
			store:     s,
			authority: s,
			history:   s,
			outbox:    s,
			checkers:  []handler.Checker{handler.CheckFunc{Label: "sqlite", Fn: db.PingContext}},
			close:     func() { db.Close() },
		}, nil

	case config.StoragePostgres:
		if cfg.AutoMigrate {
			if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
				return nil, err
			}
		}

		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MaxConns:       cfg.DatabaseMaxConns,
			MinConns:       cfg.DatabaseMinConns,
			ConnectTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			return nil, err
		}
		repo := postgresRepo.NewBalanceRepository(pool, eventIDs)
		return &backend{
			store:     repo,
			authority: repo,
			history:   repo,
			outbox:    postgresRepo.NewOutboxRepository(pool),
			checkers:  []handler.Checker{handler.CheckFunc{Label: "postgres", Fn: pool.Ping}},
			close:     pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// decorate wraps the backend's authority with the circuit breaker and
// metrics, and puts the Redis cache in front when enabled.
func decorate(b *backend, cfg *config.Config, m *metrics.Metrics, client *goredis.Client) (usecase.RecordStore, usecase.CommitAuthority) {
	var authority usecase.CommitAuthority = commit.NewBreakerAuthority(b.authority, breakerConfig(cfg), m)
	authority = commit.NewInstrumentedAuthority(authority, m)

	if !cfg.CacheEnabled || client == nil {
		return b.store, authority
	}

	cached := redisRepo.NewCachedStore(b.store, authority, client, cfg.CacheTTL)
	return cached, cached
}

func breakerConfig(cfg *config.Config) commit.BreakerConfig {
	bc := commit.DefaultBreakerConfig()
	if cfg.BreakerFailures > 0 {
		bc.ConsecutiveFailures = cfg.BreakerFailures
	}
	if cfg.BreakerOpenTimeout > 0 {
		bc.Timeout = cfg.BreakerOpenTimeout
	}
	return bc
}

func jwtManager(cfg *config.Config) *auth.JWTManager {
	if !cfg.AuthEnabled {
		return nil
	}
	return auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
}

// newPublisher publishes to JetStream when NATS_URL is set and logs events
// otherwise.
func newPublisher(ctx context.Context, cfg *config.Config, l zerolog.Logger) (eventpublisher.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return eventpublisher.NewLogPublisher(l), func() {}, nil
	}

	nc, js, err := eventpublisher.ConnectJetStream(ctx, cfg.NATSURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("url", cfg.NATSURL).Str("stream", eventpublisher.StreamName).Msg("connected to nats")

	return eventpublisher.NewNATSPublisher(js), func() { drain(nc) }, nil
}

func drain(nc *nats.Conn) {
	if err := nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain nats connection")
	}
}
