package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Atulx21/SevaConnect/internal/backend"
	"github.com/Atulx21/SevaConnect/internal/backend/redisstore"
	"github.com/Atulx21/SevaConnect/internal/config"
	"github.com/Atulx21/SevaConnect/internal/event"
	handler "github.com/Atulx21/SevaConnect/internal/handler/http"
	"github.com/Atulx21/SevaConnect/internal/repository"
	"github.com/Atulx21/SevaConnect/internal/repository/postgres"
	"github.com/Atulx21/SevaConnect/internal/repository/rest"
	"github.com/Atulx21/SevaConnect/internal/session"
	"github.com/Atulx21/SevaConnect/migrations"
	"github.com/Atulx21/SevaConnect/pkg/database"
	"github.com/Atulx21/SevaConnect/pkg/health"
	"github.com/Atulx21/SevaConnect/pkg/httpclient"
	pkgkafka "github.com/Atulx21/SevaConnect/pkg/kafka"
	"github.com/Atulx21/SevaConnect/pkg/middleware"
	"github.com/Atulx21/SevaConnect/pkg/tracing"
)

// sessionTTL bounds how long persisted session material outlives its last
// write in Redis.
const sessionTTL = 30 * 24 * time.Hour

// App wires together all dependencies and runs the session agent.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	backend        *backend.Client
	manager        *session.Manager
	redis          *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	background context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "kaamconnect-agent",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Backend transport, optionally behind a circuit breaker.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.BackendTimeout
	var doer httpclient.Doer = httpclient.New(httpCfg)
	if cfg.CircuitBreaker {
		doer = httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg),
			httpclient.DefaultCircuitBreakerConfig("backend"), logger)
	}

	// Session storage.
	var storage backend.Storage = backend.NewMemoryStorage()
	var redisStore *redisstore.Storage
	if cfg.SessionStorage == config.StorageRedis {
		a.redis, err = database.NewRedisClient(ctx, database.RedisConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		redisStore = redisstore.New(a.redis, cfg.RedisKeyPrefix, sessionTTL)
		storage = redisStore
		logger.Info("session storage: redis", slog.String("addr", cfg.RedisAddr))
	}

	backendCfg := backend.DefaultConfig(cfg.BackendURL, cfg.BackendAnonKey)
	backendCfg.Auth.AutoRefresh = cfg.AutoRefreshToken
	backendCfg.Auth.RefreshMargin = cfg.TokenRefreshMargin
	a.backend = backend.New(backendCfg, doer, storage, logger)

	// Profile store.
	var profiles repository.ProfileRepository = rest.NewProfileRepository(a.backend.Data)
	if cfg.ProfileStore == config.ProfileStorePostgres {
		a.pool, err = database.NewPostgresPool(ctx, database.DefaultPostgresConfig(cfg.PostgresURL), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		prometheus.MustRegister(database.NewPoolStatsCollector(a.pool))
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)

		if cfg.RunMigrations {
			if err = database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("database migrations completed")
		}
		profiles = postgres.NewProfileRepository(a.pool)
		logger.Info("profile store: postgres")
	}

	// Session audit events.
	opts := session.Options{
		Retry: session.RetryPolicy{
			MaxRetries:  cfg.ProfileFetchMaxRetries,
			BaseBackoff: cfg.ProfileFetchBaseBackoff,
			MaxBackoff:  cfg.ProfileFetchMaxBackoff,
		},
	}
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		opts.Auditor = event.NewProducer(a.producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	a.manager = session.NewManager(a.backend.Auth, profiles, logger.With(slog.String("component", "session")), opts)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("backend", a.backend.Ping)
	if redisStore != nil {
		healthHandler.RegisterNonCritical("redis", redisStore.Ping)
	}
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}
	if a.pool != nil {
		healthHandler.RegisterNonCritical("postgres", a.pool.Ping)
	}

	// HTTP router.
	a.background, a.stop = context.WithCancel(context.Background())
	router := handler.NewRouter(a.background, a.manager, healthHandler, logger,
		middleware.AgentCORSConfig(cfg.CORSAllowedOrigins, cfg.Environment),
		handler.RateLimitConfig{PerMinute: cfg.SignInRatePerMinute, Burst: cfg.SignInBurst},
	)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.BackendTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the session manager and the HTTP server and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.backend.Auth.Run(a.background)
	}()
	go func() {
		defer a.wg.Done()
		a.manager.Start(a.background)
	}()

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. Session manager (later settlements are dropped)
// 2. HTTP server (drain in-flight requests)
// 3. Token refresh loop and auth subscriptions
// 4. Tracer, Kafka producer, Redis and PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Tear down the manager before anything it calls into.
	a.manager.Close()

	// 2. Drain in-flight HTTP requests.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 3. Stop background work.
	a.stop()
	a.wg.Wait()
	a.backend.Auth.Close()

	// 4. Flush spans and release connections.
	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes every external resource that was opened.
func (a *App) release() error {
	var errs []error

	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
