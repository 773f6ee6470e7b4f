package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/config"
	"github.com/proyectoio2/back/internal/infra/database"
	kafkainfra "github.com/proyectoio2/back/internal/infra/kafka"
	"github.com/proyectoio2/back/internal/infra/logger"
	"github.com/proyectoio2/back/internal/infra/notify"
	redisinfra "github.com/proyectoio2/back/internal/infra/redis"
	"github.com/proyectoio2/back/internal/infra/scheduler"
	"github.com/proyectoio2/back/internal/infra/security"
	"github.com/proyectoio2/back/internal/infra/storage"
	"github.com/proyectoio2/back/internal/infra/telemetry"
	postgresrepo "github.com/proyectoio2/back/internal/repository/postgres"
	redisrepo "github.com/proyectoio2/back/internal/repository/redis"
	"github.com/proyectoio2/back/internal/transport/http/middleware"
	"github.com/proyectoio2/back/internal/transport/http/routes"
	"github.com/proyectoio2/back/internal/usecase"
)

const defaultShutdownTimeout = 10 * time.Second

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
	tracer    *telemetry.TracerProvider
	scheduler *scheduler.Scheduler
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracer = tracer

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		log.Info("database migrations applied")
	}

	repos := postgresrepo.NewRepositories(pool)

	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}

	codec, err := security.NewJWTCodec(cfg.JWT.SecretKey, cfg.JWT.Algorithm)
	if err != nil {
		return fmt.Errorf("init jwt codec: %w", err)
	}

	policy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:        cfg.Password.MinLength,
		MinStrengthScore: cfg.Password.MinStrengthScore,
	})

	ledger := usecase.NewTokenLedger(repos.Ledger, security.NewTokenDigester(cfg.JWT.SecretKey), map[domain.TokenType]time.Duration{
		domain.TokenTypeAccess:        cfg.JWT.AccessTokenTTL(),
		domain.TokenTypeRefresh:       cfg.JWT.RefreshTokenTTL(),
		domain.TokenTypePasswordReset: cfg.JWT.PasswordResetTokenTTL(),
	})

	notifier, err := notify.New(cfg, log)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}

	var objects port.ObjectStorage
	if cfg.Storage.Configured() {
		spaces, err := storage.NewSpaces(ctx, cfg.Storage, log)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		objects = spaces
	} else {
		log.Info("object storage not configured, image uploads disabled")
	}

	events := a.eventPublisher()

	var rateLimiter *middleware.RateLimiter
	if cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		a.redis = client
		rateLimiter = middleware.NewRateLimiter(redisrepo.NewRateLimitRepository(client.Client(), cfg.Redis.KeyPrefix), log)
	} else {
		log.Info("redis disabled, request rate limiting off")
	}

	authService := usecase.NewAuthService(cfg, repos.Users, repos.Tx, hasher, codec, ledger, events, log)
	authService.WithMetrics(metrics)
	registrationService := usecase.NewRegistrationService(repos.Users, repos.Tx, hasher, policy, notifier, events, log)
	resetService := usecase.NewPasswordResetService(cfg, repos.Users, repos.Tx, hasher, policy, codec, ledger, notifier, events, log)
	resetService.WithMetrics(metrics)
	profileService := usecase.NewProfileService(cfg, repos.Users, repos.Tx, hasher, policy, log)
	storeService := usecase.NewStoreService(cfg, repos.Store, repos.Users, repos.Tx, notifier, events, log)
	storeService.WithMetrics(metrics)
	mediaService := usecase.NewMediaService(cfg, objects, log)

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Gatherer:    registry,
		Database:    pool,
		Services: routes.ServiceSet{
			Auth:          authService,
			Registration:  registrationService,
			Profile:       profileService,
			PasswordReset: resetService,
			Store:         storeService,
			Media:         mediaService,
		},
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine = routes.Register(deps)

	a.scheduler = scheduler.New(log)
	if err := a.scheduler.AddPurge("token_ledger", cfg.Ledger.PurgeSchedule, ledger); err != nil {
		return err
	}

	return nil
}

// eventPublisher falls back to the logging stub when Kafka is off or unreachable.
func (a *Application) eventPublisher() port.EventPublisher {
	cfg, log := a.cfg, a.logger
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.producer = producer
	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App, log)
}

// Run serves HTTP and the maintenance jobs until ctx is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting store API",
			zap.String("env", a.cfg.App.Env),
			zap.String("address", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("run server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		defer a.close(shutdownCtx)

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (a *Application) shutdownTimeout() time.Duration {
	if a.cfg.App.ShutdownTimeout > 0 {
		return a.cfg.App.ShutdownTimeout
	}
	return defaultShutdownTimeout
}

func (a *Application) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown tracer", zap.Error(err))
	}
}
