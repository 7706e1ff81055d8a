package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arklim/srm-service/internal/core/port"
	"github.com/arklim/srm-service/internal/infra/catalog"
	"github.com/arklim/srm-service/internal/infra/config"
	"github.com/arklim/srm-service/internal/infra/database"
	kafkainfra "github.com/arklim/srm-service/internal/infra/kafka"
	"github.com/arklim/srm-service/internal/infra/logger"
	redisinfra "github.com/arklim/srm-service/internal/infra/redis"
	"github.com/arklim/srm-service/internal/infra/security"
	"github.com/arklim/srm-service/internal/infra/telemetry"
	postgresrepo "github.com/arklim/srm-service/internal/repository/postgres"
	redisrepo "github.com/arklim/srm-service/internal/repository/redis"
	"github.com/arklim/srm-service/internal/transport/http/middleware"
	"github.com/arklim/srm-service/internal/transport/http/routes"
	"github.com/arklim/srm-service/internal/usecase"
)

// Application owns the HTTP server and every long-lived connection.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	tracer   *telemetry.TracerProvider
	producer *kafkainfra.Producer
	consumer *kafkainfra.ConsumerGroup
}

// New wires configuration into repositories, services and routes.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	application := &Application{cfg: cfg, logger: log}
	ok := false
	defer func() {
		if !ok {
			application.close()
		}
	}()

	application.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	application.pool, err = database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	application.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	tokens, err := newTokenManager(cfg, log)
	if err != nil {
		return nil, err
	}

	repos := postgresrepo.NewRepositories(application.pool)
	permissionCatalog := catalog.New(cfg.Authorization.ExtraFunctions, cfg.Authorization.ExtraRoles)
	log.Info("permission catalog loaded", zap.Strings("functions", permissionCatalog.Functions()))
	authorizationCache := redisrepo.NewAuthorizationCache(application.redis.Client(), cfg.Redis.AuthorizationPrefix)

	taggingMetrics, err := telemetry.NewTaggingMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init tagging metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		SkipRoutes: []string{"/healthz", "/readyz", "/metrics"},
	})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	authorizationService := usecase.NewAuthorizationService(permissionCatalog, repos.Memberships, repos.Users, log).
		WithCache(authorizationCache, cfg.Authorization.CacheTTL)

	eventPublisher := application.newEventPublisher(authorizationService)

	tagService := usecase.NewTagService(repos.Tags, log).
		WithEventPublisher(eventPublisher).
		WithRecorder(taggingMetrics)
	buyerAssignmentService := usecase.NewBuyerAssignmentService(repos.Users, repos.Tags, repos.BuyerAssignments, log).
		WithEventPublisher(eventPublisher).
		WithRecorder(taggingMetrics)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitStore(application.redis.Client(), cfg.Redis.RateLimitPrefix, rateLimitWindow*2)

	application.engine = routes.Register(routes.Dependencies{
		Config:        cfg,
		Logger:        log,
		RateLimiter:   middleware.NewRateLimiter(rateLimitStore, log),
		TokenVerifier: tokens,
		HTTPMetrics:   httpMetrics,
		Database:      application.pool,
		Cache:         application.redis,
		Services: routes.ServiceSet{
			Authorization:    authorizationService,
			Tags:             tagService,
			BuyerAssignments: buyerAssignmentService,
		},
	})

	ok = true
	return application, nil
}

// newEventPublisher connects the Kafka producer and membership consumer when Kafka is enabled.
// Connection failures degrade to the logging publisher.
func (a *Application) newEventPublisher(invalidator kafkainfra.AuthorizationInvalidator) port.EventPublisher {
	cfg := a.cfg.Kafka
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		a.logger.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(cfg, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer

	if cfg.ConsumerGroup != "" && cfg.MembershipTopic != "" {
		consumer, err := kafkainfra.NewConsumerGroup(cfg, kafkainfra.NewMembershipConsumer(invalidator, a.logger), a.logger)
		if err != nil {
			a.logger.Warn("failed to init membership consumer, cached payloads expire by ttl only", zap.Error(err))
		} else {
			a.consumer = consumer
		}
	}

	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

func newTokenManager(cfg *config.AppConfig, log *zap.Logger) (*security.TokenManager, error) {
	jwtCfg := cfg.JWT
	if jwtCfg.Secret == "" && cfg.App.Env != "production" {
		log.Warn("jwt.secret not set, using an ephemeral secret; tokens will not survive restarts")
		jwtCfg.Secret = uuid.NewString() + uuid.NewString()
	}

	tokens, err := security.NewTokenManager(jwtCfg)
	if err != nil {
		return nil, fmt.Errorf("init token manager: %w", err)
	}
	return tokens, nil
}

// Run serves HTTP and consumes membership events until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting SRM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("run server: %w", err)
		}
		return nil
	})

	if a.consumer != nil {
		group.Go(func() error {
			return a.consumer.Run(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()

		timeout := a.cfg.App.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})

	return group.Wait()
}

func (a *Application) close() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Warn("close consumer", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		_ = a.tracer.Shutdown(context.Background())
	}
}
