package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/homecare-notify/internal/config"
	auditHandler "github.com/jwalitptl/homecare-notify/internal/handler/audit"
	cronHandler "github.com/jwalitptl/homecare-notify/internal/handler/cron"
	"github.com/jwalitptl/homecare-notify/internal/handler/health"
	notificationHandler "github.com/jwalitptl/homecare-notify/internal/handler/notification"
	metricsHandler "github.com/jwalitptl/homecare-notify/internal/handler/prometheus"
	"github.com/jwalitptl/homecare-notify/internal/middleware"
	"github.com/jwalitptl/homecare-notify/internal/provider"
	"github.com/jwalitptl/homecare-notify/internal/repository/postgres"
	"github.com/jwalitptl/homecare-notify/internal/router"
	"github.com/jwalitptl/homecare-notify/internal/service/audit"
	"github.com/jwalitptl/homecare-notify/internal/service/notification"
	"github.com/jwalitptl/homecare-notify/internal/worker"
	"github.com/jwalitptl/homecare-notify/pkg/logger"
	"github.com/jwalitptl/homecare-notify/pkg/messaging"
	"github.com/jwalitptl/homecare-notify/pkg/messaging/redis"
	"github.com/jwalitptl/homecare-notify/pkg/metrics"
)

const metricsNamespace = "homecare"

// App owns every long lived component of one process.
type App struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            *sqlx.DB
	Metrics       *metrics.Metrics
	Registry      *prometheus.Registry
	Notifications *notification.Service
	Audit         *audit.Service
	Processor     *notification.Processor
	Scheduler     *worker.Scheduler
	AuditCleanup  *worker.AuditCleanupWorker

	broker messaging.Broker
}

// NewLogger builds the process logger from configuration and installs it globally.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Console,
	})
	logger.SetGlobal(l)
	return l
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(metricsNamespace, a.Registry)

	providers, err := provider.NewRegistry(ctx, cfg.Providers, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure providers: %w", err)
	}

	publisher, err := a.newPublisher(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	base := postgres.NewBaseRepository(db)
	queueRepo := postgres.NewQueueRepository(base)
	logRepo := postgres.NewBatchLogRepository(base)
	auditSvc := audit.NewService(postgres.NewAuditRepository(base))
	a.Audit = auditSvc

	a.Notifications = notification.NewService(
		notification.NewResolver(postgres.NewContactRepository(base)),
		queueRepo,
		logRepo,
		auditSvc,
		providers,
		publisher,
		a.Metrics,
		log,
		notification.Config{
			MaxAttempts:   cfg.Worker.MaxAttempts,
			StatsCacheTTL: cfg.Worker.StatsCacheTTL,
		},
	)
	a.Processor = notification.NewProcessor(
		queueRepo,
		logRepo,
		providers,
		publisher,
		a.Metrics,
		log,
		notification.ProcessorConfig{
			RetryDelay:  cfg.Worker.RetryDelay,
			Concurrency: cfg.Worker.Concurrency,
		},
	)
	a.Scheduler = worker.NewScheduler(a.Processor, worker.SchedulerConfig{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		StuckTimeout: cfg.Worker.StuckTimeout,
	}, log)
	a.AuditCleanup = worker.NewAuditCleanupWorker(
		auditSvc,
		cfg.Worker.AuditRetentionDays,
		cfg.Worker.AuditCleanupInterval,
		log,
	)

	return a, nil
}

// newPublisher connects the event broker when redis is configured.
func (a *App) newPublisher(ctx context.Context) (messaging.Publisher, error) {
	if a.Config.Redis.URL == "" {
		a.Logger.Info("Redis not configured, delivery events are not published")
		return messaging.NopPublisher{}, nil
	}

	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          a.Config.Redis.URL,
		MaxRetries:   a.Config.Redis.MaxRetries,
		RetryBackoff: a.Config.Redis.RetryBackoff,
		PoolSize:     a.Config.Redis.PoolSize,
		MinIdleConns: a.Config.Redis.MinIdleConns,
	}, a.Logger.ZL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.broker = broker
	return messaging.NewBrokerPublisher(broker, a.Config.Redis.Channel), nil
}

// Events subscribes to the delivery event channel. It returns a nil channel when no
// broker is configured.
func (a *App) Events(ctx context.Context) (<-chan []byte, error) {
	if a.broker == nil {
		return nil, nil
	}
	return a.broker.Subscribe(ctx, a.Config.Redis.Channel)
}

// Router builds the admin API with the cron endpoint, health checks and metrics.
func (a *App) Router() (*router.Router, error) {
	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(a.Config.JWT.Secret, a.Config.JWT.CookieName),
		health.NewHandler(a.DB),
		cronHandler.NewHandler(a.Scheduler, a.Notifications, cronHandler.Config{
			DefaultBatch: a.Config.Worker.BatchSize,
			MaxBatch:     a.Config.Worker.MaxBatchSize,
		}),
		notificationHandler.NewHandler(a.Notifications),
		auditHandler.NewHandler(a.Audit),
		metricsHandler.New(a.Registry, a.Metrics),
		router.RouterConfig{
			CronSecret:    a.Config.Cron.Secret,
			CronRateLimit: rate.Limit(a.Config.Cron.RequestsPerSecond),
			CronRateBurst: a.Config.Cron.Burst,
			Release:       !a.Config.IsDevelopment(),
		},
	)
	r.Setup()
	return r, nil
}

// HealthRouter serves only health checks and metrics. The standalone worker uses it.
func (a *App) HealthRouter() *gin.Engine {
	if !a.Config.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.ContextWithFallback = true
	engine.Use(middleware.Recovery())
	health.NewHandler(a.DB).RegisterRoutes(engine.Group(""))
	metricsHandler.New(a.Registry, a.Metrics).RegisterRoutes(engine.Group(""))
	return engine
}

// Close stops the scheduler, waiting for an in-flight run, then releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Scheduler.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker: %w", err))
		}
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	return errors.Join(errs...)
}
