package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/scribeflow/resilience/internal/alerting"
	"github.com/scribeflow/resilience/internal/api"
	"github.com/scribeflow/resilience/internal/database"
	"github.com/scribeflow/resilience/internal/redisclient"
	"github.com/scribeflow/resilience/pkg/config"
	"github.com/scribeflow/resilience/pkg/health"
	"github.com/scribeflow/resilience/pkg/logging"
	"github.com/scribeflow/resilience/pkg/metrics"
	"github.com/scribeflow/resilience/pkg/resilience"
	"github.com/scribeflow/resilience/pkg/state"
	"github.com/scribeflow/resilience/pkg/tracing"
)

const serviceVersion = "1.0.0"

func main() {
	// Load environment variables from .env when present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "scribeflow-resilience",
		Version:     serviceVersion,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tracingService, err := tracing.NewService(&tracing.Config{
		ServiceName:    "scribeflow-resilience",
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(&metrics.Config{
			Namespace: cfg.Metrics.Namespace,
			Enabled:   true,
		})
	}

	// Durable state with a dedicated writer goroutine
	store := state.NewManager(state.Config{
		Path:             cfg.State.Path,
		AutosaveInterval: cfg.State.AutosaveInterval,
		SessionMaxAge:    cfg.State.SessionMaxAge,
		ShutdownTimeout:  cfg.Resilience.ShutdownTimeout,
	}, logger)
	store.OnSave = func(err error) {
		m.RecordStateSave(err == nil)
	}

	ctx := context.Background()
	if err := store.Start(ctx); err != nil {
		log.Fatalf("Failed to start state manager: %v", err)
	}

	// Optional database for the session archive
	var db *database.DB
	var archive *database.SessionArchive
	if cfg.Database.Enabled {
		db, err = database.New(&cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := db.Health(healthCtx); err != nil {
			cancel()
			log.Fatalf("Database health check failed: %v", err)
		}
		cancel()

		archive = database.NewSessionArchive(db)
		if err := archive.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to create session archive schema: %v", err)
		}

		log.Println("Database connection established")
	}

	// Optional redis for rate limiting and the durable alert feed
	var redis *redisclient.Client
	if cfg.Redis.Enabled {
		redis, err = redisclient.New(&cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redis.Close()

		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redis.Health(healthCtx); err != nil {
			cancel()
			log.Fatalf("Redis health check failed: %v", err)
		}
		cancel()

		log.Println("Redis connection established")
	}

	// The alert pipeline logs through zap so a slow delivery channel
	// never interferes with application logging
	var zapLogger *zap.Logger
	if cfg.IsProduction() {
		zapLogger, err = zap.NewProduction()
	} else {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize alert logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	channels := []alerting.Channel{alerting.NewLogChannel(zapLogger)}
	if cfg.Alerting.SlackWebhookURL != "" {
		channels = append(channels, alerting.NewSlackChannel(
			cfg.Alerting.SlackWebhookURL,
			cfg.Alerting.SlackUsername,
			cfg.Alerting.SlackChannel,
			zapLogger,
		))
	}
	if redis != nil {
		channels = append(channels, alerting.NewRedisChannel(redis, 100))
	}

	dispatcher := alerting.NewDispatcher(alerting.Config{
		MinSeverity: alerting.ParseSeverity(cfg.Alerting.MinSeverity),
		QueueSize:   cfg.Alerting.QueueSize,
		SendTimeout: 10 * time.Second,
	}, zapLogger, channels...)
	dispatcher.Start()

	manager := resilience.NewManager(resilience.ManagerConfig{
		HealthCheckInterval: cfg.Resilience.HealthCheckInterval,
		CleanupInterval:     cfg.Resilience.CleanupInterval,
		MinRequests:         cfg.Resilience.MinRequests,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			RecoveryTimeout:  cfg.Resilience.RecoveryTimeout,
		},
	},
		resilience.WithLogger(logger),
		resilience.WithStateStore(store),
		resilience.WithAlertNotifier(dispatcher),
		resilience.WithMetrics(m),
	)
	if err := manager.Start(ctx); err != nil {
		log.Fatalf("Failed to start resilience manager: %v", err)
	}

	var collector *metrics.Collector
	if m != nil {
		collector = metrics.NewCollector(m, 15*time.Second)
		go collector.Start(ctx)
	}

	healthService := health.NewService(logger, nil)
	if db != nil {
		healthService.RegisterChecker("database", health.NewDatabaseChecker(db, "database"))
	}
	if redis != nil {
		healthService.RegisterChecker("redis", health.NewRedisChecker(redis, "redis"))
	}
	healthService.RegisterChecker("state", health.NewStateChecker(store, "state", 3*cfg.State.AutosaveInterval))
	healthService.RegisterChecker("disk", health.NewDiskSpaceChecker(".", "disk", 0.9))
	healthService.RegisterChecker("resilience", health.NewCustomChecker("resilience", func(ctx context.Context) (health.Status, string, error) {
		status := manager.GetHealthStatus()
		switch status.Status {
		case resilience.StatusUnhealthy:
			return health.StatusUnhealthy, status.Message, nil
		case resilience.StatusDegraded:
			return health.StatusDegraded, status.Message, nil
		default:
			return health.StatusHealthy, status.Message, nil
		}
	}))

	router := api.NewRouter(cfg, logger, manager, healthService, store, m, archive, redis, tracingService)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// The listener must stop before the subsystems it dispatches to;
	// the coordinator runs the final state save last.
	shutdown := resilience.NewShutdown(store)
	shutdown.OnShutdown("http-server", server.Shutdown)
	shutdown.OnShutdown("resilience-manager", manager.Stop)
	shutdown.OnShutdown("alert-dispatcher", dispatcher.Stop)
	if collector != nil {
		shutdown.OnShutdown("metrics-collector", func(ctx context.Context) error {
			collector.Stop()
			return nil
		})
	}
	shutdown.OnShutdown("state-manager", func(ctx context.Context) error {
		return store.Stop()
	})
	shutdown.OnShutdown("tracing", tracingService.Shutdown)

	go func() {
		log.Printf("Starting resilience API server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Resilience.ShutdownTimeout)
	defer cancel()
	shutdown.Shutdown(shutdownCtx)

	log.Println("Server exited")
}
