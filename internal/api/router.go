package api

import (
	"github.com/gin-gonic/gin"

	"github.com/scribeflow/resilience/internal/database"
	"github.com/scribeflow/resilience/internal/redisclient"
	"github.com/scribeflow/resilience/pkg/config"
	"github.com/scribeflow/resilience/pkg/health"
	"github.com/scribeflow/resilience/pkg/logging"
	"github.com/scribeflow/resilience/pkg/metrics"
	"github.com/scribeflow/resilience/pkg/resilience"
	"github.com/scribeflow/resilience/pkg/security"
	"github.com/scribeflow/resilience/pkg/state"
	"github.com/scribeflow/resilience/pkg/tracing"
)

// NewRouter creates the main API router with all routes and middleware.
// The metrics, archive, redis and tracer arguments may be nil; the
// routes and middleware that need them degrade gracefully.
func NewRouter(
	cfg *config.Config,
	logger *logging.Logger,
	manager *resilience.Manager,
	healthService *health.Service,
	store *state.Manager,
	m *metrics.Metrics,
	archive *database.SessionArchive,
	redis *redisclient.Client,
	tracer *tracing.Service,
) *gin.Engine {
	router := gin.New()

	headersConfig := security.DefaultHeadersConfig()

	// Middleware order matters: request ID first so every later stage can
	// correlate, recovery before handlers so panics become 500s.
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(ErrorHandlingMiddleware(logger))
	router.Use(security.CORSMiddleware(headersConfig))
	router.Use(security.HeadersMiddleware(headersConfig))
	router.Use(security.RequestSizeMiddleware(10 << 20)) // 10MB
	router.Use(m.PrometheusMiddleware())
	if tracer != nil {
		router.Use(tracer.TracingMiddleware())
	}
	router.Use(RateLimitMiddleware(redis, logger))

	// Health endpoints for load balancers and orchestrators
	router.GET("/health", healthService.Handler())
	router.GET("/health/live", healthService.LivenessHandler())
	router.GET("/health/ready", healthService.ReadinessHandler())

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	router.GET("/api/v1", func(c *gin.Context) {
		SuccessResponse(c, gin.H{
			"service":     "scribeflow-resilience",
			"version":     "1.0.0",
			"environment": cfg.Environment,
		})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", handleStatus(manager))
		v1.GET("/system", handleSystemMetrics(manager))
		v1.GET("/alerts", handleAlerts(manager, redis))

		v1.GET("/state", handleStateInfo(store))
		v1.POST("/state/save", handleStateSave(store))

		v1.GET("/sessions", handleSessionList(store))
		v1.POST("/sessions", handleSessionCreate(store))
		v1.GET("/sessions/:id", handleSessionGet(store))
		v1.PUT("/sessions/:id/touch", handleSessionTouch(store))
		v1.DELETE("/sessions/:id", handleSessionDelete(store))
		v1.POST("/sessions/:id/archive", handleSessionArchive(store, archive))
		v1.GET("/archive/sessions", handleArchivedSessions(archive))

		v1.POST("/health/reset", handleHealthReset(manager))
		v1.POST("/health/check", handleForceHealthCheck(manager))

		// Synthetic traffic injection is a development convenience only
		if cfg.IsDevelopment() {
			v1.POST("/simulate", handleSimulate(manager))
		}
	}

	router.NoRoute(func(c *gin.Context) {
		NotFoundResponse(c, "Endpoint not found")
	})

	return router
}
