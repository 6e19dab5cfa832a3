package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/go-scope-hub/internal/adapters/http/handlers"
	"github.com/jsamuelsen/go-scope-hub/internal/adapters/http/middleware"
	"github.com/jsamuelsen/go-scope-hub/internal/hub"
	"github.com/jsamuelsen/go-scope-hub/internal/platform/config"
	"github.com/jsamuelsen/go-scope-hub/internal/platform/telemetry"
)

// DefaultRequestTimeout is the default timeout for API requests.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains configuration for setting up the router.
type RouterConfig struct {
	// Logger is the structured logger for request logging.
	Logger *slog.Logger

	// AppConfig contains application configuration.
	AppConfig *config.AppConfig

	// Hub owns the scope stack every request forks from.
	Hub *hub.Hub

	// HealthHandler handles health check endpoints.
	HealthHandler *handlers.HealthHandler

	// EventsHandler handles event capture.
	EventsHandler *handlers.EventsHandler

	// ScopeHandler exposes the request scope for inspection.
	ScopeHandler *handlers.ScopeHandler

	// Timeout is the default request timeout.
	Timeout time.Duration
}

// SetupRouter configures all routes and middleware on the Gin engine.
// Middleware is applied in the following order (first to last):
//  1. Context logger - seed the request context with the base logger
//  2. Request ID - generate/extract request ID
//  3. Correlation ID - handle distributed tracing correlation
//  4. OpenTelemetry - tracing and metrics
//  5. Scope - fork the scope stack and push the request scope
//  6. Recovery - capture panics while the request scope is still pushed
//  7. User - copy gateway identity onto the request scope
//  8. Logging - request logging (skips health endpoints)
//  9. Timeout - request deadline (API group only)
//
// Route groups:
//   - /-/ (internal): Health and metrics endpoints
//   - /api/v1/ (public API): Event capture and scope inspection
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	serviceName := "scope-hub"
	if cfg.AppConfig != nil && cfg.AppConfig.Name != "" {
		serviceName = cfg.AppConfig.Name
	}

	engine.HandleMethodNotAllowed = true
	engine.NoRoute(NotFound)
	engine.NoMethod(MethodNotAllowed)

	engine.Use(
		middleware.ContextLogger(cfg.Logger),
		middleware.RequestID(),
		middleware.CorrelationID(),
		telemetry.Tracing(serviceName),
		telemetry.Middleware(),
	)

	if cfg.Hub != nil {
		engine.Use(middleware.Scope(cfg.Hub))
	}

	engine.Use(
		middleware.Recovery(),
		middleware.User(),
		middleware.Logging(),
	)

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutesOnEngine(engine)
	}

	apiV1 := engine.Group("/api/v1")
	if cfg.Timeout > 0 {
		apiV1.Use(middleware.Timeout(cfg.Timeout))
	}

	setupAPIRoutes(apiV1, cfg)
}

func setupAPIRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.EventsHandler != nil {
		cfg.EventsHandler.RegisterEventRoutes(rg)
	}

	if cfg.ScopeHandler != nil {
		cfg.ScopeHandler.RegisterScopeRoutes(rg)
	}
}

// SetupMinimalRouter sets up a minimal router with just health endpoints.
// Panics are logged but not captured, since no hub is mounted.
func SetupMinimalRouter(engine *gin.Engine, logger *slog.Logger, healthHandler *handlers.HealthHandler) {
	engine.Use(
		middleware.ContextLogger(logger),
		middleware.RequestID(),
		middleware.Recovery(),
	)

	if healthHandler != nil {
		healthHandler.RegisterHealthRoutesOnEngine(engine)
	}
}

// NewDefaultRouterConfig creates a RouterConfig with the default timeout and
// handlers built on h.
func NewDefaultRouterConfig(
	logger *slog.Logger,
	appCfg *config.AppConfig,
	h *hub.Hub,
	healthHandler *handlers.HealthHandler,
) RouterConfig {
	return RouterConfig{
		Logger:        logger,
		AppConfig:     appCfg,
		Hub:           h,
		HealthHandler: healthHandler,
		EventsHandler: handlers.NewEventsHandler(h),
		ScopeHandler:  handlers.NewScopeHandler(h),
		Timeout:       DefaultRequestTimeout,
	}
}
