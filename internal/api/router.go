package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/dbpool"
	"github.com/killthenoise/killthenoise/internal/middleware"
	"github.com/killthenoise/killthenoise/internal/models"
	"github.com/killthenoise/killthenoise/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log          *logrus.Logger
	Pool         *dbpool.Pool
	Hub          *ws.Hub
	Integrations IntegrationManager
	Syncs        SyncManager
	SyncQueue    SyncEnqueuer
	Issues       IssueRepository
	Groups       GroupManager
	Analytics    AnalyticsRepository
	Settings     SettingsRepository
	Prober       ConnectionProber
	TenantLookup middleware.TenantLookup
	CORSOrigins  []string
	Version      string
	AIModel      string
}

// Router-level limits.
const (
	maxBodySize = 1 << 20 // 1 MB
	rateLimit   = 100     // requests per second per IP
	rateBurst   = 200     // token bucket burst size
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst).Handler())
	r.Use(middleware.PrometheusMiddleware())

	// Metrics endpoint (unauthenticated, like health).
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(deps.Pool, deps.Hub, deps.Prober, log, deps.Version, deps.AIModel)
	integrations := NewIntegrationHandler(deps.Integrations, log)
	syncs := NewSyncHandler(deps.Integrations, deps.Syncs, deps.SyncQueue, log)
	issues := NewIssueHandler(deps.Issues, log)
	groups := NewGroupHandler(deps.Groups, log)
	analytics := NewAnalyticsHandler(deps.Analytics, deps.Issues, log)
	settings := NewSettingsHandler(deps.Settings, log)

	// Health and readiness are unauthenticated.
	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	// OAuth callbacks carry no API key; the state parameter identifies the
	// pending integration.
	for _, p := range models.Providers {
		api.GET("/"+p+"/oauth/callback", integrations.OAuthCallback(p))
	}

	// All other API routes require authentication.
	api.Use(middleware.Auth(
		middleware.NewCachedTenantLookup(ctx, deps.TenantLookup),
		middleware.NewLockoutGuard(ctx, log),
		log,
	))

	// Per-provider integration lifecycle. Explicit groups instead of a
	// :provider parameter keep the route tree free of wildcard conflicts.
	for _, p := range models.Providers {
		g := api.Group("/" + p)
		g.GET("/auth-status", integrations.AuthStatus(p))
		g.POST("/authorize", integrations.Authorize(p))
		g.DELETE("/disconnect", integrations.Disconnect(p))
		g.POST("/cleanup-duplicates", integrations.CleanupDuplicates(p))
		g.GET("/status", integrations.Status(p))
		g.POST("/sync", syncs.Trigger(p))
		g.GET("/issues", issues.List(p))
	}

	// Slack extras: legacy bot-token connect and channel selection.
	api.POST("/slack/connect", integrations.ConnectSlack)
	api.GET("/slack/channels", integrations.ListSlackChannels)
	api.PUT("/slack/channels", integrations.UpdateSlackChannels)

	// Cross-provider issue store.
	api.GET("/issues", issues.List(""))
	api.GET("/issues/top", issues.Top)
	api.GET("/issues/:id", issues.Get)

	// Sync audit.
	api.GET("/sync/events", syncs.Events)
	api.GET("/sync/metrics", syncs.Metrics)

	// Clustered groups.
	api.GET("/groups", groups.List)
	api.POST("/groups/recluster", groups.Recluster)

	// Analytics.
	api.GET("/analytics/dashboard", analytics.Dashboard)
	api.GET("/analytics/metrics", analytics.Metrics)
	api.GET("/analytics/sources", analytics.Sources)
	api.GET("/analytics/trends", analytics.Trends)
	api.GET("/analytics/distributions", analytics.Distributions)
	api.GET("/analytics/velocity", analytics.Velocity)

	// Tenant AI instruction settings.
	api.GET("/settings", settings.Get)
	api.PUT("/settings", settings.Update)

	// Per-tenant connection probes.
	api.GET("/health/connections", health.Connections)

	// WebSocket endpoint.
	api.GET("/ws", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins, deps.TenantLookup))
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
