package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// Handlers groups all handler instances for route setup. Audit is nil when
// no database is configured.
type Handlers struct {
	Session  *handler.SessionHandler
	Snapshot *handler.SnapshotHandler
	Audit    *handler.AuditHandler
	System   *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, sessionLimiter *middleware.RateLimiter, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(response.AccessLog(log))

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ─── 1. REST Group (compressed) ────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.Brotli())
	{
		api.GET("/policy", handlers.System.Policy)
		api.GET("/assessments/:assessment_id/snapshot", handlers.Snapshot.GetSnapshot)
		api.DELETE("/assessments/:assessment_id/snapshot", handlers.Snapshot.AbandonSnapshot)
		if handlers.Audit != nil {
			api.GET("/sessions/:session_id/events", handlers.Audit.ListEvents)
		}
	}

	// ─── 2. WebSocket Group (rate limited opens) ───────────────────────
	ws := router.Group("/ws/v1")
	if sessionLimiter != nil {
		ws.Use(sessionLimiter.Middleware())
	}
	{
		ws.GET("/assessments/:assessment_id/session", handlers.Session.SessionStream)
	}

	return router
}
