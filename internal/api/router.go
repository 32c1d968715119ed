package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/disruptionhub/internal/actionhub"
	"github.com/lalith-99/disruptionhub/internal/middleware"
	"github.com/lalith-99/disruptionhub/internal/notify"
	"github.com/lalith-99/disruptionhub/internal/observ"
	"github.com/lalith-99/disruptionhub/internal/realtime"
	"github.com/lalith-99/disruptionhub/internal/repository"
	"go.uber.org/zap"
)

// Resolver is what the router needs from the token authority.
// *auth.Authority satisfies it.
type Resolver interface {
	Authenticator
	middleware.IdentityResolver
}

type RouterConfig struct {
	Authority     Resolver
	Service       *actionhub.Service
	Dispatcher    *notify.Dispatcher
	Hub           *realtime.Hub
	Accounts      repository.AccountRepository
	Notifications repository.NotificationRepository

	// Metrics instruments every route. MetricsHandler, when set, is served
	// at GET /metrics outside auth.
	Metrics        *observ.Metrics
	MetricsHandler http.Handler

	RateLimitRPS   int
	RateLimitBurst int

	// HealthCheck, when set, is pinged by GET /v1/health.
	HealthCheck func(ctx context.Context) error

	Logger *zap.Logger
}

// NewRouter builds the gin engine with the middleware chain and every route.
//
// Order matters: recovery wraps everything, the request id exists before
// anything logs, and rate limiting runs before the token lookup hits the
// account directory.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.GinMiddleware())
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	// Public: load balancers and scrapers cannot authenticate.
	r.GET("/v1/health", func(c *gin.Context) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(c.Request.Context()); err != nil {
				cfg.Logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	authH := NewAuthHandler(cfg.Authority, cfg.Logger)
	r.POST("/v1/auth/login", authH.Login)

	v1 := r.Group("/v1")
	v1.Use(middleware.RequireAuth(cfg.Authority, cfg.Logger))

	v1.POST("/auth/logout", authH.Logout)

	userH := NewUserHandler(cfg.Accounts, cfg.Notifications, cfg.Logger)
	v1.GET("/me", userH.GetMe)
	v1.GET("/me/notifications", userH.ListNotifications)

	alertH := NewAlertHandler(cfg.Service, cfg.Logger)
	v1.GET("/alerts/:alertId", alertH.State)
	v1.POST("/alerts/:alertId/flag", alertH.Flag)
	v1.POST("/alerts/:alertId/follow", alertH.Follow)

	hubH := NewActionHubHandler(cfg.Service, cfg.Logger)
	v1.GET("/action-hub", hubH.List)
	v1.GET("/action-hub/:id", hubH.Get)
	v1.GET("/action-hub/:id/logs", hubH.Logs)
	v1.PUT("/action-hub/:id/status", hubH.SetStatus)
	v1.PUT("/action-hub/:id/tab", hubH.SetTab)
	v1.POST("/action-hub/:id/notes", hubH.AddNote)
	v1.POST("/action-hub/:id/guests", hubH.AddGuests)

	notifyH := NewNotifyHandler(cfg.Dispatcher, cfg.Logger)
	v1.POST("/action-hub/:id/notify-guests", notifyH.NotifyGuests)
	v1.POST("/action-hub/:id/notify-team", notifyH.NotifyTeam)

	if cfg.Hub != nil {
		v1.GET("/ws", NewWSHandler(cfg.Hub, cfg.Logger).Serve)
	}
	return r
}
