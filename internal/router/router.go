package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/homecare-notify/internal/handler/prometheus"
	"github.com/jwalitptl/homecare-notify/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	healthH       Handler
	cronH         Handler
	notificationH Handler
	auditH        Handler
	metricsH      *prometheus.Handler
	config        RouterConfig
}

type RouterConfig struct {
	CronSecret    string
	CronRateLimit rate.Limit
	CronRateBurst int
	MaxBodyBytes  int64
	Release       bool
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH Handler,
	cronH Handler,
	notificationH Handler,
	auditH Handler,
	metricsH *prometheus.Handler,
	config RouterConfig,
) *Router {
	if config.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = middleware.DefaultMaxBodySize
	}

	engine := gin.New()
	// Handlers pass *gin.Context to services, so it must follow the request's cancellation.
	engine.ContextWithFallback = true

	r := &Router{
		engine:        engine,
		auth:          auth,
		healthH:       healthH,
		cronH:         cronH,
		notificationH: notificationH,
		auditH:        auditH,
		metricsH:      metricsH,
		config:        config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		metricsH.Middleware(),
	)

	return r
}

func (r *Router) Setup() {
	r.metricsH.RegisterRoutes(r.engine.Group(""))
	r.healthH.RegisterRoutes(r.engine.Group(""))

	cron := r.engine.Group("/cron")
	cron.Use(
		middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.CronRateLimit,
			Burst: r.config.CronRateBurst,
		}).RateLimit(),
		middleware.CronSecret(r.config.CronSecret),
	)
	r.cronH.RegisterRoutes(cron)

	api := r.engine.Group("/api/v1")
	api.Use(
		r.auth.Authenticate(),
		middleware.SizeLimit(r.config.MaxBodyBytes),
	)
	r.notificationH.RegisterRoutes(api)
	r.auditH.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
