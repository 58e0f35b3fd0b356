package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/lab-api/internal/handler"
	"github.com/jwalitptl/lab-api/internal/middleware"
	"github.com/jwalitptl/lab-api/pkg/auth"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	ops      *handler.Handler
	orderH   Handler
	alertH   Handler
	statsH   Handler
	catalogH Handler
	auditH   Handler
}

type RouterConfig struct {
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RateLimit:      100,
		RateBurst:      200,
		RequestTimeout: 30 * time.Second,
		CORS:           middleware.DefaultCORSConfig(),
	}
}

func NewRouter(
	ops *handler.Handler,
	orderH Handler,
	alertH Handler,
	statsH Handler,
	catalogH Handler,
	auditH Handler,
	parser *auth.TokenParser,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  config.RateLimit,
		Burst: config.RateBurst,
	})

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Metrics(m),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORS),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
		rateLimiter.RateLimit(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.Actor(parser),
		middleware.ErrorHandler(),
	)

	return &Router{
		engine:   engine,
		ops:      ops,
		orderH:   orderH,
		alertH:   alertH,
		statsH:   statsH,
		catalogH: catalogH,
		auditH:   auditH,
	}
}

func (r *Router) Setup() {
	// Probes and metrics sit outside the versioned API.
	health := r.engine.Group("/health")
	{
		health.GET("/live", r.ops.LivenessCheck)
		health.GET("/ready", r.ops.ReadinessCheck)
	}
	r.engine.GET("/metrics", r.ops.MetricsHandler)

	api := r.engine.Group("/api/v1")
	r.orderH.RegisterRoutes(api)
	r.alertH.RegisterRoutes(api)
	r.statsH.RegisterRoutes(api)
	r.catalogH.RegisterRoutes(api)
	r.auditH.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
