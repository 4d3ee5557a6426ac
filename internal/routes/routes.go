package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"chronos-api/internal/controller"
	"chronos-api/internal/middleware"
	"chronos-api/internal/monitoring"
)

// Router wires controllers and middleware into a gin engine
type Router struct {
	engine           *gin.Engine
	bancoController  *controller.BancoController
	streamController *controller.StreamController
	adminController  *controller.AdminController
	healthController *controller.HealthController
	logger           *logrus.Logger
}

// RouterConfig holds the optional parts of the router
type RouterConfig struct {
	Debug          bool
	AllowedOrigins []string
	TrustedProxies []string
	MaxRequestSize int64

	// Auth is nil when authentication is disabled
	Auth *middleware.AuthMiddleware
	// RateLimiter is nil when rate limiting is disabled
	RateLimiter *middleware.RateLimiter
	// Metrics is nil when metrics are disabled
	Metrics     *monitoring.Metrics
	Gatherer    prometheus.Gatherer
	MetricsPath string
}

func NewRouter(
	bancoController *controller.BancoController,
	streamController *controller.StreamController,
	adminController *controller.AdminController,
	healthController *controller.HealthController,
	logger *logrus.Logger,
	config *RouterConfig,
) *Router {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(config.TrustedProxies); err != nil {
		logger.WithError(err).Warn("Invalid trusted proxies, trusting none")
		_ = engine.SetTrustedProxies(nil)
	}

	return &Router{
		engine:           engine,
		bancoController:  bancoController,
		streamController: streamController,
		adminController:  adminController,
		healthController: healthController,
		logger:           logger,
	}
}

func (r *Router) SetupRoutes(config *RouterConfig) {
	r.setupGlobalMiddleware(config)
	r.setupHealthRoutes(config)

	v1 := r.engine.Group("/api/v1")
	r.setupAPIRoutes(v1, config)
}

func (r *Router) setupGlobalMiddleware(config *RouterConfig) {
	r.engine.Use(middleware.Recovery(r.logger))
	r.engine.Use(requestid.New())
	r.engine.Use(middleware.RequestLogger(r.logger, 2*time.Second))
	if config.Metrics != nil {
		r.engine.Use(config.Metrics.Middleware())
	}

	corsConfig := cors.Config{
		AllowOrigins: config.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Length",
			"Content-Type",
			"Authorization",
			"X-API-Key",
			"X-Request-ID",
			"Idempotency-Key",
		},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 || (len(corsConfig.AllowOrigins) == 1 && corsConfig.AllowOrigins[0] == "*") {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowCredentials = true
	}
	r.engine.Use(cors.New(corsConfig))

	r.engine.Use(middleware.SecurityHeaders())
	r.engine.Use(middleware.MaxBodySize(config.MaxRequestSize))
}

func (r *Router) setupHealthRoutes(config *RouterConfig) {
	r.engine.GET("/health", r.healthController.Health)
	r.engine.GET("/ready", r.healthController.Ready)
	r.engine.GET("/version", r.healthController.Version)

	if config.Gatherer != nil {
		path := config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Route not found"}})
	})
}

func (r *Router) setupAPIRoutes(v1 *gin.RouterGroup, config *RouterConfig) {
	if config.RateLimiter != nil {
		v1.Use(config.RateLimiter.Middleware())
	}
	if config.Auth != nil {
		v1.Use(config.Auth.Authenticate())
	}

	bancos := v1.Group("/bancos")
	{
		bancos.GET("", r.bancoController.ListBancos)
		bancos.POST("", r.bancoController.CreateBanco)
		bancos.GET("/saldo-total", r.bancoController.GetSaldoTotal)
		bancos.GET("/:id", r.bancoController.GetBanco)
		bancos.GET("/:id/nombre", r.bancoController.GetBancoName)
		bancos.GET("/:id/totales", r.bancoController.GetTotales)
		bancos.GET("/:id/movimientos", r.bancoController.ListMovimientos)
		bancos.POST("/:id/ingresos", r.bancoController.CrearIngreso)
		bancos.POST("/:id/gastos", r.bancoController.CrearGasto)
		bancos.GET("/:id/ingresos/stream", r.streamController.StreamIngresos)
		bancos.GET("/:id/gastos/stream", r.streamController.StreamGastos)
	}

	movimientos := v1.Group("/movimientos")
	{
		movimientos.PUT("/:id", r.bancoController.UpdateMovimiento)
		movimientos.DELETE("/:id", r.bancoController.DeleteMovimiento)
	}

	v1.POST("/transferencias", r.bancoController.CrearTransferencia)

	admin := v1.Group("/admin")
	if config.Auth != nil {
		admin.Use(config.Auth.RequireRole(middleware.RoleAdmin))
	}
	{
		admin.POST("/reconciliacion", r.adminController.Reconcile)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
