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

	"chronos-api/internal/app"
	"chronos-api/internal/config"
	"chronos-api/internal/controller"
	"chronos-api/internal/middleware"
	"chronos-api/internal/routes"
	"chronos-api/internal/scheduler"
	"chronos-api/pkg/logger"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

const (
	reconcileTimeout = 5 * time.Minute
	limiterIdleTTL   = 10 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logger
	logger := logger.New(cfg.Logging)
	logger.WithField("version", version).Info("Starting Chronos ledger service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize ledger engine and its backends
	startupCtx, startupCancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout+cfg.Database.SelectionTimeout)
	application, err := app.New(startupCtx, cfg, logger, version)
	startupCancel()
	if err != nil {
		logger.Fatalf("Failed to initialize ledger: %v", err)
	}

	// Start reconciliation schedule
	var reconciler *scheduler.Scheduler
	if cfg.Reconciliation.Enabled {
		reconciler = scheduler.NewScheduler(application.Engine, cfg.Reconciliation.Schedule, reconcileTimeout, logger)
		if err := reconciler.Start(); err != nil {
			logger.Fatalf("Failed to start reconciliation scheduler: %v", err)
		}
	}

	// Initialize handlers
	bancoController := controller.NewBancoController(application.Engine, logger)
	streamController := controller.NewStreamController(application.Engine, cfg.Server.AllowedOrigins, logger)
	adminController := controller.NewAdminController(application.Engine, logger)
	healthController := controller.NewHealthController(application.Health, controller.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})

	routerConfig := &routes.RouterConfig{
		Debug:          cfg.Server.Environment == "development",
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		MaxRequestSize: cfg.Server.MaxRequestSize,
		MetricsPath:    cfg.Monitoring.MetricsPath,
	}
	if cfg.Auth.Enabled {
		routerConfig.Auth = middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.InternalAPIKeyHash)
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, limiterIdleTTL)
	}
	if application.Metrics != nil {
		routerConfig.Metrics = application.Metrics
		routerConfig.Gatherer = application.Registry
	}

	// Setup routes
	logger.Info("Setting up HTTP routes...")
	router := routes.NewRouter(bancoController, streamController, adminController, healthController, logger, routerConfig)
	router.SetupRoutes(routerConfig)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Infof("Starting HTTP server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if reconciler != nil {
		reconciler.Stop(shutdownCtx)
	}
	if err := application.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to release resources")
	}

	logger.Info("Server exited")
}
