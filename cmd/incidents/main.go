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
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"oncall-platform/internal/config"
	"oncall-platform/internal/crossclient"
	"oncall-platform/internal/handlers"
	"oncall-platform/internal/metrics"
	"oncall-platform/internal/middleware"
	"oncall-platform/internal/obslog"
	"oncall-platform/internal/repository"
	"oncall-platform/internal/services"
)

const serviceName = "incident-management"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := obslog.New(serviceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	db, err := repository.NewDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	incidentMetrics := metrics.NewIncidentMetrics(reg)

	incidentRepo := repository.NewIncidentRepository(db)
	oncallClient := crossclient.NewOnCallClient(cfg.OnCallServiceURL, cfg.OnCallTimeout)
	notifyClient := crossclient.NewNotificationClient(cfg.NotificationServiceURL, cfg.NotificationTimeout)
	incidentService := services.NewIncidentService(incidentRepo, oncallClient, notifyClient, logger, incidentMetrics, cfg.IdempotencyWindow)

	incidentHandler := handlers.NewIncidentHandler(incidentService)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.APIKeyMiddleware(cfg.APIKey))

	handlers.RegisterHealth(router, serviceName, db.Ready)
	router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	incidentHandler.Register(router)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info("starting incident management server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down incident management server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("incident management server exited")
}
