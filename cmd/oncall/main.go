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
	"oncall-platform/internal/models"
	"oncall-platform/internal/obslog"
	"oncall-platform/internal/services"
	"oncall-platform/internal/store"
)

const serviceName = "oncall"

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

	reg := prometheus.NewRegistry()
	onCallMetrics := metrics.NewOnCallMetrics(reg)

	onCallStore := store.NewOnCallStore(cfg.MaxEscalationLogSize, cfg.MaxHistorySize)
	notifyClient := crossclient.NewNotificationClient(cfg.NotificationServiceURL, cfg.NotificationTimeout)
	onCallService := services.NewOnCallService(onCallStore, notifyClient, cfg.DefaultOverrideHours, logger, onCallMetrics)

	if cfg.SeedDefaultSchedules {
		seedDefaultSchedule(context.Background(), onCallService, logger)
	}

	onCallHandler := handlers.NewOnCallHandler(onCallService)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.APIKeyMiddleware(cfg.APIKey))

	handlers.RegisterHealth(router, serviceName, nil)
	router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	onCallHandler.Register(router)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info("starting on-call server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down on-call server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("on-call server exited")
}

// seedDefaultSchedule creates a single "default" team schedule on startup
// when the operator has no schedule configuration of their own yet, so a
// fresh deployment has something for GET /oncall/current to resolve.
func seedDefaultSchedule(ctx context.Context, svc *services.OnCallService, logger *zap.Logger) {
	_, err := svc.CreateSchedule(ctx, "default", models.RotationWeekly, []models.Member{
		{Name: "Primary On-Call", Email: "primary@example.com", Role: models.RolePrimary},
		{Name: "Secondary On-Call", Email: "secondary@example.com", Role: models.RoleSecondary},
	})
	if err != nil {
		logger.Warn("failed to seed default schedule", zap.Error(err))
	}
}
