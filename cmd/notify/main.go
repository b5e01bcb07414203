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
	"oncall-platform/internal/handlers"
	"oncall-platform/internal/metrics"
	"oncall-platform/internal/middleware"
	"oncall-platform/internal/obslog"
	"oncall-platform/internal/services"
	"oncall-platform/internal/store"
)

const serviceName = "notification"

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
	notificationMetrics := metrics.NewNotificationMetrics(reg)

	notificationStore := store.NewNotificationStore(cfg.MaxLogSize)
	// Email and Slack have no real outbound endpoint wired in this
	// deployment; both behave as mock channels until one is configured.
	notificationService := services.NewNotificationService(notificationStore, "", "", cfg.WebhookURL, logger, notificationMetrics)

	notificationHandler := handlers.NewNotificationHandler(notificationService)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.APIKeyMiddleware(cfg.APIKey))

	handlers.RegisterHealth(router, serviceName, nil)
	router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	notificationHandler.Register(router)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info("starting notification server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down notification server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("notification server exited")
}
