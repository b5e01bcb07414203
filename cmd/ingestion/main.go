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

const serviceName = "alert-ingestion"

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
	ingestionMetrics := metrics.NewIngestionMetrics(reg)

	alertRepo := repository.NewAlertRepository(db)
	incidentClient := crossclient.NewIncidentClient(cfg.IncidentManagementURL, cfg.IncidentTimeout)
	ingestionService := services.NewIngestionService(alertRepo, incidentClient, cfg.CorrelationWindow, logger, ingestionMetrics)

	ingestionHandler := handlers.NewIngestionHandler(ingestionService)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.APIKeyMiddleware(cfg.APIKey))

	handlers.RegisterHealth(router, serviceName, db.Ready)
	router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	ingestionHandler.Register(router)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info("starting alert ingestion server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down alert ingestion server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("alert ingestion server exited")
}
