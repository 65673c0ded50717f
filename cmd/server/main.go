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

	"github.com/brandlens/ai-visibility/internal/analytics"
	"github.com/brandlens/ai-visibility/internal/api"
	"github.com/brandlens/ai-visibility/internal/collector"
	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/engines"
	"github.com/brandlens/ai-visibility/internal/jobs"
	"github.com/brandlens/ai-visibility/internal/monitoring"
	"github.com/brandlens/ai-visibility/internal/notifications"
	"github.com/brandlens/ai-visibility/internal/recommendations"
	"github.com/brandlens/ai-visibility/internal/scheduler"
	"github.com/brandlens/ai-visibility/internal/storage"
	"github.com/brandlens/ai-visibility/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	config.ConfigureLogging(cfg)

	logrus.Info("Starting AI visibility tracker")

	ctx := context.Background()

	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	defer closeStore()

	jobStore, err := newJobStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize job store: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	collectorService := collector.NewService(store, engines.NewCheckers(cfg), metrics, collector.OptionsFromConfig(cfg))
	jobManager := jobs.NewManager(collectorService, jobStore, metrics)
	defer jobManager.Close()

	analyticsService := analytics.NewService(store, analytics.WindowFromDays(cfg.RecentWindowDays, cfg.LookbackDays), cfg.Location())
	recommender := recommendations.NewEngine(recommendations.ThresholdsFromConfig(cfg))

	notificationService := notifications.NewService(cfg)
	monitoringService := monitoring.NewService(cfg, jobManager, analyticsService, recommender, notificationService)

	schedulerService := scheduler.NewService(cfg, monitoringService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	handler := api.NewHandler(collectorService, jobManager, store, analyticsService, recommender, monitoringService.GetMetrics)
	router := api.NewRouter(handler, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.CheckTimeout*time.Duration(cfg.CheckMaxRetries+1) + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func newJobStore(ctx context.Context, cfg *config.Config) (jobs.Store, error) {
	if cfg.RedisAddress == "" {
		logrus.Info("No Redis configured, keeping job status in memory")
		return jobs.NewMemoryStore(), nil
	}

	client, err := jobs.NewRedisClient(ctx, cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Keeping job status in Redis at %s", cfg.RedisAddress)
	return jobs.NewRedisStore(client, 0), nil
}
