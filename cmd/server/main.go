package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CampaignMailer/internal/api"
	"CampaignMailer/internal/config"
	"CampaignMailer/internal/db"
	"CampaignMailer/internal/dispatch"
	"CampaignMailer/internal/email"
	"CampaignMailer/internal/jobs"
	"CampaignMailer/internal/metrics"
	"CampaignMailer/internal/scheduler"
	"CampaignMailer/internal/worker"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Job Registry (shared by API, engine, scheduler)
	// ------------------------------------------------
	registry := jobs.NewRegistry()

	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.Sweep(cfg.JobRetention); n > 0 {
					logger.Info("reclaimed finished jobs", zap.Int("count", n))
				}
			}
		}
	}()

	// ------------------------------------------------
	// Send Engine + Dispatcher
	// ------------------------------------------------
	engine := &worker.Engine{
		Registry:          registry,
		Log:               logger,
		UploadsDir:        cfg.UploadsDir,
		DefaultSenderName: cfg.DefaultSenderName,
		Retries:           cfg.RetryAttempts,
		RetryDelay:        cfg.RetryDelay,
	}

	dispatcher := dispatch.New(ctx, registry, engine, dispatch.Options{
		MaxRecipients: cfg.MaxRecipients,
		DefaultDelay:  cfg.DefaultDelay,
		Pool: email.Config{
			RateLimit:      cfg.SMTPRateLimit,
			MaxConnections: cfg.SMTPMaxConnections,
			MaxMessages:    cfg.SMTPMaxMessages,
		},
	}, logger)

	// ------------------------------------------------
	// Scheduler
	// ------------------------------------------------
	sched, err := scheduler.New(ctx, store, dispatcher, registry, cfg.SchedulerTimezone, logger)
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}

	if _, err := sched.Reload(ctx); err != nil {
		logger.Error("failed to reload scheduled campaigns", zap.Error(err))
	}
	sched.Start()

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Dispatch:  dispatcher,
		Schedule:  sched,
		Campaigns: store,
		Log:       logger,
		Retention: cfg.JobRetention,
	}

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiHandler.Routes(),
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// Cancelling ctx already asked every job to stop at its next
	// recipient; this only reports how many were still running.
	logger.Info("stopping active send jobs", zap.Int("count", registry.StopAll()))

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
