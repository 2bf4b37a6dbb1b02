package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"event-checkin-backend/config"
	"event-checkin-backend/internal/api"
	"event-checkin-backend/internal/checkin"
	"event-checkin-backend/internal/db"
	"event-checkin-backend/internal/logger"
	"event-checkin-backend/internal/metrics"
	"event-checkin-backend/internal/notification"
	"event-checkin-backend/internal/pii"
	"event-checkin-backend/internal/roster"
	"event-checkin-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Log().WithError(err).Fatalf("failed to load configuration from %s", configPath)
	}

	logger.Init(cfg.Server.Debug, logger.Output(logger.RotationOptions{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}))
	logger.Log().Infof("configuration loaded successfully from %s", configPath)

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Log().WithError(err).Fatal("failed to initialize database")
	}

	sealer, err := pii.NewSealer(cfg.PII.Key)
	if err != nil {
		logger.Log().WithError(err).Fatal("invalid pii.key")
	}
	if !sealer.Enabled() {
		logger.Log().Warn("pii.key is not set; phone and address will not be stored")
	}

	appStore := store.NewGormStore(gormDB)
	directory := checkin.NewDirectory(appStore, sealer, cfg.Attendee.DefaultMealCredits)

	// Handle CLI commands
	if len(os.Args) > 1 && os.Args[1] == "import-roster" {
		res, err := roster.NewService(&cfg.Roster, directory).ImportOnce(context.Background())
		if err != nil {
			logger.Log().WithError(err).Fatal("roster import failed")
		}
		fmt.Printf("added %d, skipped %d\n", len(res.Added), len(res.Skipped))
		return
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var webpushOptions *webpush.Options
	var observer checkin.Observer
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, cfg.Push.AlertReasons)
		pool.Start(ctx)
		observer = pool
		logger.WithFields(map[string]interface{}{"workers": cfg.WorkerPool.Size, "reasons": cfg.Push.AlertReasons}).
			Info("staff alerts enabled")
	} else {
		logger.Log().Warn("VAPID keys are not configured; staff alerts disabled")
	}

	authorizer := checkin.NewAuthorizer(appStore, observer)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	// Initialize router
	handler := api.NewHandler(appStore, directory, authorizer, webpushOptions, registry)
	router := api.NewRouter(&cfg.Server, handler)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		logger.Log().Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().WithError(err).Fatal("HTTP server ListenAndServe")
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Log().Info("shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log().WithError(err).Fatal("HTTP server Shutdown")
	}

	logger.Log().Info("server gracefully stopped")
}
