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

	"itinerary-planner/internal/config"
	"itinerary-planner/internal/lifecycle"
	"itinerary-planner/internal/provider"
	"itinerary-planner/internal/queue"
	"itinerary-planner/internal/store"
	"itinerary-planner/internal/telemetry"
	workerproc "itinerary-planner/internal/worker"
)

func main() {
	logger := telemetry.NewLogger(os.Getenv("APP_ENV"), "itinerary-worker")
	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Fatal().Err(err).Msg("load .env")
	}
	cfg := config.Load()
	logger = telemetry.NewLogger(cfg.Env, "itinerary-worker")
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.DispatchMode != config.DispatchQueue {
		logger.Fatal().Str("dispatch", cfg.DispatchMode).Msg("worker needs DISPATCH_MODE=queue")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("open job store")
	}
	defer closeStore()

	client := store.NewRedisClient(cfg)
	defer client.Close()
	q := queue.NewRedisQueue(client, cfg.QueueName)

	gen := provider.New(provider.Config{
		APIKey:    cfg.ProviderAPIKey,
		BaseURL:   cfg.ProviderBaseURL,
		Model:     cfg.ProviderModel,
		MaxTokens: cfg.ProviderMaxTokens,
		Timeout:   cfg.ProviderTimeout,
	})
	manager := lifecycle.NewManager(store.NewJobStore(kv, cfg.StoreKeyPrefix), gen, logger)

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	processor := workerproc.NewProcessor(q, manager, logger, cfg.WorkerPollInterval, cfg.WorkerConcurrency, workerID)

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	logger.Info().
		Str("worker_id", workerID).
		Str("queue", cfg.QueueName).
		Int("concurrency", cfg.WorkerConcurrency).
		Dur("poll_interval", cfg.WorkerPollInterval).
		Msg("worker started")
	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logger.Info().Msg("worker stopped")
}
