package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "itinerary-planner/internal/api"
	"itinerary-planner/internal/config"
	"itinerary-planner/internal/lifecycle"
	"itinerary-planner/internal/provider"
	"itinerary-planner/internal/queue"
	"itinerary-planner/internal/ratelimit"
	"itinerary-planner/internal/store"
	"itinerary-planner/internal/telemetry"
)

func main() {
	logger := telemetry.NewLogger(os.Getenv("APP_ENV"), "itinerary-api")
	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Fatal().Err(err).Msg("load .env")
	}
	cfg := config.Load()
	logger = telemetry.NewLogger(cfg.Env, "itinerary-api")
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.ProviderAPIKey == "" {
		logger.Warn().Msg("XAI_API_KEY is not set; generation requests will be rejected by the provider")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("open job store")
	}
	defer closeStore()
	jobs := store.NewJobStore(kv, cfg.StoreKeyPrefix)

	gen := provider.New(provider.Config{
		APIKey:    cfg.ProviderAPIKey,
		BaseURL:   cfg.ProviderBaseURL,
		Model:     cfg.ProviderModel,
		MaxTokens: cfg.ProviderMaxTokens,
		Timeout:   cfg.ProviderTimeout,
	})
	manager := lifecycle.NewManager(jobs, gen, logger)

	// inline runs generation in this process; queue hands it to cmd/worker.
	var inline *lifecycle.GoroutineDispatcher
	switch cfg.DispatchMode {
	case config.DispatchQueue:
		client := store.NewRedisClient(cfg)
		defer client.Close()
		manager.SetDispatcher(queue.NewRedisQueue(client, cfg.QueueName))
	default:
		inline = lifecycle.NewGoroutineDispatcher(manager, logger)
		manager.SetDispatcher(inline)
	}

	var limiter ratelimit.Limiter
	switch cfg.RateLimiter {
	case config.LimiterLocal:
		limiter = ratelimit.NewLocalBucket(cfg.RateLimitCapacity, cfg.RateLimitRefill, 10*time.Minute)
	case config.LimiterRedis:
		client := store.NewRedisClient(cfg)
		defer client.Close()
		limiter = ratelimit.NewTokenBucket(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	}

	server := api.New(manager, limiter, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.HTTPPort).
			Str("store", cfg.StoreBackend).
			Str("dispatch", cfg.DispatchMode).
			Str("limiter", cfg.RateLimiter).
			Msg("api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if inline != nil {
		if err := inline.Wait(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("generation tasks still running at shutdown; their jobs stay processing")
		}
	}
	logger.Info().Msg("api stopped")
}
