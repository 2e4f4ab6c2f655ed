package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"itinerary-planner/internal/config"
)

// Open builds the KV backend selected by cfg.StoreBackend. The returned func releases its resources.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (KV, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory, "":
		logger.Warn().Msg("using in-memory job store; records are lost on restart")
		return NewMemoryKV(), func() {}, nil
	case config.BackendRedis:
		client := NewRedisClient(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisKV(client, cfg.RecordTTL), func() { _ = client.Close() }, nil
	case config.BackendPostgres:
		pg, err := NewPostgresKV(ctx, cfg.PostgresDSN, cfg.RecordTTL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		if cfg.RecordTTL > 0 {
			go pg.RunPurger(ctx, time.Hour, logger)
		}
		return pg, pg.Close, nil
	case config.BackendS3:
		kv, err := NewS3KV(ctx, S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewRedisClient builds a client from the shared Redis settings.
func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
