package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"itinerary-planner/internal/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PostgresKV keeps one row per key in the itinerary_jobs table.
type PostgresKV struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresKV creates a pooled connection to Postgres.
func NewPostgresKV(ctx context.Context, dsn string, ttl time.Duration) (*PostgresKV, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresKV{pool: pool, ttl: ttl}, nil
}

func (p *PostgresKV) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// RunMigrations executes the embedded SQL migrations in order.
func (p *PostgresKV) RunMigrations(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		sql := strings.TrimSpace(string(content))
		if sql == "" {
			continue
		}
		if _, err := p.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("exec migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(ctx, `
		SELECT value::text FROM itinerary_jobs
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", key, err)
	}
	return value, nil
}

func (p *PostgresKV) Put(ctx context.Context, key string, value []byte) error {
	var expires *time.Time
	if p.ttl > 0 {
		at := time.Now().UTC().Add(p.ttl)
		expires = &at
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO itinerary_jobs (key, value, expires_at, updated_at)
		VALUES ($1, $2::jsonb, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`, key, string(value), expires)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes rows whose retention has elapsed and returns how many were removed.
func (p *PostgresKV) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM itinerary_jobs WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunPurger deletes expired rows every interval until ctx is done.
func (p *PostgresKV) RunPurger(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("purge expired itinerary records")
				continue
			}
			if n > 0 {
				logger.Info().Int64("deleted", n).Msg("purged expired itinerary records")
			}
		}
	}
}
