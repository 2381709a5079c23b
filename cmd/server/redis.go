package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskdeck/taskdeck-api/internal/config"
)

// setupRedis connects the shared counter store used by the rate limiter.
// A failed ping is a startup error: whether the limiter later tolerates an
// unreachable store is the fail-open setting's job, not the bootstrap's.
func setupRedis(cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("redis connection established", "addr", cfg.Redis.Addr)
	return client, nil
}
