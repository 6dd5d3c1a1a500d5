package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the question cache. It returns nil, nil when no
// REDIS_URL is configured.
func NewRedisClient(cfg *config.SheetConfig) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return client, nil
}
