package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisenet/wisenet-backend/internal/platform/envutil"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// NewRedisClient connects and pings. A nil client is a valid answer for
// callers that treat the cache as optional.
func NewRedisClient(log *logger.Logger) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%s",
		envutil.Str("REDIS_HOST", "localhost"),
		envutil.Str("REDIS_PORT", "6379"))
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: envutil.Str("REDIS_PASSWORD", ""),
		DB:       envutil.Int("REDIS_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	log.Info("Connected to Redis", "addr", addr)
	return client, nil
}
