// Package database connects the shared stores the service depends on.
package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/config"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/retry"
)

// NewRedisClient connects the metadata cache. It returns nil, nil when Redis
// is not configured (host is empty). The first ping is retried with backoff
// so a cache starting alongside the service does not fail startup.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, retryCfg *retry.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	attempt := 0
	err := retry.Do(ctx, retryCfg, func() error {
		attempt++
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Debug("Redis ping failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
	return client, nil
}
