package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/mediavault/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLimiter),
	fx.Provide(NewLocker),
)

// NewRedisClient returns nil when REDIS_ADDR is empty.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) redis.UniversalClient {
	addr := strings.TrimSpace(cfg.RateLimit.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// NewLimiter returns nil when rate limiting is disabled.
func NewLimiter(cfg config.Config, client redis.UniversalClient, log *zap.Logger) Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	policies := Policies(cfg.RateLimit)
	if client == nil {
		log.Named("rate.limit").Warn("redis not configured, using in-process rate limiting")
		return NewLocalLimiter(policies)
	}
	return NewRedisLimiter(NewTokenBucket(client), policies)
}
