package locking

import (
	"github.com/agnuslink/agnuslink/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("locking",
	fx.Provide(NewFromConfig),
)

// NewFromConfig picks the redis locker when REDIS_ADDR is set, otherwise
// the in-process locker (single-instance deployments and tests).
func NewFromConfig(cfg config.Config, log *zap.Logger) Locker {
	if cfg.RedisAddr == "" {
		log.Named("locking").Info("redis not configured, using in-process locks")
		return NewMemoryLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Named("locking").Info("using redis locks", zap.String("addr", cfg.RedisAddr))
	return NewRedisLocker(client)
}
