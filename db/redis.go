package db

import (
	"context"
	"fmt"

	"github.com/jvaldez-dev/mlm-rewards/config"
	"github.com/jvaldez-dev/mlm-rewards/utils"
	"github.com/redis/go-redis/v9"
)

func ConnectRedis(cfg *config.Config, log *utils.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("✅ Redis connection successfully")
	return rdb, nil
}
