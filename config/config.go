package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	DB_URL           string `mapstructure:"DB_URL"`
	RedisAddr        string `mapstructure:"REDIS_ADDR"`
	RedisPassword    string `mapstructure:"REDIS_PASSWORD"`
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatID      int64  `mapstructure:"ADMIN_CHAT_ID"`

	// MaxRebateLevel bounds the upline walk; config rows beyond it are ignored.
	MaxRebateLevel int `mapstructure:"MAX_REBATE_LEVEL"`
	// RebateWorkerIntervalMin is the pending-rebate pass period in minutes.
	RebateWorkerIntervalMin int `mapstructure:"REBATE_WORKER_INTERVAL_MIN"`
	// MetricsCacheTTLSec is the redis TTL for cached performance metrics.
	MetricsCacheTTLSec int `mapstructure:"METRICS_CACHE_TTL_SEC"`
}

func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	viper.AddConfigPath(filepath.Dir(absPath))
	viper.SetConfigName(filepath.Base(absPath))
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("MAX_REBATE_LEVEL", 10)
	viper.SetDefault("REBATE_WORKER_INTERVAL_MIN", 5)
	viper.SetDefault("METRICS_CACHE_TTL_SEC", 300)

	if err := viper.ReadInConfig(); err != nil {
		return config, fmt.Errorf("failed to read config: %w", err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}
