package config

import (
	"sync"
	"time"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

type RedisConfig struct {
	// Addr empty disables redis: progress and status stay in-process.
	Addr      string
	Password  string
	DB        int
	StatusTTL time.Duration
}

func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()

		redisConfig = &RedisConfig{
			Addr:      getString("REDIS_ADDR", ""),
			Password:  getString("REDIS_PASSWORD", ""),
			DB:        getInt("REDIS_DB", 0),
			StatusTTL: getDuration("STATUS_TTL", 24*time.Hour),
		}
	})
	return redisConfig
}
