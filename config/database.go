package config

import (
	"sync"
	"time"
)

var (
	databaseOnce   sync.Once
	databaseConfig *DatabaseConfig
)

type DatabaseConfig struct {
	// URL is a lib/pq connection string. Empty means the in-memory
	// repository is used.
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

func GetDatabaseConfig() *DatabaseConfig {
	databaseOnce.Do(func() {
		loadEnv()

		databaseConfig = &DatabaseConfig{
			URL:             getString("DATABASE_URL", ""),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     getBool("DB_AUTO_MIGRATE", true),
		}
	})
	return databaseConfig
}
