package config

import (
	"sync"
	"time"
)

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig
)

const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"
)

type ServerConfig struct {
	Port            int
	UploadDir       string
	OutputDir       string
	MaxUploadSize   int64
	DispatchMode    string
	StorageType     string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogEncoding     string
	LogFile         string
	WorkerLogFile   string
	Concurrency     int
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		loadEnv()

		mode := getString("DISPATCH_MODE", DispatchInline)
		if mode != DispatchQueue {
			mode = DispatchInline
		}

		serverConfig = &ServerConfig{
			Port:            getInt("PORT", 8080),
			UploadDir:       getString("UPLOAD_DIR", "uploads"),
			OutputDir:       getString("OUTPUT_DIR", "extracted"),
			MaxUploadSize:   int64(getInt("MAX_UPLOAD_MB", 50)) * 1024 * 1024,
			DispatchMode:    mode,
			StorageType:     getString("STORAGE_TYPE", "minio"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
			LogLevel:        getString("LOG_LEVEL", "info"),
			LogEncoding:     getString("LOG_ENCODING", "json"),
			LogFile:         getString("LOG_FILE", "logs/app.log"),
			WorkerLogFile:   getString("WORKER_LOG_FILE", "logs/worker.log"),
			Concurrency:     getInt("WORKER_CONCURRENCY", 5),
		}
	})
	return serverConfig
}
