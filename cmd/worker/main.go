package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/catalog-ingestor/config"
	"github.com/feichai0017/catalog-ingestor/internal/bootstrap"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
	"github.com/feichai0017/catalog-ingestor/pkg/queue"
	"github.com/feichai0017/catalog-ingestor/pkg/worker"
)

func main() {
	serverCfg := config.GetServerConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(serverCfg.LogLevel),
		logger.WithEncoding(serverCfg.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", serverCfg.WorkerLogFile}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if !config.GetRedisConfig().Enabled() {
		log.Fatal("REDIS_ADDR is required to run the worker")
	}
	if err := os.MkdirAll(serverCfg.OutputDir, 0755); err != nil {
		log.Fatal("Failed to create output directory", logger.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.New(ctx, log)
	if err != nil {
		log.Fatal("Failed to initialize pipeline", logger.Error(err))
	}
	defer rt.Close()

	qcfg := rt.QueueConfig()
	workerCfg := &worker.Config{
		RedisAddr:       qcfg.RedisAddr,
		RedisPassword:   qcfg.RedisPassword,
		RedisDB:         qcfg.RedisDB,
		Concurrency:     serverCfg.Concurrency,
		Queues:          queue.Queues,
		ShutdownTimeout: serverCfg.ShutdownTimeout,
	}

	catalogWorker, err := worker.NewCatalogWorker(workerCfg, rt.Pipeline, log)
	if err != nil {
		log.Fatal("Failed to create catalog worker", logger.Error(err))
	}

	if err := catalogWorker.Start(ctx); err != nil {
		log.Fatal("Failed to start worker", logger.Error(err))
	}
	log.Info("Worker started",
		logger.Int("concurrency", serverCfg.Concurrency),
		logger.String("capabilities", rt.Capabilities.String()),
	)

	// wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	catalogWorker.Stop()
	log.Info("Worker stopped")
}
