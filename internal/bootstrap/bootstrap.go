// Package bootstrap wires the catalog pipeline from configuration for the
// server and worker binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/catalog-ingestor/config"
	"github.com/feichai0017/catalog-ingestor/internal/agent"
	agentcatalog "github.com/feichai0017/catalog-ingestor/internal/agent/catalog"
	"github.com/feichai0017/catalog-ingestor/internal/agent/document/image"
	"github.com/feichai0017/catalog-ingestor/internal/agent/document/image/tesseract"
	"github.com/feichai0017/catalog-ingestor/internal/agent/llm"
	"github.com/feichai0017/catalog-ingestor/internal/capability"
	"github.com/feichai0017/catalog-ingestor/internal/repository"
	catalogsvc "github.com/feichai0017/catalog-ingestor/internal/service/catalog"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
	"github.com/feichai0017/catalog-ingestor/pkg/progress"
	"github.com/feichai0017/catalog-ingestor/pkg/queue"
	"github.com/feichai0017/catalog-ingestor/pkg/storage"
)

// Runtime holds the process-wide collaborators. Redis, Storage and Queue
// are nil when not configured.
type Runtime struct {
	Capabilities capability.Table
	Pipeline     *catalogsvc.Pipeline
	Repository   repository.CatalogRepository
	Hub          progress.Hub
	Status       queue.StatusStore
	Storage      storage.Storage
	Redis        *redis.Client
	Queue        *queue.AsynqQueue

	server *config.ServerConfig
	llm    *llm.OllamaClient
	logger logger.Logger
}

// New probes capabilities and builds the pipeline with every facility
// that answered. Only an unreachable configured database is fatal.
func New(ctx context.Context, log logger.Logger) (*Runtime, error) {
	serverCfg := config.GetServerConfig()
	pipelineCfg := config.GetPipelineConfig()
	ollamaCfg := config.GetOllamaConfig()

	rt := &Runtime{
		server: serverCfg,
		logger: log,
		llm: llm.NewOllamaClient(llm.Config{
			Endpoint:    ollamaCfg.Endpoint,
			Model:       ollamaCfg.Model,
			Temperature: ollamaCfg.Temperature,
			MaxTokens:   ollamaCfg.MaxTokens,
			Timeout:     ollamaCfg.Timeout,
		}),
	}

	store, err := storage.NewStorage(storage.StorageType(serverCfg.StorageType), log)
	if err != nil {
		log.Warn("Object storage disabled", logger.Error(err))
	} else {
		rt.Storage = store
	}

	cloudOCR, err := agent.NewCloudRecognizer(ctx, config.GetTextractConfig(), log)
	if err != nil {
		log.Warn("Cloud OCR disabled", logger.Error(err))
	}

	opts := []capability.Option{
		capability.WithModelLister(rt.llm, ollamaCfg.Model),
		capability.WithNativePDF(true),
		capability.WithCloudOCR(cloudOCR != nil),
	}
	if rt.Storage != nil {
		opts = append(opts, capability.WithStorage(rt.Storage))
	}
	rt.Capabilities = capability.NewProber(log, opts...).Probe(ctx)

	var localOCR image.Recognizer
	if rt.Capabilities.OCR {
		localOCR = tesseract.NewRecognizer(tesseract.Options{Languages: pipelineCfg.OCRLanguages}, log)
	}

	stages := agent.NewStageFactory(rt.Capabilities, pipelineCfg, agent.Deps{
		Storage:      rt.Storage,
		LocalOCR:     localOCR,
		CloudOCR:     cloudOCR,
		LLM:          rt.llm,
		Placeholders: agentcatalog.NewRandomPlaceholders(),
	}, log).Build()

	rt.Repository, err = repository.New(ctx, config.GetDatabaseConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	if err := rt.connectRedis(ctx); err != nil {
		log.Warn("Redis unavailable, progress and status stay in-process", logger.Error(err))
	}
	if rt.Redis != nil {
		ttl := config.GetRedisConfig().StatusTTL
		rt.Hub = progress.NewRedisHub(rt.Redis, log)
		rt.Status = queue.NewRedisStatusStore(rt.Redis, ttl)
	} else {
		rt.Hub = progress.NewMemoryHub(log)
		rt.Status = queue.NewMemoryStatusStore(config.GetRedisConfig().StatusTTL)
	}

	rt.Pipeline = catalogsvc.NewPipeline(catalogsvc.Stages{
		Text:       stages.Text,
		Images:     stages.Images,
		Products:   stages.Products,
		Enricher:   stages.Enricher,
		Repository: rt.Repository,
		Progress:   rt.Hub,
		Status:     rt.Status,
	}, catalogsvc.PipelineConfig{
		OutputDir:          serverCfg.OutputDir,
		ExtractedTextLimit: pipelineCfg.ExtractedTextLimit,
		PreviewSize:        pipelineCfg.PreviewSize,
	}, log)

	return rt, nil
}

func (rt *Runtime) connectRedis(ctx context.Context) error {
	cfg := config.GetRedisConfig()
	if !cfg.Enabled() {
		return errors.New("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	rt.Redis = client
	return nil
}

// QueueConfig is the asynq configuration shared by server and worker.
func (rt *Runtime) QueueConfig() *queue.QueueConfig {
	cfg := config.GetRedisConfig()
	return &queue.QueueConfig{
		RedisAddr:      cfg.Addr,
		RedisPassword:  cfg.Password,
		RedisDB:        cfg.DB,
		MaxRetries:     3,
		ProcessTimeout: config.GetPipelineConfig().ProcessTimeout,
	}
}

// Dispatcher returns the queue dispatcher when DISPATCH_MODE=queue and
// redis is up, and the inline one otherwise. The inline dispatcher is also
// returned so callers can wait for it on shutdown.
func (rt *Runtime) Dispatcher() (catalogsvc.Dispatcher, *catalogsvc.InlineDispatcher) {
	if rt.server.DispatchMode == config.DispatchQueue {
		if rt.Redis != nil {
			rt.Queue = queue.NewAsynqQueue(rt.QueueConfig())
			rt.logger.Info("Dispatching sessions to workers")
			return catalogsvc.NewQueueDispatcher(rt.Queue, 2), nil
		}
		rt.logger.Warn("DISPATCH_MODE=queue needs redis, running sessions inline")
	}

	inline := catalogsvc.NewInlineDispatcher(rt.Pipeline, config.GetPipelineConfig().ProcessTimeout, rt.logger)
	return inline, inline
}

// Close releases every client. Errors are logged.
func (rt *Runtime) Close() {
	if rt.Queue != nil {
		if err := rt.Queue.Close(); err != nil {
			rt.logger.Warn("Failed to close queue", logger.Error(err))
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.logger.Warn("Failed to close redis", logger.Error(err))
		}
	}
	if err := rt.Repository.Close(); err != nil {
		rt.logger.Warn("Failed to close repository", logger.Error(err))
	}
	if err := rt.llm.Close(); err != nil {
		rt.logger.Warn("Failed to close inference client", logger.Error(err))
	}
}
