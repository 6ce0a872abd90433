package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
	"github.com/feichai0017/catalog-ingestor/pkg/queue"
)

// Runner executes one ingestion session to completion.
type Runner interface {
	Run(ctx context.Context, session models.ExtractionSession) (*models.SessionStatus, error)
}

// CatalogWorker consumes catalog:ingest tasks.
type CatalogWorker struct {
	BaseWorker
	runner Runner
}

func NewCatalogWorker(cfg *Config, runner Runner, log logger.Logger) (*CatalogWorker, error) {
	if cfg.Queues == nil {
		cfg.Queues = queue.Queues
	}

	w := &CatalogWorker{
		BaseWorker: BaseWorker{
			server: newServer(cfg),
			mux:    asynq.NewServeMux(),
			logger: log.Named("worker"),
		},
		runner: runner,
	}

	w.mux.HandleFunc(queue.TaskTypeCatalogIngest, w.handleIngest)
	return w, nil
}

// handleIngest runs the session once. A failed run has already been
// reported on the progress channel, so it is archived instead of retried.
func (w *CatalogWorker) handleIngest(ctx context.Context, t *asynq.Task) error {
	task, err := queue.DecodeTask(t.Payload())
	if err != nil {
		w.logger.Error("Invalid ingest task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log := w.logger.With(logger.String("session_id", task.Session.SessionID))
	log.Info("Processing catalog task",
		logger.String("file", task.Session.FileName),
		logger.Int("priority", task.Priority),
	)

	w.writeResult(t, &models.SessionStatus{
		SessionID: task.Session.SessionID,
		Status:    models.RunRunning,
	})

	status, err := w.runner.Run(ctx, task.Session)
	if status != nil {
		w.writeResult(t, status)
	}
	if err != nil {
		log.Error("Catalog task failed", logger.Error(err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log.Info("Catalog task completed",
		logger.Int("products", status.TotalProducts),
		logger.Int("images", status.TotalImages),
	)
	return nil
}

func (w *CatalogWorker) writeResult(t *asynq.Task, status *models.SessionStatus) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}

	data, err := json.Marshal(status)
	if err != nil {
		w.logger.Error("Failed to marshal task status", logger.Error(err))
		return
	}
	if _, err := rw.Write(data); err != nil {
		w.logger.Error("Failed to write task status", logger.Error(err))
	}
}
