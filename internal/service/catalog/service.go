package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/catalog-ingestor/internal/capability"
	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/internal/repository"
	"github.com/feichai0017/catalog-ingestor/internal/utils/validator"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
	"github.com/feichai0017/catalog-ingestor/pkg/progress"
	"github.com/feichai0017/catalog-ingestor/pkg/queue"
	"github.com/feichai0017/catalog-ingestor/pkg/storage"
)

// DefaultVendorID is used when an upload names no vendor.
const DefaultVendorID = "default"

// SourceKeyPrefix is the object storage prefix of uploaded source files.
const SourceKeyPrefix = "uploads"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Dispatcher starts a pipeline run for an accepted session. It must not
// block on the run itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, session models.ExtractionSession) error
}

// InlineDispatcher runs each session in its own goroutine of this process.
// The run is detached from the request context and bounded by timeout.
type InlineDispatcher struct {
	pipeline *Pipeline
	timeout  time.Duration
	logger   logger.Logger
	wg       sync.WaitGroup
}

func NewInlineDispatcher(pipeline *Pipeline, timeout time.Duration, log logger.Logger) *InlineDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &InlineDispatcher{
		pipeline: pipeline,
		timeout:  timeout,
		logger:   log.Named("dispatcher"),
	}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, session models.ExtractionSession) error {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Pipeline panicked",
					logger.String("session_id", session.SessionID),
					logger.Any("panic", r),
					logger.Stack(),
				)
			}
		}()

		// the pipeline reports failures on the progress channel
		_, _ = d.pipeline.Run(runCtx, session)
	}()
	return nil
}

// Wait blocks until every dispatched run has finished or ctx ends.
func (d *InlineDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDispatcher hands sessions to worker processes through asynq.
type QueueDispatcher struct {
	queue    queue.Queue
	priority int
	now      func() time.Time
}

func NewQueueDispatcher(q queue.Queue, priority int) *QueueDispatcher {
	return &QueueDispatcher{queue: q, priority: priority, now: time.Now}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, session models.ExtractionSession) error {
	return d.queue.Enqueue(ctx, &queue.Task{
		Priority:  d.priority,
		Session:   session,
		CreatedAt: d.now(),
	})
}

// Submission acknowledges an accepted upload.
type Submission struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
}

type ServiceConfig struct {
	// UploadDir receives accepted files under <session>/<name>.
	UploadDir string
	// UploadSource also copies the source file to object storage.
	UploadSource bool
}

// Service is the entry point of the HTTP layer.
type Service struct {
	validator    *validator.UploadValidator
	dispatcher   Dispatcher
	hub          progress.Hub
	status       queue.StatusStore
	queue        queue.Queue
	repo         repository.CatalogRepository
	storage      storage.Storage
	capabilities capability.Table
	logger       logger.Logger
	config       *ServiceConfig

	newID func() string
	now   func() time.Time
}

// Deps are the collaborators of a Service. Queue and Storage may be nil.
type Deps struct {
	Validator    *validator.UploadValidator
	Dispatcher   Dispatcher
	Hub          progress.Hub
	Status       queue.StatusStore
	Queue        queue.Queue
	Repository   repository.CatalogRepository
	Storage      storage.Storage
	Capabilities capability.Table
}

func NewService(deps Deps, log logger.Logger, cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = &ServiceConfig{UploadDir: "uploads"}
	}
	return &Service{
		validator:    deps.Validator,
		dispatcher:   deps.Dispatcher,
		hub:          deps.Hub,
		status:       deps.Status,
		queue:        deps.Queue,
		repo:         deps.Repository,
		storage:      deps.Storage,
		capabilities: deps.Capabilities,
		logger:       log.Named("catalog"),
		config:       cfg,
		newID:        func() string { return uuid.New().String() },
		now:          time.Now,
	}
}

// Submit validates and stores an upload, then starts its run. Errors
// wrapping ErrUploadInvalid mean nothing was started.
func (s *Service) Submit(ctx context.Context, header *multipart.FileHeader, vendorID, sessionID string) (*Submission, error) {
	if header == nil {
		return nil, fmt.Errorf("%w: no file in request", models.ErrUploadInvalid)
	}

	if sessionID == "" {
		sessionID = s.newID()
	} else if !sessionIDPattern.MatchString(sessionID) {
		return nil, fmt.Errorf("%w: malformed session id", models.ErrUploadInvalid)
	}
	if vendorID == "" {
		vendorID = DefaultVendorID
	}

	result, err := s.validator.ValidateFile(header)
	if err != nil {
		return nil, fmt.Errorf("failed to validate file: %w", err)
	}
	if err := result.Err(); err != nil {
		s.logger.Warn("Upload rejected",
			logger.String("filename", header.Filename),
			logger.Any("errors", result.Errors),
		)
		return nil, err
	}

	fileName := filepath.Base(header.Filename)
	filePath, err := s.saveUpload(header, sessionID, fileName)
	if err != nil {
		return nil, err
	}

	session := models.ExtractionSession{
		SessionID: sessionID,
		VendorID:  vendorID,
		FileName:  fileName,
		FilePath:  filePath,
		FileSize:  header.Size,
		CreatedAt: s.now(),
	}
	session.StoragePath = s.uploadSource(ctx, filePath, sessionID, fileName, result.FileInfo.MimeType)

	pending := &models.SessionStatus{
		SessionID: sessionID,
		Status:    models.RunPending,
		Message:   "Upload accepted",
		StartedAt: session.CreatedAt,
	}
	if err := s.status.SaveStatus(ctx, pending); err != nil {
		s.logger.Warn("Failed to save initial status",
			logger.String("session_id", sessionID),
			logger.Error(err),
		)
	}

	if err := s.dispatcher.Dispatch(ctx, session); err != nil {
		s.logger.Error("Failed to dispatch session",
			logger.String("session_id", sessionID),
			logger.Error(err),
		)
		pending.Status = models.RunFailed
		pending.Error = err.Error()
		pending.FinishedAt = s.now()
		_ = s.status.SaveStatus(context.WithoutCancel(ctx), pending)
		return nil, fmt.Errorf("failed to dispatch session: %w", err)
	}

	s.logger.Info("Catalog upload accepted",
		logger.String("session_id", sessionID),
		logger.String("vendor", vendorID),
		logger.String("filename", fileName),
		logger.Int64("size", header.Size),
	)

	return &Submission{
		SessionID: sessionID,
		Status:    "processing",
		FileName:  fileName,
		FileSize:  header.Size,
	}, nil
}

func (s *Service) saveUpload(header *multipart.FileHeader, sessionID, fileName string) (string, error) {
	dir := filepath.Join(s.config.UploadDir, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst := filepath.Join(dir, fileName)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	return dst, nil
}

// uploadSource copies the source file to object storage and returns its URL.
// Failures only cost the remote copy.
func (s *Service) uploadSource(ctx context.Context, filePath, sessionID, fileName, contentType string) string {
	if !s.config.UploadSource || s.storage == nil || !s.capabilities.ObjectStorage {
		return ""
	}

	f, err := os.Open(filePath)
	if err != nil {
		s.logger.Warn("Failed to open source for upload", logger.Error(err))
		return ""
	}
	defer f.Close()

	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	key := path.Join(SourceKeyPrefix, sessionID, fileName)
	url, err := s.storage.Store(ctx, f, size, key, contentType)
	if err != nil {
		s.logger.Warn("Failed to upload source document",
			logger.String("key", key),
			logger.Error(err),
		)
		return ""
	}
	return url
}

// Subscribe opens the progress stream of a session.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (*progress.Subscription, error) {
	return s.hub.Subscribe(ctx, sessionID)
}

// GetStatus returns the last known state of a session. It consults the
// status store, then the queue, then the persisted uploads.
func (s *Service) GetStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	status, err := s.status.GetStatus(ctx, sessionID)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("Status store lookup failed",
			logger.String("session_id", sessionID),
			logger.Error(err),
		)
	}

	if s.queue != nil {
		if status, err := s.queue.GetTaskStatus(ctx, sessionID); err == nil {
			return status, nil
		}
	}

	upload, err := s.repo.GetUploadBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}

	return &models.SessionStatus{
		SessionID:     sessionID,
		Status:        models.RunCompleted,
		Progress:      100,
		UploadID:      upload.ID,
		TotalProducts: upload.ProductsExtracted,
		TotalImages:   upload.ImagesExtracted,
		StartedAt:     upload.CreatedAt,
		FinishedAt:    upload.CreatedAt,
	}, nil
}

// ListProducts returns the newest products. limit is clamped to
// [1, repository.MaxListLimit]; zero means the default.
func (s *Service) ListProducts(ctx context.Context, limit int) ([]models.Product, error) {
	switch {
	case limit <= 0:
		limit = repository.DefaultListLimit
	case limit > repository.MaxListLimit:
		limit = repository.MaxListLimit
	}

	products, err := s.repo.ListRecentProducts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Capabilities returns the table probed at startup.
func (s *Service) Capabilities() capability.Table {
	return s.capabilities
}
