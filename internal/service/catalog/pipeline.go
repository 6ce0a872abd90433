// Package catalog runs catalog ingestion sessions: it drives the extraction
// stages in order, persists the result and reports progress per session.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/catalog-ingestor/internal/agent/document"
	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/converters"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
	"github.com/feichai0017/catalog-ingestor/pkg/queue"
)

// Stage is a state of one ingestion run.
type Stage int

const (
	StageUploaded Stage = iota
	StageParsing
	StageImageExtraction
	StageProductExtraction
	StagePersisting
	StagePublishing
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageUploaded:
		return "uploaded"
	case StageParsing:
		return "parsing"
	case StageImageExtraction:
		return "image_extraction"
	case StageProductExtraction:
		return "product_extraction"
	case StagePersisting:
		return "persisting"
	case StagePublishing:
		return "publishing"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

type stepInfo struct {
	number   int
	name     string
	active   int
	complete int
}

var steps = map[Stage]stepInfo{
	StageParsing:           {number: 1, name: "Parsing document", active: 5, complete: 20},
	StageImageExtraction:   {number: 2, name: "Extracting images", active: 25, complete: 40},
	StageProductExtraction: {number: 3, name: "Extracting products", active: 45, complete: 65},
	StagePersisting:        {number: 4, name: "Saving catalog", active: 70, complete: 85},
	StagePublishing:        {number: 5, name: "Publishing catalog", active: 90, complete: 100},
}

type TextExtractor interface {
	ExtractText(ctx context.Context, path string) document.Result
}

type ImageExtractor interface {
	ExtractImages(ctx context.Context, sessionID, docPath, outputDir string) ([]models.ExtractedPage, error)
}

type ProductExtractor interface {
	ExtractProducts(ctx context.Context, text, source string) []models.CandidateProduct
}

type Enricher interface {
	Enrich(ctx context.Context, products []models.CandidateProduct, pages []models.ExtractedPage) []models.CandidateProduct
}

// CatalogStore is the part of the repository the pipeline writes to.
type CatalogStore interface {
	SaveCatalog(ctx context.Context, upload *models.CatalogUpload, products []models.CandidateProduct) (int, error)
}

// Publisher delivers progress events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event models.ProgressEvent)
}

// Stages bundles the collaborators of a Pipeline.
type Stages struct {
	Text       TextExtractor
	Images     ImageExtractor
	Products   ProductExtractor
	Enricher   Enricher
	Repository CatalogStore
	Progress   Publisher
	Status     queue.StatusStore
}

type PipelineConfig struct {
	// OutputDir receives rasterized page images.
	OutputDir          string
	ExtractedTextLimit int
	PreviewSize        int
}

// Pipeline is the orchestrator of one ingestion run. It is safe for
// concurrent runs; all per-run state lives in run.
type Pipeline struct {
	stages    Stages
	config    PipelineConfig
	converter *converters.PayloadConverter
	logger    logger.Logger
	now       func() time.Time
}

func NewPipeline(stages Stages, cfg PipelineConfig, log logger.Logger) *Pipeline {
	if cfg.ExtractedTextLimit <= 0 {
		cfg.ExtractedTextLimit = 10000
	}
	return &Pipeline{
		stages:    stages,
		config:    cfg,
		converter: converters.NewPayloadConverter(cfg.PreviewSize),
		logger:    log.Named("pipeline"),
		now:       time.Now,
	}
}

type run struct {
	p        *Pipeline
	session  models.ExtractionSession
	state    Stage
	progress int
	status   *models.SessionStatus
	logger   logger.Logger
}

// Run executes the session to Done or Failed and returns the final status.
// The returned error is non-nil exactly when the run failed; a failure has
// already been published as a step 0 error event.
func (p *Pipeline) Run(ctx context.Context, session models.ExtractionSession) (status *models.SessionStatus, err error) {
	ctx = logger.WithSessionID(ctx, session.SessionID)
	r := &run{
		p:       p,
		session: session,
		state:   StageUploaded,
		logger:  logger.FromContext(ctx, p.logger),
		status: &models.SessionStatus{
			SessionID: session.SessionID,
			Status:    models.RunRunning,
			StartedAt: p.now(),
		},
	}

	// a panicking stage ends the run like any other stage failure
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		r.logger.Error("Pipeline panicked",
			logger.String("stage", r.state.String()),
			logger.Any("panic", rec),
			logger.Stack(),
		)
		cause := fmt.Errorf("stage panicked: %v", rec)
		if r.state == StageFailed || r.state == StageDone {
			status, err = r.status, cause
			return
		}
		status, err = r.fail(ctx, cause)
	}()

	r.logger.Info("Starting catalog ingestion",
		logger.String("file", session.FileName),
		logger.String("vendor", session.VendorID),
	)
	r.saveStatus(ctx)

	// parsing
	if err := r.enter(ctx, StageParsing); err != nil {
		return r.fail(ctx, err)
	}
	text := p.stages.Text.ExtractText(ctx, session.FilePath)
	r.complete(ctx, fmt.Sprintf("Extracted %d characters from %d pages (%s)", len(text.Text), text.Pages, text.Method))

	// images
	if err := r.enter(ctx, StageImageExtraction); err != nil {
		return r.fail(ctx, err)
	}
	pages, err := p.stages.Images.ExtractImages(ctx, session.SessionID, session.FilePath, p.config.OutputDir)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.complete(ctx, fmt.Sprintf("Extracted %d images", len(pages)))

	// products and enrichment
	if err := r.enter(ctx, StageProductExtraction); err != nil {
		return r.fail(ctx, err)
	}
	products := p.stages.Products.ExtractProducts(ctx, text.Text, session.FileName)
	products = p.stages.Enricher.Enrich(ctx, products, pages)
	r.complete(ctx, fmt.Sprintf("Found %d products", len(products)))

	// persistence
	if err := r.enter(ctx, StagePersisting); err != nil {
		return r.fail(ctx, err)
	}
	upload := &models.CatalogUpload{
		SessionID:        session.SessionID,
		VendorID:         session.VendorID,
		FileName:         session.FileName,
		StoragePath:      session.StoragePath,
		ImagesExtracted:  len(pages),
		ExtractedText:    truncateText(text.Text, p.config.ExtractedTextLimit),
		ExtractionMethod: text.Method,
	}
	saved, err := p.stages.Repository.SaveCatalog(ctx, upload, products)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.complete(ctx, fmt.Sprintf("Saved %d products", saved))

	// publishing
	if err := r.enter(ctx, StagePublishing); err != nil {
		return r.fail(ctx, err)
	}
	payload := p.converter.Convert(upload.ID, products, len(pages), text.Method)

	r.status.Status = models.RunCompleted
	r.status.UploadID = upload.ID
	r.status.TotalProducts = payload.TotalProducts
	r.status.TotalImages = payload.TotalImages
	r.status.Message = fmt.Sprintf("Catalog ready: %d products, %d images", payload.TotalProducts, payload.TotalImages)
	r.status.FinishedAt = p.now()
	r.status.Progress = steps[StagePublishing].complete
	r.saveStatus(ctx)

	r.publish(ctx, models.ProgressEvent{
		Step:     steps[StagePublishing].number,
		StepName: steps[StagePublishing].name,
		Status:   models.EventComplete,
		Message:  r.status.Message,
		Progress: steps[StagePublishing].complete,
		Payload:  payload,
	})
	r.state = StageDone

	r.logger.Info("Catalog ingestion completed",
		logger.String("uploadId", upload.ID),
		logger.Int("products", payload.TotalProducts),
		logger.Int("images", payload.TotalImages),
		logger.String("method", string(text.Method)),
	)
	return r.status, nil
}

// enter moves the run into stage and publishes its active event. A context
// that has ended stops the run at the stage boundary.
func (r *run) enter(ctx context.Context, stage Stage) error {
	if err := ctx.Err(); err != nil {
		r.state = stage
		return fmt.Errorf("run aborted: %w", err)
	}

	r.state = stage
	info := steps[stage]
	r.publish(ctx, models.ProgressEvent{
		Step:     info.number,
		StepName: info.name,
		Status:   models.EventActive,
		Message:  info.name,
		Progress: info.active,
	})
	return nil
}

func (r *run) complete(ctx context.Context, message string) {
	info := steps[r.state]
	r.publish(ctx, models.ProgressEvent{
		Step:     info.number,
		StepName: info.name,
		Status:   models.EventComplete,
		Message:  message,
		Progress: info.complete,
	})
	r.logger.Debug("Stage completed",
		logger.String("stage", r.state.String()),
		logger.String("message", message),
	)
}

// fail publishes the terminal error event. The event keeps the last
// published progress so progress never moves backwards.
func (r *run) fail(ctx context.Context, cause error) (*models.SessionStatus, error) {
	failed := r.state
	info, ok := steps[failed]
	if !ok {
		info.name = failed.String()
	}
	r.state = StageFailed

	// terminal bookkeeping must outlive an expired run context
	ctx = context.WithoutCancel(ctx)

	message := fmt.Sprintf("%s failed: %v", info.name, cause)
	if errors.Is(cause, models.ErrPersistenceFailed) {
		message = fmt.Sprintf("%s failed: the catalog could not be saved", info.name)
	}

	r.logger.Error("Catalog ingestion failed",
		logger.String("stage", failed.String()),
		logger.Error(cause),
	)

	r.status.Status = models.RunFailed
	r.status.Message = message
	r.status.Error = cause.Error()
	r.status.TotalProducts = 0
	r.status.TotalImages = 0
	r.status.FinishedAt = r.p.now()
	r.saveStatus(ctx)

	r.publish(ctx, models.ProgressEvent{
		Step:     0,
		StepName: info.name,
		Status:   models.EventError,
		Message:  message,
		Progress: r.progress,
		Payload:  r.p.converter.Empty(),
	})

	return r.status, fmt.Errorf("%s: %w", failed, cause)
}

func (r *run) publish(ctx context.Context, ev models.ProgressEvent) {
	ev.SessionID = r.session.SessionID
	if ev.Status != models.EventError {
		r.progress = ev.Progress
		r.status.Progress = ev.Progress
	}
	r.p.stages.Progress.Publish(ctx, ev)
}

func (r *run) saveStatus(ctx context.Context) {
	if r.p.stages.Status == nil {
		return
	}
	if err := r.p.stages.Status.SaveStatus(ctx, r.status); err != nil {
		r.logger.Warn("Failed to save session status",
			logger.String("status", string(r.status.Status)),
			logger.Error(err),
		)
	}
}

// truncateText cuts s to at most limit runes.
func truncateText(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
