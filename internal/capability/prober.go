package capability

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

// modelPreference lists model name fragments in priority order.
var modelPreference = []string{"gpt-oss", "llama3.1", "llama3"}

// ModelLister lists the models served by the inference service.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// BucketEnsurer is the slice of object storage the prober needs.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// LookPathFunc matches exec.LookPath.
type LookPathFunc func(file string) (string, error)

// Prober runs every sub-probe independently. A failing probe only turns its
// own capability off.
type Prober struct {
	models      ModelLister
	storage     BucketEnsurer
	lookPath    LookPathFunc
	pinnedModel string
	nativePDF   bool
	cloudOCR    bool
	timeout     time.Duration
	logger      logger.Logger
}

type Option func(*Prober)

// WithModelLister enables the inference probe.
func WithModelLister(m ModelLister, pinned string) Option {
	return func(p *Prober) {
		p.models = m
		p.pinnedModel = pinned
	}
}

// WithStorage enables the object storage probe.
func WithStorage(s BucketEnsurer) Option {
	return func(p *Prober) {
		p.storage = s
	}
}

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn LookPathFunc) Option {
	return func(p *Prober) {
		p.lookPath = fn
	}
}

// WithNativePDF reports the in-process PDF reader.
func WithNativePDF(enabled bool) Option {
	return func(p *Prober) {
		p.nativePDF = enabled
	}
}

// WithCloudOCR reports a configured Textract client.
func WithCloudOCR(enabled bool) Option {
	return func(p *Prober) {
		p.cloudOCR = enabled
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		p.timeout = d
	}
}

func NewProber(log logger.Logger, opts ...Option) *Prober {
	p := &Prober{
		lookPath: exec.LookPath,
		timeout:  5 * time.Second,
		logger:   log.Named("capability"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe detects the capability table. It never fails.
func (p *Prober) Probe(ctx context.Context) Table {
	table := Table{
		NativePDF: p.nativePDF,
		CloudOCR:  p.cloudOCR,
	}

	table.Model = p.probeInference(ctx)
	table.Inference = table.Model != ""

	table.DirectText = p.probeTool(ToolPDFToText)
	table.Rasterizer = p.probeTool(ToolPDFToPPM)
	table.OCR = p.probeTool(ToolTesseract)

	table.ObjectStorage = p.probeStorage(ctx)

	p.logger.Info("Capabilities detected: " + table.String())
	return table
}

func (p *Prober) probeInference(ctx context.Context) string {
	if p.models == nil {
		p.logger.Warn("Inference service not configured")
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	models, err := p.models.ListModels(ctx)
	if err != nil {
		p.logger.Warn("Inference service unavailable", logger.Error(err))
		return ""
	}

	model := SelectModel(models, p.pinnedModel)
	if model == "" {
		p.logger.Warn("Inference service has no models installed")
	}
	return model
}

func (p *Prober) probeTool(name string) bool {
	path, err := p.lookPath(name)
	if err != nil {
		p.logger.Warn("External tool not found",
			logger.String("tool", name),
			logger.Error(err),
		)
		return false
	}
	p.logger.Debug("External tool found",
		logger.String("tool", name),
		logger.String("path", path),
	)
	return true
}

func (p *Prober) probeStorage(ctx context.Context) (ok bool) {
	if p.storage == nil {
		p.logger.Warn("Object storage not configured")
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Object storage probe panicked", logger.Any("panic", r))
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.storage.EnsureBucket(ctx); err != nil {
		p.logger.Warn("Object storage unavailable", logger.Error(err))
		return false
	}
	return true
}

// SelectModel picks a model: the pinned one if installed, then the first
// match of each preferred fragment in order, then the first listed model.
func SelectModel(models []string, pinned string) string {
	if len(models) == 0 {
		return ""
	}
	if pinned != "" {
		for _, m := range models {
			if m == pinned {
				return m
			}
		}
	}
	for _, want := range modelPreference {
		for _, m := range models {
			if strings.Contains(strings.ToLower(m), want) {
				return m
			}
		}
	}
	return models[0]
}
