// Package agent assembles the extraction stages for the capabilities that
// were detected at startup.
package agent

import (
	"context"
	"fmt"

	"github.com/feichai0017/catalog-ingestor/config"
	"github.com/feichai0017/catalog-ingestor/internal/agent/catalog"
	"github.com/feichai0017/catalog-ingestor/internal/agent/document"
	"github.com/feichai0017/catalog-ingestor/internal/agent/document/image"
	"github.com/feichai0017/catalog-ingestor/internal/agent/document/pdf"
	"github.com/feichai0017/catalog-ingestor/internal/agent/llm"
	"github.com/feichai0017/catalog-ingestor/internal/capability"
	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
	"github.com/feichai0017/catalog-ingestor/pkg/storage"
)

// Deps are the clients a StageFactory may wire in. Any of them may be nil;
// the capability table decides which are used.
type Deps struct {
	Runner       pdf.Runner
	Storage      storage.Storage
	LocalOCR     image.Recognizer
	CloudOCR     image.Recognizer
	LLM          *llm.OllamaClient
	Placeholders catalog.PlaceholderGenerator
}

// Stages are the extraction stages of one process.
type Stages struct {
	Text     *document.Extractor
	Images   *image.Extractor
	Products *catalog.ProductExtractor
	Enricher *catalog.Enricher
}

// StageFactory picks a strategy per stage from the capability table.
type StageFactory struct {
	capabilities capability.Table
	pipeline     *config.PipelineConfig
	deps         Deps
	logger       logger.Logger
}

func NewStageFactory(caps capability.Table, cfg *config.PipelineConfig, deps Deps, log logger.Logger) *StageFactory {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	if deps.Runner == nil {
		deps.Runner = pdf.NewExecRunner(cfg.ToolTimeout)
	}
	return &StageFactory{
		capabilities: caps,
		pipeline:     cfg,
		deps:         deps,
		logger:       log.Named("stages"),
	}
}

// Build wires every stage.
func (f *StageFactory) Build() Stages {
	return Stages{
		Text:     f.TextExtractor(),
		Images:   f.ImageExtractor(),
		Products: f.ProductExtractor(),
		Enricher: f.Enricher(),
	}
}

// TextExtractor orders strategies from cheapest to most expensive: plain
// files, pdftotext, the native PDF reader, then OCR.
func (f *StageFactory) TextExtractor() *document.Extractor {
	strategies := []document.Strategy{document.NewPlainStrategy()}

	if f.capabilities.DirectText {
		strategies = append(strategies, document.NewDirectStrategy(pdf.NewToolTextReader(f.deps.Runner, f.logger)))
	} else {
		f.unavailable("direct text", capability.ToolPDFToText)
	}
	if f.capabilities.NativePDF {
		strategies = append(strategies, document.NewDirectStrategy(pdf.NewNativeTextReader(f.logger)))
	}

	if recognizers := f.recognizers(); f.capabilities.Rasterizer && len(recognizers) > 0 {
		strategies = append(strategies, document.NewOCRStrategy(
			pdf.NewRasterizer(f.deps.Runner, f.logger),
			recognizers,
			document.OCROptions{
				MaxPages:    f.pipeline.OCRMaxPages,
				DPI:         f.pipeline.OCRDPI,
				Concurrency: f.pipeline.OCRConcurrency,
			},
			f.logger,
		))
	} else {
		f.unavailable("ocr", capability.ToolPDFToPPM+"+recognizer")
	}

	extractor := document.NewExtractor(f.logger, strategies...)
	f.logger.Info("Text strategies configured", logger.Strings("strategies", extractor.Strategies()))
	return extractor
}

func (f *StageFactory) recognizers() []image.Recognizer {
	var out []image.Recognizer
	if f.capabilities.OCR && f.deps.LocalOCR != nil {
		out = append(out, f.deps.LocalOCR)
	}
	if f.capabilities.CloudOCR && f.deps.CloudOCR != nil {
		out = append(out, f.deps.CloudOCR)
	}
	return out
}

// ImageExtractor renders pages when pdftoppm exists and uploads them when
// object storage answered the probe.
func (f *StageFactory) ImageExtractor() *image.Extractor {
	var renderer image.PageRenderer
	if f.capabilities.Rasterizer {
		renderer = pdf.NewRasterizer(f.deps.Runner, f.logger)
	} else {
		f.unavailable("image extraction", capability.ToolPDFToPPM)
	}

	var store storage.Storage
	if f.capabilities.ObjectStorage && f.deps.Storage != nil {
		store = f.deps.Storage
	} else {
		f.unavailable("image upload", "object storage")
	}

	return image.NewExtractor(renderer, store, f.pipeline.ImageDPI, f.logger)
}

// ProductExtractor uses the selected model when inference is available.
func (f *StageFactory) ProductExtractor() *catalog.ProductExtractor {
	var generator catalog.Generator
	if f.capabilities.HasInference() && f.deps.LLM != nil {
		generator = f.deps.LLM.WithModel(f.capabilities.Model)
	} else {
		f.unavailable("model extraction", "ollama")
	}

	return catalog.NewProductExtractor(generator, f.deps.Placeholders, catalog.Options{
		PromptMaxChars: f.pipeline.PromptMaxChars,
		MaxCandidates:  f.pipeline.MaxCandidates,
		PriceLookahead: f.pipeline.PriceLookahead,
	}, f.logger)
}

func (f *StageFactory) Enricher() *catalog.Enricher {
	return catalog.NewEnricher(
		catalog.NewHashEmbedder(f.pipeline.EmbeddingDimension),
		f.deps.Placeholders,
		f.logger,
	)
}

func (f *StageFactory) unavailable(feature, facility string) {
	f.logger.Warn("Capability unavailable, using fallback",
		logger.String("feature", feature),
		logger.Error(fmt.Errorf("%w: %s", models.ErrCapabilityUnavailable, facility)),
	)
}

// NewCloudRecognizer builds the Textract recognizer, or returns an error
// wrapping ErrCapabilityUnavailable when Textract is not configured.
func NewCloudRecognizer(ctx context.Context, cfg *config.TextractConfig, log logger.Logger) (image.Recognizer, error) {
	if !cfg.Usable() {
		return nil, fmt.Errorf("%w: textract is not configured", models.ErrCapabilityUnavailable)
	}
	r, err := image.NewTextractRecognizer(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCapabilityUnavailable, err)
	}
	return r, nil
}
