// Package document turns an uploaded document into plain text, trying the
// available strategies from cheapest to most expensive.
package document

import (
	"context"
	"strings"
	"time"

	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

// Result is the outcome of text extraction. Method is MethodNone and Text is
// empty when every strategy failed.
type Result struct {
	Text   string                  `json:"text"`
	Method models.ExtractionMethod `json:"method"`
	Pages  int                     `json:"pages"`
}

// Strategy is one way of getting text out of a document.
type Strategy interface {
	Name() string
	Method() models.ExtractionMethod
	Supports(path string) bool
	Extract(ctx context.Context, path string) (text string, pages int, err error)
}

// Extractor runs strategies in order until one yields non-blank text.
type Extractor struct {
	strategies []Strategy
	logger     logger.Logger
}

func NewExtractor(log logger.Logger, strategies ...Strategy) *Extractor {
	return &Extractor{
		strategies: strategies,
		logger:     log.Named("text_extractor"),
	}
}

// Strategies lists the configured strategy names in order.
func (e *Extractor) Strategies() []string {
	names := make([]string, 0, len(e.strategies))
	for _, s := range e.strategies {
		names = append(names, s.Name())
	}
	return names
}

// ExtractText never fails; errors and blank output fall through to the next
// strategy.
func (e *Extractor) ExtractText(ctx context.Context, path string) Result {
	log := logger.FromContext(ctx, e.logger)

	for _, s := range e.strategies {
		if !s.Supports(path) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		text, pages, err := s.Extract(ctx, path)
		if err != nil {
			log.Warn("Text strategy failed",
				logger.String("strategy", s.Name()),
				logger.Error(err),
			)
			continue
		}
		if strings.TrimSpace(text) == "" {
			log.Info("Text strategy returned no text",
				logger.String("strategy", s.Name()),
			)
			continue
		}

		log.Info("Text extracted",
			logger.String("strategy", s.Name()),
			logger.String("method", string(s.Method())),
			logger.Int("pages", pages),
			logger.Int("chars", len(text)),
			logger.Duration("took", time.Since(start)),
		)
		return Result{Text: text, Method: s.Method(), Pages: pages}
	}

	log.Warn("No text could be extracted")
	return Result{Method: models.MethodNone}
}
