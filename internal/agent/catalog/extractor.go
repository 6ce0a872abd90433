// Package catalog turns extracted document text into candidate products and
// enriches them with images and embeddings.
package catalog

import (
	"context"
	"strings"

	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

type Options struct {
	PromptMaxChars int
	MaxCandidates  int
	PriceLookahead int
}

func DefaultOptions() Options {
	return Options{
		PromptMaxChars: 4000,
		MaxCandidates:  50,
		PriceLookahead: 3,
	}
}

// ProductExtractor finds products with the inference model when one is
// available and falls back to line heuristics otherwise.
type ProductExtractor struct {
	generator    Generator
	placeholders PlaceholderGenerator
	options      Options
	logger       logger.Logger
}

// NewProductExtractor builds the stage. A nil generator selects the
// heuristic path only.
func NewProductExtractor(generator Generator, placeholders PlaceholderGenerator, opts Options, log logger.Logger) *ProductExtractor {
	defaults := DefaultOptions()
	if opts.PromptMaxChars <= 0 {
		opts.PromptMaxChars = defaults.PromptMaxChars
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = defaults.MaxCandidates
	}
	if opts.PriceLookahead <= 0 {
		opts.PriceLookahead = defaults.PriceLookahead
	}
	if placeholders == nil {
		placeholders = NewRandomPlaceholders()
	}
	return &ProductExtractor{
		generator:    generator,
		placeholders: placeholders,
		options:      opts,
		logger:       log.Named("product_extractor"),
	}
}

// ExtractProducts never fails. Zero products is a valid result.
func (e *ProductExtractor) ExtractProducts(ctx context.Context, text, source string) []models.CandidateProduct {
	log := logger.FromContext(ctx, e.logger)

	if strings.TrimSpace(text) == "" {
		log.Info("No text to extract products from")
		return []models.CandidateProduct{}
	}

	if e.generator != nil {
		products, err := e.extractWithModel(ctx, text, source)
		if err == nil {
			log.Info("Products extracted with model", logger.Int("count", len(products)))
			return products
		}
		log.Warn("Model extraction unusable, falling back to heuristics", logger.Error(err))
	}

	products := e.extractHeuristic(text, source)
	log.Info("Products extracted with heuristics", logger.Int("count", len(products)))
	return products
}
