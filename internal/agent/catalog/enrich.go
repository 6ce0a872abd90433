package catalog

import (
	"context"
	"strings"

	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

// Enricher attaches images and embeddings to extracted products.
type Enricher struct {
	embedder     Embedder
	fallback     *HashEmbedder
	placeholders PlaceholderGenerator
	logger       logger.Logger
}

// NewEnricher builds the stage. A nil embedder uses HashEmbedder.
func NewEnricher(embedder Embedder, placeholders PlaceholderGenerator, log logger.Logger) *Enricher {
	fallback := NewHashEmbedder(DefaultEmbeddingDimension)
	if embedder == nil {
		embedder = fallback
	} else {
		fallback = NewHashEmbedder(embedder.Dimension())
	}
	if placeholders == nil {
		placeholders = NewRandomPlaceholders()
	}
	return &Enricher{
		embedder:     embedder,
		fallback:     fallback,
		placeholders: placeholders,
		logger:       log.Named("enricher"),
	}
}

// Enrich returns a copy of products where every product has at least one
// image, an embedding, a SKU and a price. Pages are assigned round-robin.
func (e *Enricher) Enrich(ctx context.Context, products []models.CandidateProduct, pages []models.ExtractedPage) []models.CandidateProduct {
	log := logger.FromContext(ctx, e.logger)

	out := make([]models.CandidateProduct, len(products))
	texts := make([]string, len(products))

	for i, p := range products {
		if len(pages) > 0 {
			page := pages[i%len(pages)]
			p.Images = []models.ProductImage{{
				LocalURL:  page.LocalURL,
				RemoteURL: page.RemoteURL,
			}}
		} else {
			p.Images = []models.ProductImage{{
				RemoteURL: PlaceholderImageURL(e.placeholders.ImageSeed()),
			}}
		}

		if strings.TrimSpace(p.SKU) == "" {
			p.SKU = e.placeholders.SKU()
		}
		if p.Price <= 0 {
			p.Price = roundPrice(e.placeholders.Price())
		}

		out[i] = p
		texts[i] = strings.TrimSpace(p.Name + " " + p.Description)
	}

	if len(out) == 0 {
		return out
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		log.Warn("Embedding failed, using hash embeddings",
			logger.String("model", e.embedder.Model()),
			logger.Error(err),
		)
		vectors, _ = e.fallback.Embed(ctx, texts)
	}
	for i := range out {
		out[i].Embedding = vectors[i]
	}

	log.Debug("Enriched products",
		logger.Int("products", len(out)),
		logger.Int("pages", len(pages)),
	)
	return out
}
