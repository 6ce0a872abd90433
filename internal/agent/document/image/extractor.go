package image

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/feichai0017/catalog-ingestor/internal/agent/document/pdf"
	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/internal/utils/validator"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
	"github.com/feichai0017/catalog-ingestor/pkg/storage"
)

const (
	// LocalURLPrefix is where the HTTP server exposes the output directory.
	LocalURLPrefix = "/extracted"
	// KeyPrefix prefixes object storage keys for page images.
	KeyPrefix = "catalog"
)

// PageRenderer renders document pages to image files.
type PageRenderer interface {
	Render(ctx context.Context, path, outDir string, opts pdf.RenderOptions) ([]pdf.Page, error)
}

// Extractor rasterizes every page of a document and optionally mirrors the
// images to object storage.
type Extractor struct {
	renderer PageRenderer
	store    storage.Storage
	dpi      int
	logger   logger.Logger
}

// NewExtractor builds the stage. A nil renderer disables extraction and a
// nil store disables uploads.
func NewExtractor(renderer PageRenderer, store storage.Storage, dpi int, log logger.Logger) *Extractor {
	if dpi <= 0 {
		dpi = 150
	}
	return &Extractor{
		renderer: renderer,
		store:    store,
		dpi:      dpi,
		logger:   log.Named("image_extractor"),
	}
}

// ExtractImages returns one entry per rendered page in page order. Pages are
// written under outputDir/<session>/<document> so runs never read each
// other's files. Only a failure to prepare the output directory is returned
// as an error.
func (e *Extractor) ExtractImages(ctx context.Context, sessionID, docPath, outputDir string) ([]models.ExtractedPage, error) {
	log := logger.FromContext(ctx, e.logger)

	if e.renderer == nil {
		log.Info("Rasterizer unavailable, skipping image extraction")
		return []models.ExtractedPage{}, nil
	}

	scope := path.Join(validator.SanitizeSegment(sessionID), validator.SanitizeName(docPath))
	dir := filepath.Join(outputDir, filepath.FromSlash(scope))
	// pages left by an earlier run of the same session would be listed again
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to clear output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	pages, err := e.renderer.Render(ctx, docPath, dir, pdf.RenderOptions{DPI: e.dpi, Prefix: "page"})
	if err != nil {
		log.Warn("Page rendering failed", logger.Error(err))
		return []models.ExtractedPage{}, nil
	}

	result := make([]models.ExtractedPage, 0, len(pages))
	for _, p := range pages {
		file := filepath.Base(p.Path)
		page := models.ExtractedPage{
			Index:     p.Number,
			LocalPath: p.Path,
			LocalURL:  path.Join(LocalURLPrefix, scope, file),
		}

		if e.store != nil {
			remote, err := e.upload(ctx, p.Path, path.Join(KeyPrefix, scope, file))
			if err != nil {
				log.Warn("Failed to upload page image",
					logger.String("file", file),
					logger.Error(err),
				)
			} else {
				page.RemoteURL = remote
			}
		}

		result = append(result, page)
	}

	log.Info("Extracted page images",
		logger.Int("pages", len(result)),
		logger.Bool("uploaded", e.store != nil),
	)
	return result, nil
}

func (e *Extractor) upload(ctx context.Context, filePath, key string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	return e.store.Store(ctx, f, info.Size(), key, "image/png")
}
