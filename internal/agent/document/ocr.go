package document

import (
	"context"
	"errors"
	"fmt"
	stdimage "image"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/catalog-ingestor/internal/agent/document/image"
	"github.com/feichai0017/catalog-ingestor/internal/agent/document/pdf"
	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

type OCROptions struct {
	MaxPages    int
	DPI         int
	Concurrency int
}

// OCRStrategy renders the leading pages and recognizes them. Recognizers are
// tried in order per page.
type OCRStrategy struct {
	renderer    image.PageRenderer
	recognizers []image.Recognizer
	options     OCROptions
	logger      logger.Logger
}

func NewOCRStrategy(renderer image.PageRenderer, recognizers []image.Recognizer, opts OCROptions, log logger.Logger) *OCRStrategy {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	return &OCRStrategy{
		renderer:    renderer,
		recognizers: recognizers,
		options:     opts,
		logger:      log.Named("ocr"),
	}
}

func (s *OCRStrategy) Name() string {
	names := make([]string, 0, len(s.recognizers))
	for _, r := range s.recognizers {
		names = append(names, r.Name())
	}
	return "ocr:" + strings.Join(names, "+")
}

func (s *OCRStrategy) Method() models.ExtractionMethod {
	return models.MethodOCR
}

func (s *OCRStrategy) Supports(path string) bool {
	return isPDF(path) && len(s.recognizers) > 0
}

func (s *OCRStrategy) Extract(ctx context.Context, path string) (string, int, error) {
	tmp, err := os.MkdirTemp("", "catalog-ocr-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	pages, err := s.renderer.Render(ctx, path, tmp, pdf.RenderOptions{
		DPI:       s.options.DPI,
		FirstPage: 1,
		LastPage:  s.options.MaxPages,
		Prefix:    "ocr",
	})
	if err != nil {
		return "", 0, err
	}
	if len(pages) == 0 {
		return "", 0, errors.New("no pages rendered")
	}

	texts := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.options.Concurrency)

	for i, page := range pages {
		i, page := i, page
		g.Go(func() error {
			text, err := s.recognizePage(gctx, page)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("Page recognition failed",
					logger.Int("page", page.Number),
					logger.Error(err),
				)
				return nil
			}
			texts[i] = strings.TrimSpace(text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", 0, err
	}

	var parts []string
	for _, t := range texts {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n"), len(pages), nil
}

func (s *OCRStrategy) recognizePage(ctx context.Context, page pdf.Page) (string, error) {
	img, err := imaging.Open(page.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open page image: %w", err)
	}

	var errs []error
	for _, r := range s.recognizers {
		text, err := recognize(ctx, r, img)
		if err == nil {
			return text, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
	}
	return "", errors.Join(errs...)
}

// recognize turns a recognizer panic into an error so the page falls back to
// the next recognizer instead of taking the process down.
func recognize(ctx context.Context, r image.Recognizer, img stdimage.Image) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("recognizer panicked: %v", rec)
		}
	}()
	return r.Recognize(ctx, img)
}
