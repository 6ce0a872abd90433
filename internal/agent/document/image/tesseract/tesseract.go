// Package tesseract recognizes page text with a local Tesseract install.
// It needs cgo and the tesseract and leptonica headers.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	pageimage "github.com/feichai0017/catalog-ingestor/internal/agent/document/image"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

type Options struct {
	Languages   []string
	PageSegMode gosseract.PageSegMode
}

// Recognizer runs local OCR through gosseract.
type Recognizer struct {
	options       Options
	preprocessors []pageimage.Preprocessor
	logger        logger.Logger
}

func NewRecognizer(opts Options, log logger.Logger) *Recognizer {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}
	if opts.PageSegMode == 0 {
		opts.PageSegMode = gosseract.PSM_AUTO
	}
	return &Recognizer{
		options:       opts,
		preprocessors: pageimage.DefaultPreprocessors(),
		logger:        log.Named("tesseract"),
	}
}

func (r *Recognizer) Name() string {
	return "tesseract"
}

func (r *Recognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	processed, err := pageimage.Preprocess(img, r.preprocessors)
	if err != nil {
		return "", err
	}

	// one client per call, gosseract clients are not safe for concurrent use
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Join(r.options.Languages, "+")); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(r.options.PageSegMode); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, processed, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to get text: %w", err)
	}
	return text, nil
}
