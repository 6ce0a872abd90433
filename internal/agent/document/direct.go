package document

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/feichai0017/catalog-ingestor/internal/models"
)

// TextReader reads the embedded text layer of a PDF.
type TextReader interface {
	Name() string
	ReadText(ctx context.Context, path string) (string, int, error)
}

// DirectStrategy extracts embedded PDF text without OCR.
type DirectStrategy struct {
	reader TextReader
}

func NewDirectStrategy(reader TextReader) *DirectStrategy {
	return &DirectStrategy{reader: reader}
}

func (s *DirectStrategy) Name() string {
	return "direct:" + s.reader.Name()
}

func (s *DirectStrategy) Method() models.ExtractionMethod {
	return models.MethodDirect
}

func (s *DirectStrategy) Supports(path string) bool {
	return isPDF(path)
}

func (s *DirectStrategy) Extract(ctx context.Context, path string) (string, int, error) {
	return s.reader.ReadText(ctx, path)
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
