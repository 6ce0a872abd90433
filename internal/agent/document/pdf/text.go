package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

// ToolTextReader extracts embedded text with pdftotext, keeping layout.
type ToolTextReader struct {
	runner Runner
	logger logger.Logger
}

func NewToolTextReader(runner Runner, log logger.Logger) *ToolTextReader {
	return &ToolTextReader{
		runner: runner,
		logger: log.Named("pdftotext"),
	}
}

func (r *ToolTextReader) Name() string {
	return "pdftotext"
}

// ReadText writes the document text to stdout and returns it. Pages are
// separated by form feeds in pdftotext output.
func (r *ToolTextReader) ReadText(ctx context.Context, path string) (string, int, error) {
	out, err := r.runner.Run(ctx, "pdftotext", "-layout", path, "-")
	if err != nil {
		return "", 0, err
	}
	text := string(out)
	pages := strings.Count(strings.TrimRight(text, "\f"), "\f") + 1
	if strings.TrimSpace(text) == "" {
		pages = 0
	}
	return strings.ReplaceAll(text, "\f", "\n"), pages, nil
}

// NativeTextReader reads the text layer in process.
type NativeTextReader struct {
	logger logger.Logger
}

func NewNativeTextReader(log logger.Logger) *NativeTextReader {
	return &NativeTextReader{
		logger: log.Named("pdf"),
	}
}

func (r *NativeTextReader) Name() string {
	return "native"
}

func (r *NativeTextReader) ReadText(ctx context.Context, path string) (text string, pages int, err error) {
	// malformed content streams make the reader panic
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf reader panicked: %v", rec)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			r.logger.Warn("Failed to read page text",
				logger.Int("page", i),
				logger.Error(err),
			)
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}

	if numPages == 0 {
		return "", 0, errors.New("pdf has no pages")
	}
	return sb.String(), numPages, nil
}
