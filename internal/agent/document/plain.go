package document

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/feichai0017/catalog-ingestor/internal/models"
)

var plainExtensions = map[string]rune{
	".txt": 0,
	".md":  0,
	".csv": ',',
	".tsv": '\t',
}

// IsPlainText reports whether path is read by the plain strategy.
func IsPlainText(path string) bool {
	_, ok := plainExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// PlainStrategy reads text-like uploads directly. Delimited files are
// flattened to one field per line with a blank line between rows.
type PlainStrategy struct{}

func NewPlainStrategy() *PlainStrategy {
	return &PlainStrategy{}
}

func (s *PlainStrategy) Name() string {
	return "plain"
}

func (s *PlainStrategy) Method() models.ExtractionMethod {
	return models.MethodPlain
}

func (s *PlainStrategy) Supports(path string) bool {
	return IsPlainText(path)
}

func (s *PlainStrategy) Extract(ctx context.Context, path string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	comma := plainExtensions[strings.ToLower(filepath.Ext(path))]
	if comma == 0 {
		data, err := io.ReadAll(f)
		if err != nil {
			return "", 0, err
		}
		return string(data), 1, nil
	}

	text, err := flattenDelimited(f, comma)
	if err != nil {
		return "", 0, err
	}
	return text, 1, nil
}

func flattenDelimited(r io.Reader, comma rune) (string, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var sb strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse delimited file: %w", err)
		}

		wrote := false
		for _, field := range record {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			sb.WriteString(field)
			sb.WriteString("\n")
			wrote = true
		}
		if wrote {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
