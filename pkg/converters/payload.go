package converters

import (
	"github.com/feichai0017/catalog-ingestor/internal/models"
)

// DefaultPreviewSize is how many products a completion payload previews.
const DefaultPreviewSize = 5

// PayloadConverter turns a finished run into the payload of its terminal
// progress event.
type PayloadConverter struct {
	previewSize int
}

func NewPayloadConverter(previewSize int) *PayloadConverter {
	if previewSize <= 0 {
		previewSize = DefaultPreviewSize
	}
	return &PayloadConverter{previewSize: previewSize}
}

// Convert summarizes products and images. Products keeps its order; only
// the leading previewSize entries are included.
func (c *PayloadConverter) Convert(uploadID string, products []models.CandidateProduct, totalImages int, method models.ExtractionMethod) *models.CompletionPayload {
	n := len(products)
	if n > c.previewSize {
		n = c.previewSize
	}

	previews := make([]models.ProductPreview, 0, n)
	for _, p := range products[:n] {
		previews = append(previews, Preview(p))
	}

	return &models.CompletionPayload{
		UploadID:         uploadID,
		TotalProducts:    len(products),
		TotalImages:      totalImages,
		ExtractionMethod: method,
		Products:         previews,
	}
}

// Empty is the payload of a failed run.
func (c *PayloadConverter) Empty() *models.CompletionPayload {
	return &models.CompletionPayload{
		Products: []models.ProductPreview{},
	}
}

// Preview shortens a product for display.
func Preview(p models.CandidateProduct) models.ProductPreview {
	preview := models.ProductPreview{
		Name:     p.Name,
		Price:    p.Price,
		SKU:      p.SKU,
		Category: p.Category,
	}
	for _, img := range p.Images {
		if u := img.URL(); u != "" {
			preview.ImageURL = u
			break
		}
	}
	return preview
}
