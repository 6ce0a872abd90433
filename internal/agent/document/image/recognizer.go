// Package image turns page images into text and publishes rasterized pages.
package image

import (
	"context"
	"image"
)

// Recognizer reads the text in one page image.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) (string, error)
}
