package image

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Preprocessor transforms a page image before recognition.
type Preprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// PreprocessFunc adapts a function to Preprocessor.
type PreprocessFunc func(img image.Image) (image.Image, error)

func (f PreprocessFunc) Process(img image.Image) (image.Image, error) {
	return f(img)
}

type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

type ContrastProcessor struct {
	amount float64
}

func NewContrastProcessor(amount float64) *ContrastProcessor {
	return &ContrastProcessor{amount: amount}
}

func (p *ContrastProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.amount), nil
}

type DenoiseProcessor struct {
	strength float64
}

func NewDenoiseProcessor(strength float64) *DenoiseProcessor {
	return &DenoiseProcessor{strength: strength}
}

func (p *DenoiseProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Blur(img, p.strength), nil
}

type SharpenProcessor struct {
	strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
	return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Sharpen(img, p.strength), nil
}

// DefaultPreprocessors is the chain applied to scanned catalog pages.
func DefaultPreprocessors() []Preprocessor {
	return []Preprocessor{
		NewGrayscaleProcessor(),
		NewContrastProcessor(20),
		NewDenoiseProcessor(0.5),
		NewSharpenProcessor(0.8),
	}
}

// Preprocess runs img through each preprocessor in order.
func Preprocess(img image.Image, chain []Preprocessor) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	var err error
	result := img
	for _, p := range chain {
		result, err = p.Process(result)
		if err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if result == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}
	return result, nil
}
