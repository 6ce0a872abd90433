package catalog

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultCategory is assigned when no category was extracted.
	DefaultCategory = "General"

	placeholderImageURL = "https://picsum.photos/seed/%s/400/300"
)

// PlaceholderGenerator supplies stand-in values for fields the source
// document did not provide. All randomness in the pipeline goes through it.
type PlaceholderGenerator interface {
	Price() float64
	SKU() string
	ImageSeed() string
}

// RandomPlaceholders is the default generator.
type RandomPlaceholders struct{}

func NewRandomPlaceholders() RandomPlaceholders {
	return RandomPlaceholders{}
}

// Price returns a value between 10.00 and 999.99.
func (RandomPlaceholders) Price() float64 {
	return float64(rand.Intn(99000)+1000) / 100
}

// SKU returns SKU-XXXXXXXX with eight uppercase hex digits.
func (RandomPlaceholders) SKU() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "SKU-" + strings.ToUpper(id[:8])
}

func (RandomPlaceholders) ImageSeed() string {
	return uuid.NewString()
}

// PlaceholderImageURL renders the stock image URL for a seed.
func PlaceholderImageURL(seed string) string {
	return fmt.Sprintf(placeholderImageURL, seed)
}
