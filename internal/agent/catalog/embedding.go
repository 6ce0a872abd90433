package catalog

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultEmbeddingDimension is the vector length stored with each product.
const DefaultEmbeddingDimension = 384

// Embedder generates one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// HashEmbedder derives a unit vector from an FNV-64a hash of the text. Equal
// text always yields an equal vector.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimension
	}
	return &HashEmbedder{dimension: dimension}
}

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	hasher := fnv.New64a()
	hasher.Write([]byte(text))
	seed := hasher.Sum64()

	phase := float64(seed%10007) / 10007 * 2 * math.Pi
	freq := 0.5 + float64((seed>>20)%9973)/9973

	v := make([]float32, h.dimension)
	for i := range v {
		x := float64(i + 1)
		v[i] = float32(math.Sin(phase+freq*x) + 0.5*math.Cos(phase*x/float64(h.dimension)))
	}
	return unitVector(v)
}

func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

func (h *HashEmbedder) Model() string {
	return "fnv64a-sinusoid"
}

func unitVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
