// Package mock provides a deterministic embedder for tests. Vectors are
// derived from a hash of the input, so identical texts always embed to
// identical vectors without any external service.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates deterministic pseudo-random unit vectors.
type Embedder struct {
	dims int
}

// New creates a mock embedder with the given dimensionality.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 64
	}
	return &Embedder{dims: dims}
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dims)
	var norm float64
	for i := range vec {
		// Linear congruential step per component.
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11))/float64(1<<52) - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Embedder) Dimensions() int { return e.dims }
func (e *Embedder) Model() string   { return "mock" }
