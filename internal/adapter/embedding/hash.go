package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"studyrag/internal/adapter/analyzer"
	"studyrag/internal/domain"
)

const DefaultHashDimension = 256

// HashEmbedder is a deterministic, offline embedder. Each token and each
// adjacent token pair is hashed into a signed bucket and the vector is
// L2-normalized, so texts sharing vocabulary point in similar directions.
type HashEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := e.tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no indexable tokens", domain.ErrEmbeddingUnavailable)
	}

	vec := make([]float64, e.dimension)
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, fmt.Errorf("%w: zero vector", domain.ErrEmbeddingUnavailable)
	}

	out := make([]float32, e.dimension)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *HashEmbedder) add(vec []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(e.dimension))
	if h&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return fmt.Sprintf("hash-%d", e.dimension)
}

// Unavailable never produces a vector. Every chunk is stored without an
// embedding and retrieval is purely lexical.
type Unavailable struct{}

func (Unavailable) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, domain.ErrEmbeddingUnavailable
}

func (Unavailable) Dimension() int { return 0 }

func (Unavailable) ModelName() string { return "none" }
