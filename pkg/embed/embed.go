// Package embed turns text into dense vectors for the vector store.
package embed

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// ErrEmptyEmbedding is returned when a provider yields no vector.
var ErrEmptyEmbedding = errors.New("empty embedding")

// Embedder embeds a single text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PassageEmbedder is implemented by embedders that distinguish indexed
// passages from search queries (BGE-style models).
type PassageEmbedder interface {
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
}

// Options tune New.
type Options struct {
	Host     string
	APIKey   string
	CacheDir string
}

// New returns an embedder by provider name.
func New(ctx context.Context, provider, model string, opts Options) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "ollama", "":
		return NewOllamaEmbedder(model, opts.Host)
	case "openai":
		return NewOpenAIEmbedder(model, opts.APIKey), nil
	case "gemini", "google":
		return NewGeminiEmbedder(ctx, model, opts.APIKey)
	case "fastembed", "bge":
		return NewFastEmbedder(opts.CacheDir)
	case "dummy":
		return DummyEmbedder{Dims: DummyDims}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// DummyDims is the width of DummyEmbedder vectors.
const DummyDims = 768

// DummyEmbedder hashes lowercase word tokens into a fixed number of buckets
// and L2-normalises the result. Texts sharing words score higher, which is
// enough for wiring tests without a model.
type DummyEmbedder struct {
	Dims int
}

func (d DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dims := d.Dims
	if dims <= 0 {
		dims = DummyDims
	}
	vec := make([]float32, dims)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32()%uint32(dims))]++
	}
	return Normalize(vec), nil
}

// Normalize scales v to unit length in place. Zero vectors are returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
