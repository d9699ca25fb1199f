// Package store persists document chunk embeddings and runs similarity search.
package store

import (
	"context"
	"errors"
	"math"
	"slices"
)

// ErrDimensionMismatch is returned when vectors of different widths meet.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Record is one indexed chunk. Score is populated by Search only.
type Record struct {
	ID         string
	DocumentID string
	Title      string
	Source     string
	Page       int
	ChunkIndex int
	Content    string
	Embedding  []float32
	Score      float64
}

// Filter narrows a search. Empty fields match everything.
type Filter struct {
	DocumentIDs []string
}

func (f Filter) matches(r Record) bool {
	return len(f.DocumentIDs) == 0 || slices.Contains(f.DocumentIDs, r.DocumentID)
}

// VectorStore stores chunks and returns the nearest ones by cosine similarity,
// highest score first.
type VectorStore interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, limit int, filter Filter) ([]Record, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
}

// SchemaInitializer is implemented by stores that need collections or
// indexes created before use.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context, dims int) error
}

// Closer releases backend connections.
type Closer interface {
	Close(ctx context.Context) error
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is empty, zero or the widths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
