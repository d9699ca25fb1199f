package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/embed"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/store"
)

// DefaultTopK is the number of chunks fetched per query.
const DefaultTopK = 4

// Stats reports how much retrieved material reached the prompt.
type Stats struct {
	Retrieved int
	Used      int
}

// Retriever runs similarity searches scoped to a document.
type Retriever struct {
	Embedder embed.Embedder
	Store    store.VectorStore
	TopK     int
	// MinScore drops hits below this cosine similarity.
	MinScore float64
	// MaxChunks caps the merged context; zero means no cap.
	MaxChunks int
}

// Retrieve returns the k nearest chunks to query.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter store.Filter) ([]store.Record, error) {
	if r.Embedder == nil || r.Store == nil {
		return nil, errors.New("retriever requires an embedder and a store")
	}
	if k <= 0 {
		k = r.TopK
	}
	if k <= 0 {
		k = DefaultTopK
	}
	vec, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.Store.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// RetrieveContext runs every query against documentID, keeps the best score
// per chunk, and returns the survivors in document order.
func (r *Retriever) RetrieveContext(ctx context.Context, queries []string, documentID string) ([]store.Record, Stats, error) {
	filter := store.Filter{}
	if documentID != "" {
		filter.DocumentIDs = []string{documentID}
	}

	var stats Stats
	best := map[string]store.Record{}
	for _, q := range queries {
		hits, err := r.Retrieve(ctx, q, 0, filter)
		if err != nil {
			return nil, stats, err
		}
		stats.Retrieved += len(hits)
		for _, h := range hits {
			if h.Score < r.MinScore {
				continue
			}
			if prev, ok := best[h.ID]; !ok || h.Score > prev.Score {
				best[h.ID] = h
			}
		}
	}

	out := make([]store.Record, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	if r.MaxChunks > 0 && len(out) > r.MaxChunks {
		sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		out = out[:r.MaxChunks]
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	stats.Used = len(out)
	return out, stats, nil
}
