package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps records in a map and scans them on search.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	dims    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if m.dims == 0 {
			m.dims = len(r.Embedding)
		}
		if len(r.Embedding) != m.dims {
			return fmt.Errorf("record %s: %w: got %d want %d", r.ID, ErrDimensionMismatch, len(r.Embedding), m.dims)
		}
		r.Embedding = append([]float32(nil), r.Embedding...)
		r.Score = 0
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, query []float32, limit int, filter Filter) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dims != 0 && len(query) != m.dims {
		return nil, fmt.Errorf("query: %w: got %d want %d", ErrDimensionMismatch, len(query), m.dims)
	}

	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if !filter.matches(r) {
			continue
		}
		r.Score = CosineSimilarity(query, r.Embedding)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.DocumentID == documentID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

var _ VectorStore = (*MemoryStore)(nil)
