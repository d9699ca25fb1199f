package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestQdrantSearchSendsFilterAndMapsPayload(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/chunks/points/search", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &body))
		_, _ = io.WriteString(w, `{"status":"ok","result":[{"id":"u1","score":0.9,
			"payload":{"chunk_id":"doc#3","document_id":"doc","page":2,"chunk_index":3,"content":"loan"}}]}`)
	}))
	defer srv.Close()

	qs := NewQdrantStore(srv.URL, "chunks", "")
	got, err := qs.Search(context.Background(), []float32{1, 0}, 4, Filter{DocumentIDs: []string{"doc"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc#3", got[0].ID)
	assert.Equal(t, 2, got[0].Page)
	assert.InDelta(t, 0.9, got[0].Score, 1e-9)
	assert.Contains(t, body, "filter")
}

func TestQdrantErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":{"error":"wrong vector size"}}`)
	}))
	defer srv.Close()

	err := NewQdrantStore(srv.URL, "c", "").Upsert(context.Background(), []Record{{ID: "x", Embedding: []float32{1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong vector size")
}

func TestQdrantPointIDDeterministic(t *testing.T) {
	assert.Equal(t, pointID("doc#1"), pointID("doc#1"))
	assert.NotEqual(t, pointID("doc#1"), pointID("doc#2"))
}

type fakeNeo4j struct {
	mu      sync.Mutex
	queries []string
	rows    []map[string]any
}

func (f *fakeNeo4j) Execute(_ context.Context, q string, _ map[string]any, _ bool) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.rows, nil
}

func (f *fakeNeo4j) Close(context.Context) error { return nil }

func TestNeo4jSearchConvertsScore(t *testing.T) {
	fake := &fakeNeo4j{rows: []map[string]any{{
		"id": "d#0", "document_id": "d", "page": int64(4), "chunk_index": int64(0), "content": "c", "score": 0.75,
	}}}
	s, err := newNeo4jStoreWith(fake)
	require.NoError(t, err)

	got, err := s.Search(context.Background(), []float32{1}, 2, Filter{DocumentIDs: []string{"d"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Page)
	assert.InDelta(t, 0.5, got[0].Score, 1e-9)
	assert.True(t, strings.Contains(fake.queries[0], "db.index.vector.queryNodes"))
}

func TestNeo4jSchemaCreatesVectorIndex(t *testing.T) {
	fake := &fakeNeo4j{}
	s, _ := newNeo4jStoreWith(fake)
	require.NoError(t, s.CreateSchema(context.Background(), 384))
	assert.Contains(t, fake.queries[len(fake.queries)-1], "`vector.dimensions`: 384")
}

func TestMongoVectorSearchStageFilter(t *testing.T) {
	stage := vectorSearchStage([]float32{1, 2}, 4, Filter{DocumentIDs: []string{"a"}})
	inner, ok := stage[0].Value.(bson.D)
	require.True(t, ok)
	m := inner.Map()
	assert.Equal(t, 4, m["limit"])
	assert.Equal(t, 100, m["numCandidates"])
	assert.Contains(t, m, "filter")
}

func TestPostgresVectorRoundTrip(t *testing.T) {
	lit := vectorLiteral([]float32{0.5, -1, 2})
	assert.Equal(t, "[0.5,-1,2]", lit)
	assert.Equal(t, []float32{0.5, -1, 2}, parseVector(lit))
}
