package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/documents"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/embed"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/store"
)

func sampleChunks(docID string) []documents.Chunk {
	pages := []documents.Page{
		{Meta: documents.Meta{DocumentID: docID, Title: "r.pdf"}, Number: 1, Text: "The total loan amount is 50 million USD."},
		{Meta: documents.Meta{DocumentID: docID, Title: "r.pdf"}, Number: 2, Text: "Wetland biodiversity surveys covered 12 sites."},
		{Meta: documents.Meta{DocumentID: docID, Title: "r.pdf"}, Number: 3, Text: "CO2 emissions fell by 20 percent."},
	}
	return documents.NewRecursiveSplitter(1000, 200).SplitPages(pages)
}

func TestIndexAndRetrieveContext(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := embed.DummyEmbedder{}
	ix := &Indexer{Embedder: e, Store: st, Workers: 2}

	n, err := ix.Index(ctx, sampleChunks("a"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	_, err = ix.Index(ctx, sampleChunks("b"))
	require.NoError(t, err)

	r := &Retriever{Embedder: e, Store: st, TopK: 2}
	got, stats, err := r.RetrieveContext(ctx, []string{"loan amount", "emissions"}, "a")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Retrieved)
	assert.Equal(t, len(got), stats.Used)
	for _, rec := range got {
		assert.Equal(t, "a", rec.DocumentID)
	}
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Page, got[i].Page, "results must be in page order")
	}
}

func TestRetrieveContextMinScoreAndCap(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := embed.DummyEmbedder{}
	ix := &Indexer{Embedder: e, Store: st}
	_, err := ix.Index(ctx, sampleChunks("a"))
	require.NoError(t, err)

	r := &Retriever{Embedder: e, Store: st, TopK: 3, MinScore: 0.99}
	got, stats, err := r.RetrieveContext(ctx, []string{"loan"}, "a")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 3, stats.Retrieved)

	r = &Retriever{Embedder: e, Store: st, TopK: 3, MinScore: -1, MaxChunks: 1}
	got, _, err = r.RetrieveContext(ctx, []string{"loan amount"}, "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Page)
}

func TestReindexReplacesDocument(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	ix := &Indexer{Embedder: embed.DummyEmbedder{}, Store: st}
	_, _ = ix.Index(ctx, sampleChunks("a"))

	fewer := sampleChunks("a")[:1]
	_, err := ix.Reindex(ctx, "a", fewer)
	require.NoError(t, err)
	n, _ := st.Count(ctx)
	assert.Equal(t, 1, n)
}

type flakyEmbedder struct {
	calls atomic.Int32
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.calls.Add(1) == 1 {
		return nil, errors.New("connection reset")
	}
	return embed.DummyEmbedder{Dims: 8}.Embed(ctx, text)
}

type countingMetrics struct{ ok, failed atomic.Int32 }

func (m *countingMetrics) RecordEmbedding(_ time.Duration, ok bool) {
	if ok {
		m.ok.Add(1)
	} else {
		m.failed.Add(1)
	}
}

func TestIndexRetriesEmbedding(t *testing.T) {
	m := &countingMetrics{}
	ix := &Indexer{
		Embedder: &flakyEmbedder{},
		Store:    store.NewMemoryStore(),
		Workers:  1,
		Retry:    RetryOptions{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Metrics:  m,
	}
	n, err := ix.Index(context.Background(), sampleChunks("a")[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), m.ok.Load())
}

func TestIndexEmptyIsNoop(t *testing.T) {
	ix := &Indexer{Embedder: embed.DummyEmbedder{}, Store: store.NewMemoryStore()}
	n, err := ix.Index(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReindexKeepsLookalikeDocumentsApart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := embed.DummyEmbedder{}
	ix := &Indexer{Embedder: e, Store: st}
	for _, id := range []string{"report 1", "report/1", "report_1"} {
		_, err := ix.Reindex(ctx, id, sampleChunks(id))
		require.NoError(t, err)
	}
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	r := &Retriever{Embedder: e, Store: st, TopK: 3, MinScore: -1}
	got, _, err := r.RetrieveContext(ctx, []string{"loan amount"}, "report 1")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, rec := range got {
		assert.Equal(t, "report 1", rec.DocumentID)
	}
}
