package tracking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "file:"+filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	tick := time.UnixMilli(1_000)
	s.now = func() time.Time { tick = tick.Add(time.Second); return tick }

	first, err := s.StartRun(ctx, "bench", "llama3.1")
	require.NoError(t, err)
	require.NoError(t, first.LogParams(ctx, map[string]any{"model": "llama3.1", "k": 4}))
	require.NoError(t, first.LogMetric(ctx, "rouge1_fmeasure_doc_1", 0.1))
	require.NoError(t, first.LogMetric(ctx, "rouge1_fmeasure_doc_1", 0.4))
	require.NoError(t, first.LogText(ctx, "summaries/1.txt", "hello"))
	require.NoError(t, first.End(ctx, StatusFinished))

	second, err := s.StartRun(ctx, "bench", "mistral")
	require.NoError(t, err)

	runs, err := s.SearchRuns(ctx, "bench")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.True(t, runs[0].EndTime.IsZero())

	got := runs[1]
	assert.Equal(t, StatusFinished, got.Status)
	assert.Equal(t, map[string]string{"model": "llama3.1", "k": "4"}, got.Params)
	assert.Equal(t, map[string]float64{"rouge1_fmeasure_doc_1": 0.4}, got.Metrics)

	text, err := s.Artifact(ctx, first.ID, "summaries/1.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = s.Artifact(ctx, first.ID, "missing.txt")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSearchUnknownExperiment(t *testing.T) {
	runs, err := openTemp(t).SearchRuns(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEndUnknownRun(t *testing.T) {
	s := openTemp(t)
	r := &Run{ID: "missing", store: s}
	assert.ErrorIs(t, r.End(context.Background(), StatusFailed), ErrRunNotFound)
}
