package validation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/benchmark"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/tracking"
)

func fakeService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/analyze-document" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			FilePath   string `json:"file_path"`
			DocumentID string `json:"document_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.FilePath {
		case "bucket/test_reports/angola.pdf":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"document_id": "` + req.DocumentID + `",
				"summary": {"textual_summary": "Angola water loan agreement", "confidence_score": 0.8},
				"extracted_data": [{"key": "a"}, {"key": "b"}],
				"category": {"name": "NATURAL RESOURCES"}, "status": "completed"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail": "Document not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAnalyze(t *testing.T) {
	srv := fakeService(t)
	c := NewClient(srv.URL + "/")

	resp, err := c.Analyze(context.Background(), "bucket/test_reports/angola.pdf", "1")
	require.NoError(t, err)
	assert.Equal(t, Response{Summary: "Angola water loan agreement", Category: "NATURAL RESOURCES", ExtractedCount: 2}, resp)

	_, err = c.Analyze(context.Background(), "bucket/test_reports/missing.pdf", "2")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Contains(t, httpErr.Body, "Document not found")
}

func refs() []benchmark.Reference {
	return []benchmark.Reference{
		{ID: "1", Title: "angola.pdf", ReferenceSummary: "Angola water loan agreement", ReferenceCategory: "Natural Resources"},
		{ID: "2", Title: "missing.pdf", ReferenceSummary: "x", ReferenceCategory: "Energy"},
	}
}

func TestFilter(t *testing.T) {
	got := Filter(refs(), " 2")
	require.Len(t, got, 1)
	assert.Equal(t, "missing.pdf", got[0].Title)
	assert.Len(t, Filter(refs()), 2)
}

func TestLoadThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rougeL_fmeasure: 0.3\n"), 0o644))
	got, err := LoadThresholds(path)
	require.NoError(t, err)
	assert.Equal(t, Thresholds{Rouge1: 0.25, RougeL: 0.3, CategoryAccuracy: 0.70}, got)
}

func TestAggregate(t *testing.T) {
	s := Aggregate([]Result{
		{Success: true, Rouge1: 0.4, RougeL: 0.3, Latency: 2, CategoryCorrect: true},
		{Success: true, Rouge1: 0.2, RougeL: 0.1, Latency: 4},
		{Success: false, Rouge1: 0.9},
	})
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 0.3, s.AvgRouge1, 1e-9)
	assert.InDelta(t, 0.2, s.AvgRougeL, 1e-9)
	assert.InDelta(t, 3.0, s.AvgLatency, 1e-9)
	assert.InDelta(t, 0.5, s.CategoryAccuracy, 1e-9)
	assert.False(t, s.PassesThresholds(DefaultThresholds()))
	assert.True(t, s.PassesThresholds(Thresholds{Rouge1: 0.3, RougeL: 0.2, CategoryAccuracy: 0.5}))
	assert.False(t, s.Passed(Thresholds{}))

	empty := Aggregate(nil)
	assert.Zero(t, empty.AvgRouge1)
	assert.True(t, empty.Passed(Thresholds{}))
}

func TestValidatorRun(t *testing.T) {
	ctx := context.Background()
	srv := fakeService(t)
	st, err := tracking.Open(ctx, "file:"+filepath.Join(t.TempDir(), "v.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	v := &Validator{
		Client:     NewClient(srv.URL),
		Tracking:   st,
		Experiment: "validation",
		Thresholds: DefaultThresholds(),
	}
	sum, err := v.Run(ctx, refs())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Successful)
	assert.Equal(t, 1, sum.Failed)
	assert.InDelta(t, 1.0, sum.AvgRouge1, 1e-9)
	assert.Equal(t, 1.0, sum.CategoryAccuracy)
	assert.True(t, sum.PassesThresholds(v.Thresholds))
	assert.False(t, sum.Passed(v.Thresholds))
	assert.Contains(t, sum.Results[1].Error, "404")

	runs, err := st.SearchRuns(ctx, "validation")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, "validation_run", run.Name)
	assert.Equal(t, 2.0, run.Metrics["extraction_count_doc_1"])
	assert.Equal(t, 1.0, run.Metrics["validation_passed"])
	assert.Equal(t, 1.0, run.Metrics["documents_failed"])
	assert.Equal(t, "2", run.Params["total_documents"])

	artifact, err := st.Artifact(ctx, run.ID, "validation_results.json")
	require.NoError(t, err)
	var results []Result
	require.NoError(t, json.Unmarshal([]byte(artifact), &results))
	assert.Len(t, results, 2)
}
