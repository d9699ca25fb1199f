package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/tracking"
)

const referencesJSON = `{"documents": [
	{"id": 1, "title": "angola.pdf", "reference_summary": "Angola water loan agreement",
	 "reference_category": "Natural Resources",
	 "reference_numbers": {"facts": [{"key": "Loan", "value": "50", "unit": "M USD"}]}},
	{"id": "2", "title": "missing.pdf", "reference_summary": "x", "reference_category": "Energy"}
]}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadReferences(t *testing.T) {
	refs, err := LoadReferences(writeFile(t, "refs.json", referencesJSON), "reports")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "1", string(refs[0].ID))
	assert.Equal(t, filepath.Join("reports", "angola.pdf"), refs[0].FilePath)
	assert.Equal(t, map[string]any{}, refs[1].Numbers())

	_, err = LoadReferences(writeFile(t, "empty.json", `{"documents": []}`), "reports")
	assert.ErrorIs(t, err, ErrNoReferences)
}

func TestLoadPlan(t *testing.T) {
	p, err := LoadPlan(writeFile(t, "plan.yaml", "models: [qwen2]\nreports_dir: pdfs\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2"}, p.Models)
	assert.Equal(t, "pdfs", p.ReportsDir)
	assert.Equal(t, DefaultPlan().Experiment, p.Experiment)

	_, err = LoadPlan(writeFile(t, "plan.yaml", "models: []\n"))
	assert.Error(t, err)
}

func TestDiagnosticRows(t *testing.T) {
	rows := DiagnosticRows("m", "1", `{"facts": [{"key": "B", "value": "2", "unit": "t"}, {"key": "a", "value": "1", "unit": "%"}]}`)
	want := []DiagnosticRow{
		{Model: "m", DocID: "1", Key: "a", Value: "1", Unit: "%", ParsedSuccessfully: true},
		{Model: "m", DocID: "1", Key: "b", Value: "2", Unit: "t", ParsedSuccessfully: true},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("DiagnosticRows() mismatch (-want +got):\n%s", diff)
	}

	long := "line one\nline two " + strings.Repeat("x", 600)
	rows = DiagnosticRows("m", "1", long)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].ParsedSuccessfully)
	assert.Len(t, []rune(rows[0].RawOutputSnippet), snippetLen)
	assert.NotContains(t, rows[0].RawOutputSnippet, "\n")
}

func route(summaryErr error) func(models.Request) models.Reply {
	return func(req models.Request) models.Reply {
		sys := req.Messages[0].Content
		switch {
		case strings.Contains(sys, "financial analyst"):
			if summaryErr != nil {
				return models.Reply{Err: summaryErr}
			}
			return models.Reply{Text: "Summary: Angola water loan agreement"}
		case strings.Contains(sys, "data extraction assistant"):
			return models.Reply{Text: `{"facts": [{"key": "Loan", "value": 50, "unit": "M USD"}]}`}
		case strings.Contains(sys, "classification of environmental"):
			return models.Reply{Text: `{"category": "Natural Resources"}`}
		}
		return models.Reply{Err: errors.New("unexpected prompt")}
	}
}

func openStore(t *testing.T) *tracking.Store {
	t.Helper()
	s, err := tracking.Open(context.Background(), "file:"+filepath.Join(t.TempDir(), "bench.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunnerRun(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	refs, err := LoadReferences(writeFile(t, "refs.json", referencesJSON), "reports")
	require.NoError(t, err)

	var diag bytes.Buffer
	r := &Runner{
		Tracking:   st,
		Experiment: "bench",
		NewLLM: func(_ context.Context, model string) (models.LLM, error) {
			switch model {
			case "good":
				return models.NewScriptedLLM(model, route(nil)), nil
			case "mute":
				return models.NewScriptedLLM(model, route(errors.New("boom"))), nil
			}
			return nil, errors.New("no such model")
		},
		TextLoader: func(path string) (string, error) {
			if strings.HasSuffix(path, "missing.pdf") {
				return "", os.ErrNotExist
			}
			return "The Republic of Angola borrows 50 million USD for water.", nil
		},
		Diagnostics: NewDiagnostics(&diag),
	}

	err = r.Run(ctx, []string{"good", "broken", "mute"}, refs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	runs, err := st.SearchRuns(ctx, "bench")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	byName := map[string]tracking.RunInfo{}
	for _, run := range runs {
		byName[run.Name] = run
		assert.Equal(t, tracking.StatusFinished, run.Status)
	}

	good := byName["good"].Metrics
	assert.InDelta(t, 1.0, good["rouge1_fmeasure_doc_1"], 1e-9)
	assert.InDelta(t, 1.0, good["extraction_f1_doc_1"], 1e-9)
	assert.Equal(t, 1.0, good["category_accuracy_doc_1"])
	assert.GreaterOrEqual(t, good["latency_summary_doc_1"], 0.0)
	assert.NotContains(t, good, "rouge1_fmeasure_doc_2")

	mute := byName["mute"].Metrics
	assert.Equal(t, -1.0, mute["latency_summary_doc_1"])
	assert.Less(t, mute["rouge1_fmeasure_doc_1"], 1.0)

	summaryText, err := st.Artifact(ctx, byName["mute"].ID, "summaries/1.txt")
	require.NoError(t, err)
	assert.Equal(t, FailedSummary, summaryText)
	extracted, err := st.Artifact(ctx, byName["good"].ID, "extracted_datas/1.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"facts": [{"key": "Loan", "value": "50", "unit": "M USD"}]}`, extracted)

	var rows []DiagnosticRow
	dec := json.NewDecoder(&diag)
	for dec.More() {
		var row DiagnosticRow
		require.NoError(t, dec.Decode(&row))
		rows = append(rows, row)
	}
	require.Len(t, rows, 2)
	assert.True(t, rows[0].ParsedSuccessfully)
	assert.Equal(t, "loan", rows[0].Key)
}

func TestRunnerNoReferences(t *testing.T) {
	r := &Runner{}
	assert.ErrorIs(t, r.Run(context.Background(), []string{"m"}, nil), ErrNoReferences)
}

func seed(t *testing.T, st *tracking.Store, model string, metrics map[string]float64) {
	t.Helper()
	ctx := context.Background()
	run, err := st.StartRun(ctx, "bench", model)
	require.NoError(t, err)
	require.NoError(t, run.LogMetrics(ctx, metrics))
	require.NoError(t, run.End(ctx, tracking.StatusFinished))
}

func TestReport(t *testing.T) {
	st := openStore(t)
	seed(t, st, "weak", map[string]float64{
		"rouge1_fmeasure_doc_1": 0.2,
		"rouge1_fmeasure_doc_2": 0.4,
		"extraction_f1_doc_1":   0.5,
	})
	seed(t, st, "strong", map[string]float64{
		"rouge1_fmeasure_doc_1":   0.6,
		"category_accuracy_doc_1": 1,
		"latency_summary_doc_1":   3,
	})

	rows, err := Report(context.Background(), st, "bench")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "strong", rows[0].Model)
	assert.Equal(t, 1, rows[0].Documents)
	assert.Equal(t, "weak", rows[1].Model)
	assert.Equal(t, 2, rows[1].Documents)
	assert.InDelta(t, 0.3, rows[1].Averages["rouge1_fmeasure"], 1e-9)
	assert.NotContains(t, rows[1].Averages, "category_accuracy")

	var table bytes.Buffer
	require.NoError(t, WriteTable(&table, rows))
	assert.Contains(t, table.String(), "strong")
	assert.Contains(t, table.String(), "0.3000")

	var csvOut bytes.Buffer
	require.NoError(t, WriteCSV(&csvOut, rows))
	lines := strings.Split(strings.TrimSpace(csvOut.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "model,documents,avg_rouge1_fmeasure,avg_rouge2_fmeasure,avg_rougeL_fmeasure,avg_extraction_f1,avg_category_accuracy", lines[0])
	assert.Equal(t, "weak,2,0.3000,-,-,0.5000,-", lines[2])

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteXLSX(path, rows))
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	model, err := f.GetCellValue(reportSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "strong", model)
	docs, err := f.GetCellValue(reportSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "2", docs)
}
