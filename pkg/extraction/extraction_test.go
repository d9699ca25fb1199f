package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/chain"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/store"
)

const listing = `Public debt for São Tomé 2023 | 54.6 | % of GDP | page 5
- Total project cost Angola | 400000000 | USD | page 3
[Indicator name] | [NUMBER_ONLY] | [UNIT] | page [X]
not a data line`

func TestParseLines(t *testing.T) {
	got := ParseLines(listing)
	want := []DataPoint{
		{Key: "Public debt for São Tomé 2023", Value: "54.6", Unit: "% of GDP", Page: "5", ConfidenceScore: 0.5, ChartType: UnknownChart, IndicatorCategory: Other},
		{Key: "Total project cost Angola", Value: "400000000", Unit: "USD", Page: "3", ConfidenceScore: 0.5, ChartType: UnknownChart, IndicatorCategory: Other},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseLines mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterPoints(t *testing.T) {
	in := []DataPoint{
		{Key: "GDP Growth", Value: "3.1", Unit: "%"},
		{Key: "Short", Value: "1", Unit: "x"},
		{Key: "Number of beneficiaries", Value: "data not provided", Unit: "people"},
		{Key: "Table of contents entry", Value: "12", Unit: "page"},
		{Key: "Households connected", Value: "12,500", Unit: ""},
		{Key: "Households connected", Value: "12,500", Unit: "households", ConfidenceScore: 0.2},
	}
	kept, rejected := FilterPoints(context.Background(), in, 0)
	require.Len(t, kept, 2)
	assert.Equal(t, "GDP Growth", kept[0].Key)
	reasons := make([]string, len(rejected))
	for i, r := range rejected {
		reasons[i] = r.Reason
	}
	assert.Equal(t, []string{"too short", "no value", "structural noise", "numeric without unit"}, reasons)

	kept, _ = FilterPoints(context.Background(), in, 0.5)
	assert.Len(t, kept, 0)
}

func TestClean(t *testing.T) {
	got := Clean(Result{ExtractedPoints: []DataPoint{{
		Key: "  Total   loan ", Value: "$50000000", Page: "page 3",
		ConfidenceScore: 1.4, ChartType: "bar chart", IndicatorCategory: "FINANCE_LOAN",
	}}})
	want := DataPoint{
		Key: "Total loan", Value: "50000000", Unit: "$", Page: "3",
		ConfidenceScore: 1, ChartType: BarChart, IndicatorCategory: FinanceLoan,
	}
	assert.Equal(t, want, got.ExtractedPoints[0])
}

func TestDecodeResultSanitizes(t *testing.T) {
	raw := "```json\n" + `{"extracted_points": [{"key": "Total loan amount Angola", "value": 50000000, "unit": "USD",
	"page": 3, "confidence_score": "0.9", "chart_type": "bar", "indicator_category": "FINANCIAL", "note": "extra"}]}` + "\n```"
	r, err := DecodeResult(raw)
	require.NoError(t, err)
	require.Len(t, r.ExtractedPoints, 1)
	p := r.ExtractedPoints[0]
	assert.Equal(t, "50000000", p.Value)
	assert.Equal(t, "3", p.Page)
	assert.Equal(t, BarChart, p.ChartType)
	assert.Equal(t, Other, p.IndicatorCategory)
	assert.InDelta(t, 0.9, p.ConfidenceScore, 1e-9)
}

func TestDecodeResultRejectsProse(t *testing.T) {
	_, err := DecodeResult("I could not format this.")
	assert.ErrorIs(t, err, chain.ErrNoJSON)
}

func TestSchemaEnumerates(t *testing.T) {
	b, err := json.Marshal(chain.SchemaFor[Result]())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"finance_loan"`)
	assert.Contains(t, string(b), `"ChoroplethMap"`)
}

func route(listingText, formatted string, formatErr error) func(models.Request) models.Reply {
	return func(req models.Request) models.Reply {
		if req.JSON {
			return models.Reply{Text: formatted, Err: formatErr}
		}
		return models.Reply{Text: listingText}
	}
}

func TestExtract(t *testing.T) {
	formatted := `{"extracted_points": [
		{"key": "Total project cost Angola", "value": "400000000", "unit": "USD", "page": "3", "confidence_score": 0.9, "chart_type": "Unknown", "indicator_category": "finance_cost"},
		{"key": "Debt", "value": "54.6", "unit": "%", "page": "5", "confidence_score": 0.9, "chart_type": "BarChart", "indicator_category": "finance_gdp"}
	]}`
	llm := models.NewScriptedLLM("m", route(listing, formatted, nil))
	res, st, err := Extractor{LLM: llm}.Extract(context.Background(), "context text")
	require.NoError(t, err)
	require.Len(t, res.ExtractedPoints, 1)
	assert.Equal(t, FinanceCost, res.ExtractedPoints[0].IndicatorCategory)
	assert.Equal(t, 2, st.Lines)
	assert.Equal(t, 2, st.Formatted)
	assert.Len(t, st.Rejected, 1)
	assert.False(t, st.Recovered)

	calls := llm.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, models.LastUser(calls[1]), "Total project cost Angola | 400000000")
	assert.Contains(t, calls[1].Messages[0].Content, `"extracted_points"`)
}

func TestExtractNoData(t *testing.T) {
	llm := models.NewScriptedLLM("m", route(NoDataSentinel, "", nil))
	res, st, err := Extractor{LLM: llm}.Extract(context.Background(), "context text")
	require.NoError(t, err)
	assert.Empty(t, res.ExtractedPoints)
	assert.True(t, st.NoData)
	assert.Len(t, llm.Calls(), 1)
}

func TestExtractRecoversFromFormatter(t *testing.T) {
	llm := models.NewScriptedLLM("m", route(listing, "", errors.New("format model down")))
	res, st, err := Extractor{LLM: llm}.Extract(context.Background(), "context text")
	require.NoError(t, err)
	assert.True(t, st.Recovered)
	require.Len(t, res.ExtractedPoints, 2)
	assert.Equal(t, "% of GDP", res.ExtractedPoints[0].Unit)
}

func TestExtractEmptyContext(t *testing.T) {
	_, _, err := Extractor{LLM: models.NewDummyLLM("m")}.Extract(context.Background(), " ")
	assert.ErrorIs(t, err, ErrNoContext)
}

func TestPrepareContext(t *testing.T) {
	got := PrepareContext([]store.Record{{Content: "a"}, {Content: "b"}})
	assert.Equal(t, "a"+DocumentPartSeparator+"b", got)
	assert.True(t, strings.Contains(DocumentPartSeparator, "--- Document Part ---"))
}
