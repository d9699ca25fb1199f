package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/documents"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
)

func pages(texts ...string) []documents.Page {
	out := make([]documents.Page, len(texts))
	for i, t := range texts {
		out[i] = documents.Page{Number: i + 1, Text: t}
	}
	return out
}

func TestPrepareContext(t *testing.T) {
	got := PrepareContext(pages(" first ", "", "second"), 0)
	assert.Equal(t, "first\n\nsecond", got)

	got = PrepareContext(pages("ééééé"), 3)
	assert.Equal(t, "ééé", got)
}

func TestPostProcess(t *testing.T) {
	raw := "Here is a summary of the document:\n\n**Summary:** The Government of Angola and the World Bank\nsigned the *Water Project* for USD 50 million."
	got := PostProcess(raw, 800)
	assert.Equal(t, "The Government of Angola and the World Bank signed the Water Project for USD 50 million.", got)

	got = PostProcess(`"one two three four"`, 2)
	assert.Equal(t, "one two", got)
}

func TestSummarize(t *testing.T) {
	llm := models.NewScriptedLLM("m", func(req models.Request) models.Reply {
		return models.Reply{Text: "Summary: Parties agree."}
	})
	s := Summarizer{LLM: llm}
	out, err := s.Summarize(context.Background(), pages("The parties agree on a loan."))
	require.NoError(t, err)
	assert.Equal(t, "Parties agree.", out)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].JSON)
	assert.Equal(t, DefaultNumCtx, calls[0].NumCtx)
	assert.Contains(t, models.LastUser(calls[0]), "The parties agree on a loan.")
	assert.Contains(t, models.LastUser(calls[0]), "maximum 800 words")
	assert.Equal(t, models.RoleSystem, calls[0].Messages[0].Role)
}

func TestSummarizeEmptyDocument(t *testing.T) {
	s := Summarizer{LLM: models.NewDummyLLM("m")}
	_, err := s.Summarize(context.Background(), pages("  "))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestEvaluate(t *testing.T) {
	llm := models.NewScriptedLLM("m", func(req models.Request) models.Reply {
		if !strings.Contains(models.LastUser(req), "confidence_score") {
			return models.Reply{Err: errors.New("format instructions missing")}
		}
		return models.Reply{Text: "```json\n{\"confidence_score\": \"0.82\", \"justification\": \"faithful\"}\n```"}
	})
	c, err := ConfidenceEvaluator{LLM: llm}.Evaluate(context.Background(), "A summary.")
	require.NoError(t, err)
	assert.InDelta(t, 0.82, c.ConfidenceScore, 1e-9)
	assert.Equal(t, "faithful", c.Justification)
	assert.True(t, llm.Calls()[0].JSON)
}

func TestEvaluateFallback(t *testing.T) {
	llm := models.NewScriptedLLM("m", func(models.Request) models.Reply {
		return models.Reply{Text: "I think it is good."}
	})
	c, err := ConfidenceEvaluator{LLM: llm}.Evaluate(context.Background(), "A summary.")
	assert.Error(t, err)
	assert.Equal(t, FallbackScore, c.ConfidenceScore)
}

func TestParseConfidenceScales(t *testing.T) {
	for raw, want := range map[string]float64{
		`{"confidence_score": 85, "justification": "x"}`:    0.85,
		`{"confidence_score": 7, "justification": "x"}`:     0.7,
		`{"confidence_score": "90%", "justification": "x"}`: 0.9,
		`{"score": 0.4, "justification": "x"}`:              0.4,
		`{"confidence_score": -2, "justification": "x"}`:    0,
	} {
		c, err := ParseConfidence(raw)
		require.NoError(t, err, raw)
		assert.InDelta(t, want, c.ConfidenceScore, 1e-9, raw)
	}
}

func TestParseConfidenceRequiresNumericScore(t *testing.T) {
	for _, raw := range []string{
		`{"justification": "looks fine"}`,
		`{"confidence_score": null, "justification": "x"}`,
		`{"confidence_score": "high", "justification": "x"}`,
		`{"confidence_score": true, "justification": "x"}`,
	} {
		_, err := ParseConfidence(raw)
		assert.ErrorIs(t, err, ErrNoScore, raw)
	}

	c, err := ParseConfidence(`{"confidence_score": 0, "justification": "off topic"}`)
	require.NoError(t, err)
	assert.Zero(t, c.ConfidenceScore)
}

func TestEvaluateFallsBackOnMissingScore(t *testing.T) {
	llm := models.NewScriptedLLM("m", func(models.Request) models.Reply {
		return models.Reply{Text: `{"confidence_score": "high", "justification": "looks fine"}`}
	})
	c, err := ConfidenceEvaluator{LLM: llm}.Evaluate(context.Background(), "A summary.")
	assert.ErrorIs(t, err, ErrNoScore)
	assert.Equal(t, FallbackScore, c.ConfidenceScore)
}

func TestParseConfidenceAfterBracketedProse(t *testing.T) {
	c, err := ParseConfidence("Assessment (score range [0, 1]):\n{\"confidence_score\": 0.8, \"justification\": \"clear\"}")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, c.ConfidenceScore, 1e-9)
}
