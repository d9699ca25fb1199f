package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/chain"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
)

// FallbackScore is reported when the evaluator cannot produce a score.
const FallbackScore = 0.5

// Confidence is the self-assessment of a summary.
type Confidence struct {
	ConfidenceScore float64 `json:"confidence_score" jsonschema:"required,minimum=0,maximum=1" jsonschema_description:"Confidence score for the accuracy and relevance of the summary (between 0.0 and 1.0)."`
	Justification   string  `json:"justification" jsonschema:"required" jsonschema_description:"Brief justification for the assigned score."`
}

// ErrNoScore is returned when a model answer carries no numeric score.
var ErrNoScore = errors.New("confidence answer has no numeric score")

// looseConfidence keeps the raw score so absence and junk can be told apart
// from a real zero.
type looseConfidence struct {
	ConfidenceScore json.RawMessage  `json:"confidence_score"`
	Score           json.RawMessage  `json:"score"`
	Justification   chain.FlexString `json:"justification"`
}

func (l looseConfidence) score() (float64, error) {
	raw := l.ConfidenceScore
	if isNull(raw) {
		raw = l.Score
	}
	if isNull(raw) {
		return 0, ErrNoScore
	}
	v, err := chain.ParseNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoScore, err)
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

var (
	confidencePrompt    = chain.MustChatPrompt("confidence", confidenceSystemPrompt, confidenceUserPrompt)
	confidenceValidator = chain.LazyValidator[Confidence]()
)

// ConfidenceEvaluator asks a model to grade a summary.
type ConfidenceEvaluator struct {
	LLM models.LLM
}

// Evaluate always returns a usable Confidence. On failure the score is
// FallbackScore and the error explains why.
func (e ConfidenceEvaluator) Evaluate(ctx context.Context, summary string) (Confidence, error) {
	c, err := e.evaluate(ctx, summary)
	if err != nil {
		clog.FromContext(ctx).Warnf("confidence evaluation failed, using %.1f: %v", FallbackScore, err)
		return Confidence{ConfidenceScore: FallbackScore, Justification: "confidence evaluation unavailable"}, err
	}
	return c, nil
}

func (e ConfidenceEvaluator) evaluate(ctx context.Context, summary string) (Confidence, error) {
	resp, err := chain.Step{LLM: e.LLM, Prompt: confidencePrompt, JSON: true}.Invoke(ctx, chain.Vars{
		"summary_text":        summary,
		"format_instructions": chain.FormatInstructions[Confidence](),
	})
	if err != nil {
		return Confidence{}, err
	}
	return ParseConfidence(resp.Text)
}

// ParseConfidence decodes and sanitizes a model answer.
func ParseConfidence(raw string) (Confidence, error) {
	l, err := chain.ParseJSON[looseConfidence](raw)
	if err != nil {
		return Confidence{}, err
	}
	score, err := l.score()
	if err != nil {
		return Confidence{}, err
	}
	// Some models answer on a 0-10 or 0-100 scale.
	switch {
	case score > 10:
		score /= 100
	case score > 1:
		score /= 10
	}
	c := Confidence{
		ConfidenceScore: min(max(score, 0), 1),
		Justification:   strings.TrimSpace(string(l.Justification)),
	}
	v, err := confidenceValidator()
	if err != nil {
		return Confidence{}, err
	}
	if err := v.ValidateValue(c); err != nil {
		return Confidence{}, fmt.Errorf("sanitized confidence: %w", err)
	}
	return c, nil
}
