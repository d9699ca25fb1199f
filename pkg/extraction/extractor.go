package extraction

import (
	"context"
	"errors"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/chain"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
)

const DefaultNumCtx = 8192

// ErrNoContext is returned when there is nothing to extract from.
var ErrNoContext = errors.New("no context to extract from")

var (
	extractionPrompt = chain.MustChatPrompt("extraction", extractionSystemPrompt, extractionUserPrompt)
	formattingPrompt = chain.MustChatPrompt("formatting", formattingSystemPrompt, formattingUserPrompt)
)

// Stats describes one extraction run.
type Stats struct {
	Lines     int
	Formatted int
	Rejected  []Rejection
	// Recovered is set when points came from the local line parser.
	Recovered bool
	NoData    bool
}

// Extractor runs listing then formatting. Formatter defaults to LLM.
type Extractor struct {
	LLM           models.LLM
	Formatter     models.LLM
	NumCtx        int
	MinConfidence float64
}

func (e Extractor) formatter() models.LLM {
	if e.Formatter != nil {
		return e.Formatter
	}
	return e.LLM
}

func (e Extractor) numCtx() int {
	if e.NumCtx > 0 {
		return e.NumCtx
	}
	return DefaultNumCtx
}

// Extract returns filtered and cleaned points for the given context.
func (e Extractor) Extract(ctx context.Context, content string) (Result, Stats, error) {
	var st Stats
	if strings.TrimSpace(content) == "" {
		return Result{ExtractedPoints: []DataPoint{}}, st, ErrNoContext
	}
	log := clog.FromContext(ctx)

	listing, err := chain.Step{LLM: e.LLM, Prompt: extractionPrompt, NumCtx: e.numCtx()}.
		Invoke(ctx, chain.Vars{"content": content})
	if err != nil {
		return Result{}, st, err
	}
	lines := ParseLines(listing.Text)
	st.Lines = len(lines)
	if hasSentinelOnly(listing.Text) {
		log.Infof("extraction stage found no valid data")
		st.NoData = true
		return Result{ExtractedPoints: []DataPoint{}}, st, nil
	}

	res, err := e.format(ctx, listing.Text)
	switch {
	case err == nil:
		st.Formatted = len(res.ExtractedPoints)
	case ctx.Err() != nil:
		return Result{}, st, err
	default:
		log.Warnf("formatting stage failed, recovering %d listed points: %v", len(lines), err)
		res = Clean(Result{ExtractedPoints: lines})
		st.Recovered = true
	}

	kept, rejected := FilterPoints(ctx, res.ExtractedPoints, e.MinConfidence)
	st.Rejected = rejected
	return Result{ExtractedPoints: kept}, st, nil
}

func (e Extractor) format(ctx context.Context, listing string) (Result, error) {
	resp, err := chain.Step{LLM: e.formatter(), Prompt: formattingPrompt, JSON: true, NumCtx: e.numCtx()}.
		Invoke(ctx, chain.Vars{
			"llama_output":        listing,
			"format_instructions": chain.FormatInstructions[Result](),
		})
	if err != nil {
		return Result{}, err
	}
	return DecodeResult(resp.Text)
}
