// Package summary produces the analyst summary of a report and scores its
// faithfulness.
package summary

import (
	"context"
	"errors"

	"github.com/chainguard-dev/clog"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/chain"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/documents"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
)

const (
	DefaultNumCtx   = 8192
	DefaultMaxChars = 24000
	DefaultMaxWords = 800
)

// ErrEmptyDocument is returned when there is no text to summarize.
var ErrEmptyDocument = errors.New("document has no text to summarize")

var summaryPrompt = chain.MustChatPrompt("summary", SystemPrompt, UserPrompt)

// Summarizer runs the summary chain at temperature 0.
type Summarizer struct {
	LLM      models.LLM
	NumCtx   int
	MaxChars int
	MaxWords int
}

func (s Summarizer) numCtx() int {
	if s.NumCtx > 0 {
		return s.NumCtx
	}
	return DefaultNumCtx
}

func (s Summarizer) maxWords() int {
	if s.MaxWords > 0 {
		return s.MaxWords
	}
	return DefaultMaxWords
}

// Summarize builds the context from pages and returns the cleaned summary.
func (s Summarizer) Summarize(ctx context.Context, pages []documents.Page) (string, error) {
	maxChars := s.MaxChars
	if maxChars == 0 {
		maxChars = DefaultMaxChars
	}
	content := PrepareContext(pages, maxChars)
	if content == "" {
		return "", ErrEmptyDocument
	}
	raw, err := s.SummarizeText(ctx, content)
	if err != nil {
		return "", err
	}
	out := PostProcess(raw, s.maxWords())
	if out == "" {
		return "", models.ErrEmptyResponse
	}
	clog.FromContext(ctx).Debugf("summary: %d context chars, %d output chars", len(content), len(out))
	return out, nil
}

// SummarizeText runs the chain on already prepared content and returns the
// raw model text.
func (s Summarizer) SummarizeText(ctx context.Context, content string) (string, error) {
	resp, err := chain.Step{LLM: s.LLM, Prompt: summaryPrompt, NumCtx: s.numCtx()}.
		Invoke(ctx, chain.Vars{"content": content, "max_words": s.maxWords()})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
