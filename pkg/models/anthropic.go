package models

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicLLM uses the Messages API. JSON mode is requested through the
// system prompt since the API has no response format switch.
type AnthropicLLM struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

func NewAnthropicLLM(model string, opts Options) *AnthropicLLM {
	key := opts.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	cl := anthropic.NewClient(anthropicopt.WithAPIKey(key))
	return &AnthropicLLM{Client: &cl, Model: model, MaxTokens: 4096}
}

func (a *AnthropicLLM) Name() string { return a.Model }

func (a *AnthropicLLM) Chat(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	system, turns := splitSystem(req.Messages)
	if req.JSON {
		system = strings.TrimSpace(system + "\n\nRespond with a single valid JSON object and nothing else.")
	}
	maxTokens := a.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := a.Client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic chat: %w", err)
	}
	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return nonEmpty(a.Model, b.String(), start)
}
