// Package models adapts chat model providers to a single request/response shape.
package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Request is a single chat completion call.
type Request struct {
	Messages []Message
	// JSON asks the provider to constrain output to a JSON object.
	JSON        bool
	Temperature float64
	// NumCtx is the context window hint; only Ollama honours it.
	NumCtx    int
	MaxTokens int
}

// Response is the text a model produced.
type Response struct {
	Text     string
	Model    string
	Duration time.Duration
}

// LLM is implemented by every provider and decorator in this package.
type LLM interface {
	Chat(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Options tune provider construction.
type Options struct {
	// Host overrides the provider endpoint (Ollama only).
	Host    string
	APIKey  string
	Timeout time.Duration
}

// NewLLMProvider returns a provider by name.
func NewLLMProvider(ctx context.Context, provider, model string, opts Options) (LLM, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "ollama", "":
		return NewOllamaLLM(model, opts)
	case "openai":
		return NewOpenAILLM(model, opts), nil
	case "anthropic", "claude":
		return NewAnthropicLLM(model, opts), nil
	case "gemini", "google":
		return NewGeminiLLM(ctx, model, opts)
	case "dummy":
		return NewDummyLLM(model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

func splitSystem(msgs []Message) (string, []Message) {
	var sys []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}

func nonEmpty(model, text string, start time.Time) (Response, error) {
	if strings.TrimSpace(text) == "" {
		return Response{}, fmt.Errorf("%s: %w", model, ErrEmptyResponse)
	}
	return Response{Text: text, Model: model, Duration: time.Since(start)}, nil
}
