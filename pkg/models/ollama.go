package models

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaLLM talks to a local or remote Ollama server through its chat API.
type OllamaLLM struct {
	Client *ollama.Client
	Model  string
}

// NewOllamaLLM resolves the host from opts or OLLAMA_HOST.
func NewOllamaLLM(model string, opts Options) (*OllamaLLM, error) {
	host := opts.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	c := ollama.NewClient(u, &http.Client{Timeout: timeout})
	return &OllamaLLM{Client: c, Model: model}, nil
}

func (o *OllamaLLM) Name() string { return o.Model }

func (o *OllamaLLM) Chat(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	stream := false
	cr := &ollama.ChatRequest{
		Model:   o.Model,
		Stream:  &stream,
		Options: map[string]any{"temperature": req.Temperature},
	}
	if req.NumCtx > 0 {
		cr.Options["num_ctx"] = req.NumCtx
	}
	if req.MaxTokens > 0 {
		cr.Options["num_predict"] = req.MaxTokens
	}
	if req.JSON {
		cr.Format = json.RawMessage(`"json"`)
	}
	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, ollama.Message{Role: string(m.Role), Content: m.Content})
	}

	var text strings.Builder
	if err := o.Client.Chat(ctx, cr, func(r ollama.ChatResponse) error {
		text.WriteString(r.Message.Content)
		return nil
	}); err != nil {
		return Response{}, fmt.Errorf("ollama chat: %w", err)
	}
	return nonEmpty(o.Model, text.String(), start)
}
