package models

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
)

type OpenAILLM struct {
	Client *openai.Client
	Model  string
}

func NewOpenAILLM(model string, opts Options) *OpenAILLM {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return &OpenAILLM{Client: openai.NewClient(apiKey), Model: model}
}

func (o *OpenAILLM) Name() string { return o.Model }

func (o *OpenAILLM) Chat(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	cr := openai.ChatCompletionRequest{
		Model:       o.Model,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		cr.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := o.Client.CreateChatCompletion(ctx, cr)
	if err != nil {
		return Response{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%s: %w", o.Model, ErrEmptyResponse)
	}
	return nonEmpty(o.Model, resp.Choices[0].Message.Content, start)
}
