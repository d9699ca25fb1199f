// Package chain composes prompt templates, model calls and output parsing
// into reusable steps.
package chain

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
)

// Vars are template inputs.
type Vars map[string]any

// ChatPrompt is a system and a user template rendered together.
type ChatPrompt struct {
	Name   string
	system *template.Template
	user   *template.Template
}

// NewChatPrompt parses both templates. Missing variables fail at render time.
func NewChatPrompt(name, system, user string) (*ChatPrompt, error) {
	sys, err := template.New(name + ".system").Option("missingkey=error").Parse(system)
	if err != nil {
		return nil, fmt.Errorf("parse %s system prompt: %w", name, err)
	}
	usr, err := template.New(name + ".user").Option("missingkey=error").Parse(user)
	if err != nil {
		return nil, fmt.Errorf("parse %s user prompt: %w", name, err)
	}
	return &ChatPrompt{Name: name, system: sys, user: usr}, nil
}

// MustChatPrompt is NewChatPrompt for package-level prompts.
func MustChatPrompt(name, system, user string) *ChatPrompt {
	p, err := NewChatPrompt(name, system, user)
	if err != nil {
		panic(err)
	}
	return p
}

func render(t *template.Template, vars Vars) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, map[string]any(vars)); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Render returns the system and user messages.
func (p *ChatPrompt) Render(vars Vars) ([]models.Message, error) {
	sys, err := render(p.system, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s system prompt: %w", p.Name, err)
	}
	usr, err := render(p.user, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s user prompt: %w", p.Name, err)
	}
	msgs := make([]models.Message, 0, 2)
	if strings.TrimSpace(sys) != "" {
		msgs = append(msgs, models.System(sys))
	}
	return append(msgs, models.User(usr)), nil
}

// Step is one templated model call.
type Step struct {
	LLM         models.LLM
	Prompt      *ChatPrompt
	JSON        bool
	Temperature float64
	NumCtx      int
	MaxTokens   int
}

// Invoke renders the prompt and calls the model.
func (s Step) Invoke(ctx context.Context, vars Vars) (models.Response, error) {
	msgs, err := s.Prompt.Render(vars)
	if err != nil {
		return models.Response{}, err
	}
	resp, err := s.LLM.Chat(ctx, models.Request{
		Messages:    msgs,
		JSON:        s.JSON,
		Temperature: s.Temperature,
		NumCtx:      s.NumCtx,
		MaxTokens:   s.MaxTokens,
	})
	if err != nil {
		return models.Response{}, fmt.Errorf("%s: %w", s.Prompt.Name, err)
	}
	return resp, nil
}
