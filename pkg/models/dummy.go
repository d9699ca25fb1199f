package models

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DummyLLM echoes the last non-empty line of the final message. Useful for
// wiring checks without a model server.
type DummyLLM struct {
	Model string
}

func NewDummyLLM(model string) *DummyLLM {
	if strings.TrimSpace(model) == "" {
		model = "dummy"
	}
	return &DummyLLM{Model: model}
}

func (d *DummyLLM) Name() string { return d.Model }

func (d *DummyLLM) Chat(_ context.Context, req Request) (Response, error) {
	if req.JSON {
		return Response{Text: "{}", Model: d.Model}, nil
	}
	var last string
	if n := len(req.Messages); n > 0 {
		lines := strings.Split(req.Messages[n-1].Content, "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			if c := strings.TrimSpace(lines[i]); c != "" {
				last = c
				break
			}
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return Response{Text: fmt.Sprintf("%s response: %s", d.Model, last), Model: d.Model}, nil
}

// Reply is one canned answer for ScriptedLLM.
type Reply struct {
	Text string
	Err  error
}

// ScriptedLLM answers from a routing function and records every request.
// It is safe for concurrent use.
type ScriptedLLM struct {
	Model string
	Route func(Request) Reply

	mu    sync.Mutex
	calls []Request
}

// NewScriptedLLM answers with route.
func NewScriptedLLM(model string, route func(Request) Reply) *ScriptedLLM {
	return &ScriptedLLM{Model: model, Route: route}
}

func (s *ScriptedLLM) Name() string { return s.Model }

func (s *ScriptedLLM) Chat(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	r := s.Route(req)
	if r.Err != nil {
		return Response{}, r.Err
	}
	return nonEmpty(s.Model, r.Text, time.Now())
}

// Calls returns a copy of the recorded requests.
func (s *ScriptedLLM) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}

// LastUser returns the content of the last user message in req.
func LastUser(req Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

var (
	_ LLM = (*DummyLLM)(nil)
	_ LLM = (*ScriptedLLM)(nil)
)
