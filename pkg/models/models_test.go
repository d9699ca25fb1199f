package models

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingLLM struct {
	calls atomic.Int32
	fail  int32
	err   error
}

func (c *countingLLM) Name() string { return "counting" }

func (c *countingLLM) Chat(_ context.Context, req Request) (Response, error) {
	n := c.calls.Add(1)
	if n <= c.fail {
		return Response{}, c.err
	}
	return Response{Text: "ok:" + LastUser(req), Model: "counting"}, nil
}

func TestDummyLLMEchoesLastLine(t *testing.T) {
	d := NewDummyLLM("")
	resp, err := d.Chat(context.Background(), Request{Messages: []Message{User("first\nsecond\n\n")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(resp.Text, "second") {
		t.Fatalf("got %q", resp.Text)
	}
}

func TestNewLLMProviderUnknown(t *testing.T) {
	if _, err := NewLLMProvider(context.Background(), "mystery", "m", Options{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	llm, err := NewLLMProvider(context.Background(), "dummy", "d", Options{})
	if err != nil || llm.Name() != "d" {
		t.Fatalf("dummy provider: %v %v", llm, err)
	}
}

func TestScriptedLLMEmptyText(t *testing.T) {
	s := NewScriptedLLM("s", func(Request) Reply { return Reply{Text: "   "} })
	_, err := s.Chat(context.Background(), Request{Messages: []Message{User("x")}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if len(s.Calls()) != 1 {
		t.Fatalf("calls = %d", len(s.Calls()))
	}
}

func TestCachedLLM(t *testing.T) {
	inner := &countingLLM{}
	path := filepath.Join(t.TempDir(), "cache.json")
	cached := NewCachedLLM(inner, 10, time.Minute, path)
	ctx := context.Background()
	req := Request{Messages: []Message{User("hello")}}

	for i := 0; i < 2; i++ {
		if _, err := cached.Chat(ctx, req); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if n := inner.calls.Load(); n != 1 {
		t.Fatalf("expected 1 call, got %d", n)
	}

	req.JSON = true
	if _, err := cached.Chat(ctx, req); err != nil {
		t.Fatal(err)
	}
	if n := inner.calls.Load(); n != 2 {
		t.Fatalf("json flag must change the key, calls = %d", n)
	}

	reloaded := NewCachedLLM(inner, 10, time.Minute, path)
	if _, err := reloaded.Chat(ctx, Request{Messages: []Message{User("hello")}}); err != nil {
		t.Fatal(err)
	}
	if n := inner.calls.Load(); n != 2 {
		t.Fatalf("persisted cache not used, calls = %d", n)
	}
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	inner := &countingLLM{fail: 2, err: errors.New("503 busy")}
	llm := WithRetry(inner, RetryConfig{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	resp, err := llm.Chat(context.Background(), Request{Messages: []Message{User("q")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "ok:q" || inner.calls.Load() != 3 {
		t.Fatalf("resp=%q calls=%d", resp.Text, inner.calls.Load())
	}
}

func TestRetryDoesNotRetryDeadline(t *testing.T) {
	inner := &countingLLM{fail: 5, err: context.DeadlineExceeded}
	llm := WithRetry(inner, RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond})
	if _, err := llm.Chat(context.Background(), Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("calls = %d", inner.calls.Load())
	}
}

func TestTimeoutLLM(t *testing.T) {
	slow := NewScriptedLLM("slow", func(Request) Reply { return Reply{Text: "late"} })
	llm := WithTimeout(&blockingLLM{inner: slow}, 10*time.Millisecond)
	_, err := llm.Chat(context.Background(), Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
}

type blockingLLM struct{ inner LLM }

func (b *blockingLLM) Name() string { return "blocking" }

func (b *blockingLLM) Chat(ctx context.Context, req Request) (Response, error) {
	<-ctx.Done()
	return Response{}, ctx.Err()
}

func TestWrapKeepsName(t *testing.T) {
	llm := Wrap(NewDummyLLM("base"), Stack{Timeout: time.Second, Retry: DefaultRetryConfig(), RatePerSec: 100, CacheSize: 4})
	if llm.Name() != "base" {
		t.Fatalf("name = %q", llm.Name())
	}
	if _, ok := llm.(*CachedLLM); !ok {
		t.Fatalf("outermost decorator = %T", llm)
	}
}
