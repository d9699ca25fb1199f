package models

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/time/rate"
)

// RateLimitedLLM blocks each call until the token bucket allows it.
type RateLimitedLLM struct {
	LLM     LLM
	Limiter *rate.Limiter
}

// RateLimited wraps llm with a limiter of perSec calls per second.
// A non-positive perSec returns llm unchanged.
func RateLimited(llm LLM, perSec float64, burst int) LLM {
	if perSec <= 0 {
		return llm
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedLLM{LLM: llm, Limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (r *RateLimitedLLM) Name() string { return r.LLM.Name() }

func (r *RateLimitedLLM) Chat(ctx context.Context, req Request) (Response, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.LLM.Chat(ctx, req)
}

// RetryConfig controls exponential backoff for transient model failures.
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxJitter   time.Duration
}

// DefaultRetryConfig suits a local model server that is occasionally busy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  2,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		MaxJitter:   250 * time.Millisecond,
	}
}

// RetryingLLM retries failed calls. Context cancellation and empty responses
// are returned immediately.
type RetryingLLM struct {
	LLM    LLM
	Config RetryConfig
}

func WithRetry(llm LLM, cfg RetryConfig) LLM {
	if cfg.MaxRetries <= 0 {
		return llm
	}
	return &RetryingLLM{LLM: llm, Config: cfg}
}

func (r *RetryingLLM) Name() string { return r.LLM.Name() }

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrEmptyResponse)
}

func (r *RetryingLLM) Chat(ctx context.Context, req Request) (Response, error) {
	cfg := r.Config
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := r.LLM.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil || attempt == cfg.MaxRetries {
			break
		}

		backoff := min(cfg.BaseBackoff<<attempt, cfg.MaxBackoff)
		if cfg.MaxJitter > 0 {
			if n, err := rand.Int(rand.Reader, big.NewInt(int64(cfg.MaxJitter))); err == nil {
				backoff += time.Duration(n.Int64())
			}
		}
		clog.FromContext(ctx).With("model", r.LLM.Name()).
			With("attempt", attempt+1).
			With("backoff", backoff).
			With("error", err.Error()).
			Warn("model call failed, retrying")

		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return Response{}, lastErr
}

// TimeoutLLM bounds every call.
type TimeoutLLM struct {
	LLM     LLM
	Timeout time.Duration
}

func WithTimeout(llm LLM, d time.Duration) LLM {
	if d <= 0 {
		return llm
	}
	return &TimeoutLLM{LLM: llm, Timeout: d}
}

func (t *TimeoutLLM) Name() string { return t.LLM.Name() }

func (t *TimeoutLLM) Chat(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	return t.LLM.Chat(ctx, req)
}

// Stack configures the decorators applied by Wrap.
type Stack struct {
	Timeout    time.Duration
	Retry      RetryConfig
	RatePerSec float64
	CacheSize  int
	CacheTTL   time.Duration
	CachePath  string
}

// Wrap applies, from innermost to outermost: timeout, retry, rate limit, cache.
// Cache hits therefore skip the limiter.
func Wrap(llm LLM, s Stack) LLM {
	llm = WithTimeout(llm, s.Timeout)
	llm = WithRetry(llm, s.Retry)
	llm = RateLimited(llm, s.RatePerSec, 1)
	return MaybeCached(llm, s.CacheSize, s.CacheTTL, s.CachePath)
}
