package models

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/cache"
)

// CachedLLM memoises responses by model, request options and messages.
type CachedLLM struct {
	LLM      LLM
	Cache    *cache.LRU[string]
	FilePath string

	saveMu sync.Mutex
}

// NewCachedLLM wraps llm. When filePath is set the cache is loaded from and
// saved to that JSON file.
func NewCachedLLM(llm LLM, size int, ttl time.Duration, filePath string) *CachedLLM {
	c := &CachedLLM{LLM: llm, Cache: cache.New[string](size, ttl), FilePath: filePath}
	if filePath != "" {
		c.load()
	}
	return c
}

func (c *CachedLLM) Name() string { return c.LLM.Name() }

func (c *CachedLLM) load() {
	b, err := os.ReadFile(c.FilePath)
	if err != nil {
		return
	}
	var dump map[string]cache.Entry[string]
	if err := json.Unmarshal(b, &dump); err == nil {
		c.Cache.Restore(dump)
	}
}

func (c *CachedLLM) save(ctx context.Context) {
	if c.FilePath == "" {
		return
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	b, err := json.Marshal(c.Cache.Dump())
	if err != nil {
		return
	}
	tmp := c.FilePath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		clog.FromContext(ctx).Warnf("llm cache: write %s: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, c.FilePath); err != nil {
		clog.FromContext(ctx).Warnf("llm cache: rename: %v", err)
	}
}

func requestKey(model string, req Request) string {
	parts := []string{
		model,
		strconv.FormatBool(req.JSON),
		strconv.FormatFloat(req.Temperature, 'g', -1, 64),
		strconv.Itoa(req.NumCtx),
		strconv.Itoa(req.MaxTokens),
	}
	for _, m := range req.Messages {
		parts = append(parts, string(m.Role), m.Content)
	}
	return cache.HashKey(parts...)
}

func (c *CachedLLM) Chat(ctx context.Context, req Request) (Response, error) {
	key := requestKey(c.LLM.Name(), req)
	if text, ok := c.Cache.Get(key); ok {
		return Response{Text: text, Model: c.LLM.Name()}, nil
	}
	resp, err := c.LLM.Chat(ctx, req)
	if err != nil {
		return Response{}, err
	}
	c.Cache.Set(key, resp.Text)
	c.save(ctx)
	return resp, nil
}

// MaybeCached wraps llm when size is positive.
func MaybeCached(llm LLM, size int, ttl time.Duration, path string) LLM {
	if size <= 0 {
		return llm
	}
	return NewCachedLLM(llm, size, ttl, path)
}

