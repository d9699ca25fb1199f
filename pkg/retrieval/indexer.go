// Package retrieval indexes document chunks and assembles retrieval context.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/concurrent"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/documents"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/embed"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/store"
)

// Metrics lets callers observe embedding calls.
type Metrics interface {
	RecordEmbedding(duration time.Duration, ok bool)
}

// RetryOptions control retries of failed embedding calls.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}

// Indexer embeds chunks and writes them to a vector store.
type Indexer struct {
	Embedder embed.Embedder
	Store    store.VectorStore
	Workers  int
	Retry    RetryOptions
	Metrics  Metrics
}

func (ix *Indexer) retryOptions() RetryOptions {
	r := ix.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = 200 * time.Millisecond
	}
	return r
}

func (ix *Indexer) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	opts := ix.retryOptions()
	start := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		vec, err := ix.Embedder.Embed(ctx, text)
		if err == nil && len(vec) == 0 {
			err = embed.ErrEmptyEmbedding
		}
		if err == nil {
			if ix.Metrics != nil {
				ix.Metrics.RecordEmbedding(time.Since(start), true)
			}
			return vec, nil
		}
		lastErr = err
		if attempt >= opts.MaxAttempts || ctx.Err() != nil {
			break
		}
		delay := opts.BaseDelay * time.Duration(attempt)
		if opts.Jitter > 0 {
			delay += rand.N(opts.Jitter)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if ix.Metrics != nil {
		ix.Metrics.RecordEmbedding(time.Since(start), false)
	}
	return nil, lastErr
}

func (ix *Indexer) embedAll(ctx context.Context, chunks []documents.Chunk) ([][]float32, error) {
	if pe, ok := ix.Embedder.(embed.PassageEmbedder); ok {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		return pe.EmbedPassages(ctx, texts)
	}
	return concurrent.ParallelMap(ctx, chunks, ix.Workers, func(ctx context.Context, c documents.Chunk) ([]float32, error) {
		vec, err := ix.embedWithRetry(ctx, c.Content)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %s: %w", c.ID, err)
		}
		return vec, nil
	})
}

// Index embeds and stores chunks, returning how many were written.
func (ix *Indexer) Index(ctx context.Context, chunks []documents.Chunk) (int, error) {
	if ix.Embedder == nil || ix.Store == nil {
		return 0, errors.New("indexer requires an embedder and a store")
	}
	if len(chunks) == 0 {
		clog.FromContext(ctx).Warn("no chunks to index")
		return 0, nil
	}
	vecs, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return 0, err
	}
	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		records[i] = store.Record{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Title:      c.Title,
			Source:     c.Source,
			Page:       c.Page,
			ChunkIndex: c.Index,
			Content:    c.Content,
			Embedding:  vecs[i],
		}
	}
	if err := ix.Store.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("store upsert: %w", err)
	}
	clog.FromContext(ctx).With("chunks", len(records)).Info("indexed chunks")
	return len(records), nil
}

// Reindex replaces every stored chunk of documentID with chunks.
func (ix *Indexer) Reindex(ctx context.Context, documentID string, chunks []documents.Chunk) (int, error) {
	if ix.Store == nil {
		return 0, errors.New("indexer requires a store")
	}
	if err := ix.Store.DeleteDocument(ctx, documentID); err != nil {
		return 0, fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return ix.Index(ctx, chunks)
}
