package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/categorize"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/config"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/documents"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/embed"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/extraction"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/monitoring"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/orchestration"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/retrieval"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/store"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/summary"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/tracking"
)

// newLLM builds a provider for model wrapped in the configured decorators.
func newLLM(ctx context.Context, c config.LLM, model string) (models.LLM, error) {
	llm, err := models.NewLLMProvider(ctx, c.Provider, model, models.Options{Timeout: c.Timeout})
	if err != nil {
		return nil, err
	}
	retry := models.DefaultRetryConfig()
	retry.MaxRetries = c.MaxRetries
	return models.Wrap(llm, models.Stack{
		Timeout:    c.Timeout,
		Retry:      retry,
		RatePerSec: c.RatePerSec,
		CacheSize:  c.CacheSize,
		CacheTTL:   c.CacheTTL,
		CachePath:  c.CachePath,
	}), nil
}

func openTracking(ctx context.Context, c config.Tracking) (*tracking.Store, error) {
	if c.Disabled {
		return nil, nil
	}
	return tracking.Open(ctx, c.DSN)
}

func newClassifier(kind string, llm models.LLM) categorize.Classifier {
	if strings.EqualFold(kind, "keyword") {
		return categorize.KeywordClassifier{}
	}
	return categorize.Fallback{
		Primary:   categorize.LLMClassifier{LLM: llm},
		Secondary: categorize.KeywordClassifier{},
	}
}

// pipeline owns the service and the resources behind it.
type pipeline struct {
	service  *orchestration.Service
	metrics  *monitoring.Metrics
	vectors  store.VectorStore
	tracking *tracking.Store
}

func (p *pipeline) Close(ctx context.Context) error {
	var errs []error
	if p.vectors != nil {
		errs = append(errs, store.Close(ctx, p.vectors))
	}
	if p.tracking != nil {
		errs = append(errs, p.tracking.Close())
	}
	return errors.Join(errs...)
}

// newPipeline wires the analysis service from cfg. reg may be nil to skip
// Prometheus registration.
func newPipeline(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (_ *pipeline, err error) {
	log := clog.FromContext(ctx)
	p := &pipeline{}
	defer func() {
		if err != nil {
			_ = p.Close(context.WithoutCancel(ctx))
		}
	}()

	llm, err := newLLM(ctx, cfg.LLM, cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	embedder, err := embed.New(ctx, cfg.Embedding.Provider, cfg.Embedding.Model, embed.Options{CacheDir: cfg.Embedding.CacheDir})
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	p.vectors, err = store.Open(ctx, store.Options{
		Backend:     cfg.VectorStore.Backend,
		PostgresDSN: cfg.VectorStore.PostgresDSN,
		QdrantURL:   cfg.VectorStore.QdrantURL,
		QdrantKey:   cfg.VectorStore.QdrantKey,
		Collection:  cfg.VectorStore.Collection,
		MongoURI:    cfg.VectorStore.MongoURI,
		MongoDB:     cfg.VectorStore.MongoDB,
		Neo4jURI:    cfg.VectorStore.Neo4jURI,
		Neo4jUser:   cfg.VectorStore.Neo4jUser,
		Neo4jPass:   cfg.VectorStore.Neo4jPass,
	})
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	p.tracking, err = openTracking(ctx, cfg.Tracking)
	if err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}
	if reg != nil {
		p.metrics = monitoring.NewMetrics(reg)
	}

	var indexMetrics retrieval.Metrics
	if p.metrics != nil {
		indexMetrics = p.metrics
	}
	p.service = &orchestration.Service{
		DocumentRoot: cfg.DocumentRoot,
		Splitter:     documents.NewRecursiveSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		Indexer: &retrieval.Indexer{
			Embedder: embedder,
			Store:    p.vectors,
			Workers:  cfg.RAG.IndexWorkers,
			Metrics:  indexMetrics,
		},
		Retriever: &retrieval.Retriever{
			Embedder:  embedder,
			Store:     p.vectors,
			TopK:      cfg.RAG.TopK,
			MinScore:  cfg.RAG.MinScore,
			MaxChunks: cfg.RAG.MaxContextChunks,
		},
		Summarizer: summary.Summarizer{
			LLM:      llm,
			NumCtx:   cfg.LLM.NumCtx,
			MaxChars: cfg.RAG.SummaryMaxChars,
			MaxWords: cfg.RAG.SummaryMaxWords,
		},
		Confidence: summary.ConfidenceEvaluator{LLM: llm},
		Classifier: newClassifier(cfg.Classifier, llm),
		Extractor: extraction.Extractor{
			LLM:           llm,
			NumCtx:        cfg.LLM.NumCtx,
			MinConfidence: cfg.RAG.MinConfidence,
		},
		Monitor: &monitoring.Monitor{
			Metrics:    p.metrics,
			Tracking:   p.tracking,
			Experiment: cfg.Tracking.Experiment,
		},
		ModelName: cfg.LLM.Model,
	}
	log.Infof("pipeline ready: llm=%s/%s embed=%s store=%s", cfg.LLM.Provider, cfg.LLM.Model, cfg.Embedding.Provider, cfg.VectorStore.Backend)
	return p, nil
}
