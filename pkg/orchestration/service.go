// Package orchestration runs the full analysis of one report: load, chunk,
// index, then the summary and extraction pipelines side by side.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/categorize"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/documents"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/extraction"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/monitoring"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/retrieval"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/summary"
)

var (
	// ErrInvalidPath is returned for paths escaping the document root.
	ErrInvalidPath = errors.New("invalid document path")
	// ErrInvalidRequest is returned when required fields are missing.
	ErrInvalidRequest = errors.New("invalid analysis request")
)

// StatusCompleted marks a successful analysis.
const StatusCompleted = "completed"

// Request names the document to analyze. FilePath is relative to the
// document root unless absolute.
type Request struct {
	FilePath   string `json:"file_path"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
}

// Summary is the confidence-scored summary of one document.
type Summary struct {
	TextualSummary  string  `json:"textual_summary"`
	ConfidenceScore float64 `json:"confidence_score"`
	Justification   string  `json:"justification,omitempty"`
	LLMUsed         string  `json:"llm_used"`
}

// Category is the document classification.
type Category struct {
	Name string `json:"name"`
}

// Analysis is the combined result returned to callers.
type Analysis struct {
	DocumentID    string                 `json:"document_id"`
	Summary       Summary                `json:"summary"`
	ExtractedData []extraction.DataPoint `json:"extracted_data"`
	Category      Category               `json:"category"`
	Status        string                 `json:"status"`
}

// Loader reads the pages of a document.
type Loader func(path string, meta documents.Meta) ([]documents.Page, error)

// Service wires the pipeline stages. Loader defaults to documents.LoadPDF and
// Queries to extraction.Queries.
type Service struct {
	DocumentRoot string
	Loader       Loader
	Splitter     *documents.RecursiveSplitter
	Indexer      *retrieval.Indexer
	Retriever    *retrieval.Retriever
	Summarizer   summary.Summarizer
	Confidence   summary.ConfidenceEvaluator
	Classifier   categorize.Classifier
	Extractor    extraction.Extractor
	Queries      []string
	Monitor      *monitoring.Monitor
	ModelName    string
}

// ResolvePath maps p onto the document root and rejects traversal outside
// it, including through symlinks.
func ResolvePath(root, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty file_path", ErrInvalidRequest)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve document root: %w", err)
	}
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(absRoot, full)
	}
	full = filepath.Clean(full)
	if !within(absRoot, full) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", documents.ErrNotFound, p)
		}
		return "", err
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve document root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	if !within(realRoot, resolved) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *Service) loader() Loader {
	if s.Loader != nil {
		return s.Loader
	}
	return documents.LoadPDF
}

func (s *Service) splitter() *documents.RecursiveSplitter {
	if s.Splitter != nil {
		return s.Splitter
	}
	return documents.NewRecursiveSplitter(documents.DefaultChunkSize, documents.DefaultChunkOverlap)
}

func (s *Service) queries() []string {
	if len(s.Queries) > 0 {
		return s.Queries
	}
	return extraction.Queries
}

func documentID(req Request) string {
	if id := strings.TrimSpace(req.DocumentID); id != "" {
		return id
	}
	base := filepath.Base(req.FilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// load resolves, reads and re-indexes the document.
func (s *Service) load(ctx context.Context, a *monitoring.Analysis, path, id, title string) ([]documents.Page, error) {
	done := a.Step("document_loading")
	pages, err := s.loader()(path, documents.Meta{DocumentID: id, Title: title, Source: path})
	done()
	if err != nil {
		return nil, err
	}
	chunks := s.splitter().SplitPages(pages)
	done = a.Step("indexing")
	n, err := s.Indexer.Reindex(ctx, id, chunks)
	done()
	if err != nil {
		return nil, fmt.Errorf("index document: %w", err)
	}
	a.LogMetric("chunks_indexed", float64(n))
	return pages, nil
}

// Ingest loads and indexes a document without analyzing it.
func (s *Service) Ingest(ctx context.Context, path, id, title string) (int, error) {
	full, err := ResolvePath(s.DocumentRoot, path)
	if err != nil {
		return 0, err
	}
	if id == "" {
		id = documentID(Request{FilePath: path})
	}
	pages, err := s.loader()(full, documents.Meta{DocumentID: id, Title: title, Source: full})
	if err != nil {
		return 0, err
	}
	return s.Indexer.Reindex(ctx, id, s.splitter().SplitPages(pages))
}

// AnalyzeDocument runs the whole analysis for req.
func (s *Service) AnalyzeDocument(ctx context.Context, req Request) (out Analysis, err error) {
	id := documentID(req)
	if id == "" {
		return Analysis{}, fmt.Errorf("%w: missing document_id", ErrInvalidRequest)
	}
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("document_id", id))

	mon := s.Monitor
	if mon == nil {
		mon = &monitoring.Monitor{}
	}
	a := mon.Start(ctx, id, req.FilePath)
	defer func() { a.End(ctx, err) }()

	path, err := ResolvePath(s.DocumentRoot, req.FilePath)
	if err != nil {
		return Analysis{}, err
	}
	pages, err := s.load(ctx, a, path, id, req.Title)
	if err != nil {
		return Analysis{}, err
	}

	var (
		sum    Summary
		cat    categorize.Category
		points []extraction.DataPoint
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sum, cat, err = s.summarize(gctx, a, pages)
		return err
	})
	g.Go(func() error {
		var err error
		points, err = s.extract(gctx, a, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return Analysis{}, err
	}

	a.LogConfidence(sum.ConfidenceScore)
	a.LogExtractionCount(len(points))
	return Analysis{
		DocumentID:    id,
		Summary:       sum,
		ExtractedData: points,
		Category:      Category{Name: string(cat)},
		Status:        StatusCompleted,
	}, nil
}

// summarize runs summary, classification and confidence in that order.
func (s *Service) summarize(ctx context.Context, a *monitoring.Analysis, pages []documents.Page) (Summary, categorize.Category, error) {
	log := clog.FromContext(ctx)
	done := a.Step("summary_generation")
	text, err := s.Summarizer.Summarize(ctx, pages)
	done()
	if err != nil {
		return Summary{}, "", fmt.Errorf("summary: %w", err)
	}

	cat := categorize.Undetermined
	if s.Classifier != nil {
		done = a.Step("categorization")
		c, err := s.Classifier.Classify(ctx, text)
		done()
		if err != nil {
			log.Warnf("classification failed: %v", err)
		} else {
			cat = c
		}
	}

	done = a.Step("confidence_evaluation")
	conf, _ := s.Confidence.Evaluate(ctx, text)
	done()

	model := s.ModelName
	if model == "" && s.Summarizer.LLM != nil {
		model = s.Summarizer.LLM.Name()
	}
	return Summary{
		TextualSummary:  text,
		ConfidenceScore: conf.ConfidenceScore,
		Justification:   conf.Justification,
		LLMUsed:         model,
	}, cat, nil
}

// extract retrieves the figure-rich chunks and runs the extraction chain.
func (s *Service) extract(ctx context.Context, a *monitoring.Analysis, id string) ([]extraction.DataPoint, error) {
	done := a.Step("rag_retrieval")
	records, stats, err := s.Retriever.RetrieveContext(ctx, s.queries(), id)
	done()
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	a.LogRAGStats(stats.Retrieved, stats.Used)
	if len(records) == 0 {
		clog.FromContext(ctx).Warn("no chunks retrieved for extraction")
		return []extraction.DataPoint{}, nil
	}

	done = a.Step("data_extraction")
	res, st, err := s.Extractor.Extract(ctx, extraction.PrepareContext(records))
	done()
	if errors.Is(err, extraction.ErrNoContext) {
		return []extraction.DataPoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}
	a.LogMetric("extraction_rejected_count", float64(len(st.Rejected)))
	if st.Recovered {
		a.LogMetric("extraction_recovered", 1)
	}
	return res.ExtractedPoints, nil
}
