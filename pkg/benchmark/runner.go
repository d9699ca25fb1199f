package benchmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/categorize"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/documents"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/evaluation"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/summary"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/tracking"
)

// FailedSummary stands in for a summary the model could not produce.
const FailedSummary = "ERROR: summary not generated"

// Runner benchmarks models over reference documents. Each model gets one
// tracking run named after it; metrics are suffixed with _doc_<id>.
type Runner struct {
	Tracking    *tracking.Store
	Experiment  string
	NewLLM      func(ctx context.Context, model string) (models.LLM, error)
	TextLoader  func(path string) (string, error)
	Diagnostics *Diagnostics

	now func() time.Time
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *Runner) loadText(path string) (string, error) {
	if r.TextLoader != nil {
		return r.TextLoader(path)
	}
	return documents.ExtractText(path)
}

// Run benchmarks each model in turn. A model that cannot be created is
// skipped; the returned error joins every such failure.
func (r *Runner) Run(ctx context.Context, modelNames []string, refs []Reference) error {
	if len(refs) == 0 {
		return ErrNoReferences
	}
	var errs []error
	for _, name := range modelNames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runModel(ctx, name, refs); err != nil {
			clog.FromContext(ctx).Errorf("benchmark of %s failed: %v", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) runModel(ctx context.Context, name string, refs []Reference) (err error) {
	log := clog.FromContext(ctx).With("model", name)
	ctx = clog.WithLogger(ctx, log)
	llm, err := r.NewLLM(ctx, name)
	if err != nil {
		return err
	}
	run, err := r.Tracking.StartRun(ctx, r.Experiment, name)
	if err != nil {
		return err
	}
	defer func() {
		status := tracking.StatusFinished
		if err != nil {
			status = tracking.StatusFailed
		}
		if endErr := run.End(context.WithoutCancel(ctx), status); endErr != nil && err == nil {
			err = endErr
		}
	}()
	if err := run.LogParam(ctx, "model", name); err != nil {
		return err
	}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runDocument(ctx, run, llm, ref); err != nil {
			return err
		}
	}
	return nil
}

// timed runs fn and reports its latency in seconds, or -1 on failure.
func (r *Runner) timed(fn func() error) (float64, error) {
	start := r.clock()
	if err := fn(); err != nil {
		return -1, err
	}
	return r.clock().Sub(start).Seconds(), nil
}

func suffixed(metrics map[string]float64, id string) map[string]float64 {
	out := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		out[fmt.Sprintf("%s_doc_%s", k, id)] = v
	}
	return out
}

// runDocument scores one model on one document. Model failures are recorded
// as metrics; only tracking failures abort the run.
func (r *Runner) runDocument(ctx context.Context, run *tracking.Run, llm models.LLM, ref Reference) error {
	id := string(ref.ID)
	log := clog.FromContext(ctx).With("document_id", id)
	text, err := r.loadText(ref.FilePath)
	if err != nil {
		log.Warnf("skipping %s: %v", ref.FilePath, err)
		return nil
	}
	log.Infof("benchmarking %q (%d chars)", ref.Title, len(text))
	metrics := map[string]float64{}

	var generated string
	lat, err := r.timed(func() error {
		var err error
		raw, err := summary.Summarizer{LLM: llm}.SummarizeText(ctx, text)
		generated = summary.PostProcess(raw, summary.DefaultMaxWords)
		return err
	})
	if err != nil {
		log.Warnf("summary failed: %v", err)
		generated = FailedSummary
	}
	metrics["latency_summary"] = lat
	for k, v := range evaluation.Rouge(generated, ref.ReferenceSummary).Metrics() {
		metrics[k] = v
	}

	extracted := "{}"
	lat, err = r.timed(func() error {
		out, err := extractFacts(ctx, llm, text)
		if err == nil {
			extracted = out
		}
		return err
	})
	if err != nil {
		log.Warnf("extraction failed: %v", err)
	}
	metrics["latency_extraction"] = lat
	if err := r.Diagnostics.Record(llm.Name(), id, extracted); err != nil {
		log.Warnf("diagnostics: %v", err)
	}
	for k, v := range evaluation.ScoreExtraction(extracted, ref.Numbers()).Metrics() {
		metrics[k] = v
	}

	var rawCategory string
	lat, err = r.timed(func() error {
		var err error
		rawCategory, err = categorize.LLMClassifier{LLM: llm}.Raw(ctx, generated)
		return err
	})
	if err != nil {
		log.Warnf("classification failed: %v", err)
	}
	metrics["latency_classification"] = lat
	generatedCategory := rawCategory
	if cat, err := categorize.ParseAnswer(rawCategory); err == nil {
		generatedCategory = string(cat)
	}
	reference := ref.ReferenceCategory
	if reference == "" {
		reference = "UNDEFINED"
	}
	metrics["category_accuracy"] = evaluation.CategoryAccuracy(generatedCategory, reference)

	if err := run.LogMetrics(ctx, suffixed(metrics, id)); err != nil {
		return err
	}
	for path, content := range map[string]string{
		"summaries/" + id + ".txt":        generated,
		"extracted_datas/" + id + ".json": extracted,
		"categories/" + id + ".json":      rawCategory,
	} {
		if err := run.LogText(ctx, path, content); err != nil {
			return err
		}
	}
	return nil
}
