package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"gopkg.in/yaml.v3"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/benchmark"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/concurrent"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/evaluation"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/tracking"
)

// Thresholds are the minimum averages a release must reach.
type Thresholds struct {
	Rouge1           float64 `yaml:"rouge1_fmeasure"`
	RougeL           float64 `yaml:"rougeL_fmeasure"`
	CategoryAccuracy float64 `yaml:"category_accuracy"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Rouge1: 0.25, RougeL: 0.20, CategoryAccuracy: 0.70}
}

func (t Thresholds) params() map[string]any {
	return map[string]any{
		"rouge1_fmeasure":   t.Rouge1,
		"rougeL_fmeasure":   t.RougeL,
		"category_accuracy": t.CategoryAccuracy,
	}
}

// Result is the outcome for one document.
type Result struct {
	DocumentID      string  `json:"document_id"`
	Title           string  `json:"title"`
	Success         bool    `json:"success"`
	Latency         float64 `json:"latency"`
	Rouge1          float64 `json:"rouge1_fmeasure"`
	Rouge2          float64 `json:"rouge2_fmeasure"`
	RougeL          float64 `json:"rougeL_fmeasure"`
	CategoryCorrect bool    `json:"category_correct"`
	ExtractionCount int     `json:"extraction_count"`
	Error           string  `json:"error,omitempty"`
}

// Summary aggregates results. Averages cover successful documents only.
type Summary struct {
	Total            int      `json:"total_documents"`
	Successful       int      `json:"successful"`
	Failed           int      `json:"failed"`
	AvgRouge1        float64  `json:"avg_rouge1_fmeasure"`
	AvgRouge2        float64  `json:"avg_rouge2_fmeasure"`
	AvgRougeL        float64  `json:"avg_rougeL_fmeasure"`
	CategoryAccuracy float64  `json:"category_accuracy"`
	AvgLatency       float64  `json:"avg_latency_seconds"`
	Results          []Result `json:"results"`
}

func (s Summary) PassesThresholds(t Thresholds) bool {
	return s.AvgRouge1 >= t.Rouge1 && s.AvgRougeL >= t.RougeL && s.CategoryAccuracy >= t.CategoryAccuracy
}

// Passed reports whether the campaign succeeds: thresholds met and no
// document failed.
func (s Summary) Passed(t Thresholds) bool {
	return s.PassesThresholds(t) && s.Failed == 0
}

// Validator drives a validation campaign.
type Validator struct {
	Client      *Client
	Tracking    *tracking.Store
	Experiment  string
	Thresholds  Thresholds
	Concurrency int

	now func() time.Time
}

func (v *Validator) clock() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now()
}

// Filter keeps the references whose id is in ids; no ids keeps everything.
func Filter(refs []benchmark.Reference, ids ...string) []benchmark.Reference {
	if len(ids) == 0 {
		return refs
	}
	keep := map[string]bool{}
	for _, id := range ids {
		keep[strings.TrimSpace(id)] = true
	}
	var out []benchmark.Reference
	for _, r := range refs {
		if keep[string(r.ID)] {
			out = append(out, r)
		}
	}
	return out
}

func (v *Validator) validate(ctx context.Context, ref benchmark.Reference) (Result, error) {
	res := Result{DocumentID: string(ref.ID), Title: ref.Title}
	log := clog.FromContext(ctx).With("document_id", res.DocumentID)
	start := v.clock()
	resp, err := v.Client.Analyze(ctx, path.Join(ReportsPrefix, ref.Title), res.DocumentID)
	if err != nil {
		res.Error = err.Error()
		log.Errorf("validation of %q failed: %v", ref.Title, err)
		return res, nil
	}
	res.Latency = v.clock().Sub(start).Seconds()
	if ref.ReferenceSummary != "" && resp.Summary != "" {
		scores := evaluation.Rouge(resp.Summary, ref.ReferenceSummary)
		res.Rouge1 = scores.Rouge1.FMeasure
		res.Rouge2 = scores.Rouge2.FMeasure
		res.RougeL = scores.RougeL.FMeasure
	}
	res.CategoryCorrect = resp.Category != "" && ref.ReferenceCategory != "" &&
		evaluation.CategoryAccuracy(resp.Category, ref.ReferenceCategory) == 1
	res.ExtractionCount = resp.ExtractedCount
	res.Success = true
	log.Infof("ROUGE-1 %.3f, ROUGE-L %.3f, category %q (expected %q, correct=%t), %d points, %.1fs",
		res.Rouge1, res.RougeL, resp.Category, ref.ReferenceCategory, res.CategoryCorrect, res.ExtractionCount, res.Latency)
	return res, nil
}

// Aggregate folds per-document results into a Summary.
func Aggregate(results []Result) Summary {
	s := Summary{Total: len(results), Results: results}
	var correct int
	for _, r := range results {
		if !r.Success {
			s.Failed++
			continue
		}
		s.Successful++
		s.AvgRouge1 += r.Rouge1
		s.AvgRouge2 += r.Rouge2
		s.AvgRougeL += r.RougeL
		s.AvgLatency += r.Latency
		if r.CategoryCorrect {
			correct++
		}
	}
	if n := float64(s.Successful); n > 0 {
		s.AvgRouge1 /= n
		s.AvgRouge2 /= n
		s.AvgRougeL /= n
		s.AvgLatency /= n
		s.CategoryAccuracy = float64(correct) / n
	}
	return s
}

// Run validates refs and records the campaign as one tracking run named
// validation_run. Document failures are part of the Summary, not the error.
func (v *Validator) Run(ctx context.Context, refs []benchmark.Reference) (Summary, error) {
	log := clog.FromContext(ctx)
	log.Infof("validating %d documents against %s", len(refs), v.Client.BaseURL)

	results, errs := concurrent.Settle(ctx, refs, v.Concurrency, v.validate)
	for i, err := range errs {
		if err != nil {
			results[i] = Result{DocumentID: string(refs[i].ID), Title: refs[i].Title, Error: err.Error()}
		}
	}
	sum := Aggregate(results)
	if v.Tracking == nil {
		return sum, nil
	}
	return sum, v.record(ctx, sum)
}

func (v *Validator) record(ctx context.Context, sum Summary) (err error) {
	ctx = context.WithoutCancel(ctx)
	run, err := v.Tracking.StartRun(ctx, v.Experiment, "validation_run")
	if err != nil {
		return err
	}
	defer func() {
		status := tracking.StatusFinished
		if err != nil {
			status = tracking.StatusFailed
		}
		if endErr := run.End(ctx, status); endErr != nil && err == nil {
			err = endErr
		}
	}()
	params := v.Thresholds.params()
	params["total_documents"] = sum.Total
	if err := run.LogParams(ctx, params); err != nil {
		return err
	}
	metrics := map[string]float64{}
	for _, r := range sum.Results {
		id := r.DocumentID
		metrics["rouge1_doc_"+id] = r.Rouge1
		metrics["rougeL_doc_"+id] = r.RougeL
		metrics["category_correct_doc_"+id] = boolMetric(r.CategoryCorrect)
		metrics["latency_doc_"+id] = r.Latency
		metrics["extraction_count_doc_"+id] = float64(r.ExtractionCount)
	}
	metrics["avg_rouge1_fmeasure"] = sum.AvgRouge1
	metrics["avg_rouge2_fmeasure"] = sum.AvgRouge2
	metrics["avg_rougeL_fmeasure"] = sum.AvgRougeL
	metrics["category_accuracy"] = sum.CategoryAccuracy
	metrics["avg_latency_seconds"] = sum.AvgLatency
	metrics["documents_successful"] = float64(sum.Successful)
	metrics["documents_failed"] = float64(sum.Failed)
	metrics["validation_passed"] = boolMetric(sum.PassesThresholds(v.Thresholds))
	if err := run.LogMetrics(ctx, metrics); err != nil {
		return err
	}
	b, err := json.MarshalIndent(sum.Results, "", "  ")
	if err != nil {
		return err
	}
	return run.LogText(ctx, "validation_results.json", string(b))
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// LoadThresholds overlays the YAML file at path on DefaultThresholds.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	b, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read thresholds: %w", err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("decode thresholds %s: %w", path, err)
	}
	return t, nil
}
