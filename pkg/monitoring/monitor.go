// Package monitoring records per-analysis latencies and quality signals to
// Prometheus and, optionally, to the tracking store.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/tracking"
)

// MaxErrorParam bounds the error text stored with a failed run.
const MaxErrorParam = 250

// Monitor starts analyses. Metrics and Tracking are both optional.
type Monitor struct {
	Metrics    *Metrics
	Tracking   *tracking.Store
	Experiment string

	now func() time.Time
}

func (m *Monitor) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

// Analysis collects measurements for one document until End.
type Analysis struct {
	m          *Monitor
	run        *tracking.Run
	documentID string
	start      time.Time

	mu      sync.Mutex
	steps   map[string]time.Duration
	metrics map[string]float64
	ended   bool
}

// Start opens a run named doc_<documentID>. Tracking failures are logged and
// the analysis continues without a run.
func (m *Monitor) Start(ctx context.Context, documentID, filePath string) *Analysis {
	a := &Analysis{
		m:          m,
		documentID: documentID,
		start:      m.clock(),
		steps:      make(map[string]time.Duration),
		metrics:    make(map[string]float64),
	}
	if m.Tracking == nil {
		return a
	}
	run, err := m.Tracking.StartRun(ctx, m.Experiment, "doc_"+documentID)
	if err != nil {
		clog.FromContext(ctx).Warnf("tracking disabled for document %s: %v", documentID, err)
		return a
	}
	if err := run.LogParams(ctx, map[string]any{"document_id": documentID, "file_path": filePath}); err != nil {
		clog.FromContext(ctx).Warnf("log params: %v", err)
	}
	a.run = run
	return a
}

// Step starts timing name; call the returned func when the step is done.
func (a *Analysis) Step(name string) func() {
	start := a.m.clock()
	return func() {
		d := a.m.clock().Sub(start)
		a.mu.Lock()
		a.steps[name] = d
		a.mu.Unlock()
		if a.m.Metrics != nil {
			a.m.Metrics.stepLatency.WithLabelValues(name).Observe(d.Seconds())
		}
	}
}

func (a *Analysis) LogMetric(name string, value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics[name] = value
}

func (a *Analysis) LogRAGStats(retrieved, used int) {
	a.LogMetric("rag_chunks_retrieved", float64(retrieved))
	a.LogMetric("rag_chunks_used", float64(used))
	if a.m.Metrics != nil {
		a.m.Metrics.ragChunks.WithLabelValues("retrieved").Observe(float64(retrieved))
		a.m.Metrics.ragChunks.WithLabelValues("used").Observe(float64(used))
	}
}

func (a *Analysis) LogConfidence(score float64) {
	a.LogMetric("confidence_score", score)
	if a.m.Metrics != nil {
		a.m.Metrics.confidence.Observe(score)
	}
}

func (a *Analysis) LogExtractionCount(n int) {
	a.LogMetric("extracted_data_count", float64(n))
	if a.m.Metrics != nil {
		a.m.Metrics.extracted.Observe(float64(n))
	}
}

// Snapshot returns the metrics End would write, including latencies.
func (a *Analysis) Snapshot() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.metrics)+len(a.steps))
	for k, v := range a.metrics {
		out[k] = v
	}
	for k, d := range a.steps {
		out[fmt.Sprintf("latency_%s_seconds", k)] = d.Seconds()
	}
	return out
}

// End records totals and closes the tracking run. Only the first call has effect.
func (a *Analysis) End(ctx context.Context, err error) {
	a.mu.Lock()
	if a.ended {
		a.mu.Unlock()
		return
	}
	a.ended = true
	a.mu.Unlock()

	total := a.m.clock().Sub(a.start)
	metrics := a.Snapshot()
	metrics["total_latency_seconds"] = total.Seconds()
	status, success := "completed", 1.0
	if err != nil {
		status, success = "failed", 0
	}
	metrics["success"] = success

	if a.m.Metrics != nil {
		a.m.Metrics.analyses.WithLabelValues(status).Inc()
		a.m.Metrics.totalLatency.Observe(total.Seconds())
	}
	log := clog.FromContext(ctx).With("document_id", a.documentID)
	log.Infof("analysis %s in %s", status, total.Round(time.Millisecond))
	if a.run == nil {
		return
	}
	// The run outlives a cancelled request.
	ctx = context.WithoutCancel(ctx)
	if err := a.run.LogMetrics(ctx, metrics); err != nil {
		log.Warnf("log metrics: %v", err)
	}
	runStatus := tracking.StatusFinished
	if err != nil {
		runStatus = tracking.StatusFailed
		if perr := a.run.LogParam(ctx, "error", truncate(err.Error(), MaxErrorParam)); perr != nil {
			log.Warnf("log error param: %v", perr)
		}
	}
	if err := a.run.End(ctx, runStatus); err != nil {
		log.Warnf("end run: %v", err)
	}
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	count := 0
	for pos := range s {
		if count == n {
			return s[:pos]
		}
		count++
	}
	return s
}
