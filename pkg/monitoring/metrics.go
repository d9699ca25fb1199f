package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus series for document analysis.
type Metrics struct {
	analyses     *prometheus.CounterVec
	totalLatency prometheus.Histogram
	stepLatency  *prometheus.HistogramVec
	confidence   prometheus.Histogram
	ragChunks    *prometheus.HistogramVec
	extracted    prometheus.Histogram
	embeddings   *prometheus.CounterVec
	embedLatency prometheus.Histogram
}

var latencyBuckets = prometheus.ExponentialBuckets(0.05, 2, 14)

// NewMetrics registers the series on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ecosynth_analyses_total",
			Help: "Document analyses by final status",
		}, []string{"status"}),
		totalLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ecosynth_analysis_seconds",
			Help:    "End-to-end analysis latency",
			Buckets: latencyBuckets,
		}),
		stepLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ecosynth_step_seconds",
			Help:    "Latency of each analysis step",
			Buckets: latencyBuckets,
		}, []string{"step"}),
		confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ecosynth_summary_confidence",
			Help:    "Self-assessed summary confidence (0.0-1.0)",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ragChunks: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ecosynth_rag_chunks",
			Help:    "Chunks retrieved and used per analysis",
			Buckets: prometheus.LinearBuckets(0, 4, 10),
		}, []string{"kind"}),
		extracted: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ecosynth_extracted_points",
			Help:    "Data points kept per analysis",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
		embeddings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ecosynth_embeddings_total",
			Help: "Embedding calls by outcome",
		}, []string{"outcome"}),
		embedLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ecosynth_embedding_seconds",
			Help:    "Embedding latency including retries",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// RecordEmbedding implements retrieval.Metrics.
func (m *Metrics) RecordEmbedding(d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.embeddings.WithLabelValues(outcome).Inc()
	m.embedLatency.Observe(d.Seconds())
}
