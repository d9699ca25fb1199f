// Package server exposes document analysis over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/documents"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/orchestration"
)

// Analyzer runs one analysis. *orchestration.Service implements it.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, req orchestration.Request) (orchestration.Analysis, error)
}

// Options bounds request handling. Zero values take defaults.
type Options struct {
	MaxConcurrent  int64
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server serves the analysis HTTP API.
type Server struct {
	analyzer Analyzer
	opts     Options
	sem      *semaphore.Weighted
	active   atomic.Int64
}

// New returns a Server with defaults applied to unset options.
func New(a Analyzer, opts Options) *Server {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{analyzer: a, opts: opts, sem: semaphore.NewWeighted(opts.MaxConcurrent)}
}

// Handler returns the routed handler with logging and recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze-document", s.withConcurrencyLimit(s.handleAnalyze))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	return withLogging(withRecovery(mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight
// requests for up to 30 seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	clog.FromContext(ctx).Infof("listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active": s.active.Load()})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[orchestration.Request](r, s.opts.MaxBodyBytes)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}
	res, err := s.analyzer.AnalyzeDocument(ctx, req)
	if err != nil {
		status, detail := errorStatus(err)
		clog.FromContext(ctx).Errorf("analysis of %q failed: %v", req.FilePath, err)
		writeDetail(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// errorStatus maps pipeline errors onto HTTP responses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, documents.ErrNotFound), errors.Is(err, orchestration.ErrInvalidPath):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, documents.ErrUnreadable):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, orchestration.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Analysis failed: " + err.Error()
	}
}

func (s *Server) withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.sem.TryAcquire(1) {
			w.Header().Set("Retry-After", "30")
			writeDetail(w, http.StatusServiceUnavailable, "Service at capacity")
			return
		}
		defer s.sem.Release(1)
		s.active.Add(1)
		defer s.active.Add(-1)
		next(w, r)
	}
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				clog.FromContext(r.Context()).Errorf("panic serving %s: %v", r.URL.Path, v)
				writeDetail(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := clog.FromContext(r.Context()).With("method", r.Method, "path", sanitizeLogString(r.URL.Path))
		ww := &wrapWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r.WithContext(clog.WithLogger(r.Context(), log)))
		log.With("status", ww.status, "duration", time.Since(start).String()).Info("request")
	})
}

func sanitizeLogString(s string) string {
	s = strings.NewReplacer("\n", "", "\r", "").Replace(s)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func parseJSON[T any](r *http.Request, limit int64) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		if err == nil {
			return out, errors.New("unexpected trailing data")
		}
		return out, err
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
