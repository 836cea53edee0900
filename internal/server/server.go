// Package server implements the HTTP server that exposes the legal query
// pipeline, case analytics, and query history over a REST API.
// The server is started by the `lexrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casefile-ai/lexrag/internal/analytics"
	"github.com/casefile-ai/lexrag/internal/logging"
	"github.com/casefile-ai/lexrag/internal/orchestrator"
	"github.com/casefile-ai/lexrag/internal/store"
)

// defaultQueryLogLimit is how many history entries GET /api/query-logs
// returns when the limit parameter is absent.
const defaultQueryLogLimit = 50

// maxQueryLogLimit caps the limit parameter on GET /api/query-logs.
const maxQueryLogLimit = 500

// New constructs a Server. proc is required; rep and qlog may be nil, which
// disables the corresponding endpoints.
func New(proc processor, rep reporter, qlog store.QueryLog, cfg *Config) (*Server, error) {
	if proc == nil {
		return nil, fmt.Errorf("server: processor must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover the full generate/evaluate retry loop.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		processor: proc,
		reporter:  rep,
		queryLog:  qlog,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.Registry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: no API key configured, authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	// Protected routes: auth then per-IP rate limiting then metrics.
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(s.instrument(name, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", protected("query", s.handleQuery))
	mux.Handle("POST /api/analytics", protected("analytics", s.handleAnalytics))
	mux.Handle("GET /api/query-logs", protected("query_logs", s.handleQueryLogs))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the server's root handler with all middleware applied.
// Exposed for tests that drive the server through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query. It runs the full retrieve → generate →
// evaluate pipeline and returns the final answer with its sources and verdict.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	resp, err := s.processor.Process(r.Context(), &orchestrator.Request{
		Query:        req.Query,
		Collections:  req.Collections,
		ClientCaseID: req.ClientCaseID,
	})
	elapsed := time.Since(start)

	if err != nil {
		log.Error("query failed", slog.Any("error", err))
		s.metrics.queryRequestsTotal.WithLabelValues("error").Inc()
		s.metrics.queryDurationSeconds.WithLabelValues("error").Observe(elapsed.Seconds())
		http.Error(w, "query processing failed", http.StatusInternalServerError)
		return
	}

	outcome := string(resp.Outcome)
	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if resp.Attempts > 0 {
		s.metrics.queryAttempts.Observe(float64(resp.Attempts))
	}

	s.recordQuery(r.Context(), &req, resp)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("query encode error", slog.Any("error", err))
	}
}

// recordQuery persists the answered query to the query log. Logging is
// best-effort: failures are logged but never fail the request.
func (s *Server) recordQuery(ctx context.Context, req *queryRequest, resp *orchestrator.QueryResponse) {
	if s.queryLog == nil {
		return
	}

	entry := &store.Entry{
		Query:       req.Query,
		Collections: req.Collections,
		Answer:      resp.Answer,
		Confidence:  resp.Confidence,
		Outcome:     string(resp.Outcome),
		NumSources:  len(resp.Sources),
		Attempts:    resp.Attempts,
	}
	if resp.Evaluation != nil {
		entry.EvalScore = resp.Evaluation.Score
		entry.IsHelpful = resp.Evaluation.IsHelpful
	}

	if err := s.queryLog.Record(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("query log write failed", slog.Any("error", err))
	}
}

// handleAnalytics handles POST /api/analytics. It builds a single case report
// of the requested type from the client's documents and the reference corpora.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.reporter == nil {
		http.Error(w, "analytics not available", http.StatusServiceUnavailable)
		return
	}

	var req analyticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ClientCaseID == "" {
		http.Error(w, "client_case_id is required", http.StatusBadRequest)
		return
	}
	typ, err := analytics.ParseType(req.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := s.reporter.Generate(r.Context(), req.ClientCaseID, typ)
	if err != nil {
		log.Error("analytics report failed",
			slog.String("type", string(typ)),
			slog.String("client_case_id", req.ClientCaseID),
			slog.Any("error", err),
		)
		s.metrics.analyticsReportsTotal.WithLabelValues(string(typ), "error").Inc()
		http.Error(w, "report generation failed", http.StatusInternalServerError)
		return
	}
	s.metrics.analyticsReportsTotal.WithLabelValues(string(typ), "ok").Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		log.Error("analytics encode error", slog.Any("error", err))
	}
}

// handleQueryLogs handles GET /api/query-logs. It returns recent query
// history, newest-first. An optional ?limit=N parameter bounds the result.
func (s *Server) handleQueryLogs(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.queryLog == nil {
		http.Error(w, "query log not available", http.StatusServiceUnavailable)
		return
	}

	limit := defaultQueryLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxQueryLogLimit)
	}

	entries, err := s.queryLog.Recent(r.Context(), limit)
	if err != nil {
		log.Error("query log read failed", slog.Any("error", err))
		http.Error(w, "query log read failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(queryLogsResponse{Entries: entries}); err != nil {
		log.Error("query logs encode error", slog.Any("error", err))
	}
}
