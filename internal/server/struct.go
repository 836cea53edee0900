package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/casefile-ai/lexrag/internal/analytics"
	"github.com/casefile-ai/lexrag/internal/orchestrator"
	"github.com/casefile-ai/lexrag/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be long enough for a full generate/evaluate retry loop.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil, a private registry is created.
	Registry *prometheus.Registry
}

// processor is the interface handleQuery calls to answer a question.
// *orchestrator.Orchestrator satisfies it; tests inject a fake.
type processor interface {
	Process(ctx context.Context, req *orchestrator.Request) (*orchestrator.QueryResponse, error)
}

// reporter is the interface handleAnalytics calls to build a case report.
// *analytics.Engine satisfies it; tests inject a fake.
type reporter interface {
	Generate(ctx context.Context, clientCaseID string, typ analytics.Type) (*analytics.Report, error)
}

// Server is the HTTP server that exposes the query pipeline over REST.
type Server struct {
	// processor answers POST /api/query requests.
	processor processor
	// reporter builds case reports for POST /api/analytics. May be nil, in
	// which case the endpoint returns 503.
	reporter reporter
	// queryLog persists answered queries. May be nil (logging disabled).
	queryLog store.QueryLog
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments registered for this instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the user's legal question.
	Query string `json:"query"`
	// Collections optionally restricts which collections are searched.
	Collections []string `json:"collections,omitempty"`
	// ClientCaseID scopes client-document retrieval to one case.
	ClientCaseID string `json:"client_case_id,omitempty"`
}

// analyticsRequest is the JSON body for POST /api/analytics.
type analyticsRequest struct {
	// ClientCaseID identifies the case to analyse.
	ClientCaseID string `json:"client_case_id"`
	// Type is the report type (checklist, gap_analysis, argument_mapping,
	// risk_assessment, compliance_tracker).
	Type string `json:"type"`
}

// queryLogsResponse is the JSON body for GET /api/query-logs.
type queryLogsResponse struct {
	// Entries is the query history, newest-first.
	Entries []store.Entry `json:"entries"`
}
