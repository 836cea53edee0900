package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/casefile-ai/lexrag/internal/analytics"
	"github.com/casefile-ai/lexrag/internal/llm"
	"github.com/casefile-ai/lexrag/internal/orchestrator"
	"github.com/casefile-ai/lexrag/internal/retrieval"
	"github.com/casefile-ai/lexrag/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeProcessor implements the processor interface for tests.
type fakeProcessor struct {
	// resp is returned from Process when err is nil.
	resp *orchestrator.QueryResponse
	// err is returned as the error value.
	err error
	// lastReq records the request Process was called with.
	lastReq *orchestrator.Request
}

func (f *fakeProcessor) Process(_ context.Context, req *orchestrator.Request) (*orchestrator.QueryResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// fakeReporter implements the reporter interface for tests.
type fakeReporter struct {
	report   *analytics.Report
	err      error
	lastCase string
	lastType analytics.Type
}

func (f *fakeReporter) Generate(_ context.Context, clientCaseID string, typ analytics.Type) (*analytics.Report, error) {
	f.lastCase = clientCaseID
	f.lastType = typ
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

// fakeQueryLog implements store.QueryLog for tests.
type fakeQueryLog struct {
	entries   []store.Entry
	recorded  []*store.Entry
	recordErr error
	recentErr error
}

func (f *fakeQueryLog) Record(_ context.Context, e *store.Entry) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, e)
	return nil
}

func (f *fakeQueryLog) Recent(_ context.Context, n int) ([]store.Entry, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if n < len(f.entries) {
		return f.entries[:n], nil
	}
	return f.entries, nil
}

func (f *fakeQueryLog) Close() error { return nil }

// answeredResponse is a typical accepted-answer pipeline response.
func answeredResponse() *orchestrator.QueryResponse {
	return &orchestrator.QueryResponse{
		Answer:     "The notice period is 30 days [SOURCE 1].",
		Sources:    []retrieval.Source{{ID: 1, Title: "labor code", Date: "2023-01-15", Type: "Law Reference"}},
		Confidence: "High",
		Outcome:    orchestrator.OutcomeAnswered,
		Evaluation: &llm.Evaluation{Score: 9, IsHelpful: true, IsGrounded: true},
		Attempts:   1,
	}
}

// newTestServer builds a fully wired *Server with an isolated metrics
// registry. The rate limiter goroutine is stopped at test cleanup.
func newTestServer(t *testing.T, proc processor, rep reporter, qlog store.QueryLog) *Server {
	t.Helper()
	s, err := New(proc, rep, qlog, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

// ---------------------------------------------------------------------------
// POST /api/query
// ---------------------------------------------------------------------------

func TestHandleQuery_Success(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{resp: answeredResponse()}
	qlog := &fakeQueryLog{}
	s := newTestServer(t, proc, nil, qlog)

	req := httptest.NewRequest(http.MethodPost, "/api/query",
		strings.NewReader(`{"query":"what is the notice period?","client_case_id":"case-7"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleQuery(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp orchestrator.QueryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "The notice period is 30 days [SOURCE 1]." {
		t.Errorf("answer: %q", resp.Answer)
	}
	if resp.Outcome != orchestrator.OutcomeAnswered || resp.Confidence != "High" {
		t.Errorf("outcome=%q confidence=%q", resp.Outcome, resp.Confidence)
	}

	if proc.lastReq.ClientCaseID != "case-7" {
		t.Errorf("case scope not forwarded: %+v", proc.lastReq)
	}

	if len(qlog.recorded) != 1 {
		t.Fatalf("expected 1 query log entry, got %d", len(qlog.recorded))
	}
	e := qlog.recorded[0]
	if e.EvalScore != 9 || !e.IsHelpful || e.Outcome != "answered" || e.Attempts != 1 {
		t.Errorf("logged entry: %+v", e)
	}
}

func TestHandleQuery_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeProcessor{}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/query",
		strings.NewReader(`{"collections":["law_reference_db"]}`))
	w := httptest.NewRecorder()

	s.handleQuery(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleQuery_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeProcessor{}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/query",
		strings.NewReader(`not-json`))
	w := httptest.NewRecorder()

	s.handleQuery(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleQuery_ProcessorError(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{err: errors.New("qdrant unreachable")}
	s := newTestServer(t, proc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/query",
		strings.NewReader(`{"query":"q"}`))
	w := httptest.NewRecorder()

	s.handleQuery(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// TestHandleQuery_LogWriteFailureDoesNotFailRequest verifies that a query log
// write error is swallowed and the client still receives the answer.
func TestHandleQuery_LogWriteFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{resp: answeredResponse()}
	qlog := &fakeQueryLog{recordErr: errors.New("disk full")}
	s := newTestServer(t, proc, nil, qlog)

	req := httptest.NewRequest(http.MethodPost, "/api/query",
		strings.NewReader(`{"query":"q"}`))
	w := httptest.NewRecorder()

	s.handleQuery(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 despite log failure, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/analytics
// ---------------------------------------------------------------------------

func TestHandleAnalytics_Success(t *testing.T) {
	t.Parallel()

	rep := &fakeReporter{report: &analytics.Report{
		Type:         analytics.TypeChecklist,
		ClientCaseID: "case-7",
		Content:      "1. File the appeal within 14 days.",
	}}
	s := newTestServer(t, &fakeProcessor{}, rep, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analytics",
		strings.NewReader(`{"client_case_id":"case-7","type":"checklist"}`))
	w := httptest.NewRecorder()

	s.handleAnalytics(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var report analytics.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Type != analytics.TypeChecklist || report.ClientCaseID != "case-7" {
		t.Errorf("report: %+v", report)
	}
	if rep.lastCase != "case-7" || rep.lastType != analytics.TypeChecklist {
		t.Errorf("reporter called with case=%q type=%q", rep.lastCase, rep.lastType)
	}
}

func TestHandleAnalytics_UnknownType(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeProcessor{}, &fakeReporter{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analytics",
		strings.NewReader(`{"client_case_id":"case-7","type":"horoscope"}`))
	w := httptest.NewRecorder()

	s.handleAnalytics(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAnalytics_MissingCaseID(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeProcessor{}, &fakeReporter{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analytics",
		strings.NewReader(`{"type":"checklist"}`))
	w := httptest.NewRecorder()

	s.handleAnalytics(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAnalytics_ReporterError(t *testing.T) {
	t.Parallel()

	rep := &fakeReporter{err: errors.New("no documents for case")}
	s := newTestServer(t, &fakeProcessor{}, rep, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analytics",
		strings.NewReader(`{"client_case_id":"case-9","type":"gap_analysis"}`))
	w := httptest.NewRecorder()

	s.handleAnalytics(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandleAnalytics_NotConfigured(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeProcessor{}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analytics",
		strings.NewReader(`{"client_case_id":"case-7","type":"checklist"}`))
	w := httptest.NewRecorder()

	s.handleAnalytics(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /api/query-logs
// ---------------------------------------------------------------------------

func TestHandleQueryLogs_ReturnsEntries(t *testing.T) {
	t.Parallel()

	qlog := &fakeQueryLog{entries: []store.Entry{
		{ID: 2, Query: "newer", Outcome: "answered"},
		{ID: 1, Query: "older", Outcome: "exhausted"},
	}}
	s := newTestServer(t, &fakeProcessor{}, nil, qlog)

	req := httptest.NewRequest(http.MethodGet, "/api/query-logs", nil)
	w := httptest.NewRecorder()

	s.handleQueryLogs(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp queryLogsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].Query != "newer" {
		t.Errorf("entries: %+v", resp.Entries)
	}
}

func TestHandleQueryLogs_LimitParameter(t *testing.T) {
	t.Parallel()

	qlog := &fakeQueryLog{entries: []store.Entry{{ID: 3}, {ID: 2}, {ID: 1}}}
	s := newTestServer(t, &fakeProcessor{}, nil, qlog)

	req := httptest.NewRequest(http.MethodGet, "/api/query-logs?limit=2", nil)
	w := httptest.NewRecorder()

	s.handleQueryLogs(w, req)

	var resp queryLogsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(resp.Entries))
	}
}

func TestHandleQueryLogs_BadLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeProcessor{}, nil, &fakeQueryLog{})
	req := httptest.NewRequest(http.MethodGet, "/api/query-logs?limit=zero", nil)
	w := httptest.NewRecorder()

	s.handleQueryLogs(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleQueryLogs_NotConfigured(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeProcessor{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/query-logs", nil)
	w := httptest.NewRecorder()

	s.handleQueryLogs(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

// TestHandleQueryLogs_EmptyHistoryIsEmptyArray verifies that an empty history
// serialises as a JSON array, not null.
func TestHandleQueryLogs_EmptyHistoryIsEmptyArray(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeProcessor{}, nil, &fakeQueryLog{})
	req := httptest.NewRequest(http.MethodGet, "/api/query-logs", nil)
	w := httptest.NewRecorder()

	s.handleQueryLogs(w, req)

	if !strings.Contains(w.Body.String(), `"entries":[]`) {
		t.Errorf("expected empty array, got: %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Routing and construction
// ---------------------------------------------------------------------------

func TestNew_RequiresProcessor(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil processor")
	}
}

// TestRoutes_AuthProtectsAPI drives the full middleware chain through the
// mux: /api/query requires a Bearer token while /api/health stays open.
func TestRoutes_AuthProtectsAPI(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{resp: answeredResponse()}
	s, err := New(proc, nil, nil, &Config{
		APIKey:   "secret",
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(s.stopRL)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	// Unauthenticated query is rejected.
	resp, err := http.Post(srv.URL+"/api/query", "application/json",
		strings.NewReader(`{"query":"q"}`))
	if err != nil {
		t.Fatalf("POST /api/query: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated: expected 401, got %d", resp.StatusCode)
	}

	// Authenticated query succeeds.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/query",
		strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Authorization", "Bearer secret")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authenticated POST: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("authenticated: expected 200, got %d", resp2.StatusCode)
	}

	// Health stays open without a token.
	resp3, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp3.StatusCode)
	}
}
