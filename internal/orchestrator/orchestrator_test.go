package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/casefile-ai/lexrag/internal/llm"
	"github.com/casefile-ai/lexrag/internal/rag"
	"github.com/casefile-ai/lexrag/internal/retrieval"
)

// fakeSearcher returns a fixed chunk set or error.
type fakeSearcher struct {
	chunks  []rag.Chunk
	err     error
	lastReq *retrieval.Request
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, req *retrieval.Request) ([]rag.Chunk, error) {
	f.calls++
	f.lastReq = req
	return f.chunks, f.err
}

// fakeGenerator replays scripted answers (or errors) per attempt and records
// the feedback it was given.
type fakeGenerator struct {
	answers   []string
	errs      []error
	feedbacks []string
	calls     int
}

func (f *fakeGenerator) Generate(_ context.Context, _, _, feedback string) (string, error) {
	i := f.calls
	f.calls++
	f.feedbacks = append(f.feedbacks, feedback)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.answers) {
		return f.answers[i], nil
	}
	return fmt.Sprintf("answer %d", i+1), nil
}

// fakeJudge replays scripted evaluations (or errors) per attempt and records
// the answers it was asked to judge.
type fakeJudge struct {
	evals   []*llm.Evaluation
	errs    []error
	judged  []string
	calls   int
}

func (f *fakeJudge) Evaluate(_ context.Context, _, _, answer string) (*llm.Evaluation, error) {
	i := f.calls
	f.calls++
	f.judged = append(f.judged, answer)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.evals) {
		return f.evals[i], nil
	}
	return &llm.Evaluation{Score: 9, IsHelpful: true, IsGrounded: true}, nil
}

func someChunks() []rag.Chunk {
	return []rag.Chunk{
		{ID: "c1", Text: "Article 17 requires 30 days notice.", Distance: 0.1,
			Metadata: rag.Metadata{"source_file": "labor_code.txt", "date": "2023-01-01"}},
		{ID: "c2", Text: "Case 2021-44 upheld the notice requirement.", Distance: 0.2,
			Metadata: rag.Metadata{"title": "Case 2021-44", "doc_type": "Case"}},
	}
}

func newTestOrchestrator(t *testing.T, s Searcher, g Generator, j Evaluator) *Orchestrator {
	t.Helper()
	o, err := New(s, g, j, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func Test_Process_AcceptsFirstGoodAnswer(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{chunks: someChunks()}
	gen := &fakeGenerator{answers: []string{"Notice is 30 days [SOURCE 1]."}}
	judge := &fakeJudge{evals: []*llm.Evaluation{{Score: 9, IsHelpful: true, IsGrounded: true}}}

	resp, err := newTestOrchestrator(t, searcher, gen, judge).Process(context.Background(),
		&Request{Query: "What is the notice period?"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if resp.Outcome != OutcomeAnswered {
		t.Errorf("outcome: got %q, want %q", resp.Outcome, OutcomeAnswered)
	}
	if resp.Confidence != "High" {
		t.Errorf("confidence: got %q, want High", resp.Confidence)
	}
	if resp.Attempts != 1 || gen.calls != 1 || judge.calls != 1 {
		t.Errorf("expected exactly one attempt: attempts=%d gen=%d judge=%d",
			resp.Attempts, gen.calls, judge.calls)
	}
	if len(resp.Sources) != 2 {
		t.Errorf("sources: got %d, want 2", len(resp.Sources))
	}
}

func Test_Process_AcceptsHelpfulLowScore(t *testing.T) {
	t.Parallel()

	// Score below AcceptScore but helpful — still an acceptance, and every
	// accepted answer reports High confidence.
	judge := &fakeJudge{evals: []*llm.Evaluation{{Score: 5, IsHelpful: true}}}
	resp, err := newTestOrchestrator(t, &fakeSearcher{chunks: someChunks()},
		&fakeGenerator{}, judge).Process(context.Background(), &Request{Query: "q"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if resp.Outcome != OutcomeAnswered {
		t.Errorf("outcome: got %q, want answered", resp.Outcome)
	}
	if resp.Confidence != "High" {
		t.Errorf("confidence: got %q, want High", resp.Confidence)
	}
}

func Test_Process_NoContext_EmptyResults(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	resp, err := newTestOrchestrator(t, &fakeSearcher{}, gen, &fakeJudge{}).
		Process(context.Background(), &Request{Query: "q"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if resp.Outcome != OutcomeNoContext {
		t.Errorf("outcome: got %q, want no_context", resp.Outcome)
	}
	if resp.Answer != NoContextAnswer {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources should be empty, got %d", len(resp.Sources))
	}
	if gen.calls != 0 {
		t.Errorf("generator must not run without context, got %d calls", gen.calls)
	}
}

func Test_Process_NoContext_EmbeddingFailure(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{err: fmt.Errorf("%w: connection refused", retrieval.ErrEmbedding)}
	resp, err := newTestOrchestrator(t, searcher, &fakeGenerator{}, &fakeJudge{}).
		Process(context.Background(), &Request{Query: "q"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if resp.Outcome != OutcomeNoContext {
		t.Errorf("outcome: got %q, want no_context", resp.Outcome)
	}
	if resp.Confidence != "Low" {
		t.Errorf("confidence: got %q, want Low", resp.Confidence)
	}
}

func Test_Process_RetryForwardsFeedback(t *testing.T) {
	t.Parallel()

	judge := &fakeJudge{evals: []*llm.Evaluation{
		{Score: 3, Suggestion: "Cite the statute."},
		{Score: 8, IsHelpful: true, IsGrounded: true},
	}}
	gen := &fakeGenerator{}

	resp, err := newTestOrchestrator(t, &fakeSearcher{chunks: someChunks()}, gen, judge).
		Process(context.Background(), &Request{Query: "q"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if resp.Attempts != 2 {
		t.Errorf("attempts: got %d, want 2", resp.Attempts)
	}
	if gen.feedbacks[0] != "" {
		t.Errorf("first attempt should have no feedback, got %q", gen.feedbacks[0])
	}
	if gen.feedbacks[1] != "Cite the statute." {
		t.Errorf("second attempt feedback: got %q", gen.feedbacks[1])
	}
}

func Test_Process_DefaultFeedbackWhenNoSuggestion(t *testing.T) {
	t.Parallel()

	judge := &fakeJudge{evals: []*llm.Evaluation{
		{Score: 2},
		{Score: 9, IsHelpful: true},
	}}
	gen := &fakeGenerator{}

	if _, err := newTestOrchestrator(t, &fakeSearcher{chunks: someChunks()}, gen, judge).
		Process(context.Background(), &Request{Query: "q"}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if gen.feedbacks[1] != DefaultFeedback {
		t.Errorf("expected default feedback, got %q", gen.feedbacks[1])
	}
}

func Test_Process_Exhausted_BestAttemptEarliestWins(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{answers: []string{"first", "second", "third"}}
	judge := &fakeJudge{evals: []*llm.Evaluation{
		{Score: 3},
		{Score: 6},
		{Score: 6},
	}}

	resp, err := newTestOrchestrator(t, &fakeSearcher{chunks: someChunks()}, gen, judge).
		Process(context.Background(), &Request{Query: "q"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if resp.Outcome != OutcomeExhausted {
		t.Errorf("outcome: got %q, want exhausted", resp.Outcome)
	}
	if resp.Answer != "second" {
		t.Errorf("tie must go to the earliest attempt: got %q", resp.Answer)
	}
	if resp.Note != ExhaustedNote {
		t.Errorf("note: got %q", resp.Note)
	}
	if resp.Confidence != "Low" {
		t.Errorf("confidence: got %q, want Low", resp.Confidence)
	}
	if resp.Attempts != 3 || gen.calls != 3 {
		t.Errorf("expected 3 attempts, got attempts=%d gen=%d", resp.Attempts, gen.calls)
	}
}

func Test_Process_GeneratorFailureStillJudged(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{errs: []error{errors.New("model down")}}
	judge := &fakeJudge{evals: []*llm.Evaluation{{Score: 9, IsHelpful: true}}}

	resp, err := newTestOrchestrator(t, &fakeSearcher{chunks: someChunks()}, gen, judge).
		Process(context.Background(), &Request{Query: "q"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if judge.judged[0] != llm.FailedAnswer {
		t.Errorf("judge should score the placeholder answer, got %q", judge.judged[0])
	}
	if resp.Answer != llm.FailedAnswer {
		t.Errorf("answer: got %q", resp.Answer)
	}
}

func Test_Process_JudgeOutageAcceptsLeniently(t *testing.T) {
	t.Parallel()

	judge := &fakeJudge{errs: []error{errors.New("judge down")}}
	gen := &fakeGenerator{answers: []string{"some answer"}}

	resp, err := newTestOrchestrator(t, &fakeSearcher{chunks: someChunks()}, gen, judge).
		Process(context.Background(), &Request{Query: "q"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Lenient fallback marks the answer helpful, so one attempt suffices,
	// and the acceptance reports High confidence like any other.
	if resp.Outcome != OutcomeAnswered || resp.Attempts != 1 {
		t.Errorf("expected lenient acceptance on first attempt, got outcome=%q attempts=%d",
			resp.Outcome, resp.Attempts)
	}
	if resp.Confidence != "High" {
		t.Errorf("confidence: got %q, want High", resp.Confidence)
	}
	if !strings.Contains(resp.Evaluation.Reason, "assuming ok") {
		t.Errorf("expected fallback evaluation, got %+v", resp.Evaluation)
	}
}

func Test_Process_PassesScopeToSearcher(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{chunks: someChunks()}
	_, err := newTestOrchestrator(t, searcher, &fakeGenerator{}, &fakeJudge{}).
		Process(context.Background(), &Request{
			Query:        "q",
			Collections:  []string{rag.CollectionClient},
			ClientCaseID: "case-42",
		})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if searcher.lastReq.ClientCaseID != "case-42" {
		t.Errorf("client case id not forwarded: %+v", searcher.lastReq)
	}
	if len(searcher.lastReq.Collections) != 1 || searcher.lastReq.Collections[0] != rag.CollectionClient {
		t.Errorf("collections not forwarded: %+v", searcher.lastReq.Collections)
	}
	if searcher.lastReq.TopK != 5 {
		t.Errorf("default top_k: got %d, want 5", searcher.lastReq.TopK)
	}
}

func Test_New_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeGenerator{}, &fakeJudge{}, Config{}); err == nil {
		t.Error("expected error for nil searcher")
	}
	if _, err := New(&fakeSearcher{}, nil, &fakeJudge{}, Config{}); err == nil {
		t.Error("expected error for nil generator")
	}
	if _, err := New(&fakeSearcher{}, &fakeGenerator{}, nil, Config{}); err == nil {
		t.Error("expected error for nil judge")
	}
}
