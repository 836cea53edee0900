// Package orchestrator runs the retrieve → generate → evaluate loop that
// turns a legal question into a vetted answer. Retrieval happens once per
// query; generation and evaluation repeat until the judge accepts the answer
// or the retry budget is exhausted, in which case the best attempt seen so
// far is returned with reduced confidence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casefile-ai/lexrag/internal/budget"
	"github.com/casefile-ai/lexrag/internal/llm"
	"github.com/casefile-ai/lexrag/internal/logging"
	"github.com/casefile-ai/lexrag/internal/rag"
	"github.com/casefile-ai/lexrag/internal/retrieval"
)

const (
	// DefaultMaxRetries bounds the generate/evaluate loop per query.
	DefaultMaxRetries = 3

	// AcceptScore is the judge score at or above which an answer is accepted
	// outright. Below it, the answer can still pass on helpfulness alone.
	AcceptScore = 7

	// NoContextAnswer is returned when retrieval produces nothing to ground
	// an answer on.
	NoContextAnswer = "No relevant context found in the database."

	// ExhaustedNote marks responses that ran out of retries without an
	// accepted answer.
	ExhaustedNote = "Response quality below threshold after maximum retries."

	// DefaultFeedback is handed to the generator on retry when the judge did
	// not provide a concrete suggestion.
	DefaultFeedback = "Provide a more accurate and grounded response."
)

// Outcome names the terminal branch a query ended on.
type Outcome string

const (
	// OutcomeAnswered means the judge accepted a generated answer.
	OutcomeAnswered Outcome = "answered"
	// OutcomeNoContext means retrieval found nothing to ground an answer on.
	OutcomeNoContext Outcome = "no_context"
	// OutcomeExhausted means no attempt was accepted within the retry budget;
	// the best-scoring attempt is returned instead.
	OutcomeExhausted Outcome = "exhausted"
)

// Generator drafts an answer from retrieved context, optionally correcting a
// previous attempt per the judge's feedback.
type Generator interface {
	Generate(ctx context.Context, question, contextBlock, feedback string) (string, error)
}

// Evaluator scores a generated answer against its retrieval context.
type Evaluator interface {
	Evaluate(ctx context.Context, question, contextBlock, answer string) (*llm.Evaluation, error)
}

// Searcher retrieves scored chunks for a query.
type Searcher interface {
	Search(ctx context.Context, req *retrieval.Request) ([]rag.Chunk, error)
}

// Request is a single question put to the pipeline.
type Request struct {
	// Query is the user's question.
	Query string
	// Collections restricts retrieval to the named collections. Empty means
	// all standard collections.
	Collections []string
	// ClientCaseID scopes client-document retrieval to one case.
	ClientCaseID string
}

// QueryResponse is the pipeline's final answer for one query.
type QueryResponse struct {
	// Answer is the accepted (or best-attempt) answer text.
	Answer string `json:"answer"`
	// Sources lists up to five documents the context was assembled from.
	Sources []retrieval.Source `json:"sources"`
	// Confidence is "High" for accepted answers and "Low" on the
	// no-context and exhausted branches.
	Confidence string `json:"confidence"`
	// Outcome names the terminal branch this response came from.
	Outcome Outcome `json:"outcome"`
	// Note carries a human-readable caveat for degraded outcomes.
	Note string `json:"note,omitempty"`
	// Evaluation is the judge's verdict on the returned answer.
	Evaluation *llm.Evaluation `json:"evaluation_metrics,omitempty"`
	// Attempts is the number of generation attempts made.
	Attempts int `json:"attempts"`
}

// Config holds the orchestrator's tunables. Zero values take defaults.
type Config struct {
	// MaxRetries bounds the generate/evaluate loop (default 3).
	MaxRetries int
	// TopK is the per-collection retrieval depth (default 5).
	TopK int
	// ContextChunks caps how many ranked chunks feed the prompt context
	// (default retrieval.DefaultContextChunks).
	ContextChunks int
	// MaxContextTokens triggers a size warning when the assembled context
	// exceeds it (default budget.DefaultMaxContextTokens).
	MaxContextTokens int
}

// Orchestrator coordinates retrieval, generation, and evaluation for queries.
type Orchestrator struct {
	searcher  Searcher
	generator Generator
	judge     Evaluator

	maxRetries       int
	topK             int
	contextChunks    int
	maxContextTokens int
}

// New constructs an Orchestrator. All three collaborators are required.
func New(searcher Searcher, generator Generator, judge Evaluator, cfg Config) (*Orchestrator, error) {
	if searcher == nil || generator == nil || judge == nil {
		return nil, fmt.Errorf("orchestrator: searcher, generator, and judge are all required")
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.ContextChunks <= 0 {
		cfg.ContextChunks = retrieval.DefaultContextChunks
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}

	return &Orchestrator{
		searcher:         searcher,
		generator:        generator,
		judge:            judge,
		maxRetries:       cfg.MaxRetries,
		topK:             cfg.TopK,
		contextChunks:    cfg.ContextChunks,
		maxContextTokens: cfg.MaxContextTokens,
	}, nil
}

// attempt records one pass through the generate/evaluate loop.
type attempt struct {
	answer string
	eval   *llm.Evaluation
}

// Process answers one query end to end. Retrieval failures and empty result
// sets terminate early on the no-context branch; otherwise the loop runs
// until an answer is accepted or retries are exhausted. Process never returns
// an error for degraded quality — those surface in the response's Outcome,
// Confidence, and Note fields.
func (o *Orchestrator) Process(ctx context.Context, req *Request) (*QueryResponse, error) {
	log := logging.FromContext(ctx)

	chunks, err := o.searcher.Search(ctx, &retrieval.Request{
		Query:        req.Query,
		Collections:  req.Collections,
		TopK:         o.topK,
		ClientCaseID: req.ClientCaseID,
	})
	if err != nil {
		reason := "retrieval failed"
		if errors.Is(err, retrieval.ErrEmbedding) {
			reason = "query embedding failed"
		}
		log.Warn("orchestrator: "+reason+", returning no-context response",
			slog.Any("error", err))
		return noContextResponse(), nil
	}

	ranked := retrieval.Rank(chunks)
	if len(ranked) == 0 {
		log.Info("orchestrator: no chunks retrieved", slog.String("query", req.Query))
		return noContextResponse(), nil
	}

	contextBlock := retrieval.AssembleContext(ranked, o.contextChunks)
	sources := retrieval.FormatSources(ranked, retrieval.DefaultContextChunks)

	if budget.Exceeds(o.maxContextTokens, contextBlock, req.Query) {
		log.Warn("orchestrator: assembled context exceeds token budget",
			slog.Int("budget", o.maxContextTokens),
			slog.Int("estimated", budget.Estimate(contextBlock)+budget.Estimate(req.Query)),
		)
	}

	var attempts []attempt
	feedback := ""

	for i := 1; i <= o.maxRetries; i++ {
		answer, genErr := o.generator.Generate(ctx, req.Query, contextBlock, feedback)
		if genErr != nil {
			// A failed generation is still scored so it competes (and loses)
			// against real attempts on the exhausted branch.
			log.Warn("orchestrator: generation failed",
				slog.Int("attempt", i), slog.Any("error", genErr))
			answer = llm.FailedAnswer
		}

		eval, evalErr := o.judge.Evaluate(ctx, req.Query, contextBlock, answer)
		if evalErr != nil {
			log.Warn("orchestrator: evaluation failed, assuming answer is ok",
				slog.Int("attempt", i), slog.Any("error", evalErr))
			eval = llm.LenientFallback()
		}

		attempts = append(attempts, attempt{answer: answer, eval: eval})

		if eval.Score >= AcceptScore || eval.IsHelpful {
			log.Info("orchestrator: answer accepted",
				slog.Int("attempt", i),
				slog.Int("score", eval.Score),
				slog.Bool("is_helpful", eval.IsHelpful),
			)
			return &QueryResponse{
				Answer:     answer,
				Sources:    sources,
				Confidence: "High",
				Outcome:    OutcomeAnswered,
				Evaluation: eval,
				Attempts:   i,
			}, nil
		}

		feedback = eval.Suggestion
		if feedback == "" {
			feedback = DefaultFeedback
		}
		log.Info("orchestrator: answer rejected, retrying",
			slog.Int("attempt", i),
			slog.Int("score", eval.Score),
			slog.String("feedback", feedback),
		)
	}

	// Exhausted: return the best-scoring attempt. Ties go to the earliest
	// attempt so later retries must strictly improve to win.
	best := attempts[0]
	for _, a := range attempts[1:] {
		if a.eval.Score > best.eval.Score {
			best = a
		}
	}

	log.Warn("orchestrator: retries exhausted",
		slog.Int("attempts", len(attempts)),
		slog.Int("best_score", best.eval.Score),
	)

	return &QueryResponse{
		Answer:     best.answer,
		Sources:    sources,
		Confidence: "Low",
		Outcome:    OutcomeExhausted,
		Note:       ExhaustedNote,
		Evaluation: best.eval,
		Attempts:   len(attempts),
	}, nil
}

// noContextResponse is the fixed response for the no-context branch.
func noContextResponse() *QueryResponse {
	return &QueryResponse{
		Answer:     NoContextAnswer,
		Sources:    []retrieval.Source{},
		Confidence: "Low",
		Outcome:    OutcomeNoContext,
	}
}
