package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Evaluation is the judge's verdict on a single generated answer.
type Evaluation struct {
	// Score rates overall answer quality from 1 (unusable) to 10 (excellent).
	Score int `json:"score"`
	// IsHelpful reports whether the answer actually addresses the question.
	IsHelpful bool `json:"is_helpful"`
	// IsGrounded reports whether every claim is supported by the context.
	IsGrounded bool `json:"is_grounded"`
	// HallucinationDetected reports whether the answer invents facts, statutes,
	// or citations not present in the context.
	HallucinationDetected bool `json:"hallucination_detected"`
	// Reason is the judge's short explanation for the verdict.
	Reason string `json:"reason"`
	// Suggestion tells the generator what to fix on the next attempt.
	Suggestion string `json:"suggestion"`
}

// judgeSystemPrompt instructs the evaluation model to return a strict JSON
// verdict and nothing else.
const judgeSystemPrompt = `You are a strict evaluator of legal research answers.

You will be given a QUESTION, the CONTEXT excerpts the answer had to be based
on, and the ANSWER. Judge the answer on these criteria:

- score: integer 1-10 for overall quality (accuracy, completeness, clarity)
- is_helpful: does the answer actually address the question?
- is_grounded: is every claim supported by the context excerpts?
- hallucination_detected: does the answer invent facts, statutes, cases, or
  citations that are not in the context?
- reason: one or two sentences explaining your verdict
- suggestion: concrete instruction for improving the next attempt (empty
  string if nothing to fix)

Respond with ONLY a JSON object containing exactly these six fields — no
markdown fencing, no commentary.`

// Judge evaluates generated answers against their retrieval context.
// It is safe for concurrent use.
type Judge struct {
	model model.BaseChatModel
}

// NewJudge wraps a chat model as an answer evaluator.
func NewJudge(m model.BaseChatModel) *Judge {
	return &Judge{model: m}
}

// Evaluate scores answer against question and contextBlock. The returned
// error covers model invocation failures only; a malformed verdict is
// repaired with field defaults rather than rejected, so a usable Evaluation
// comes back whenever the model responds at all.
func (j *Judge) Evaluate(ctx context.Context, question, contextBlock, answer string) (*Evaluation, error) {
	var user strings.Builder
	user.WriteString("QUESTION:\n")
	user.WriteString(question)
	user.WriteString("\n\nCONTEXT:\n")
	user.WriteString(contextBlock)
	user.WriteString("\n\nANSWER:\n")
	user.WriteString(answer)

	messages := []*schema.Message{
		schema.SystemMessage(judgeSystemPrompt),
		schema.UserMessage(user.String()),
	}

	resp, err := j.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("llm: evaluation failed: %w", err)
	}

	return ParseEvaluation(resp.Content), nil
}

// LenientFallback is the evaluation assumed when the judge itself is down.
// The answer is waved through so a judge outage never blocks responses.
func LenientFallback() *Evaluation {
	return &Evaluation{
		Score:                 5,
		IsHelpful:             true,
		IsGrounded:            true,
		HallucinationDetected: false,
		Reason:                "Evaluation failed, assuming ok.",
		Suggestion:            "",
	}
}

// rawEvaluation mirrors Evaluation with pointer fields so missing keys can be
// told apart from zero values when repairing a partial verdict.
type rawEvaluation struct {
	Score                 *int    `json:"score"`
	IsHelpful             *bool   `json:"is_helpful"`
	IsGrounded            *bool   `json:"is_grounded"`
	HallucinationDetected *bool   `json:"hallucination_detected"`
	Reason                *string `json:"reason"`
	Suggestion            *string `json:"suggestion"`
}

// ParseEvaluation extracts an Evaluation from raw model output. Markdown
// fences and surrounding prose are tolerated. Missing or unparseable fields
// fall back to neutral defaults: score 5, is_helpful false, empty suggestion.
func ParseEvaluation(output string) *Evaluation {
	eval := &Evaluation{Score: 5}

	var raw rawEvaluation
	if err := json.Unmarshal([]byte(extractJSON(output)), &raw); err != nil {
		eval.Reason = "Could not parse evaluation response."
		return eval
	}

	if raw.Score != nil {
		eval.Score = *raw.Score
	}
	if raw.IsHelpful != nil {
		eval.IsHelpful = *raw.IsHelpful
	}
	if raw.IsGrounded != nil {
		eval.IsGrounded = *raw.IsGrounded
	}
	if raw.HallucinationDetected != nil {
		eval.HallucinationDetected = *raw.HallucinationDetected
	}
	if raw.Reason != nil {
		eval.Reason = *raw.Reason
	}
	if raw.Suggestion != nil {
		eval.Suggestion = *raw.Suggestion
	}
	return eval
}

// extractJSON isolates the outermost JSON object in s, stripping markdown
// fences and any prose the model wrapped around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
