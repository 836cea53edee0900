// Package budget provides token estimation and truncation helpers for the
// context handed to the language model. Because lexrag supports multiple LLM
// backends with different tokenizers, estimation uses a conservative
// character heuristic: 1 token ≈ 4 characters of English prose. This
// under-estimates on purpose to leave headroom for model-specific overhead.
package budget

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input budget in tokens for an
	// assembled retrieval context. Conservative enough for 8k-context models
	// while leaving room for the question, prompts, and the response.
	DefaultMaxContextTokens = 6000

	// DefaultAnalyticsQueryTokens caps the client-case excerpt used as the
	// retrieval query when building an analytics report.
	DefaultAnalyticsQueryTokens = 250
)

// Estimate returns a rough token count for s using the character heuristic.
// Non-empty strings always estimate to at least 1.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// Truncate shortens s so its estimated token count fits within maxTokens.
// The cut is made at the last space inside the limit when one exists, so a
// word is never split mid-way unless the text has no spaces at all.
func Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 || Estimate(s) <= maxTokens {
		return s
	}

	limit := maxTokens * charsPerToken
	cut := s[:limit]
	for i := limit - 1; i > 0; i-- {
		if cut[i] == ' ' {
			return cut[:i]
		}
	}
	return cut
}

// Exceeds reports whether the combined estimated token count of the given
// texts is over maxTokens. Used to warn when an assembled context is likely
// to crowd out the model's output budget.
func Exceeds(maxTokens int, texts ...string) bool {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total > maxTokens
}
