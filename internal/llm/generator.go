// Package llm wraps the Eino chat model with the two roles the answer
// pipeline needs: a generator that drafts grounded answers from retrieved
// context, and a judge that scores those answers. Both are thin, stateless
// wrappers — provider selection and transport live in the provider package.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// FailedAnswer is the placeholder answer recorded when generation fails.
// The pipeline still evaluates it so the attempt is scored like any other.
const FailedAnswer = "Error: Could not generate response."

// generatorSystemPrompt establishes the generator's persona and grounding
// rules. The model must answer strictly from the supplied context and cite
// the numbered source blocks it drew from.
const generatorSystemPrompt = `You are a meticulous legal research assistant.

Answer the user's question using ONLY the information in the provided context.
The context consists of numbered excerpts from legal references, case history,
and client case files.

Rules you must follow:
- Base every statement on the context. If the context does not contain the
  answer, say so plainly instead of guessing.
- Cite the excerpts you rely on inline using their labels, e.g. [SOURCE 2].
- Quote statutes and case holdings precisely; do not paraphrase legal tests
  in ways that change their meaning.
- Do not offer legal advice or predictions beyond what the sources support.
- Be concise and structured. Lead with the direct answer, then the supporting
  reasoning.`

// Generator drafts answers to legal questions from retrieved context.
// It is safe for concurrent use.
type Generator struct {
	model model.BaseChatModel
}

// NewGenerator wraps a chat model as an answer generator.
func NewGenerator(m model.BaseChatModel) *Generator {
	return &Generator{model: m}
}

// Generate produces an answer to question grounded in contextBlock. When
// feedback is non-empty (a retry after a failed evaluation), it is appended
// to the prompt so the model can correct the previous attempt.
func (g *Generator) Generate(ctx context.Context, question, contextBlock, feedback string) (string, error) {
	var user strings.Builder
	user.WriteString("CONTEXT:\n")
	user.WriteString(contextBlock)
	user.WriteString("\n\nQUESTION:\n")
	user.WriteString(question)
	if feedback != "" {
		user.WriteString("\n\nPREVIOUS FEEDBACK TO FIX:\n")
		user.WriteString(feedback)
	}

	messages := []*schema.Message{
		schema.SystemMessage(generatorSystemPrompt),
		schema.UserMessage(user.String()),
	}

	resp, err := g.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("llm: generation failed: %w", err)
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", fmt.Errorf("llm: model returned an empty answer")
	}
	return answer, nil
}
