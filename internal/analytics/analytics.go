// Package analytics builds structured case reports from a client's documents
// combined with retrieved legal references. Each report type has its own
// instruction prompt; retrieval depth is wider than regular queries because
// reports survey a whole case rather than answer one question.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/casefile-ai/lexrag/internal/budget"
	"github.com/casefile-ai/lexrag/internal/rag"
	"github.com/casefile-ai/lexrag/internal/retrieval"
)

const (
	// reportTopK is the per-collection retrieval depth for reports. Wider
	// than the query pipeline's default because reports survey a whole case.
	reportTopK = 7

	// clientDocLimit caps how many client chunks are pulled into a report.
	clientDocLimit = 20
)

// Type enumerates the supported report types.
type Type string

const (
	// TypeChecklist produces an actionable to-do list for the case.
	TypeChecklist Type = "checklist"
	// TypeGapAnalysis finds missing documents, facts, and filings.
	TypeGapAnalysis Type = "gap_analysis"
	// TypeArgumentMapping maps claims to supporting and opposing authority.
	TypeArgumentMapping Type = "argument_mapping"
	// TypeRiskAssessment rates the legal and procedural risks of the case.
	TypeRiskAssessment Type = "risk_assessment"
	// TypeComplianceTracker tracks regulatory obligations and deadlines.
	TypeComplianceTracker Type = "compliance_tracker"
)

// AllTypes lists every supported report type, in display order.
func AllTypes() []Type {
	return []Type{
		TypeChecklist,
		TypeGapAnalysis,
		TypeArgumentMapping,
		TypeRiskAssessment,
		TypeComplianceTracker,
	}
}

// ParseType validates a user-supplied report type string.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("analytics: unknown report type %q — valid values: checklist, gap_analysis, argument_mapping, risk_assessment, compliance_tracker", s)
}

// instructions holds the per-type task prompt appended to the base system prompt.
var instructions = map[Type]string{
	TypeChecklist: `Produce a prioritized action checklist for this case.
For each item: what must be done, who typically does it, the governing rule or
precedent from the references (cite [SOURCE N]), and any deadline you can
infer from the documents. Group items as Immediate / Short-term / Ongoing.`,

	TypeGapAnalysis: `Identify what is missing from this case file.
Compare the client documents against what the cited references and comparable
cases expect: absent evidence, unfiled documents, unaddressed claims, missing
dates or signatures. For each gap, state why it matters and cite the reference
that creates the expectation [SOURCE N].`,

	TypeArgumentMapping: `Map the arguments available in this case.
For each claim or defense visible in the client documents: the argument, the
supporting authority from the references [SOURCE N], the likely counter-
argument, and the authority the other side would cite. Present each argument
as its own section.`,

	TypeRiskAssessment: `Assess the risks in this case.
For each identified risk: describe it, rate likelihood and impact as
Low/Medium/High, ground the rating in the references or comparable case
outcomes [SOURCE N], and suggest a mitigation. Order risks by severity.`,

	TypeComplianceTracker: `Build a compliance tracker for this case.
List every regulatory or procedural obligation the references impose on the
client's situation [SOURCE N], its current status based on the client
documents (met / pending / at risk / unknown), and the consequence of
non-compliance. Present the result as a table followed by notes.`,
}

// systemPrompt establishes the report writer's persona and grounding rules.
const systemPrompt = `You are a legal case analyst producing an internal work
product for the attorney handling the case.

You are given the CLIENT CASE FILE (excerpts of the client's own documents)
and REFERENCE CONTEXT (numbered excerpts of statutes and comparable cases).

Ground every statement in those materials: cite reference excerpts inline as
[SOURCE N], and attribute facts to the client documents. If the materials do
not support a conclusion, say so rather than speculate. Use clear headings.`

// Searcher retrieves scored chunks for a query.
type Searcher interface {
	Search(ctx context.Context, req *retrieval.Request) ([]rag.Chunk, error)
}

// Report is a completed analytics run.
type Report struct {
	// Type is the report type that was generated.
	Type Type `json:"type"`
	// ClientCaseID identifies the case the report covers.
	ClientCaseID string `json:"client_case_id"`
	// Content is the generated report body.
	Content string `json:"content"`
	// Sources lists the reference documents the report drew on.
	Sources []retrieval.Source `json:"sources"`
	// GeneratedAt is the UTC completion time.
	GeneratedAt time.Time `json:"generated_at"`
}

// Engine generates case reports. It is safe for concurrent use.
type Engine struct {
	store    rag.VectorStore
	searcher Searcher
	model    model.BaseChatModel
}

// NewEngine constructs an Engine. All three collaborators are required.
func NewEngine(store rag.VectorStore, searcher Searcher, chatModel model.BaseChatModel) (*Engine, error) {
	if store == nil || searcher == nil || chatModel == nil {
		return nil, fmt.Errorf("analytics: store, searcher, and model are all required")
	}
	return &Engine{store: store, searcher: searcher, model: chatModel}, nil
}

// Generate builds one report for the given case. The client's own documents
// are fetched directly by case ID; the reference collections are searched
// using the first client chunk as the query, so retrieval follows the case's
// actual subject matter without the caller writing a query.
func (e *Engine) Generate(ctx context.Context, clientCaseID string, typ Type) (*Report, error) {
	instruction, ok := instructions[typ]
	if !ok {
		return nil, fmt.Errorf("analytics: unknown report type %q", typ)
	}
	if clientCaseID == "" {
		return nil, fmt.Errorf("analytics: client case id is required")
	}

	clientChunks, err := e.store.Fetch(ctx, rag.CollectionClient,
		map[string]string{rag.ScopeKey: clientCaseID}, clientDocLimit)
	if err != nil {
		return nil, fmt.Errorf("analytics: failed to fetch client documents: %w", err)
	}
	if len(clientChunks) == 0 {
		return nil, fmt.Errorf("analytics: no documents found for client case %q", clientCaseID)
	}

	// The first client chunk, truncated, doubles as the retrieval query.
	query := budget.Truncate(clientChunks[0].Text, budget.DefaultAnalyticsQueryTokens)

	refChunks, err := e.searcher.Search(ctx, &retrieval.Request{
		Query:       query,
		Collections: rag.ReferenceCollections(),
		TopK:        reportTopK,
	})
	if err != nil {
		return nil, fmt.Errorf("analytics: reference retrieval failed: %w", err)
	}

	ranked := retrieval.Rank(refChunks)
	refContext := retrieval.AssembleContext(ranked, reportTopK)
	if refContext == "" {
		refContext = "(no matching references found)"
	}

	var caseFile strings.Builder
	for i, c := range clientChunks {
		if i > 0 {
			caseFile.WriteString("\n\n")
		}
		caseFile.WriteString(c.Text)
	}

	var user strings.Builder
	user.WriteString("CLIENT CASE FILE:\n")
	user.WriteString(caseFile.String())
	user.WriteString("\n\nREFERENCE CONTEXT:\n")
	user.WriteString(refContext)
	user.WriteString("\n\nTASK:\n")
	user.WriteString(instruction)

	resp, err := e.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(user.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("analytics: report generation failed: %w", err)
	}

	return &Report{
		Type:         typ,
		ClientCaseID: clientCaseID,
		Content:      strings.TrimSpace(resp.Content),
		Sources:      retrieval.FormatSources(ranked, retrieval.DefaultContextChunks),
		GeneratedAt:  time.Now().UTC(),
	}, nil
}
