package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/casefile-ai/lexrag/internal/rag"
)

// DefaultContextChunks is the number of ranked chunks assembled into the
// generation context and the cap on the formatted source list.
const DefaultContextChunks = 5

// Rank returns the chunks ordered by ascending distance (most similar
// first). The sort is stable: equal-distance chunks keep their merge order.
// The input slice is not modified.
//
// No distance threshold is applied here — every retrieved chunk is kept and
// relevance is controlled solely by top-N truncation at assembly time. The
// configured similarity threshold is deliberately not consulted.
func Rank(chunks []rag.Chunk) []rag.Chunk {
	ranked := make([]rag.Chunk, len(chunks))
	copy(ranked, chunks)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})
	return ranked
}

// AssembleContext formats the first topN ranked chunks into the context
// string handed to the generator. Each chunk becomes one block:
//
//	[SOURCE i] <source> (<date>)
//	Type: <chunk_type>        (only when chunk_type metadata is present)
//	<chunk text>
//
// Blocks are 1-indexed and joined with a blank line. The source label falls
// back source_file → title → "Document {i}"; the date falls back
// date → effective_date → "Unknown Date".
func AssembleContext(ranked []rag.Chunk, topN int) string {
	if topN <= 0 {
		topN = DefaultContextChunks
	}
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	blocks := make([]string, 0, len(ranked))
	for i, c := range ranked {
		source := c.Metadata.First(fmt.Sprintf("Document %d", i+1), "source_file", "title")
		date := c.Metadata.First("Unknown Date", "date", "effective_date")

		var b strings.Builder
		fmt.Fprintf(&b, "[SOURCE %d] %s (%s)\n", i+1, source, date)
		if chunkType, ok := c.Metadata["chunk_type"]; ok {
			fmt.Fprintf(&b, "Type: %s\n", chunkType)
		}
		b.WriteString(c.Text)
		b.WriteString("\n")
		blocks = append(blocks, b.String())
	}

	return strings.Join(blocks, "\n")
}

// Source is one citation entry in a response's source list.
type Source struct {
	// ID is the 1-based position of the source in the ranked context.
	ID int `json:"id"`
	// Title is the human-readable document label.
	Title string `json:"title"`
	// Date is the document date, or "Unknown" when absent.
	Date string `json:"date"`
	// Type is the document type, defaulting to "Document".
	Type string `json:"type"`
}

// FormatSources derives the citation list for a response from the ranked
// chunks, capped at limit entries. The title falls back source_title →
// title → source_file → "Unknown"; the date date → effective_date →
// "Unknown"; the type doc_type → "Document".
func FormatSources(ranked []rag.Chunk, limit int) []Source {
	if limit <= 0 {
		limit = DefaultContextChunks
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	sources := make([]Source, 0, len(ranked))
	for i, c := range ranked {
		sources = append(sources, Source{
			ID:    i + 1,
			Title: c.Metadata.First("Unknown", "source_title", "title", "source_file"),
			Date:  c.Metadata.First("Unknown", "date", "effective_date"),
			Type:  c.Metadata.First("Document", "doc_type"),
		})
	}
	return sources
}
