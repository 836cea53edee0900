// Package ingestion implements the document ingestion pipeline.
// It reads local legal documents, chunks the content, embeds each chunk, and
// upserts the results into the vector store collections. Law references get
// section-aware chunking so statutes stay intact; everything else is split
// with an overlapping sliding window.
// This pipeline is invoked by the `lexrag ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/casefile-ai/lexrag/internal/rag"
)

// chunkNamespace seeds deterministic chunk IDs so re-ingesting the same file
// overwrites its previous points instead of duplicating them.
var chunkNamespace = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")

// Source describes one document to be ingested.
type Source struct {
	// Path is the local file path (.txt or .md).
	Path string

	// Collection is the target collection (law_reference_db, case_history_db,
	// client_cases_db).
	Collection string

	// ClientCaseID tags client documents with their case. Required when
	// Collection is the client collection, ignored otherwise.
	ClientCaseID string

	// Metadata carries caller-supplied overrides merged over the inferred
	// document metadata.
	Metadata map[string]string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive
	// chunks. Defaults to 100 if zero or out of range.
	ChunkOverlap int
}

// Pipeline orchestrates the read → chunk → embed → upsert flow for a set of
// document sources.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// sectionPattern matches statute section boundaries at line start: "Article
// 12", "Section 3.1", "§ 42" and roman-numeral variants.
var sectionPattern = regexp.MustCompile(`(?m)^(?:Article|Section|§)\s+[0-9IVXLCivxlc]+[a-z]?(?:[.\-][0-9a-z]+)*`)

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	// Overlap beyond half the chunk size would stall the window's forward
	// progress, so out-of-range values reset to the default ratio.
	if cfg.ChunkOverlap <= 0 || cfg.ChunkOverlap >= cfg.ChunkSize/2 {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}, nil
}

// Ingest reads, chunks, embeds, and stores all provided sources.
// It processes sources sequentially and returns the first error encountered.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	for _, src := range sources {
		if err := validateSource(&src); err != nil {
			return err
		}

		progress(fmt.Sprintf("reading %s", src.Path))
		raw, err := os.ReadFile(src.Path)
		if err != nil {
			return fmt.Errorf("ingestion: failed to read %s: %w", src.Path, err)
		}

		content := strings.TrimSpace(string(raw))
		if content == "" {
			return fmt.Errorf("ingestion: %s is empty", src.Path)
		}

		pieces := p.split(content, src.Collection)
		progress(fmt.Sprintf("chunked %s into %d chunks", src.Path, len(pieces)))

		meta := InferMetadata(src.Path, src.Collection)
		chunks := make([]rag.Chunk, 0, len(pieces))
		texts := make([]string, 0, len(pieces))
		for i, piece := range pieces {
			md := meta.toMap()
			md["chunk_index"] = fmt.Sprintf("%d", i)
			md["chunk_total"] = fmt.Sprintf("%d", len(pieces))
			if piece.chunkType != "" {
				md["chunk_type"] = piece.chunkType
			}
			if src.ClientCaseID != "" {
				md[rag.ScopeKey] = src.ClientCaseID
			}
			for k, v := range src.Metadata {
				if v != "" {
					md[k] = v
				}
			}

			chunks = append(chunks, rag.Chunk{
				ID:         chunkID(src.Path, i),
				Text:       piece.text,
				Metadata:   md,
				Collection: src.Collection,
			})
			texts = append(texts, piece.text)
		}

		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("ingestion: embedding failed for %s: %w", src.Path, err)
		}

		if err := p.store.Upsert(ctx, src.Collection, chunks, embeddings); err != nil {
			return fmt.Errorf("ingestion: upsert failed for %s: %w", src.Path, err)
		}

		progress(fmt.Sprintf("ingested %d chunks from %s into %s", len(chunks), src.Path, src.Collection))
	}

	return nil
}

// validateSource checks a source before any I/O happens.
func validateSource(src *Source) error {
	switch src.Collection {
	case rag.CollectionLaw, rag.CollectionCases, rag.CollectionClient:
	default:
		return fmt.Errorf("ingestion: unknown collection %q for %s", src.Collection, src.Path)
	}
	if src.Collection == rag.CollectionClient && src.ClientCaseID == "" {
		return fmt.Errorf("ingestion: client document %s requires a client case id", src.Path)
	}
	switch ext := strings.ToLower(filepath.Ext(src.Path)); ext {
	case ".txt", ".md":
	default:
		return fmt.Errorf("ingestion: unsupported file type %q for %s (want .txt or .md)", ext, src.Path)
	}
	return nil
}

// piece is one chunk of a document before metadata is attached.
type piece struct {
	text      string
	chunkType string
}

// split chunks content per the collection's strategy: law references are cut
// on statute section boundaries when the text has them, everything else (and
// unstructured law text) uses the sliding window.
func (p *Pipeline) split(content, collection string) []piece {
	if collection == rag.CollectionLaw {
		if sections := p.splitSections(content); len(sections) > 0 {
			return sections
		}
	}

	windows := p.window(content)
	pieces := make([]piece, 0, len(windows))
	for _, w := range windows {
		pieces = append(pieces, piece{text: w})
	}
	return pieces
}

// splitSections cuts law text at Article/Section/§ headings. Each section
// becomes one chunk tagged law_section; oversized sections fall back to the
// window chunker but keep the tag. Returns nil when no headings are found.
func (p *Pipeline) splitSections(content string) []piece {
	locs := sectionPattern.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return nil
	}

	var bounds []int
	if locs[0][0] > 0 {
		bounds = append(bounds, 0)
	}
	for _, l := range locs {
		bounds = append(bounds, l[0])
	}
	bounds = append(bounds, len(content))

	var pieces []piece
	for i := 0; i+1 < len(bounds); i++ {
		section := strings.TrimSpace(content[bounds[i]:bounds[i+1]])
		if section == "" {
			continue
		}
		if len(section) <= p.cfg.ChunkSize {
			pieces = append(pieces, piece{text: section, chunkType: "law_section"})
			continue
		}
		for _, w := range p.window(section) {
			pieces = append(pieces, piece{text: w, chunkType: "law_section"})
		}
	}
	return pieces
}

// window splits text into overlapping chunks of cfg.ChunkSize characters,
// preferring to cut at a word boundary near the end of each window.
func (p *Pipeline) window(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	size := p.cfg.ChunkSize
	overlap := p.cfg.ChunkOverlap

	var chunks []string
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}
		// Back up to the nearest space so words survive the cut. Give up and
		// hard-cut if the window has no space in its final fifth.
		cut := end
		for cut > start+size-size/5 && text[cut-1] != ' ' {
			cut--
		}
		if text[cut-1] != ' ' {
			cut = end
		}
		chunks = append(chunks, strings.TrimSpace(text[start:cut]))
		start = cut - overlap
		if start < 0 {
			start = 0
		}
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// chunkID generates a deterministic UUID for a document chunk based on its
// source path and chunk index, so re-ingestion updates points in place.
func chunkID(path string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", path, index))).String()
}
