// Package rag defines the data types and interfaces shared by the retrieval
// pipeline: embedded chunks, metadata resolution, vector storage, and query
// embedding. Concrete backends (Qdrant, Ollama, OpenAI) satisfy these
// interfaces so the orchestration layer never depends on a specific vendor.
package rag

import (
	"context"
)

// Metadata holds the string-keyed attributes attached to a stored chunk
// (source file, document type, dates, client case ID, chunk position).
type Metadata map[string]string

// First returns the value of the first key in keys that is present and
// non-empty, or fallback if none is. This is the single resolution point for
// all metadata fallback chains (source labels, dates, document types), so
// each precedence order lives at one call site instead of being spread
// across ad hoc map lookups.
func (m Metadata) First(fallback string, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != "" {
			return v
		}
	}
	return fallback
}

// Chunk is one retrieved span of document text with its similarity distance.
// Chunks are immutable once produced by a search; they live for the duration
// of a single query.
type Chunk struct {
	// ID is the unique identifier of the stored point.
	ID string

	// Text is the raw chunk text.
	Text string

	// Metadata holds the chunk's stored attributes.
	Metadata Metadata

	// Distance is the similarity distance to the query vector. Lower is more
	// similar; the value is always >= 0.
	Distance float64

	// Collection is the name of the collection this chunk came from.
	Collection string
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the interface for per-collection vector search and storage.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Query performs a nearest-neighbor search in the named collection.
	// filter adds equality constraints on metadata keys; a nil or empty
	// filter matches everything. Results are ordered by the store.
	Query(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]Chunk, error)

	// Fetch returns up to limit chunks matching the metadata filter without
	// a similarity search. Used to load a client case's documents wholesale.
	Fetch(ctx context.Context, collection string, filter map[string]string, limit int) ([]Chunk, error)

	// Upsert stores or updates a batch of chunks with their pre-computed
	// embeddings. embeddings[i] is the vector for chunks[i].
	Upsert(ctx context.Context, collection string, chunks []Chunk, embeddings [][]float32) error

	// Close releases any resources held by the store.
	Close() error
}
