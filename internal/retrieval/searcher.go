// Package retrieval implements the query side of the pipeline: embedding a
// query once, fanning the search out across the configured collections, and
// ranking the merged results into an assembled context string.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casefile-ai/lexrag/internal/logging"
	"github.com/casefile-ai/lexrag/internal/rag"
)

// ErrEmbedding is returned by Search when the query itself could not be
// embedded. No collection was searched in that case; callers degrade to the
// no-context outcome rather than failing the request.
var ErrEmbedding = errors.New("retrieval: query embedding failed")

// Request describes one search across the knowledge collections.
type Request struct {
	// Query is the user's question text.
	Query string

	// Collections is the set of collections to search. Empty means all.
	Collections []string

	// TopK is the per-collection result count. Zero uses the searcher default.
	// The merged result may hold up to TopK * len(Collections) chunks before
	// ranking truncates it.
	TopK int

	// Filters adds metadata equality constraints to every collection query.
	Filters map[string]string

	// ClientCaseID scopes searches of the client collection to one case.
	// It is ignored for the law and past-cases collections.
	ClientCaseID string
}

// Searcher embeds a query and fans it out across collections, merging the
// per-collection results. Collection failures are partial: a failed
// collection is logged and skipped while the others still contribute.
type Searcher struct {
	// embedder converts the query text to a dense vector.
	embedder rag.Embedder

	// store performs the per-collection vector searches.
	store rag.VectorStore

	// defaultTopK is the per-collection result count when a request passes 0.
	defaultTopK int
}

// NewSearcher constructs a Searcher from the given Embedder and VectorStore.
func NewSearcher(embedder rag.Embedder, store rag.VectorStore, defaultTopK int) (*Searcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("retrieval: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Searcher{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Search embeds the query once and queries each requested collection,
// merging all results. Merge order is unspecified; ranking re-sorts.
//
// If the query embedding fails, Search returns ErrEmbedding (wrapped) and no
// chunks — that is the only error this method returns. A single collection's
// failure skips that collection and keeps going.
func (s *Searcher) Search(ctx context.Context, req *Request) ([]rag.Chunk, error) {
	log := logging.FromContext(ctx)

	collections := req.Collections
	if len(collections) == 0 {
		collections = rag.AllCollections()
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	embeddings, err := s.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector", ErrEmbedding)
	}
	vector := embeddings[0]

	var merged []rag.Chunk
	for _, collection := range collections {
		filter := scopedFilter(collection, req.Filters, req.ClientCaseID)

		chunks, err := s.store.Query(ctx, collection, vector, topK, filter)
		if err != nil {
			log.Warn("retrieval: collection query failed, skipping",
				slog.String("collection", collection),
				slog.Any("error", err),
			)
			continue
		}
		merged = append(merged, chunks...)
	}

	return merged, nil
}

// scopedFilter returns the filter to apply for one collection. When a client
// case ID is present and the target is the client collection, an equality
// constraint on the scope key is added so one client's documents are never
// returned for another client's query. The input map is copied, never
// mutated — the same Filters map is reused across collections.
func scopedFilter(collection string, filters map[string]string, clientCaseID string) map[string]string {
	if collection != rag.CollectionClient || clientCaseID == "" {
		return filters
	}
	scoped := make(map[string]string, len(filters)+1)
	for k, v := range filters {
		scoped[k] = v
	}
	scoped[rag.ScopeKey] = clientCaseID
	return scoped
}
