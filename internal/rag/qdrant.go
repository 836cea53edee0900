package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collections is the set of collections to ensure at startup.
	Collections []string

	// VectorSize is the dimensionality of the embeddings stored in the
	// collections.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. One gRPC
// client serves all collections; there is no ambient global — callers
// construct the store once and inject it where needed.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring every configured
// collection exists (creating missing ones), and returns a ready-to-use
// VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if len(cfg.Collections) == 0 {
		cfg.Collections = AllCollections()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	for _, name := range cfg.Collections {
		if err := store.ensureCollection(ctx, name); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// Client exposes the underlying gRPC client for health probes.
func (s *QdrantStore) Client() *qdrant.Client {
	return s.client
}

// ensureCollection creates the named collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}

	return nil
}

// Query performs a cosine similarity search in the named collection and
// returns the top-k results with metadata filter constraints applied.
func (s *QdrantStore) Query(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]Chunk, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search in %q failed: %w", collection, err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		c := chunkFromPayload(r.Id.GetUuid(), r.Payload)
		// Qdrant reports cosine similarity (higher = closer). The pipeline
		// ranks by distance ascending, so convert and clamp at zero.
		c.Distance = float64(1 - r.Score)
		if c.Distance < 0 {
			c.Distance = 0
		}
		c.Collection = collection
		chunks = append(chunks, c)
	}

	return chunks, nil
}

// Fetch returns up to limit chunks matching the metadata filter, with no
// similarity search. Distance is zero on fetched chunks.
func (s *QdrantStore) Fetch(ctx context.Context, collection string, filter map[string]string, limit int) ([]Chunk, error) {
	results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         buildFilter(filter),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: fetch from %q failed: %w", collection, err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		c := chunkFromPayload(r.Id.GetUuid(), r.Payload)
		c.Collection = collection
		chunks = append(chunks, c)
	}

	return chunks, nil
}

// Upsert stores or updates a batch of chunks with their embeddings.
// embeddings[i] must be the vector for chunks[i].
func (s *QdrantStore) Upsert(ctx context.Context, collection string, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("qdrant: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		payload := map[string]interface{}{
			"text": c.Text,
		}
		for k, v := range c.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q failed: %w", collection, err)
	}

	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// buildFilter converts an equality filter map into a Qdrant must-match
// filter. Returns nil for an empty map so unfiltered queries stay unfiltered.
func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: must}
}

// chunkFromPayload extracts the chunk text and metadata from a point payload.
// The "text" key carries the chunk body; every other key is metadata.
func chunkFromPayload(id string, payload map[string]*qdrant.Value) Chunk {
	c := Chunk{
		ID:       id,
		Metadata: make(Metadata),
	}
	for k, v := range payload {
		if k == "text" {
			c.Text = v.GetStringValue()
			continue
		}
		c.Metadata[k] = v.GetStringValue()
	}
	return c
}
