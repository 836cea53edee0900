package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"

	"github.com/casefile-ai/lexrag/internal/embedder"
	"github.com/casefile-ai/lexrag/internal/llm"
	"github.com/casefile-ai/lexrag/internal/orchestrator"
	"github.com/casefile-ai/lexrag/internal/provider"
	"github.com/casefile-ai/lexrag/internal/rag"
	"github.com/casefile-ai/lexrag/internal/retrieval"
)

// pipeline bundles the long-lived collaborators shared by the query, analyze,
// and serve commands.
type pipeline struct {
	// store is the Qdrant-backed vector store over all collections.
	store *rag.QdrantStore
	// embedder turns query text into vectors.
	embedder rag.Embedder
	// searcher fans retrieval out across the configured collections.
	searcher *retrieval.Searcher
	// chatModel is the generation model.
	chatModel model.BaseChatModel
	// orch runs the full retrieve/generate/evaluate loop.
	orch *orchestrator.Orchestrator
}

// buildPipeline wires the full query pipeline from environment configuration.
// The returned cleanup function closes the vector store connection.
func buildPipeline(ctx context.Context, log *slog.Logger) (*pipeline, func(), error) {
	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", modelBackend()))

	judgeModel, err := provider.NewJudgeFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise judge model: %w", err)
	}

	if err := embedder.Validate(log); err != nil {
		return nil, nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	store, err := buildStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = store.Close() }

	topK := getEnvInt("RETRIEVAL_TOP_K", 5)
	searcher, err := retrieval.NewSearcher(emb, store, topK)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	orch, err := orchestrator.New(
		searcher,
		llm.NewGenerator(chatModel),
		llm.NewJudge(judgeModel),
		orchestrator.Config{
			MaxRetries: getEnvInt("RETRIEVAL_MAX_RETRIES", orchestrator.DefaultMaxRetries),
			TopK:       topK,
		},
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return &pipeline{
		store:     store,
		embedder:  emb,
		searcher:  searcher,
		chatModel: chatModel,
		orch:      orch,
	}, cleanup, nil
}

// buildStore connects to Qdrant and ensures all standard collections exist.
// The vector size follows the embedding backend so collections and embedder
// always agree on dimensionality.
func buildStore(ctx context.Context) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", modelBackend())
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	return store, nil
}

// modelBackend resolves the active chat model backend name.
func modelBackend() string {
	return getEnvOrDefault("MODEL_PROVIDER", "ollama")
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
