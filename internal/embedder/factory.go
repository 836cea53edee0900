package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/casefile-ai/lexrag/internal/rag"
)

// Per-backend model defaults. Bedrock and Gemini are listed for the error
// messages only until their embedders exist.
const (
	defaultOllamaModel  = "mxbai-embed-large"
	defaultOpenAIModel  = "text-embedding-3-small"
	defaultBedrockModel = "amazon.titan-embed-text-v2"
	defaultGeminiModel  = "text-embedding-004"

	// mxbai-embed-large emits 1024-dim vectors; text-embedding-3-small 1536.
	// Other models need EMBEDDING_DIMENSIONS set explicitly.
	defaultOllamaDimensions = 1024
	defaultOpenAIDimensions = 1536
)

// settings is the embedding configuration after the env cascade has been
// applied. Embedding-specific variables win; otherwise values are inherited
// from the chat provider's configuration.
type settings struct {
	backend  string
	explicit bool // EMBEDDING_PROVIDER was set, not inherited
	model    string
	apiKey   string
	endpoint string
	dims     int
}

// resolve reads the environment once. The cascade:
//
//  1. EMBEDDING_PROVIDER, or MODEL_PROVIDER when unset (default "ollama")
//  2. EMBEDDING_MODEL over the backend's default model
//  3. EMBEDDING_API_KEY over the chat provider's key
//  4. EMBEDDING_ENDPOINT over the chat provider's endpoint
//  5. EMBEDDING_DIMENSIONS over the backend's default vector size
func resolve() settings {
	s := settings{
		backend:  os.Getenv("EMBEDDING_PROVIDER"),
		model:    os.Getenv("EMBEDDING_MODEL"),
		apiKey:   os.Getenv("EMBEDDING_API_KEY"),
		endpoint: os.Getenv("EMBEDDING_ENDPOINT"),
		dims:     envInt("EMBEDDING_DIMENSIONS", 0),
	}
	s.explicit = s.backend != ""
	if !s.explicit {
		s.backend = envOr("MODEL_PROVIDER", "ollama")
	}
	return s
}

// DefaultDimensions reports the vector size the resolved backend will emit,
// honouring an EMBEDDING_DIMENSIONS override. Use this when sizing a vector
// store collection instead of hardcoding a number.
func DefaultDimensions(backend string) int {
	if v := envInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if backend == "ollama" {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// NewFromEnv builds a rag.Embedder from the environment cascade described on
// resolve.
func NewFromEnv() (rag.Embedder, error) {
	s := resolve()

	switch s.backend {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  or(s.endpoint, envOr("OLLAMA_HOST", "http://localhost:11434")),
			Model: or(s.model, defaultOllamaModel),
		}), nil

	case "openai":
		key := or(s.apiKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    or(s.endpoint, "https://api.openai.com/v1"),
			APIKey:     key,
			Model:      or(s.model, defaultOpenAIModel),
			Dimensions: or(s.dims, defaultOpenAIDimensions),
		}), nil

	case "azure":
		key := or(s.apiKey, os.Getenv("AZURE_OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := or(s.endpoint, os.Getenv("AZURE_OPENAI_ENDPOINT"))
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     key,
			Model:      or(s.model, defaultOpenAIModel),
			Dimensions: or(s.dims, defaultOpenAIDimensions),
			Azure:      true,
			APIVersion: envOr("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case "bedrock":
		return nil, fmt.Errorf("embedder: bedrock embedding is not yet implemented (model: %s)", defaultBedrockModel)

	case "gemini":
		return nil, fmt.Errorf("embedder: gemini embedding is not yet implemented (model: %s)", defaultGeminiModel)

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, bedrock, gemini)", s.backend)
	}
}

// or returns v unless it is the zero value, in which case it returns fallback.
func or[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

func envOr(key, fallback string) string {
	return or(os.Getenv(key), fallback)
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
