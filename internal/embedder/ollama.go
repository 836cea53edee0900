package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OllamaEmbedder calls a local Ollama instance's /api/embed endpoint.
// Ollama is unauthenticated, so only host and model need configuring.
type OllamaEmbedder struct {
	host  string
	model string
	http  *http.Client
}

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL, e.g. "http://localhost:11434".
	Host string
	// Model names the embedding model, e.g. "mxbai-embed-large".
	Model string
}

// NewOllamaEmbedder returns an embedder backed by the configured Ollama host.
// The embedder is safe for concurrent use.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:  cfg.Host,
		model: cfg.Model,
		// Local models can be slow on first load, so the timeout is generous.
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed vectorises texts in one batch call. The result is parallel to texts.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	in := ollamaEmbedRequest{Model: e.model, Input: texts}

	var out ollamaEmbedResponse
	status, err := postJSON(ctx, e.http, e.host+"/api/embed", nil, in, &out)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	if status < 200 || status >= 300 {
		if out.Error != "" {
			return nil, fmt.Errorf("ollama embedder: %s", out.Error)
		}
		return nil, fmt.Errorf("ollama embedder: HTTP %d", status)
	}

	if got := len(out.Embeddings); got != len(texts) {
		return nil, fmt.Errorf("ollama embedder: sent %d texts, received %d embeddings", len(texts), got)
	}
	return out.Embeddings, nil
}
