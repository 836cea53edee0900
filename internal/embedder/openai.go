package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OpenAIEmbedder calls the OpenAI embeddings REST API. With Azure mode on it
// instead targets an Azure OpenAI deployment, which uses a different URL
// layout and an api-key header rather than a Bearer token.
type OpenAIEmbedder struct {
	cfg  OpenAIConfig
	http *http.Client
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" for OpenAI proper, or
	// "https://<resource>.openai.azure.com/openai" for Azure.
	BaseURL string
	// APIKey authenticates the request.
	APIKey string
	// Model names the embedding model, e.g. "text-embedding-3-small".
	// Under Azure this is the deployment name.
	Model string
	// Dimensions requests a specific output vector length; 0 keeps the
	// model default.
	Dimensions int
	// Azure switches to Azure OpenAI auth and URL conventions.
	Azure bool
	// APIVersion is the api-version query parameter for Azure requests.
	APIVersion string
}

// NewOpenAIEmbedder returns an embedder for the configured OpenAI-compatible
// endpoint. The embedder is safe for concurrent use.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		cfg:  *cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type openaiEmbedResponse struct {
	Data  []openaiEmbedding `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// endpoint builds the request URL. Azure routes per deployment and requires
// an api-version parameter.
func (e *OpenAIEmbedder) endpoint() string {
	if e.cfg.Azure {
		return e.cfg.BaseURL + "/deployments/" + e.cfg.Model + "/embeddings?api-version=" + e.cfg.APIVersion
	}
	return e.cfg.BaseURL + "/embeddings"
}

func (e *OpenAIEmbedder) authHeaders() map[string]string {
	if e.cfg.Azure {
		return map[string]string{"api-key": e.cfg.APIKey}
	}
	return map[string]string{"Authorization": "Bearer " + e.cfg.APIKey}
}

// Embed vectorises texts in one batch call. The API is free to return items
// in any order, so results are placed by their reported index before being
// returned parallel to texts.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	in := openaiEmbedRequest{Input: texts, Model: e.cfg.Model}
	if e.cfg.Dimensions > 0 {
		in.Dimensions = e.cfg.Dimensions
	}

	var out openaiEmbedResponse
	status, err := postJSON(ctx, e.http, e.endpoint(), e.authHeaders(), in, &out)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	if status < 200 || status >= 300 {
		if out.Error != nil {
			return nil, fmt.Errorf("openai embedder: %s", out.Error.Message)
		}
		return nil, fmt.Errorf("openai embedder: HTTP %d", status)
	}

	if got := len(out.Data); got != len(texts) {
		return nil, fmt.Errorf("openai embedder: sent %d texts, received %d embeddings", len(texts), got)
	}

	vecs := make([][]float32, len(texts))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: embedding index %d outside batch of %d", item.Index, len(texts))
		}
		vecs[item.Index] = item.Embedding
	}
	return vecs, nil
}
