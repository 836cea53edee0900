package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelFragments appear in the names of chat/completion models that are
// sometimes mistaken for embedding models. A fuzzy match here only triggers a
// warning, never an error.
var chatModelFragments = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen",
	"solar", "vicuna", "falcon", "yi-",
}

func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, frag := range chatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// Validate is a startup pre-flight for the embedding configuration. Broken
// config (an azure backend with no key, an unimplemented backend) is an
// error; suspicious config (inherited backend, chat model name) only warns.
// Running it before constructing the embedder or the vector store gives the
// operator a clear message instead of a failure on the first embed call.
func Validate(log *slog.Logger) error {
	s := resolve()

	if !s.explicit && s.backend != "ollama" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER as embedding backend",
			slog.String("backend", s.backend),
			slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/azure) to be explicit"),
		)
	}

	switch s.backend {
	case "openai":
		if or(s.apiKey, os.Getenv("OPENAI_API_KEY")) == "" {
			return fmt.Errorf("embedder: no OpenAI API key found, set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}

	case "azure":
		if or(s.apiKey, os.Getenv("AZURE_OPENAI_API_KEY")) == "" {
			return fmt.Errorf("embedder: no Azure API key found, set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if or(s.endpoint, os.Getenv("AZURE_OPENAI_ENDPOINT")) == "" {
			return fmt.Errorf("embedder: no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}

	case "bedrock", "gemini":
		return fmt.Errorf("embedder: %s embedding is not yet implemented, set EMBEDDING_PROVIDER to ollama, openai, or azure", s.backend)
	}

	if s.model != "" && looksLikeChatModel(s.model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, embeddings will likely be poor or broken",
			slog.String("model", s.model),
			slog.String("hint", "use a dedicated embedding model e.g. mxbai-embed-large, text-embedding-3-small"),
		)
	}

	return nil
}
