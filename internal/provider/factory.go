package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// constructors maps each backend to its ChatModel builder.
var constructors = map[Backend]func(context.Context, *Config) (model.BaseChatModel, error){
	BackendOllama:  newOllama,
	BackendOpenAI:  newOpenAI,
	BackendAzure:   newAzure,
	BackendBedrock: newBedrock,
	BackendGemini:  newGemini,
}

// NewFromEnv builds the generation ChatModel from the environment.
// MODEL_PROVIDER picks the backend; credentials come from each provider's
// native variables:
//
//	MODEL_PROVIDER              = ollama | openai | azure | bedrock | gemini (default: ollama)
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o)
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Bedrock: AWS credential chain (AWS_PROFILE / AWS_ACCESS_KEY_ID+AWS_SECRET_ACCESS_KEY /
//	         instance profile), AWS_REGION (default: us-east-1), BEDROCK_MODEL_ID
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-pro)
//
//	Shared:  MODEL_MAX_TOKENS (default: 4096), MODEL_TEMPERATURE (default: 0.2)
func NewFromEnv(ctx context.Context) (model.BaseChatModel, error) {
	return New(ctx, configFromEnv())
}

// NewJudgeFromEnv builds the evaluation ChatModel. It shares the generator's
// backend and credentials; a non-empty JUDGE_MODEL swaps in a different model
// name, otherwise the generation model judges its own output.
func NewJudgeFromEnv(ctx context.Context) (model.BaseChatModel, error) {
	cfg := configFromEnv()
	if judge := os.Getenv("JUDGE_MODEL"); judge != "" {
		cfg.setModel(judge)
	}
	return New(ctx, cfg)
}

func configFromEnv() *Config {
	return &Config{
		Backend: Backend(envOr("MODEL_PROVIDER", string(BackendOllama))),
		Ollama: ProviderOllama{
			Host:  envOr("OLLAMA_HOST", "http://localhost:11434"),
			Model: envOr("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  envOr("OPENAI_MODEL", "gpt-4o"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: envOr("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Bedrock: ProviderBedrock{
			AWSRegion: envOr("AWS_REGION", "us-east-1"),
			ModelID:   os.Getenv("BEDROCK_MODEL_ID"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  envOr("GEMINI_MODEL", "gemini-1.5-pro"),
		},
		Tuning: SharedTuning{
			MaxTokens:   envInt("MODEL_MAX_TOKENS", 4096),
			Temperature: envFloat32("MODEL_TEMPERATURE", 0.2),
		},
	}
}

// New builds a ChatModel from an explicit Config. Validation runs first so a
// bad config fails at startup, not on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	build, ok := constructors[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, azure, bedrock, gemini)", cfg.Backend)
	}
	return build(ctx, cfg)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
