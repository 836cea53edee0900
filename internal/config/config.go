// Package config layers lexrag configuration: defaults, then a YAML file,
// then environment variables. Env always wins, so env-only deployments need
// no file at all. The YAML file is looked up in order:
//
//  1. --config CLI flag (explicit path)
//  2. LEXRAG_CONFIG environment variable
//  3. ~/.lexrag/config.yaml
//  4. ./lexrag.yaml
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML file layout. Sections follow the pipeline: the
// generation model and its judge, the embedder, the vector store, retrieval
// tuning, and the serving/observability surface.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Judge     JudgeConfig     `yaml:"judge"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	QueryLog  QueryLogConfig  `yaml:"query_log"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ModelConfig selects and tunes the generation backend. Provider is one of
// ollama, openai, azure, bedrock, gemini; the matching sub-section supplies
// that backend's settings.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	Ollama  OllamaConfig  `yaml:"ollama"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Azure   AzureConfig   `yaml:"azure"`
	Bedrock BedrockConfig `yaml:"bedrock"`
	Gemini  GeminiConfig  `yaml:"gemini"`
}

// JudgeConfig names the evaluation model. It always runs on the generation
// backend; an empty Model means the generator judges its own answers.
type JudgeConfig struct {
	Model string `yaml:"model"`
}

type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig carries OpenAI settings. Prefer OPENAI_API_KEY over putting
// the key in a file.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type AzureConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
}

type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// RetrievalConfig tunes search fan-out and the generation retry loop.
// SimilarityThreshold is carried through configuration but not applied as a
// ranking cutoff; see the ranker.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	MaxRetries          int     `yaml:"max_retries"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// QueryLogConfig points at the SQLite query history database. The literal
// value "disabled" turns history off.
type QueryLogConfig struct {
	DBPath string `yaml:"db_path"`
}

type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// environ flattens the parsed file into env var assignments. Zero values
// render as "" and are skipped by the caller, so absent YAML keys never
// clobber anything.
func (c *Config) environ() map[string]string {
	return map[string]string{
		"MODEL_PROVIDER":                 c.Model.Provider,
		"MODEL_MAX_TOKENS":               intStr(c.Model.MaxTokens),
		"MODEL_TEMPERATURE":              float64Str(float64(c.Model.Temperature)),
		"OLLAMA_HOST":                    c.Model.Ollama.Host,
		"OLLAMA_MODEL":                   c.Model.Ollama.Model,
		"OPENAI_API_KEY":                 c.Model.OpenAI.APIKey,
		"OPENAI_MODEL":                   c.Model.OpenAI.Model,
		"AZURE_OPENAI_API_KEY":           c.Model.Azure.APIKey,
		"AZURE_OPENAI_ENDPOINT":          c.Model.Azure.Endpoint,
		"AZURE_OPENAI_DEPLOYMENT":        c.Model.Azure.Deployment,
		"AZURE_OPENAI_API_VERSION":       c.Model.Azure.APIVersion,
		"AWS_REGION":                     c.Model.Bedrock.Region,
		"BEDROCK_MODEL_ID":               c.Model.Bedrock.ModelID,
		"GOOGLE_API_KEY":                 c.Model.Gemini.APIKey,
		"GEMINI_MODEL":                   c.Model.Gemini.Model,
		"JUDGE_MODEL":                    c.Judge.Model,
		"EMBEDDING_PROVIDER":             c.Embedding.Provider,
		"EMBEDDING_MODEL":                c.Embedding.Model,
		"EMBEDDING_DIMENSIONS":           intStr(c.Embedding.Dimensions),
		"EMBEDDING_API_KEY":              c.Embedding.APIKey,
		"EMBEDDING_ENDPOINT":             c.Embedding.Endpoint,
		"QDRANT_HOST":                    c.Qdrant.Host,
		"QDRANT_PORT":                    intStr(c.Qdrant.Port),
		"QDRANT_API_KEY":                 c.Qdrant.APIKey,
		"QDRANT_TLS":                     boolStr(c.Qdrant.TLS),
		"RETRIEVAL_TOP_K":                intStr(c.Retrieval.TopK),
		"RETRIEVAL_MAX_RETRIES":          intStr(c.Retrieval.MaxRetries),
		"RETRIEVAL_SIMILARITY_THRESHOLD": float64Str(c.Retrieval.SimilarityThreshold),
		"LEXRAG_API_KEY":                 c.Server.APIKey,
		"LOG_LEVEL":                      c.Logging.Level,
		"LOG_FORMAT":                     c.Logging.Format,
		"LEXRAG_QUERYLOG_DB":             c.QueryLog.DBPath,
		"LANGFUSE_PUBLIC_KEY":            c.Tracing.PublicKey,
		"LANGFUSE_SECRET_KEY":            c.Tracing.SecretKey,
		"LANGFUSE_HOST":                  c.Tracing.Host,
	}
}

// Load parses the resolved YAML file and exports its values into the
// environment, skipping any variable the environment already sets. It returns
// the path that was loaded, or "" when no file exists anywhere in the search
// order — that is not an error.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := findConfigFile(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: parse %s: %w", path, err)
	}

	applied := 0
	for key, val := range cfg.environ() {
		if val == "" || os.Getenv(key) != "" {
			continue
		}
		os.Setenv(key, val)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// findConfigFile walks the search order and returns the first existing file.
// An explicit path short-circuits the search entirely, even when missing.
func findConfigFile(explicit string) string {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit
		}
		return ""
	}

	candidates := []string{os.Getenv("LEXRAG_CONFIG")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".lexrag", "config.yaml"))
	}
	candidates = append(candidates, "lexrag.yaml")

	for _, p := range candidates {
		if p != "" && fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float64Str renders a float compactly ("0.75", "1") and maps zero to ""
// so unset YAML numbers are skipped.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
