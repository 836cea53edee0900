package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
  max_tokens: 4096
  temperature: 0.2
  ollama:
    host: http://ollama.internal:11434
    model: llama3.1
judge:
  model: llama3.1
embedding:
  provider: ollama
  model: mxbai-embed-large
  dimensions: 1024
qdrant:
  host: qdrant.internal
  port: 6334
retrieval:
  top_k: 5
  max_retries: 3
  similarity_threshold: 0.75
logging:
  level: debug
  format: text
query_log:
  db_path: /var/lib/lexrag/queries.db
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"OLLAMA_HOST", "OLLAMA_MODEL", "JUDGE_MODEL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS",
		"QDRANT_HOST", "QDRANT_PORT",
		"RETRIEVAL_TOP_K", "RETRIEVAL_MAX_RETRIES", "RETRIEVAL_SIMILARITY_THRESHOLD",
		"LOG_LEVEL", "LOG_FORMAT", "LEXRAG_QUERYLOG_DB",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":                 "ollama",
		"MODEL_MAX_TOKENS":               "4096",
		"MODEL_TEMPERATURE":              "0.2",
		"OLLAMA_HOST":                    "http://ollama.internal:11434",
		"OLLAMA_MODEL":                   "llama3.1",
		"JUDGE_MODEL":                    "llama3.1",
		"EMBEDDING_PROVIDER":             "ollama",
		"EMBEDDING_MODEL":                "mxbai-embed-large",
		"EMBEDDING_DIMENSIONS":           "1024",
		"QDRANT_HOST":                    "qdrant.internal",
		"QDRANT_PORT":                    "6334",
		"RETRIEVAL_TOP_K":                "5",
		"RETRIEVAL_MAX_RETRIES":          "3",
		"RETRIEVAL_SIMILARITY_THRESHOLD": "0.75",
		"LOG_LEVEL":                      "debug",
		"LOG_FORMAT":                     "text",
		"LEXRAG_QUERYLOG_DB":             "/var/lib/lexrag/queries.db",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
retrieval:
  max_retries: 9
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env vars BEFORE loading — they should NOT be overwritten.
	t.Setenv("MODEL_PROVIDER", "gemini")
	t.Setenv("RETRIEVAL_MAX_RETRIES", "3")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "gemini" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "gemini", got)
	}
	if got := os.Getenv("RETRIEVAL_MAX_RETRIES"); got != "3" {
		t.Errorf("RETRIEVAL_MAX_RETRIES: expected env override %q, got %q", "3", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFloatStr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float64
		want string
	}{
		{0.0, ""},
		{0.75, "0.75"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float64Str(tt.in); got != tt.want {
			t.Errorf("float64Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
