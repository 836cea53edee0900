// Package audit records CLI command invocations as structured log entries:
// the command, where configuration came from, and the relevant environment.
// Secret values are reduced to "set"/"unset" before they reach the log.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// auditedEnv is the ordered list of environment variables captured on every
// command start. Entries flagged secret are redacted to presence only.
var auditedEnv = []struct {
	key    string
	secret bool
}{
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"AWS_REGION", false},
	{"BEDROCK_MODEL_ID", false},
	{"JUDGE_MODEL", false},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_API_KEY", true},
	{"RETRIEVAL_TOP_K", false},
	{"RETRIEVAL_MAX_RETRIES", false},
	{"LEXRAG_API_KEY", true},
	{"LEXRAG_QUERYLOG_DB", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// secretKeys is derived from auditedEnv plus keys that never appear in the
// audit list but may be echoed elsewhere.
var secretKeys = func() map[string]bool {
	m := map[string]bool{
		"AWS_SECRET_ACCESS_KEY": true,
		"AWS_SESSION_TOKEN":     true,
	}
	for _, e := range auditedEnv {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart writes one audit entry for a starting CLI command.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditedEnv)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, e := range auditedEnv {
		attrs = append(attrs, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
	}

	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns a log-safe rendering of an env var: "set"/"unset" for
// secrets, the value (or "unset") otherwise.
func SanitiseKey(key, value string) string {
	if secretKeys[key] {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath maps an empty path to "none" and folds the home
// directory into "~" so logs do not leak usernames.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
