// Package tracing hooks Langfuse into the LLM call path. When enabled, every
// generation and evaluation call shows up as a trace, so answer-quality
// regressions can be tied back to the exact prompts involved.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

const defaultHost = "http://localhost:3000"

// Setup builds the Langfuse callback handler when both LANGFUSE_PUBLIC_KEY
// and LANGFUSE_SECRET_KEY are present; otherwise tracing stays off and the
// bool is false. The flush function must run before process exit or buffered
// traces are lost.
func Setup() (callbacks.Handler, func(), bool) {
	public := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secret := os.Getenv("LANGFUSE_SECRET_KEY")
	if public == "" || secret == "" {
		return nil, nil, false
	}

	cfg := &langfuse.Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: public,
		SecretKey: secret,
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}

	handler, flush := langfuse.NewLangfuseHandler(cfg)
	return handler, flush, true
}

// Enable registers the handler globally; from then on every eino model call
// is traced.
func Enable(handler callbacks.Handler) {
	callbacks.AppendGlobalHandlers(handler)
}
