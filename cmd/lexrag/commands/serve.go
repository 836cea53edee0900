package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/casefile-ai/lexrag/internal/analytics"
	"github.com/casefile-ai/lexrag/internal/logging"
	"github.com/casefile-ai/lexrag/internal/server"
	"github.com/casefile-ai/lexrag/internal/store"
	"github.com/casefile-ai/lexrag/internal/tracing"
)

// NewServeCmd constructs the `lexrag serve` command, which starts the HTTP
// server exposing the query pipeline, analytics, and query history.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the LexRAG HTTP server",
		Long: `Start the LexRAG HTTP server on localhost.

The server exposes:
  POST /api/query       answer a legal question
  POST /api/analytics   generate a case report
  GET  /api/query-logs  recent query history
  GET  /api/health      liveness
  GET  /api/ready       dependency readiness (qdrant, embedder, llm)
  GET  /metrics         Prometheus metrics

Set LEXRAG_API_KEY to require Bearer authentication on the /api routes.

Examples:
  lexrag serve
  lexrag serve --port 9090
  MODEL_PROVIDER=azure lexrag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", modelBackend()))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				tracing.Enable(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			p, cleanup, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer cleanup()

			engine, err := analytics.NewEngine(p.store, p.searcher, p.chatModel)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Open the query log. LEXRAG_QUERYLOG_DB overrides the default path
			// (~/.lexrag/queries.db). Set to "disabled" to turn logging off.
			var queryLog store.QueryLog
			dbPath := os.Getenv("LEXRAG_QUERYLOG_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("query log: could not resolve default DB path, disabling", slog.Any("error", err))
						dbPath = ""
					}
				}
				if dbPath != "" {
					ql, qlErr := store.Open(dbPath)
					if qlErr != nil {
						log.Warn("query log: failed to open, disabling", slog.Any("error", qlErr))
					} else {
						queryLog = ql
						defer func() { _ = ql.Close() }()
						log.Info("query log opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("query log disabled via LEXRAG_QUERYLOG_DB=disabled")
			}

			pingers := []server.Pinger{
				server.NewQdrantPinger(p.store.Client()),
				server.NewEmbedderPinger(p.embedder),
				server.NewLLMPinger(p.chatModel, modelBackend()),
			}

			srv, err := server.New(p.orch, engine, queryLog, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("LEXRAG_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
