package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/casefile-ai/lexrag/internal/embedder"
	"github.com/casefile-ai/lexrag/internal/ingestion"
	"github.com/casefile-ai/lexrag/internal/logging"
	"github.com/casefile-ai/lexrag/internal/rag"
)

// NewIngestCmd constructs the `lexrag ingest` command, which chunks, embeds,
// and indexes documents into the vector store.
func NewIngestCmd() *cobra.Command {
	var collection string
	var caseID string
	var docType string
	var title string
	var date string
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest documents into a collection of the vector store",
		Long: `Chunk, embed, and index plain-text or markdown documents.

Law reference documents are split on statutory section headings (Article N,
Section N, § N); other documents use a sliding character window with overlap.
Document metadata (title, type, date) is inferred from the filename; explicit
flags override inference. Client documents require --case so retrieval can be
scoped to one client's matter.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  lexrag ingest --collection law_reference_db data/labor_code_2023-01-15.txt
  lexrag ingest --collection case_history_db data/cases/*.md
  lexrag ingest --collection client_cases_db --case case-2024-17 uploads/termination_letter.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if collection == "" {
				return fmt.Errorf("ingest: --collection is required")
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised",
				slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", modelBackend())))

			store, err := buildStore(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			pipeline, err := ingestion.NewPipeline(emb, store, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			// Explicit metadata flags override filename inference per source.
			overrides := map[string]string{}
			if cmd.Flags().Changed("doc-type") {
				overrides["doc_type"] = docType
			}
			if cmd.Flags().Changed("title") {
				overrides["title"] = title
			}
			if cmd.Flags().Changed("date") {
				overrides["date"] = date
			}

			sources := make([]ingestion.Source, 0, len(args))
			for _, path := range args {
				sources = append(sources, ingestion.Source{
					Path:         path,
					Collection:   collection,
					ClientCaseID: caseID,
					Metadata:     overrides,
				})
			}

			log.Info("starting ingestion",
				slog.Int("sources", len(sources)),
				slog.String("collection", collection),
			)

			if err := pipeline.Ingest(ctx, sources, func(msg string) {
				log.Info(msg)
			}); err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("sources", len(sources)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", rag.CollectionLaw, "Target collection (law_reference_db, case_history_db, client_cases_db)")
	cmd.Flags().StringVar(&caseID, "case", "", "Client case ID (required for client_cases_db)")
	cmd.Flags().StringVar(&docType, "doc-type", "", "Document type label override")
	cmd.Flags().StringVar(&title, "title", "", "Document title override")
	cmd.Flags().StringVar(&date, "date", "", "Document date override (YYYY-MM-DD)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in characters (default 1000)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Chunk overlap in characters (default chunk-size/10)")

	return cmd
}
