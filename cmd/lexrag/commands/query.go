package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/casefile-ai/lexrag/internal/logging"
	"github.com/casefile-ai/lexrag/internal/orchestrator"
)

// NewQueryCmd constructs the `lexrag query` command, which answers a single
// legal question grounded in the ingested corpora.
func NewQueryCmd() *cobra.Command {
	var collections []string
	var caseID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a legal question grounded in the document corpora",
		Long: `Ask a natural language legal question.

The question is answered from the ingested corpora (statute references, case
history, and — when --case is given — that client's own documents). Every
answer is scored by an LLM judge; low-quality answers are retried with
feedback before being returned.

Examples:
  lexrag query "what is the statutory notice period for termination?"
  lexrag query --case case-2024-17 "does the termination letter comply with the labor code?"
  lexrag query --collections law_reference_db "when does the limitation period start?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			p, cleanup, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer cleanup()

			resp, err := p.orch.Process(ctx, &orchestrator.Request{
				Query:        strings.Join(args, " "),
				Collections:  collections,
				ClientCaseID: caseID,
			})
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			printQueryResponse(resp)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&collections, "collections", nil, "Collections to search (default: all)")
	cmd.Flags().StringVar(&caseID, "case", "", "Client case ID to scope client-document retrieval")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")

	return cmd
}

// printQueryResponse renders the pipeline response for a terminal.
func printQueryResponse(resp *orchestrator.QueryResponse) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Println(green("Answer:"))
	fmt.Println(resp.Answer)
	fmt.Println()

	confidence := resp.Confidence
	if confidence == "High" {
		confidence = green(confidence)
	} else {
		confidence = yellow(confidence)
	}
	fmt.Printf("%s %s (%d attempt(s))\n", bold("Confidence:"), confidence, resp.Attempts)

	if resp.Evaluation != nil {
		fmt.Printf("%s score %d/10, grounded: %t\n",
			bold("Evaluation:"), resp.Evaluation.Score, resp.Evaluation.IsGrounded)
	}

	if resp.Note != "" {
		fmt.Println(yellow("Note: " + resp.Note))
	}

	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println(bold("Sources:"))
		for _, s := range resp.Sources {
			fmt.Printf("  [%d] %s (%s) — %s\n", s.ID, cyan(s.Title), s.Date, s.Type)
		}
	}
}
