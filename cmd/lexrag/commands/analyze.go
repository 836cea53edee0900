package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/casefile-ai/lexrag/internal/analytics"
	"github.com/casefile-ai/lexrag/internal/logging"
)

// NewAnalyzeCmd constructs the `lexrag analyze` command, which generates a
// structured report for one client case.
func NewAnalyzeCmd() *cobra.Command {
	var caseID string
	var reportType string
	var asJSON bool

	typeNames := make([]string, 0, len(analytics.AllTypes()))
	for _, t := range analytics.AllTypes() {
		typeNames = append(typeNames, string(t))
	}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Generate a structured report for a client case",
		Long: fmt.Sprintf(`Generate a structured analysis report for one client case.

The client's ingested documents are combined with matching statute references
and case history, and the model produces a report of the requested type.

Report types: %s

Examples:
  lexrag analyze --case case-2024-17 --type checklist
  lexrag analyze --case case-2024-17 --type risk_assessment --json`,
			strings.Join(typeNames, ", ")),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			typ, err := analytics.ParseType(reportType)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			if caseID == "" {
				return fmt.Errorf("analyze: --case is required")
			}

			p, cleanup, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			defer cleanup()

			engine, err := analytics.NewEngine(p.store, p.searcher, p.chatModel)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			report, err := engine.Generate(ctx, caseID, typ)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			printReport(report)
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Client case ID to analyse (required)")
	cmd.Flags().StringVarP(&reportType, "type", "t", string(analytics.TypeChecklist), "Report type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON report")

	return cmd
}

// printReport renders a case report for a terminal.
func printReport(report *analytics.Report) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("%s %s — case %s\n\n", green("Report:"), report.Type, report.ClientCaseID)
	fmt.Println(report.Content)

	if len(report.Sources) > 0 {
		fmt.Println()
		fmt.Println(bold("References:"))
		for _, s := range report.Sources {
			fmt.Printf("  [%d] %s (%s) — %s\n", s.ID, cyan(s.Title), s.Date, s.Type)
		}
	}
}
