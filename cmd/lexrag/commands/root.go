// Package commands defines all Cobra CLI commands for the lexrag binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/casefile-ai/lexrag/internal/audit"
	"github.com/casefile-ai/lexrag/internal/config"
	"github.com/casefile-ai/lexrag/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lexrag",
		Short: "LexRAG — retrieval-augmented legal research over your own case files",
		Long: `LexRAG is a local-first legal research assistant for law practices.

It answers legal questions grounded in three document corpora — statute and
regulation references, case history, and per-client case files — and every
answer is scored by an LLM judge before it reaches you. It can also generate
structured case reports (checklists, gap analyses, risk assessments).

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.lexrag/config.yaml).
See 'lexrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional; real env vars still win over both .env and YAML.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.lexrag/config.yaml)")

	root.AddCommand(
		NewQueryCmd(),
		NewAnalyzeCmd(),
		NewIngestCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
