// Command lexrag is the entry point for the LexRAG legal research assistant.
// It provides a CLI interface (via Cobra) and an optional HTTP server
// exposing the query pipeline as a REST API.
package main

import (
	"fmt"
	"os"

	"github.com/casefile-ai/lexrag/cmd/lexrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
