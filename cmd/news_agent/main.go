// Package main provides the entry point for the news ingestion CLI and operator API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "news_agent",
	Short: "News ingestion and qualification pipeline",
	Long: `news_agent collects news articles about a company from a listing site, qualifies each one
with an LLM suitability filter and stores the accepted ones in a per-owner corpus.

Configuration can be loaded from a JSON or YAML file using --config. Command-line flags
override config file values; DATABASE_URL and GEMINI_API_KEY fill anything still unset.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
