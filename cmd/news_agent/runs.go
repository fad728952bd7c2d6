package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/observability"
	"github.com/jonathan/news-ingest/internal/pipeline"
	"github.com/jonathan/news-ingest/internal/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded ingestion runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's recorded runs, newest first",
	RunE:  runRunsList,
}

var (
	runsOwner string
	runsLimit int
	runsJSON  bool
)

func init() {
	flags := runsListCmd.Flags()
	flags.StringVarP(&runsOwner, "owner", "o", "", "Corpus owner ID (required)")
	flags.IntVar(&runsLimit, "limit", 20, "Maximum runs to show")
	flags.BoolVar(&runsJSON, "json", false, "Print the runs as JSON")
	_ = runsListCmd.MarkFlagRequired("owner")

	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd.Flags().Changed)
	if err != nil {
		return err
	}
	if err := requireDurableStore(cfg, cmd.CommandPath()); err != nil {
		return err
	}

	backend, err := pipeline.OpenBackend(cmd.Context(), cfg, false)
	if err != nil {
		return fmt.Errorf("failed to open corpus store: %w", err)
	}
	defer backend.Close() //nolint:errcheck

	return listRuns(cmd.Context(), backend, runsOwner, runsLimit, runsJSON, cmd.OutOrStdout())
}

func listRuns(ctx context.Context, ledger corpus.RunLedger, ownerID string, limit int, asJSON bool, out io.Writer) error {
	runs, err := ledger.ListRuns(ctx, ownerID, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if asJSON {
		if runs == nil {
			runs = []types.IngestionRun{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	observability.NewPrinter(out).PrintRuns(runs)
	return nil
}
