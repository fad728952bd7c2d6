package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/news-ingest/internal/pipeline"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the corpus schema",
	Long:  `Applies the corpus, run ledger and owner tables to the configured PostgreSQL database or SQLite file.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd.Flags().Changed)
	if err != nil {
		return err
	}
	if err := requireDurableStore(cfg, cmd.CommandPath()); err != nil {
		return err
	}

	backend, err := pipeline.OpenBackend(cmd.Context(), cfg, true)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if err := backend.Close(); err != nil {
		return err
	}

	target := "PostgreSQL"
	if cfg.SQLitePath != "" {
		target = cfg.SQLitePath
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", target)
	return nil
}
