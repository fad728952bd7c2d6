package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/news-ingest/internal/pipeline"
	"github.com/jonathan/news-ingest/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operator HTTP API",
	Long: `Starts the operator API: owners register and log in, then start, follow, list and cancel
ingestion runs and read their corpus. Requires JWT_SECRET in the environment.`,
	RunE: runServe,
}

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd.Flags().Changed)
	if err != nil {
		return err
	}
	if err := requireDurableStore(cfg, cmd.CommandPath()); err != nil {
		return err
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := pipeline.OpenBackend(ctx, cfg, false)
	if err != nil {
		return fmt.Errorf("failed to open corpus store: %w", err)
	}
	defer backend.Close() //nolint:errcheck

	classifier, client, err := pipeline.NewClassifier(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	srv, err := server.New(server.Config{
		Port:    servePort,
		Backend: backend,
		Runner:  pipeline.Build(cfg, backend, backend, classifier, log),
		Logger:  log,
	})
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}
