package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/observability"
	"github.com/jonathan/news-ingest/internal/pipeline"
	"github.com/jonathan/news-ingest/internal/types"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Inspect or reset an owner's stored articles",
}

var corpusListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored articles by publication date",
	RunE:  runCorpusList,
}

var corpusResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored article of an owner",
	RunE:  runCorpusReset,
}

var (
	corpusOwner           string
	corpusCompany         string
	corpusFrom            string
	corpusTo              string
	corpusLimit           int
	corpusIncludeRejected bool
	corpusJSON            bool
)

func init() {
	corpusCmd.PersistentFlags().StringVarP(&corpusOwner, "owner", "o", "", "Corpus owner ID (required)")
	_ = corpusCmd.MarkPersistentFlagRequired("owner")

	flags := corpusListCmd.Flags()
	flags.StringVarP(&corpusCompany, "company", "c", "", "Only articles about this company")
	flags.StringVar(&corpusFrom, "from", "", "Only articles published on or after this date, YYYY-MM-DD")
	flags.StringVar(&corpusTo, "to", "", "Only articles published on or before this date, YYYY-MM-DD")
	flags.IntVar(&corpusLimit, "limit", 0, "Maximum articles to show (0 = all)")
	flags.BoolVar(&corpusIncludeRejected, "include-rejected", false, "Include articles stored with a rejected verdict")
	flags.BoolVar(&corpusJSON, "json", false, "Print the articles as JSON")

	corpusCmd.AddCommand(corpusListCmd, corpusResetCmd)
	rootCmd.AddCommand(corpusCmd)
}

// corpusQuery builds the listing query from the corpus list flags.
func corpusQuery() (corpus.Query, error) {
	q := corpus.Query{
		Company:         corpusCompany,
		IncludeRejected: corpusIncludeRejected,
		Limit:           corpusLimit,
	}
	if corpusFrom != "" {
		from, err := time.Parse(types.DateLayout, corpusFrom)
		if err != nil {
			return q, fmt.Errorf("invalid --from: %w", err)
		}
		q.From = &from
	}
	if corpusTo != "" {
		to, err := time.Parse(types.DateLayout, corpusTo)
		if err != nil {
			return q, fmt.Errorf("invalid --to: %w", err)
		}
		q.To = &to
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return q, fmt.Errorf("--to must not be before --from")
	}
	return q, nil
}

func runCorpusList(cmd *cobra.Command, _ []string) error {
	q, err := corpusQuery()
	if err != nil {
		return err
	}
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

	return listCorpus(cmd.Context(), backend, corpusOwner, q, corpusJSON, cmd.OutOrStdout())
}

// listCorpus prints an owner's articles as a table or as JSON.
func listCorpus(ctx context.Context, store corpus.Store, ownerID string, q corpus.Query, asJSON bool, out io.Writer) error {
	records, err := store.List(ctx, ownerID, q)
	if err != nil {
		return fmt.Errorf("failed to list corpus: %w", err)
	}

	if asJSON {
		if records == nil {
			records = []types.ArticleRecord{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	observability.NewPrinter(out).PrintCorpus(ownerID, records)
	return nil
}

func runCorpusReset(cmd *cobra.Command, _ []string) error {
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

	return resetCorpus(cmd.Context(), backend, corpusOwner, cmd.OutOrStdout())
}

func resetCorpus(ctx context.Context, store corpus.Store, ownerID string, out io.Writer) error {
	removed, err := store.DeleteOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to reset corpus: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Removed %d article(s) from the corpus of %s\n", removed, ownerID)
	return nil
}
