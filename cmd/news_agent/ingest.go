package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonathan/news-ingest/internal/config"
	"github.com/jonathan/news-ingest/internal/corpus"
	"github.com/jonathan/news-ingest/internal/observability"
	"github.com/jonathan/news-ingest/internal/pipeline"
	"github.com/jonathan/news-ingest/internal/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Collect, qualify and store news articles about a company",
	Long: `Runs one ingestion: discovers article URLs on the listing site for the company and date range,
fetches each article, keeps the ones the suitability filter accepts and stores them in the owner's corpus.

URLs already stored for the owner are skipped unless --force-refresh is set. Ctrl-C cancels the run;
articles already accepted are still saved before the command exits.`,
	RunE: runIngest,
}

var (
	ingestOwner        string
	ingestCompany      string
	ingestFrom         string
	ingestTo           string
	ingestKeywords     []string
	ingestExclude      []string
	ingestExact        string
	ingestArea         string
	ingestSort         string
	ingestMaxPages     int
	ingestForceRefresh bool
	ingestKeepRejected bool
	ingestPermits      int
	ingestUseBrowser   bool
)

func init() {
	flags := ingestCmd.Flags()
	flags.StringVarP(&ingestOwner, "owner", "o", "", "Corpus owner ID (required)")
	flags.StringVarP(&ingestCompany, "company", "c", "", "Company name to search for (required)")
	flags.StringVar(&ingestFrom, "from", "", "Start date, YYYY-MM-DD (required)")
	flags.StringVar(&ingestTo, "to", "", "End date, YYYY-MM-DD (required)")
	flags.StringArrayVarP(&ingestKeywords, "keyword", "k", nil, "Additional keyword (repeatable)")
	flags.StringArrayVar(&ingestExclude, "exclude", nil, "Keyword to exclude (repeatable)")
	flags.StringVar(&ingestExact, "exact", "", "Exact phrase the articles must contain")
	flags.StringVar(&ingestArea, "area", "", "Search area: ALL, title or content")
	flags.StringVar(&ingestSort, "sort", "", "Listing order: latest, accuracy or oldest")
	flags.IntVar(&ingestMaxPages, "max-pages", 0, "Maximum listing pages to read (0 = no limit)")
	flags.BoolVar(&ingestForceRefresh, "force-refresh", false, "Re-fetch URLs already in the corpus")
	flags.BoolVar(&ingestKeepRejected, "keep-rejected", false, "Also store rejected articles so later runs skip them")
	flags.IntVar(&ingestPermits, "permits", 0, "Concurrent request permits, 1-50")
	flags.BoolVar(&ingestUseBrowser, "use-browser", false, "Re-render thin pages in headless Chrome")

	_ = ingestCmd.MarkFlagRequired("owner")
	_ = ingestCmd.MarkFlagRequired("company")
	_ = ingestCmd.MarkFlagRequired("from")
	_ = ingestCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(ingestCmd)
}

// ingestCriteria builds the run criteria from the ingest flags.
func ingestCriteria(cfg *config.Config) (types.Criteria, error) {
	dates, err := types.ParseDateRange(ingestFrom, ingestTo)
	if err != nil {
		return types.Criteria{}, err
	}

	criteria := types.Criteria{
		OwnerID:      ingestOwner,
		Company:      ingestCompany,
		DateRange:    dates,
		Keywords:     ingestKeywords,
		Exclude:      ingestExclude,
		ExactPhrase:  ingestExact,
		Area:         ingestArea,
		Sort:         ingestSort,
		MaxPages:     ingestMaxPages,
		ForceRefresh: ingestForceRefresh || cfg.ForceRefresh,
	}
	if err := criteria.Validate(); err != nil {
		return types.Criteria{}, fmt.Errorf("invalid criteria: %w", err)
	}
	return criteria, nil
}

func runIngest(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	cfg, err := resolveConfig(flags.Changed)
	if err != nil {
		return err
	}
	if flags.Changed("permits") {
		cfg.Permits = ingestPermits
	}
	if flags.Changed("use-browser") {
		cfg.UseBrowser = ingestUseBrowser
	}
	if flags.Changed("keep-rejected") {
		cfg.KeepRejected = ingestKeepRejected
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	criteria, err := ingestCriteria(cfg)
	if err != nil {
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

	_, err = executeIngest(ctx, cfg, backend, classifier, criteria, log, cmd.OutOrStdout())
	return err
}

// executeIngest runs one ingestion against an open backend and prints its summary.
// The error is non-nil when the run aborted.
func executeIngest(ctx context.Context, cfg *config.Config, backend corpus.Backend, classifier pipeline.Classifier,
	criteria types.Criteria, log logrus.FieldLogger, out io.Writer) (*types.IngestionRun, error) {

	orchestrator := pipeline.Build(cfg, backend, backend, classifier, log)

	var onProgress pipeline.ProgressCallback
	if cfg.Verbose {
		onProgress = func(event pipeline.ProgressEvent) {
			_, _ = fmt.Fprintf(out, "[%3.0f%%] %-11s %s\n", event.Progress*100, event.Stage, event.Message)
		}
	}

	summary, err := orchestrator.Run(ctx, criteria, onProgress)

	printer := observability.NewPrinter(out)
	printer.PrintRunSummary(summary)
	if cfg.Verbose && summary != nil && summary.Counts.Accepted > 0 {
		records, lerr := backend.List(context.WithoutCancel(ctx), criteria.OwnerID, corpus.Query{
			Company: criteria.Company,
			From:    &criteria.DateRange.Start,
			To:      &criteria.DateRange.End,
		})
		if lerr == nil {
			printer.PrintSample(records)
		}
	}

	return summary, err
}
