// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/news-ingest/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad truncates or right-pads s to width runes. Korean titles are common, so widths
// are counted in runes rather than bytes.
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		runes := []rune(s)
		return string(runes[:width-3]) + "..."
	}
	return s + strings.Repeat(" ", width-n)
}

// PrintRunSummary outputs the final counts and state of an ingestion run.
func (p *Printer) PrintRunSummary(run *types.IngestionRun) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:        %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Owner:      %s\n", run.Criteria.OwnerID))
	sb.WriteString(fmt.Sprintf("Company:    %s\n", run.Criteria.Company))
	sb.WriteString(fmt.Sprintf("Range:      %s .. %s\n",
		run.Criteria.DateRange.Start.Format(types.DateLayout),
		run.Criteria.DateRange.End.Format(types.DateLayout)))
	if len(run.Criteria.Keywords) > 0 {
		sb.WriteString(fmt.Sprintf("Keywords:   %s\n", strings.Join(run.Criteria.Keywords, ", ")))
	}
	sb.WriteString(fmt.Sprintf("State:      %s\n", run.State))
	if run.FinishedAt != nil {
		sb.WriteString(fmt.Sprintf("Duration:   %s\n", run.FinishedAt.Sub(run.StartedAt).Round(1e6)))
	}
	sb.WriteString("\n")

	c := run.Counts
	sb.WriteString(fmt.Sprintf("Discovered: %d", c.Discovered))
	if run.ListingTotalCount >= 0 {
		sb.WriteString(fmt.Sprintf(" (listing reports %d)", run.ListingTotalCount))
	}
	sb.WriteString("\n")
	if c.Skipped > 0 {
		sb.WriteString(fmt.Sprintf("Skipped:    %d (already stored)\n", c.Skipped))
	}
	sb.WriteString(fmt.Sprintf("Fetched:    %d\n", c.Fetched))
	sb.WriteString(fmt.Sprintf("Accepted:   %d\n", c.Accepted))
	sb.WriteString(fmt.Sprintf("Rejected:   %d\n", c.Rejected))
	sb.WriteString(fmt.Sprintf("Failed:     %d", c.Failed))

	if run.PartialDiscovery {
		sb.WriteString("\n\n⚠ Discovery stopped early; the URL list is partial")
	}
	if run.Error != "" {
		sb.WriteString("\n\nError: " + run.Error)
	}

	p.printBox("INGESTION RUN", sb.String())
}

// PrintCorpus outputs a date-ordered listing of stored articles.
func (p *Printer) PrintCorpus(ownerID string, records []types.ArticleRecord) {
	var sb strings.Builder
	if len(records) == 0 {
		sb.WriteString("(no articles)")
	}
	for i, rec := range records {
		if i > 0 {
			sb.WriteString("\n")
		}
		date := "----------"
		if rec.PublishedAt != nil {
			date = rec.PublishedAt.Format(types.DateLayout)
		}
		sb.WriteString(fmt.Sprintf("%s  %s", date, rec.Title))
		if rec.Suitability == types.SuitabilityRejected {
			sb.WriteString(" [rejected]")
		}
	}

	p.printBox(fmt.Sprintf("CORPUS: %s (%d articles)", ownerID, len(records)), sb.String())
}

// PrintRuns outputs a short table of recorded runs, newest first.
func (p *Printer) PrintRuns(runs []types.IngestionRun) {
	var sb strings.Builder
	if len(runs) == 0 {
		sb.WriteString("(no runs)")
	}
	for i, run := range runs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s  %-9s %s  +%d/-%d !%d",
			run.StartedAt.Format("2006-01-02 15:04"), run.State, run.Criteria.Company,
			run.Counts.Accepted, run.Counts.Rejected, run.Counts.Failed))
	}
	p.printBox(fmt.Sprintf("RUNS (%d)", len(runs)), sb.String())
}

// PrintSample outputs the first few article titles of a corpus with their sources.
func (p *Printer) PrintSample(records []types.ArticleRecord) {
	if len(records) == 0 {
		return
	}

	var sb strings.Builder
	for i, rec := range records {
		if i >= maxItemsToShow {
			sb.WriteString(fmt.Sprintf("\n... and %d more", len(records)-maxItemsToShow))
			break
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%d. %s", i+1, rec.Title))
		if rec.Source != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", rec.Source))
		}
	}
	p.printBox("SAMPLE ARTICLES", sb.String())
}
