package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/country-leaders-scraper/internal/metrics"
	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
)

// newScrapeCmd creates the 'scrape' subcommand, which runs the full pipeline.
func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch, enrich and export every country's leaders",
		Long: `Requests a session cookie, lists the countries, fetches each country's
leaders, enriches them concurrently with their Wikipedia lead paragraph and
writes the mapping to the configured export path.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(appInstance App) error {
				return runScrape(cmd, appInstance)
			})
		},
	}
	cmd.Flags().StringP("output", "o", "", "export path (format inferred from the extension)")
	cmd.Flags().String("format", "", "export format: json, csv or yaml")
	cmd.Flags().String("strategy", "", "enrichment strategy: summary or dom")
	cmd.Flags().IntP("workers", "w", 0, "enrichment worker pool size")
	cmd.Flags().Bool("fail-fast", false, "abort the run on the first enrichment error")
	cmd.Flags().String("storage", "", "storage backend: local, memory or gcs")
	return cmd
}

func runScrape(cmd *cobra.Command, appInstance App) error {
	logger := appInstance.Logger()
	cfg := resolveConfig(cmd.Context())

	result, runErr := appInstance.Pipeline().Run(cmd.Context())

	if cfg.Metrics.TextfilePath != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			logger.Warn("failed to write metrics textfile", zap.String("path", cfg.Metrics.TextfilePath), zap.Error(err))
		}
	}
	if runErr != nil {
		return fmt.Errorf("scrape: %w", runErr)
	}

	renderSummary(cmd.OutOrStdout(), result)
	return nil
}

func renderSummary(w io.Writer, r scraper.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Run " + r.RunID)
	t.AppendHeader(table.Row{"Country", "Leaders", "With paragraph"})
	if r.Data != nil {
		for _, code := range r.Data.Codes() {
			list := r.Data.Leaders(code)
			withParagraph := 0
			for _, l := range list {
				if l != nil && l.FirstParagraph != "" {
					withParagraph++
				}
			}
			t.AppendRow(table.Row{code, len(list), withParagraph})
		}
	}
	t.AppendFooter(table.Row{"Total", r.Leaders, r.Enriched})
	t.Render()

	s := table.NewWriter()
	s.SetOutputMirror(w)
	s.SetStyle(table.StyleRounded)
	s.AppendRows([]table.Row{
		{"Enriched", r.Enriched},
		{"Failed", r.Failed},
		{"Skipped (no URL)", r.Skipped},
		{"Export", r.Artifact.URI},
		{"Bytes", r.Artifact.Bytes},
		{"Elapsed", r.Finished.Sub(r.Started).Round(time.Millisecond)},
	})
	if r.Artifact.Hash != "" {
		s.AppendRow(table.Row{"Digest", r.Artifact.Hash})
	}
	if r.RowsStored > 0 {
		s.AppendRow(table.Row{"Rows stored", r.RowsStored})
	}
	if r.MessageID != "" {
		s.AppendRow(table.Row{"Message ID", r.MessageID})
	}
	s.Render()
}
