package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/country-leaders-scraper/internal/app"
)

// newCountriesCmd creates the 'countries' subcommand, which prints the catalog.
func newCountriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List the country codes served by the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(appInstance App) error {
				return runCountries(cmd, appInstance)
			}, app.CatalogOnly())
		},
	}
}

func runCountries(cmd *cobra.Command, appInstance App) error {
	codes, err := appInstance.Pipeline().Countries(cmd.Context())
	if err != nil {
		return fmt.Errorf("countries: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Country"})
	for i, code := range codes {
		t.AppendRow(table.Row{i + 1, code})
	}
	t.Render()
	return nil
}
