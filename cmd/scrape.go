package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrape-gateway/internal/scrape"
)

func newScrapeCmd() *cobra.Command {
	var (
		routine string
		term    string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs one scrape routine and prints the result",
		Long: `Launches a headless browser, runs the routine once exactly as
POST /scrape/{routine} would, and prints the JSON response body.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()

			result, err := appInstance.RunRoutine(cmd.Context(), routine, scrape.Request{SearchTerm: term})
			if err != nil {
				return fmt.Errorf("scrape %s: %w", routine, err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(map[string]any{"success": true, "data": result}); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&routine, "routine", scrape.GoogleName, "routine to run")
	cmd.Flags().StringVar(&term, "term", "", "search term (routine default when empty)")
	return cmd
}
