package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"triad/pkg/metrics"
)

func newStatsCmd(_ *app) *cobra.Command {
	var prometheusURL string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show LLM spend per role from a Prometheus server scraping triad",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := metrics.NewQueryService(prometheusURL)
			if err != nil {
				return err //nolint:wrapcheck // already descriptive
			}
			usage, err := q.GetRoleUsage(cmd.Context())
			if err != nil {
				return err //nolint:wrapcheck // already descriptive
			}

			w := cmd.OutOrStdout()
			_, _ = color.New(color.Bold).Fprintf(w, "%-10s %12s %12s %12s %10s\n", "ROLE", "PROMPT", "COMPLETION", "TOTAL", "COST")
			for _, u := range usage {
				_, _ = fmt.Fprintf(w, "%-10s %12d %12d %12d %10s\n",
					u.Role, u.PromptTokens, u.CompletionTokens, u.TotalTokens, fmt.Sprintf("$%.4f", u.TotalCost))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prometheusURL, "prometheus", "http://localhost:9091", "Prometheus server URL")
	return cmd
}
