package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gluk-w/claworc/llm-router/internal/usage"
)

func usageCmd() *cobra.Command {
	var (
		days     int
		date     string
		detailed bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage and estimated cost",
		Long: `Show token usage recorded by the router.

Examples:
  llmctl usage                  # one line for today
  llmctl usage --detailed       # per-model breakdown for today
  llmctl usage --date 2026-05-01
  llmctl usage --days 7         # daily totals for the last week`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := loadTracker()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if days > 0 {
				rep := tracker.Stats(days)
				if asJSON {
					return json.NewEncoder(out).Encode(rep)
				}
				return renderReport(out, rep)
			}

			rows := tracker.Summary(date)
			if asJSON {
				return json.NewEncoder(out).Encode(rows)
			}
			if detailed {
				_, err = fmt.Fprintln(out, usage.FormatUsageDetailed(rows))
				return err
			}
			_, err = fmt.Fprintln(out, usage.FormatUsageLine(rows))
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Report the last N days")
	cmd.Flags().StringVar(&date, "date", "", "Day to summarize, YYYY-MM-DD (default today, UTC)")
	cmd.Flags().BoolVarP(&detailed, "detailed", "d", false, "Per-model breakdown")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
