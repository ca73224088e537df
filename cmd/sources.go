package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sourcesSince time.Duration

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Report per-source call performance and cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		summaries, err := st.SummarizeSourceMetrics(ctx, time.Now().UTC().Add(-sourcesSince))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SOURCE\tOP\tCALLS\tSUCCESS\tRATE_LIMITED\tAVG_MS\tFIELDS\tCOST_USD\tCOST/FIELD")
		for _, s := range summaries {
			successRate := 0.0
			if s.Calls > 0 {
				successRate = float64(s.Successes) / float64(s.Calls)
			}
			costPerField := 0.0
			if s.FieldsPopulated > 0 {
				costPerField = s.TotalCostUSD / float64(s.FieldsPopulated)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.0f%%\t%d\t%.0f\t%d\t%.4f\t%.4f\n",
				s.Source, s.Op, s.Calls, successRate*100, s.RateLimited,
				s.AvgLatencyMS, s.FieldsPopulated, s.TotalCostUSD, costPerField)
		}
		return w.Flush()
	},
}

func init() {
	sourcesCmd.Flags().DurationVar(&sourcesSince, "since", 7*24*time.Hour, "reporting window")
	rootCmd.AddCommand(sourcesCmd)
}
