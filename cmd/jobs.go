package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

var (
	jobsStatus string
	jobsType   string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control background jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		list, err := st.ListJobs(ctx, store.JobFilter{
			Type:   model.JobType(jobsType),
			Status: model.JobStatus(jobsStatus),
			Limit:  jobsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROGRESS\tCREATED")
		for _, j := range list {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
				j.ID, j.Type, j.Status, j.ProcessedItems, j.TotalItems,
				j.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job including its output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Request cancellation of a job",
	Long:  "Marks the job cancelled. A running worker notices at its next progress checkpoint and stops.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return st.CancelJob(ctx, args[0])
	},
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status")
	jobsListCmd.Flags().StringVar(&jobsType, "type", "", "filter by job type")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum rows")

	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsCancelCmd)
	rootCmd.AddCommand(jobsCmd)
}
