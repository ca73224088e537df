package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/jobs"
	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	funnelClientID  string
	funnelProfileID string
	funnelName      string
	funnelPersonaID string
	funnelLimit     int
	funnelAsync     bool
)

var funnelCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Build and inspect qualification funnels",
}

var funnelCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an empty funnel bound to a target profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		f := &model.Funnel{
			ClientID:  funnelClientID,
			ProfileID: funnelProfileID,
			Name:      funnelName,
		}
		if err := st.CreateFunnel(ctx, f); err != nil {
			return err
		}
		fmt.Println(f.ID)
		return nil
	},
}

var funnelBuildCmd = &cobra.Command{
	Use:   "build <funnel-id>",
	Short: "Populate a funnel from the client's company pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFunnelJob(cmd, args[0], model.JobFunnelBuild)
	},
}

var funnelRefreshCmd = &cobra.Command{
	Use:   "refresh <funnel-id>",
	Short: "Rebuild a funnel from scratch, dropping stale members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFunnelJob(cmd, args[0], model.JobFunnelRefresh)
	},
}

func runFunnelJob(cmd *cobra.Command, funnelID string, typ model.JobType) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if funnelAsync {
		f, err := st.GetFunnel(ctx, funnelID)
		if err != nil {
			return err
		}
		input, _ := json.Marshal(jobs.FunnelInput{
			FunnelID:  funnelID,
			PersonaID: funnelPersonaID,
			Limit:     funnelLimit,
		})
		job := &model.Job{ClientID: f.ClientID, Type: typ, Input: input}
		if err := st.CreateJob(ctx, job); err != nil {
			return err
		}
		fmt.Println(job.ID)
		return nil
	}

	builder := buildFunnel(st)
	progress := func(processed, total int) {
		if processed%50 == 0 {
			zap.L().Info("funnel progress", zap.Int("processed", processed), zap.Int("total", total))
		}
	}

	var result any
	if typ == model.JobFunnelRefresh {
		result, err = builder.Refresh(ctx, funnelID, funnelPersonaID, funnelLimit, progress)
	} else {
		result, err = builder.Build(ctx, funnelID, funnelPersonaID, funnelLimit, progress)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

var funnelStatusCmd = &cobra.Command{
	Use:   "status <funnel-id>",
	Short: "Show a funnel's active members ranked by composite score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := st.GetFunnel(ctx, args[0])
		if err != nil {
			return err
		}
		members, err := st.ListActiveMembers(ctx, f.ID)
		if err != nil {
			return err
		}

		sort.SliceStable(members, func(i, j int) bool {
			return members[i].CompositeScore.GreaterThan(members[j].CompositeScore)
		})

		fmt.Printf("%s (%d active members)\n\n", f.Name, len(members))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "COMPANY\tCONTACT\tFIT\tSIGNAL\tCOMPOSITE\tADDED")
		for _, m := range members {
			contact := ""
			if m.ContactID != nil {
				contact = *m.ContactID
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				m.CompanyID, contact,
				m.FitScore.StringFixed(2), m.SignalScore.StringFixed(2), m.CompositeScore.StringFixed(2),
				m.AddedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

func init() {
	funnelCreateCmd.Flags().StringVar(&funnelClientID, "client", "", "client ID (required)")
	funnelCreateCmd.Flags().StringVar(&funnelProfileID, "profile", "", "target profile ID (required)")
	funnelCreateCmd.Flags().StringVar(&funnelName, "name", "", "funnel name (required)")
	_ = funnelCreateCmd.MarkFlagRequired("client")
	_ = funnelCreateCmd.MarkFlagRequired("profile")
	_ = funnelCreateCmd.MarkFlagRequired("name")

	for _, c := range []*cobra.Command{funnelBuildCmd, funnelRefreshCmd} {
		c.Flags().StringVar(&funnelPersonaID, "persona", "", "also add contact members matching this persona")
		c.Flags().IntVar(&funnelLimit, "limit", 0, "cap on new members (0 = unlimited)")
		c.Flags().BoolVar(&funnelAsync, "async", false, "enqueue as a background job")
	}

	funnelCmd.AddCommand(funnelCreateCmd, funnelBuildCmd, funnelRefreshCmd, funnelStatusCmd)
	rootCmd.AddCommand(funnelCmd)
}
