package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/jobs"
	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	discoverProfileID string
	discoverLimit     int
	discoverSkipDeep  bool
	discoverAsync     bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover companies matching a target profile",
	Long: `Runs the discovery pipeline for one target profile: searches the source
waterfall, filters blocked and implausible results, scores candidates against
the profile, and persists survivors deduplicated by domain.

With --async the run is enqueued as a background job instead; poll it with
"jobs get".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if discoverAsync {
			profile, err := st.GetProfile(ctx, discoverProfileID)
			if err != nil {
				return err
			}
			input, _ := json.Marshal(jobs.DiscoveryInput{
				ProfileID:      discoverProfileID,
				Limit:          discoverLimit,
				SkipDeepEnrich: discoverSkipDeep,
			})
			job := &model.Job{
				ClientID: profile.ClientID,
				Type:     model.JobDiscovery,
				Input:    input,
			}
			if err := st.CreateJob(ctx, job); err != nil {
				return err
			}
			fmt.Println(job.ID)
			return nil
		}

		profile, err := st.GetProfile(ctx, discoverProfileID)
		if err != nil {
			return err
		}

		svc := buildDiscovery(st, buildOrchestrator(st))
		result, err := svc.Discover(ctx, profile, discoverLimit, discovery.Options{
			SkipDeepEnrich: discoverSkipDeep,
		})
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		zap.L().Info("discovery complete",
			zap.String("profile_id", profile.ID),
			zap.Int("discovered", result.Discovered),
			zap.Int("companies_added", result.CompaniesAdded),
			zap.Float64("total_cost_usd", result.TotalCostUSD),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverProfileID, "profile", "", "target profile ID (required)")
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 50, "maximum companies to return")
	discoverCmd.Flags().BoolVar(&discoverSkipDeep, "skip-deep-enrich", false, "skip the top-N contact discovery pass")
	discoverCmd.Flags().BoolVar(&discoverAsync, "async", false, "enqueue as a background job")
	_ = discoverCmd.MarkFlagRequired("profile")
	rootCmd.AddCommand(discoverCmd)
}
