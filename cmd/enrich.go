package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/scoring"
	"github.com/sells-group/prospect-cli/internal/source"
)

var (
	enrichDomain    string
	enrichClientID  string
	enrichProfileID string
	enrichAdvance   string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a single company through the source waterfall",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		company, err := st.GetCompanyByDomain(ctx, enrichClientID, enrichDomain)
		if err != nil {
			return err
		}
		if company == nil {
			company = &model.Company{ClientID: enrichClientID, Domain: enrichDomain}
		}

		orch := buildOrchestrator(st)
		outcome, err := orch.Enrich(ctx, company, source.EnrichHints{Domain: enrichDomain})
		if err != nil {
			return eris.Wrap(err, "enrich")
		}

		if _, err := st.UpsertCompany(ctx, outcome.Company); err != nil {
			return err
		}

		zap.L().Info("enrichment complete",
			zap.String("domain", enrichDomain),
			zap.Strings("sources_used", outcome.SourcesUsed),
			zap.Int("fields_filled", len(outcome.FieldsFilled)),
			zap.Float64("total_cost_usd", outcome.TotalCostUSD),
		)

		out := struct {
			*source.EnrichOutcome
			Fit *enrichFit `json:"fit,omitempty"`
		}{EnrichOutcome: outcome}

		// An enriched record is held to a higher bar than a raw search hit.
		if enrichProfileID != "" {
			profile, err := st.GetProfile(ctx, enrichProfileID)
			if err != nil {
				return err
			}
			fit := scoring.Fit(outcome.Company, profile)
			out.Fit = &enrichFit{
				Score:     fit.Score,
				Reasons:   fit.Reasons,
				Qualifies: fit.Score >= cfg.Discovery.EnrichedThreshold,
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

type enrichFit struct {
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons,omitempty"`
	Qualifies bool     `json:"qualifies"`
}

var advanceCmd = &cobra.Command{
	Use:   "advance <company-id>",
	Short: "Manually move a company to a pipeline stage",
	Long:  "Explicit stage transitions, including the in_sequence and converted stages that only humans trigger. Demotion is allowed here.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return buildFunnel(st).Advance(ctx, args[0], model.PipelineStage(enrichAdvance))
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichDomain, "domain", "", "company domain (required)")
	enrichCmd.Flags().StringVar(&enrichClientID, "client", "", "client ID (required)")
	enrichCmd.Flags().StringVar(&enrichProfileID, "profile", "", "score the enriched record against this profile")
	_ = enrichCmd.MarkFlagRequired("domain")
	_ = enrichCmd.MarkFlagRequired("client")
	rootCmd.AddCommand(enrichCmd)

	advanceCmd.Flags().StringVar(&enrichAdvance, "to", "", "target stage (required)")
	_ = advanceCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(advanceCmd)
}
