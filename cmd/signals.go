package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/funnel"
)

var signalsPersonaID string

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Run signal detection and stage advancement over a funnel",
}

var signalsCompanyCmd = &cobra.Command{
	Use:   "company <funnel-id>",
	Short: "Detect buying signals on active-segment members and qualify strong ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := buildFunnel(st).RunCompanySignals(ctx, args[0], signalProgress)
		if err != nil {
			return err
		}
		return printAdvance(result)
	},
}

var signalsPersonaCmd = &cobra.Command{
	Use:   "persona <funnel-id>",
	Short: "Match qualified members against a persona and mark them ready to approach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := buildFunnel(st).RunPersonaSignals(ctx, args[0], signalsPersonaID, signalProgress)
		if err != nil {
			return err
		}
		return printAdvance(result)
	},
}

func signalProgress(processed, total int) {
	if processed%25 == 0 || processed == total {
		zap.L().Info("signal progress", zap.Int("processed", processed), zap.Int("total", total))
	}
}

func printAdvance(result *funnel.AdvanceResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func init() {
	signalsPersonaCmd.Flags().StringVar(&signalsPersonaID, "persona", "", "persona filter ID (required)")
	_ = signalsPersonaCmd.MarkFlagRequired("persona")

	signalsCmd.AddCommand(signalsCompanyCmd, signalsPersonaCmd)
	rootCmd.AddCommand(signalsCmd)
}
