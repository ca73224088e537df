package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run the background job worker pool",
	Long:  "Claims queued jobs and executes them until interrupted. Safe to run multiple instances; claiming is race-free.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		zap.L().Info("worker pool starting", zap.Int("workers", cfg.Jobs.Workers))
		return buildRunner(st).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workCmd)
}
