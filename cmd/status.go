package main

import (
	"github.com/spf13/cobra"
)

var statusHours int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bot status: settings, today's stats, recent activity, breaker and budgets",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return printJSON(env.Collector.Collect(cmd.Context(), statusHours))
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show ledger statistics for a recent window",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := env.Ledger.Stats(cmd.Context(), statusHours)
		if err != nil {
			return err
		}
		return printJSON(st)
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusHours, "hours", 24, "activity lookback window in hours")
	activityCmd.Flags().IntVar(&statusHours, "hours", 24, "lookback window in hours")
	rootCmd.AddCommand(statusCmd, activityCmd)
}
