package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wrestlebot/internal/bot"
)

var (
	cycleBatchSize int
	cycleDryRun    bool
)

// newCycleCmd builds the one-shot command for a bot cycle.
func newCycleCmd(use string, cycle bot.Cycle, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := initEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			res := env.Bot.Run(cmd.Context(), cycle, bot.RunOptions{
				BatchSize: cycleBatchSize,
				DryRun:    cycleDryRun,
			})
			if err := printJSON(res); err != nil {
				return err
			}
			if res.Status == bot.StatusError {
				return eris.Errorf("%s cycle failed: %s", cycle, res.Error)
			}
			return nil
		},
	}
	c.Flags().IntVar(&cycleBatchSize, "batch-size", 0, "override the configured batch size")
	c.Flags().BoolVar(&cycleDryRun, "dry-run", false, "report what would change without writing")
	return c
}

var (
	discoverCmd = newCycleCmd("discover", bot.CycleDiscovery, "Discover new entities from external sources")
	enrichCmd   = newCycleCmd("enrich", bot.CycleEnrichment, "Fill missing fields of low-completeness records")
	cleanupCmd  = newCycleCmd("cleanup", bot.CycleCleanup, "Run quality checks, auto-fixes and invalid entry removal")
	verifyCmd   = newCycleCmd("verify", bot.CycleVerification, "Cross-verify wrestler facts between sources")
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(discoverCmd, enrichCmd, cleanupCmd, verifyCmd)
}
