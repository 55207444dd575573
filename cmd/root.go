package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "wrestlebot",
	Short: "Autonomous wrestling knowledge base curator",
	Long:  "Discovers, enriches, verifies and cleans wrestler, promotion, event, title and venue records from public sources, with optional local or hosted LLM assistance.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		mode := "cli"
		if cmd.Name() == serveCmd.Name() {
			mode = "serve"
		}
		if err := cfg.Validate(mode); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
