package main

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/quality"
	"github.com/sells-group/wrestlebot/internal/scorer"
	"github.com/sells-group/wrestlebot/internal/settings"
	"github.com/sells-group/wrestlebot/internal/store"
)

var (
	scoreMax   float64
	scoreLimit int
)

var scoreCmd = &cobra.Command{
	Use:   "score <kind> [id]",
	Short: "Show the completeness breakdown of a record, or the least complete records of a kind",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 2 {
			r, err := loadRecord(cmd.Context(), env.Store, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(scorer.Score(r))
		}

		kind, err := model.ParseKind(args[0])
		if err != nil {
			return err
		}
		records, err := env.Store.Query(cmd.Context(), store.Filter{Kind: kind, OrderBy: store.OrderID})
		if err != nil {
			return err
		}
		low := scorer.LowScore(records, scoreMax, scoreLimit)
		out := make([]scorer.Breakdown, len(low))
		for i, s := range low {
			out[i] = s.Breakdown
		}
		return printJSON(out)
	},
}

var (
	qualityLimit  int
	qualityIssues bool
)

var qualityCmd = &cobra.Command{
	Use:   "quality <kind> [id]",
	Short: "Report quality issues of a record or of every record of a kind",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		ctx := cmd.Context()
		s, err := env.Settings.Load(ctx)
		if err != nil {
			s = settings.Defaults()
		}
		checker := quality.NewChecker(s.OrphanGrace())

		if len(args) == 2 {
			r, err := loadRecord(ctx, env.Store, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(checker.Check(r))
		}

		kind, err := model.ParseKind(args[0])
		if err != nil {
			return err
		}
		records, err := env.Store.Query(ctx, store.Filter{Kind: kind, OrderBy: store.OrderID, Limit: qualityLimit})
		if err != nil {
			return err
		}
		report := checker.CheckAll(records)
		if !qualityIssues {
			report.Issues = nil
		}
		return printJSON(report)
	},
}

// loadRecord resolves a kind and id given as text.
func loadRecord(ctx context.Context, repo store.Repository, kindArg, idArg string) (*model.Record, error) {
	kind, err := model.ParseKind(kindArg)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil || id <= 0 {
		return nil, eris.Errorf("invalid record id %q", idArg)
	}
	return repo.GetByID(ctx, kind, id)
}

func init() {
	scoreCmd.Flags().Float64Var(&scoreMax, "max", 40, "list records at or below this completeness percentage")
	scoreCmd.Flags().IntVar(&scoreLimit, "limit", 20, "maximum records to list")
	qualityCmd.Flags().IntVar(&qualityLimit, "limit", 500, "maximum records to check")
	qualityCmd.Flags().BoolVar(&qualityIssues, "issues", false, "include every issue, not only the counts")
	rootCmd.AddCommand(scoreCmd, qualityCmd)
}
