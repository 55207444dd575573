package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/bot"
	"github.com/sells-group/wrestlebot/internal/config"
	"github.com/sells-group/wrestlebot/internal/monitoring"
)

var (
	servePort       int
	serveNoSchedule bool
)

// scheduleSpecs maps the configured cron specs to cycles.
func scheduleSpecs(s config.ScheduleConfig) map[bot.Cycle]string {
	return map[bot.Cycle]string{
		bot.CycleDiscovery:    s.Discovery,
		bot.CycleEnrichment:   s.Enrichment,
		bot.CycleCleanup:      s.Cleanup,
		bot.CycleVerification: s.Verification,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled cycles and the admin HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if !serveNoSchedule {
			sched, err := bot.NewScheduler(env.Bot, scheduleSpecs(cfg.Schedule))
			if err != nil {
				return err
			}
			sched.Start(ctx)
			defer sched.Stop()
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(env.Collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		go purgeCache(ctx, env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newAdminServer(env, cfg.Server.CORSOrigins).routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("scheduler", !serveNoSchedule))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// purgeCache drops expired response cache rows once an hour.
func purgeCache(ctx context.Context, e *env) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.Store.DeleteExpiredCache(ctx)
			if err != nil {
				zap.L().Warn("purge response cache", zap.Error(err))
				continue
			}
			zap.L().Debug("purged response cache", zap.Int("rows", n))
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "serve the API without running scheduled cycles")
	rootCmd.AddCommand(serveCmd)
}
