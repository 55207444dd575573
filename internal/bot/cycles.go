package bot

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/wrestlebot/internal/discovery"
	"github.com/sells-group/wrestlebot/internal/enrich"
	"github.com/sells-group/wrestlebot/internal/ledger"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/quality"
	"github.com/sells-group/wrestlebot/internal/resilience"
	"github.com/sells-group/wrestlebot/internal/settings"
)

// cycleRun carries the state of one cycle invocation.
type cycleRun struct {
	bot    *Bot
	cfg    settings.Settings
	opts   RunOptions
	res    *Result
	ledger *ledger.Ledger
	quota  *resilience.Quota
	log    *zap.Logger

	mu sync.Mutex
}

// reserveQuota derives the operations allowance of this cycle from the
// hourly cap. It reports true when nothing is left.
func (c *cycleRun) reserveQuota(ctx context.Context) (bool, error) {
	remaining, err := c.ledger.OperationsRemaining(ctx, c.cfg.MaxOperationsPerHour)
	if err != nil {
		c.log.Warn("operations count unavailable, running without a cap", zap.Error(err))
		return false, nil
	}
	if remaining == 0 {
		return true, nil
	}
	c.quota = resilience.NewQuota(remaining)
	return false, nil
}

func (c *cycleRun) batchSize(configured int) int {
	if c.opts.BatchSize > 0 {
		return c.opts.BatchSize
	}
	return configured
}

// forEachKind runs fn for every priority kind, at most KindConcurrency at a
// time. A failing or panicking kind does not stop the others; the first
// failure is returned.
func (c *cycleRun) forEachKind(ctx context.Context, fn func(ctx context.Context, kind model.Kind) error) error {
	kinds := c.cfg.PriorityEntities
	if len(kinds) == 0 {
		kinds = settings.Defaults().PriorityEntities
	}
	limit := c.cfg.KindConcurrency
	if limit < 1 {
		limit = 1
	}

	var (
		g        errgroup.Group
		firstErr error
	)
	g.SetLimit(limit)
	for _, kind := range kinds {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("kind panicked", zap.String("kind", string(kind)), zap.Any("panic", r), zap.Stack("stack"))
					err = eris.Errorf("bot: panic: %v", r)
				}
				if err != nil {
					c.mu.Lock()
					c.res.Errors++
					if firstErr == nil {
						firstErr = eris.Wrapf(err, "bot: %s %s", c.res.Cycle, kind)
					}
					c.mu.Unlock()
				}
			}()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fn(ctx, kind)
		})
	}
	_ = g.Wait()
	return firstErr
}

func (c *cycleRun) discovery(ctx context.Context) (model.DailyStats, error) {
	var stats model.DailyStats
	deps := discovery.Deps{
		Repo:    c.bot.deps.Store,
		Ledger:  c.ledger,
		Sources: c.bot.deps.Discoverers,
	}
	if g := c.bot.deps.Gateway; g != nil {
		deps.Verifier = g
	}
	d := discovery.New(deps, discovery.Options{
		RequireVerification: c.cfg.RequireVerification,
		MinConfidence:       c.cfg.MinConfidenceThreshold,
		Pause:               c.cfg.Pause(),
		Quota:               c.quota,
		DryRun:              c.opts.DryRun,
	})
	d.SetClock(c.bot.now)
	size := c.batchSize(c.cfg.DiscoveryBatchSize)

	c.res.Discovery = make(map[model.Kind]*discovery.Result)
	err := c.forEachKind(ctx, func(ctx context.Context, kind model.Kind) error {
		r, err := d.Run(ctx, kind, size)
		if r != nil {
			c.mu.Lock()
			c.res.Discovery[kind] = r
			c.res.Counts[kind] = r.Added
			c.res.Errors += r.Errors
			c.res.RateLimited = c.res.RateLimited || r.RateLimited
			stats.Discoveries += r.Added
			c.mu.Unlock()
		}
		return err
	})
	return stats, err
}

func (c *cycleRun) enricher() *enrich.Enricher {
	deps := enrich.Deps{
		Repo:    c.bot.deps.Store,
		Ledger:  c.ledger,
		Facts:   c.bot.deps.Facts,
		Results: c.bot.deps.Results,
		Images:  c.bot.deps.Images,
		Cache:   c.bot.deps.Cache,
	}
	if g := c.bot.deps.Gateway; g != nil {
		deps.AI = g
	}
	e := enrich.New(deps, enrich.Options{
		Pause:          c.cfg.Pause(),
		GenerateBios:   c.cfg.AIGenerateBios,
		ImageLimit:     c.cfg.ImageBatchSize,
		Quota:          c.quota,
		DryRun:         c.opts.DryRun,
		CandidateOrder: c.bot.order,
	})
	e.SetClock(c.bot.now)
	return e
}

func (c *cycleRun) enrichment(ctx context.Context) (model.DailyStats, error) {
	var stats model.DailyStats
	e := c.enricher()
	size := c.batchSize(c.cfg.EnrichmentBatchSize)

	c.res.Enrichment = make(map[model.Kind]*enrich.BatchResult)
	err := c.forEachKind(ctx, func(ctx context.Context, kind model.Kind) error {
		r, err := e.EnrichBatch(ctx, kind, c.cfg.MinCompletenessScore, size)
		if r != nil {
			c.mu.Lock()
			c.res.Enrichment[kind] = r
			c.res.Counts[kind] = r.Enriched
			c.res.Errors += r.Errors
			c.res.RateLimited = c.res.RateLimited || r.RateLimited
			stats.Enrichments += r.Enriched
			stats.ImagesAdded += r.ImagesAdded
			stats.FactCalls += r.FactCalls
			stats.ImageCalls += r.ImageCalls
			c.mu.Unlock()
		}
		return err
	})
	return stats, err
}

func (c *cycleRun) cleanup(ctx context.Context) (model.DailyStats, error) {
	var stats model.DailyStats
	cleaner := quality.NewCleaner(c.bot.deps.Store, c.ledger, c.checker(), quality.CleanerOptions{
		BatchSize:       c.batchSize(c.cfg.CleanupBatchSize),
		DuplicateSample: c.cfg.DuplicateSampleLimit,
	})
	sum, err := cleaner.RunCleanupCycle(ctx, model.Kinds, c.opts.DryRun)
	if sum != nil {
		c.res.Cleanup = sum
		c.res.Errors += sum.Errors
		stats.Cleanups = sum.AutoFixed + sum.InvalidRemoved + sum.MultiNameSplit + sum.StablesFlagged
	}
	if err != nil {
		return stats, eris.Wrap(err, "bot: cleanup")
	}
	return stats, nil
}

func (c *cycleRun) checker() *quality.Checker {
	ch := quality.NewChecker(c.cfg.OrphanGrace())
	ch.Now = c.bot.now
	return ch
}

func (c *cycleRun) verification(ctx context.Context) (model.DailyStats, error) {
	var stats model.DailyStats
	r, err := c.enricher().RunVerification(ctx, c.batchSize(c.cfg.VerificationBatchSize))
	if r != nil {
		c.res.Verify = r
		c.res.Counts[model.KindWrestler] = r.Checked
		c.res.Errors += r.Errors
		c.res.RateLimited = r.RateLimited
		stats.Verifications = r.Checked
		stats.FactCalls = r.FactCalls
		stats.ResultsCalls = r.ResultsCalls
	}
	if err != nil {
		return stats, eris.Wrap(err, "bot: verification")
	}
	return stats, nil
}
