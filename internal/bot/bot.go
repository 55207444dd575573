// Package bot is the top-level curation orchestrator. Each cycle reloads the
// runtime settings, runs one kind of work across entity kinds and records a
// daily statistics delta. Cycles never panic or return errors to the caller;
// failures are reported in the Result.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/ai"
	"github.com/sells-group/wrestlebot/internal/discovery"
	"github.com/sells-group/wrestlebot/internal/enrich"
	"github.com/sells-group/wrestlebot/internal/ledger"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/quality"
	"github.com/sells-group/wrestlebot/internal/settings"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

// Cycle names one kind of bot work.
type Cycle string

// Cycle types.
const (
	CycleDiscovery    Cycle = "discovery"
	CycleEnrichment   Cycle = "enrichment"
	CycleCleanup      Cycle = "cleanup"
	CycleVerification Cycle = "verification"
)

// Cycles lists every cycle in scheduling order.
var Cycles = []Cycle{CycleDiscovery, CycleEnrichment, CycleCleanup, CycleVerification}

// Valid reports whether c is a known cycle.
func (c Cycle) Valid() bool {
	for _, k := range Cycles {
		if c == k {
			return true
		}
	}
	return false
}

// Result statuses.
const (
	StatusOK          = "ok"
	StatusDisabled    = "disabled"
	StatusRateLimited = "rate_limited"
	StatusError       = "error"
)

// Result is the structured outcome of one cycle.
type Result struct {
	Cycle       Cycle                                `json:"cycle"`
	Status      string                               `json:"status"`
	Error       string                               `json:"error,omitempty"`
	BatchID     string                               `json:"batch_id,omitempty"`
	DryRun      bool                                 `json:"dry_run"`
	RateLimited bool                                 `json:"rate_limited,omitempty"`
	Counts      map[model.Kind]int                   `json:"counts,omitempty"`
	Errors      int                                  `json:"errors"`
	Discovery   map[model.Kind]*discovery.Result     `json:"discovery,omitempty"`
	Enrichment  map[model.Kind]*enrich.BatchResult   `json:"enrichment,omitempty"`
	Cleanup     *quality.Summary                     `json:"cleanup,omitempty"`
	Verify      *enrich.VerifyResult                 `json:"verification,omitempty"`
	Stats       *model.DailyStats                    `json:"stats,omitempty"`
	StartedAt   time.Time                            `json:"started_at"`
	DurationMS  int64                                `json:"duration_ms"`
}

// RunOptions override settings for one triggered cycle.
type RunOptions struct {
	BatchSize int  `json:"batch_size,omitempty"` // 0 uses the configured size
	DryRun    bool `json:"dry_run,omitempty"`
}

// Store is the storage the bot needs beyond the record repository.
type Store interface {
	store.Repository
	IncrementDailyStats(ctx context.Context, delta model.DailyStats) error
}

// SettingsLoader loads the current runtime settings. On failure it returns
// usable defaults alongside the error.
type SettingsLoader interface {
	Load(ctx context.Context) (settings.Settings, error)
}

// Deps are the long-lived collaborators shared by every cycle. Sources and
// the AI gateway are optional.
type Deps struct {
	Store       Store
	Ledger      *ledger.Ledger
	Settings    SettingsLoader
	Gateway     *ai.Gateway
	Facts       source.FactLookup
	Results     source.FactLookup
	Images      source.ImageSearch
	Cache       enrich.ImageCache
	Discoverers []source.Discoverer
}

// Bot runs curation cycles.
type Bot struct {
	deps  Deps
	now   func() time.Time
	order string

	mu   sync.Mutex
	last map[Cycle]*Result
}

// New creates a Bot.
func New(deps Deps) *Bot {
	return &Bot{deps: deps, now: time.Now, last: make(map[Cycle]*Result)}
}

// SetClock overrides the time source. Intended for tests.
func (b *Bot) SetClock(now func() time.Time) { b.now = now }

// Last returns the most recent result of each cycle that has run.
func (b *Bot) Last() map[Cycle]*Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Cycle]*Result, len(b.last))
	for k, v := range b.last {
		out[k] = v
	}
	return out
}

// Run executes one cycle. It never panics: errors and panics become a
// Result with status "error".
func (b *Bot) Run(ctx context.Context, cycle Cycle, opts RunOptions) (res *Result) {
	start := b.now()
	res = &Result{Cycle: cycle, DryRun: opts.DryRun, StartedAt: start.UTC(), Counts: make(map[model.Kind]int)}
	log := zap.L().With(zap.String("component", "bot"), zap.String("cycle", string(cycle)))

	defer func() {
		if r := recover(); r != nil {
			log.Error("cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
			res.Status = StatusError
			res.Error = fmt.Sprintf("panic: %v", r)
		}
		res.DurationMS = b.now().Sub(start).Milliseconds()
		b.mu.Lock()
		b.last[cycle] = res
		b.mu.Unlock()
	}()

	if !cycle.Valid() {
		res.Status = StatusError
		res.Error = fmt.Sprintf("unknown cycle %q", cycle)
		return res
	}

	cfg, err := b.deps.Settings.Load(ctx)
	if err != nil {
		log.Warn("settings unavailable, using defaults", zap.Error(err))
	}
	if !cfg.Enabled {
		log.Info("bot disabled, skipping cycle")
		res.Status = StatusDisabled
		return res
	}
	if g := b.deps.Gateway; g != nil {
		g.SetEnabled(cfg.AIEnabled)
		g.SetDailyLimit(cfg.AIMaxCallsPerDay)
	}

	res.BatchID = uuid.NewString()
	c := &cycleRun{
		bot:    b,
		cfg:    cfg,
		opts:   opts,
		res:    res,
		ledger: b.deps.Ledger.WithBatch(res.BatchID),
		log:    log.With(zap.String("batch_id", res.BatchID)),
	}
	if cycle != CycleCleanup {
		limited, err := c.reserveQuota(ctx)
		if err != nil {
			res.Status = StatusError
			res.Error = err.Error()
			return res
		}
		if limited {
			c.log.Info("hourly operations budget exhausted, skipping cycle", zap.Int("max_per_hour", cfg.MaxOperationsPerHour))
			res.Status = StatusRateLimited
			return res
		}
	}

	var aiBefore int64
	if b.deps.Gateway != nil {
		aiBefore = b.deps.Gateway.Calls()
	}

	c.log.Info("cycle starting", zap.Bool("dry_run", opts.DryRun))
	var stats model.DailyStats
	switch cycle {
	case CycleDiscovery:
		stats, err = c.discovery(ctx)
	case CycleEnrichment:
		stats, err = c.enrichment(ctx)
	case CycleCleanup:
		stats, err = c.cleanup(ctx)
	case CycleVerification:
		stats, err = c.verification(ctx)
	}
	if err != nil {
		c.log.Error("cycle failed", zap.Error(err))
		res.Status = StatusError
		res.Error = err.Error()
	} else {
		res.Status = StatusOK
	}

	stats.CyclesRun = 1
	stats.Errors = res.Errors
	if b.deps.Gateway != nil {
		stats.AICalls = int(b.deps.Gateway.Calls() - aiBefore)
	}
	stats.TotalDurationMS = b.now().Sub(start).Milliseconds()
	stats.Date = model.Day(b.now())
	res.Stats = &stats
	if !opts.DryRun {
		if err := b.deps.Store.IncrementDailyStats(ctx, stats); err != nil {
			c.log.Warn("daily stats update failed", zap.Error(err))
		}
	}

	c.log.Info("cycle complete",
		zap.String("status", res.Status),
		zap.Int("errors", res.Errors),
		zap.Bool("rate_limited", res.RateLimited),
		zap.Int64("duration_ms", b.now().Sub(start).Milliseconds()),
	)
	return res
}

// RunAll runs every cycle in order and returns their results.
func (b *Bot) RunAll(ctx context.Context, opts RunOptions) []*Result {
	out := make([]*Result, 0, len(Cycles))
	for _, c := range Cycles {
		if ctx.Err() != nil {
			break
		}
		out = append(out, b.Run(ctx, c, opts))
	}
	return out
}
