package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/ai"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/resilience"
	"github.com/sells-group/wrestlebot/internal/settings"
)

// Status is a point-in-time view of bot health.
type Status struct {
	Enabled     bool                        `json:"enabled"`
	AIEnabled   bool                        `json:"ai_enabled"`
	AIBackend   string                      `json:"ai_backend,omitempty"`
	AICalls     int64                       `json:"ai_calls"`
	AICacheHits int64                       `json:"ai_cache_hits"`
	Today       *model.DailyStats           `json:"today,omitempty"`
	Activity    *model.ActivityStats        `json:"activity,omitempty"`
	Breaker     *resilience.BreakerSnapshot `json:"circuit_breaker,omitempty"`
	Budgets     []resilience.BudgetSnapshot `json:"rate_budgets"`

	// Warnings lists parts of the snapshot that could not be collected.
	Warnings []string `json:"warnings,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SettingsLoader loads runtime settings.
type SettingsLoader interface {
	Load(ctx context.Context) (settings.Settings, error)
}

// DailyStatsReader reads the aggregate counters of one day.
type DailyStatsReader interface {
	GetDailyStats(ctx context.Context, day time.Time) (*model.DailyStats, error)
}

// ActivityReader aggregates ledger entries over a window.
type ActivityReader interface {
	Stats(ctx context.Context, hours int) (*model.ActivityStats, error)
}

// Sources are the collaborators a Collector reads. Gateway and Budgets are
// optional.
type Sources struct {
	Settings SettingsLoader
	Daily    DailyStatsReader
	Activity ActivityReader
	Gateway  *ai.Gateway
	Budgets  *resilience.Budgets
}

// Collector gathers status snapshots.
type Collector struct {
	src Sources
	now func() time.Time
}

// NewCollector creates a new status collector.
func NewCollector(src Sources) *Collector {
	return &Collector{src: src, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (c *Collector) SetClock(now func() time.Time) { c.now = now }

// Collect gathers a snapshot over the given lookback window. It never
// fails: parts that cannot be read are left empty and named in Warnings.
// It does not contact the AI backend.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) *Status {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := c.now().UTC()
	st := &Status{LookbackHours: lookbackHours, CollectedAt: now}
	log := zap.L().With(zap.String("component", "monitoring.collector"))
	warn := func(part string, err error) {
		log.Warn("status part unavailable", zap.String("part", part), zap.Error(err))
		st.Warnings = append(st.Warnings, part+": "+err.Error())
	}

	if c.src.Settings != nil {
		cfg, err := c.src.Settings.Load(ctx)
		if err != nil {
			warn("settings", err)
		}
		st.Enabled = cfg.Enabled
		st.AIEnabled = cfg.AIEnabled
	}

	if c.src.Daily != nil {
		today, err := c.src.Daily.GetDailyStats(ctx, now)
		if err != nil {
			warn("daily_stats", err)
		} else {
			st.Today = today
		}
	}

	if c.src.Activity != nil {
		act, err := c.src.Activity.Stats(ctx, lookbackHours)
		if err != nil {
			warn("activity", err)
		} else {
			st.Activity = act
		}
	}

	if g := c.src.Gateway; g != nil {
		st.AIBackend = g.BackendName()
		st.AICalls = g.Calls()
		st.AICacheHits = g.CacheHits()
		snap := g.Breaker().Snapshot()
		st.Breaker = &snap
		st.Budgets = append(st.Budgets, g.Budget().Snapshot())
	}
	if c.src.Budgets != nil {
		st.Budgets = append(st.Budgets, c.src.Budgets.Snapshots()...)
	}
	if st.Budgets == nil {
		st.Budgets = []resilience.BudgetSnapshot{}
	}
	return st
}
