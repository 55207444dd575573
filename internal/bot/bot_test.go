package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/settings"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

func TestRun_DiscoveryAddsRecordsAndStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	src := &fakeSource{names: []string{"Kevin Nash", "Scott Hall"}}
	b := h.bot(Deps{Discoverers: []source.Discoverer{src}})

	res := b.Run(ctx, CycleDiscovery, RunOptions{})
	require.Equal(t, StatusOK, res.Status, res.Error)
	assert.NotEmpty(t, res.BatchID)
	require.Contains(t, res.Discovery, model.KindWrestler)
	assert.Equal(t, 2, res.Discovery[model.KindWrestler].Added)
	assert.Equal(t, 2, res.Counts[model.KindWrestler])

	entries, err := h.ledger.List(ctx, model.ActivityFilter{BatchID: res.BatchID})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	day, err := h.store.GetDailyStats(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, day.CyclesRun)
	assert.Equal(t, 2, day.Discoveries)
	assert.Equal(t, 0, day.Errors)
}

func TestRun_EnrichmentFillsFields(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := model.NewRecord(model.KindWrestler, "Bret Hart")
	require.NoError(t, h.store.Save(ctx, r, nil))

	facts := &fakeFacts{facts: map[string]map[string]any{
		"Bret Hart": {model.FieldHometown: "Calgary"},
	}}
	b := h.bot(Deps{Facts: facts})

	res := b.Run(ctx, CycleEnrichment, RunOptions{})
	require.Equal(t, StatusOK, res.Status, res.Error)
	require.Contains(t, res.Enrichment, model.KindWrestler)
	assert.Equal(t, 1, res.Enrichment[model.KindWrestler].Enriched)
	assert.Equal(t, 1, facts.calls)

	got, err := h.store.GetByID(ctx, model.KindWrestler, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Calgary", got.Text(model.FieldHometown))

	day, err := h.store.GetDailyStats(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, day.Enrichments)
	assert.Equal(t, 1, day.FactCalls)
}

func TestRun_Disabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.set(t, settings.KeyEnabled, false)
	src := &fakeSource{names: []string{"Kevin Nash"}}
	b := h.bot(Deps{Discoverers: []source.Discoverer{src}})

	res := b.Run(ctx, CycleDiscovery, RunOptions{})
	assert.Equal(t, StatusDisabled, res.Status)
	assert.Zero(t, src.calls)

	day, err := h.store.GetDailyStats(ctx, fixedNow)
	require.NoError(t, err)
	assert.Zero(t, day.CyclesRun)
}

func TestRun_HourlyCapExhausted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.set(t, settings.KeyMaxOperationsPerHour, 2)
	for i := 0; i < 2; i++ {
		require.NoError(t, h.ledger.Append(ctx, model.ActivityEntry{
			Action: model.ActionEnrich, Kind: model.KindWrestler, EntityID: int64(i + 1), Success: true,
		}))
	}
	src := &fakeSource{names: []string{"Kevin Nash"}}
	b := h.bot(Deps{Discoverers: []source.Discoverer{src}})

	res := b.Run(ctx, CycleDiscovery, RunOptions{})
	assert.Equal(t, StatusRateLimited, res.Status)
	assert.Zero(t, src.calls)

	// Cleanup is not bound by the hourly cap.
	res = b.Run(ctx, CycleCleanup, RunOptions{})
	assert.Equal(t, StatusOK, res.Status, res.Error)
	assert.NotNil(t, res.Cleanup)
}

func TestRun_CapLimitsInserts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.set(t, settings.KeyMaxOperationsPerHour, 1)
	src := &fakeSource{names: []string{"Kevin Nash", "Scott Hall", "Sean Waltman"}}
	b := h.bot(Deps{Discoverers: []source.Discoverer{src}})

	res := b.Run(ctx, CycleDiscovery, RunOptions{})
	require.Equal(t, StatusOK, res.Status, res.Error)
	assert.Equal(t, 1, res.Discovery[model.KindWrestler].Added)
	assert.True(t, res.RateLimited)
}

func TestRun_DryRunSkipsWritesAndStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	src := &fakeSource{names: []string{"Kevin Nash"}}
	b := h.bot(Deps{Discoverers: []source.Discoverer{src}})

	res := b.Run(ctx, CycleDiscovery, RunOptions{DryRun: true})
	require.Equal(t, StatusOK, res.Status, res.Error)
	assert.True(t, res.DryRun)
	require.NotNil(t, res.Stats)
	assert.Equal(t, 1, res.Stats.CyclesRun)

	recs, err := h.store.Query(ctx, store.Filter{Kind: model.KindWrestler})
	require.NoError(t, err)
	assert.Empty(t, recs)

	day, err := h.store.GetDailyStats(ctx, fixedNow)
	require.NoError(t, err)
	assert.Zero(t, day.CyclesRun)
}

func TestRun_BatchSizeOverride(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	src := &fakeSource{names: []string{"Kevin Nash", "Scott Hall", "Sean Waltman"}}
	b := h.bot(Deps{Discoverers: []source.Discoverer{src}})

	res := b.Run(ctx, CycleDiscovery, RunOptions{BatchSize: 1})
	require.Equal(t, StatusOK, res.Status, res.Error)
	assert.Equal(t, 1, res.Discovery[model.KindWrestler].Added)
}

func TestRun_PanicBecomesError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.bot(Deps{Discoverers: []source.Discoverer{&fakeSource{panics: true}}})

	res := b.Run(ctx, CycleDiscovery, RunOptions{})
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "panic: boom")
	assert.Equal(t, 1, res.Errors)

	day, err := h.store.GetDailyStats(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, day.CyclesRun)
	assert.Equal(t, 1, day.Errors)
}

func TestRun_SettingsFailureUsesDefaults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	src := &fakeSource{names: []string{"Kevin Nash"}}
	b := h.bot(Deps{Settings: brokenSettings{}, Discoverers: []source.Discoverer{src}})

	res := b.Run(ctx, CycleDiscovery, RunOptions{})
	require.Equal(t, StatusOK, res.Status, res.Error)
	assert.Equal(t, 1, res.Discovery[model.KindWrestler].Added)
}

func TestRun_UnknownCycle(t *testing.T) {
	h := newHarness(t)
	b := h.bot(Deps{})
	res := b.Run(context.Background(), Cycle("nap"), RunOptions{})
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "unknown cycle")
}

func TestRun_CleanupAccumulatesDailyStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b := h.bot(Deps{})

	for i := 0; i < 2; i++ {
		res := b.Run(ctx, CycleCleanup, RunOptions{})
		require.Equal(t, StatusOK, res.Status, res.Error)
	}
	day, err := h.store.GetDailyStats(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 2, day.CyclesRun)

	last := b.Last()
	require.Contains(t, last, CycleCleanup)
	assert.Equal(t, StatusOK, last[CycleCleanup].Status)
}

func TestRunAll_RunsEveryCycle(t *testing.T) {
	h := newHarness(t)
	b := h.bot(Deps{})
	results := b.RunAll(context.Background(), RunOptions{DryRun: true})
	require.Len(t, results, len(Cycles))
	for i, res := range results {
		assert.Equal(t, Cycles[i], res.Cycle)
		assert.Equal(t, StatusOK, res.Status, res.Error)
	}
}

func TestScheduler_RejectsBadSpecs(t *testing.T) {
	_, err := NewScheduler(newBlockingRunner(), map[Cycle]string{CycleCleanup: "not a schedule"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse schedule for cleanup")

	_, err = NewScheduler(newBlockingRunner(), map[Cycle]string{"nap": "@every 1m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown cycle")
}

func TestScheduler_SpecsAndNext(t *testing.T) {
	s, err := NewScheduler(newBlockingRunner(), map[Cycle]string{
		CycleEnrichment: "@every 15m",
		CycleCleanup:    "",
	})
	require.NoError(t, err)
	assert.Equal(t, map[Cycle]string{CycleEnrichment: "@every 15m"}, s.Specs())

	next := s.Next()
	require.Contains(t, next, CycleEnrichment)
	assert.True(t, next[CycleEnrichment].After(time.Now()))

	_, err = NewScheduler(newBlockingRunner(), DefaultSchedule)
	require.NoError(t, err)
}

func TestScheduler_TriggerDoesNotOverlap(t *testing.T) {
	runner := newBlockingRunner()
	s, err := NewScheduler(runner, nil)
	require.NoError(t, err)
	s.Start(context.Background())
	defer s.Stop()

	require.True(t, s.Trigger(CycleEnrichment))
	assert.Equal(t, CycleEnrichment, <-runner.started)
	assert.True(t, s.Running(CycleEnrichment))
	assert.False(t, s.Trigger(CycleEnrichment))

	require.True(t, s.Trigger(CycleCleanup))
	<-runner.started

	close(runner.release)
	require.Eventually(t, func() bool {
		return !s.Running(CycleEnrichment) && !s.Running(CycleCleanup)
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, runner.count(CycleEnrichment))
	assert.Equal(t, 1, runner.count(CycleCleanup))
}
