package bot

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/wrestlebot/internal/ledger"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/settings"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store    *store.SQLiteStore
	ledger   *ledger.Ledger
	settings *settings.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	clock := func() time.Time { return fixedNow }
	s.SetClock(clock)

	led := ledger.New(s)
	led.SetClock(clock)
	svc := settings.NewService(s)
	svc.SetClock(clock)

	h := &harness{store: s, ledger: led, settings: svc}
	h.set(t, settings.KeyPauseBetweenOperationsMS, 0)
	h.set(t, settings.KeyPriorityEntities, []string{"wrestler"})
	h.set(t, settings.KeyRequireVerification, false)
	return h
}

func (h *harness) set(t *testing.T, key string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, h.settings.Set(context.Background(), key, raw))
}

func (h *harness) bot(deps Deps) *Bot {
	deps.Store = h.store
	deps.Ledger = h.ledger
	if deps.Settings == nil {
		deps.Settings = h.settings
	}
	b := New(deps)
	b.SetClock(func() time.Time { return fixedNow })
	b.order = store.OrderID
	return b
}

type fakeSource struct {
	mu     sync.Mutex
	names  []string
	panics bool
	calls  int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Discover(_ context.Context, kind model.Kind, limit int, skip func(string) bool) ([]source.Candidate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	var out []source.Candidate
	for _, n := range f.names {
		if len(out) >= limit {
			break
		}
		if skip != nil && skip(n) {
			continue
		}
		out = append(out, source.Candidate{Name: n, Kind: kind, Source: "fake", SourceURL: "https://example.org/" + n})
	}
	return out, nil
}

type fakeFacts struct {
	facts map[string]map[string]any
	calls int
}

func (f *fakeFacts) Name() string { return "fake" }

func (f *fakeFacts) LookupByName(_ context.Context, _ model.Kind, name string) (*source.Facts, error) {
	f.calls++
	fields, ok := f.facts[name]
	if !ok {
		return nil, nil
	}
	return &source.Facts{Source: "fake", Fields: fields, Links: map[string]string{}}, nil
}

// brokenSettings fails to load and falls back to defaults.
type brokenSettings struct{}

func (brokenSettings) Load(context.Context) (settings.Settings, error) {
	cfg := settings.Defaults()
	cfg.PauseBetweenOperationsMS = 0
	cfg.PriorityEntities = []model.Kind{model.KindWrestler}
	cfg.RequireVerification = false
	return cfg, errors.New("settings table missing")
}

// blockingRunner holds every cycle until release is closed.
type blockingRunner struct {
	mu      sync.Mutex
	started chan Cycle
	release chan struct{}
	runs    map[Cycle]int
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan Cycle, 8), release: make(chan struct{}), runs: make(map[Cycle]int)}
}

func (r *blockingRunner) Run(ctx context.Context, cycle Cycle, _ RunOptions) *Result {
	r.mu.Lock()
	r.runs[cycle]++
	r.mu.Unlock()
	r.started <- cycle
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return &Result{Cycle: cycle, Status: StatusOK}
}

func (r *blockingRunner) count(c Cycle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[c]
}
