package discovery

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/wrestlebot/internal/ai"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "discovery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	s.SetClock(func() time.Time { return fixedNow })
	return s
}

func seed(t *testing.T, s store.Repository, r *model.Record) *model.Record {
	t.Helper()
	require.NoError(t, s.Save(context.Background(), r, nil))
	return r
}

func newTestDiscoverer(deps Deps, opts Options) (*Discoverer, *recordingLedger) {
	led := &recordingLedger{}
	if deps.Ledger == nil {
		deps.Ledger = led
	}
	d := New(deps, opts)
	d.SetClock(func() time.Time { return fixedNow })
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d, led
}

type recordingLedger struct {
	mu      sync.Mutex
	entries []model.ActivityEntry
}

func (l *recordingLedger) Append(_ context.Context, e model.ActivityEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

// fakeSource returns fixed candidates, honouring skip the way the real
// adapters do.
type fakeSource struct {
	name       string
	candidates []source.Candidate
	err        error
	calls      int
	skipped    []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Discover(_ context.Context, kind model.Kind, limit int, skip func(string) bool) ([]source.Candidate, error) {
	f.calls++
	var out []source.Candidate
	for _, c := range f.candidates {
		if len(out) >= limit {
			break
		}
		if skip != nil && skip(c.Name) {
			f.skipped = append(f.skipped, c.Name)
			continue
		}
		c.Kind = kind
		if c.Source == "" {
			c.Source = f.name
		}
		out = append(out, c)
	}
	return out, f.err
}

func candidates(names ...string) []source.Candidate {
	out := make([]source.Candidate, len(names))
	for i, n := range names {
		out[i] = source.Candidate{Name: n, SourceURL: "https://example.org/" + n}
	}
	return out
}

type fakeVerifier struct {
	verdicts map[string]ai.Verdict
	calls    int
}

func (f *fakeVerifier) VerifyFact(_ context.Context, _ model.Kind, data map[string]any) ai.Verdict {
	f.calls++
	name, _ := data["name"].(string)
	if v, ok := f.verdicts[name]; ok {
		return v
	}
	return ai.Verdict{Valid: true, Confidence: 0.9, Reasoning: "looks fine", AIUsed: true}
}

// failingInsertRepo refuses to insert one name.
type failingInsertRepo struct {
	store.Repository
	failName string
}

func (r *failingInsertRepo) Save(ctx context.Context, rec *model.Record, changed []string) error {
	if rec.ID == 0 && rec.Name == r.failName {
		return errors.New("unique constraint failed")
	}
	return r.Repository.Save(ctx, rec, changed)
}
