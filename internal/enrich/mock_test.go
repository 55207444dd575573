package enrich

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/wrestlebot/internal/imagecache"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "enrich.db"))
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

// newTestEnricher wires deps with a recording ledger and a sleep that only
// counts pauses.
func newTestEnricher(deps Deps, opts Options) (*Enricher, *recordingLedger, *int) {
	led := &recordingLedger{}
	if deps.Ledger == nil {
		deps.Ledger = led
	}
	if opts.CandidateOrder == "" {
		opts.CandidateOrder = store.OrderID
	}
	e := New(deps, opts)
	e.SetClock(func() time.Time { return fixedNow })
	pauses := new(int)
	e.sleep = func(ctx context.Context, _ time.Duration) error {
		*pauses++
		return ctx.Err()
	}
	return e, led, pauses
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

func (l *recordingLedger) byAction(a model.Action) []model.ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.ActivityEntry
	for _, e := range l.entries {
		if e.Action == a {
			out = append(out, e)
		}
	}
	return out
}

type fakeFacts struct {
	name  string
	facts map[string]*source.Facts
	err   error
	calls []string
}

func (f *fakeFacts) Name() string { return f.name }

func (f *fakeFacts) LookupByName(_ context.Context, _ model.Kind, name string) (*source.Facts, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	return f.facts[name], nil
}

func facts(src string, fields map[string]any) *source.Facts {
	return &source.Facts{Source: src, Fields: fields, Links: map[string]string{}}
}

type fakeImages struct {
	img   *source.Image
	err   error
	calls int
}

func (f *fakeImages) Name() string { return source.NameCommons }

func (f *fakeImages) FindImage(context.Context, model.Kind, string, source.Hints) (*source.Image, error) {
	f.calls++
	return f.img, f.err
}

type fakeFetcher struct {
	calls int
	err   error
}

func (f *fakeFetcher) Download(context.Context, string) ([]byte, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("\x89PNG"), ".png", nil
}

type fakeUploader struct{ paths []string }

func (f *fakeUploader) Upload(_ context.Context, _ []byte, path string) (string, error) {
	f.paths = append(f.paths, path)
	return "https://cdn.example.com/" + path, nil
}

type fakeAI struct {
	available   bool
	bio         string
	nationality string
	unsafe      bool
	bioCalls    int
}

func (f *fakeAI) IsAvailable(context.Context) bool { return f.available }

func (f *fakeAI) GenerateBio(context.Context, *model.Record) string {
	f.bioCalls++
	return f.bio
}

func (f *fakeAI) ExtractNationality(context.Context, string) (string, bool) {
	return f.nationality, f.nationality != ""
}

func (f *fakeAI) IsSafeFromCopyright(context.Context, string) (bool, string) {
	return !f.unsafe, "test"
}

// failingSaveRepo fails every update of one record.
type failingSaveRepo struct {
	store.Repository
	failID int64
}

func (r *failingSaveRepo) Save(ctx context.Context, rec *model.Record, changed []string) error {
	if rec.ID == r.failID {
		return errors.New("disk I/O error")
	}
	return r.Repository.Save(ctx, rec, changed)
}

var _ ImageCache = (*imagecache.Service)(nil)
