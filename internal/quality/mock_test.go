package quality

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/store"
)

// mockRepo is an in-memory store.Repository that records mutations.
type mockRepo struct {
	mu      sync.Mutex
	records map[int64]*model.Record
	related map[int64]int
	saved   []int64
	deleted []int64
	saveErr error
}

func newMockRepo(records ...*model.Record) *mockRepo {
	m := &mockRepo{records: make(map[int64]*model.Record), related: make(map[int64]int)}
	for _, r := range records {
		m.records[r.ID] = r.Clone()
	}
	return m
}

func (m *mockRepo) GetByID(_ context.Context, kind model.Kind, id int64) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.Kind != kind {
		return nil, store.ErrNotFound
	}
	return r.Clone(), nil
}

func (m *mockRepo) Query(_ context.Context, f store.Filter) ([]*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Record
	for _, r := range m.records {
		if r.Kind != f.Kind || !matchName(r.Name, f) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchName(name string, f store.Filter) bool {
	l := strings.ToLower(name)
	if f.NameContains != "" && !strings.Contains(l, strings.ToLower(f.NameContains)) {
		return false
	}
	if len(f.NameIn) == 0 && len(f.NamePrefixes) == 0 {
		return true
	}
	for _, n := range f.NameIn {
		if l == strings.ToLower(n) {
			return true
		}
	}
	for _, p := range f.NamePrefixes {
		if strings.HasPrefix(l, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (m *mockRepo) Save(_ context.Context, r *model.Record, _ []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[r.ID] = r.Clone()
	m.saved = append(m.saved, r.ID)
	return nil
}

func (m *mockRepo) Delete(_ context.Context, _ model.Kind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRepo) CountRelated(_ context.Context, _ model.Kind, id int64, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.related[id], nil
}

func (m *mockRepo) Link(_ context.Context, _ model.Kind, id int64, _ string, _ model.Kind, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.related[id]++
	return nil
}

func (m *mockRepo) get(id int64) *model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// mockLedger records appended entries.
type mockLedger struct {
	mu      sync.Mutex
	entries []model.ActivityEntry
}

func (l *mockLedger) Append(_ context.Context, e model.ActivityEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *mockLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func wrestler(id int64, name string) *model.Record {
	r := model.NewRecord(model.KindWrestler, name)
	r.ID = id
	r.Relations[model.RelMatches] = 1
	return r
}
