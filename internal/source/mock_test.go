package source

import (
	"context"
	"sync"

	"github.com/sells-group/wrestlebot/pkg/cagematch"
	"github.com/sells-group/wrestlebot/pkg/commons"
	"github.com/sells-group/wrestlebot/pkg/wikipedia"
)

type fakeWikipedia struct {
	mu        sync.Mutex
	boxes     map[string]wikipedia.Infobox
	search    map[string][]wikipedia.Page
	members   map[string][]wikipedia.Page
	summaries map[string]*wikipedia.Summary
	err       error
	calls     []string
}

func (f *fakeWikipedia) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeWikipedia) CategoryMembers(_ context.Context, category string, limit int) ([]wikipedia.Page, error) {
	f.record("members:" + category)
	if f.err != nil {
		return nil, f.err
	}
	pages := f.members[category]
	if limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}
	return pages, nil
}

func (f *fakeWikipedia) Search(_ context.Context, query string, _ int) ([]wikipedia.Page, error) {
	f.record("search:" + query)
	if f.err != nil {
		return nil, f.err
	}
	return f.search[query], nil
}

func (f *fakeWikipedia) Summary(_ context.Context, title string) (*wikipedia.Summary, error) {
	f.record("summary:" + title)
	return f.summaries[title], f.err
}

func (f *fakeWikipedia) Infobox(_ context.Context, title string) (wikipedia.Infobox, error) {
	f.record("infobox:" + title)
	if f.err != nil {
		return nil, f.err
	}
	box := f.boxes[title]
	if box == nil {
		return wikipedia.Infobox{}, nil
	}
	return box, nil
}

type fakeCommons struct {
	results map[string][]commons.Image
	queries []string
	err     error
}

func (f *fakeCommons) Search(_ context.Context, query string, _ int) ([]commons.Image, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

type fakeCagematch struct {
	workers  map[string][]cagematch.Listing
	profiles map[int]*cagematch.Profile
	events   []cagematch.Listing
	calls    int
}

func (f *fakeCagematch) SearchWorkers(_ context.Context, query string, _ int) ([]cagematch.Listing, error) {
	f.calls++
	return f.workers[query], nil
}

func (f *fakeCagematch) Profile(_ context.Context, _ cagematch.Page, id int) (*cagematch.Profile, error) {
	f.calls++
	return f.profiles[id], nil
}

func (f *fakeCagematch) RecentEvents(_ context.Context, limit int) ([]cagematch.Listing, error) {
	f.calls++
	if limit > 0 && len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}
