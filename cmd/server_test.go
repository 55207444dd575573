package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wrestlebot/internal/bot"
	"github.com/sells-group/wrestlebot/internal/ledger"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/monitoring"
	"github.com/sells-group/wrestlebot/internal/settings"
	"github.com/sells-group/wrestlebot/internal/store"
)

type fakeRunner struct {
	cycle bot.Cycle
	opts  bot.RunOptions
}

func (f *fakeRunner) Run(_ context.Context, cycle bot.Cycle, opts bot.RunOptions) *bot.Result {
	f.cycle, f.opts = cycle, opts
	return &bot.Result{Cycle: cycle, Status: bot.StatusOK, DryRun: opts.DryRun}
}

type fakeCollector struct{ hours int }

func (f *fakeCollector) Collect(_ context.Context, hours int) *monitoring.Status {
	f.hours = hours
	return &monitoring.Status{Enabled: true, LookbackHours: hours}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

type testServer struct {
	*httptest.Server
	store     *store.SQLiteStore
	runner    *fakeRunner
	collector *fakeCollector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	runner := &fakeRunner{}
	collector := &fakeCollector{}
	srv := &adminServer{
		runner:   runner,
		status:   collector,
		activity: ledger.New(st),
		settings: settings.NewService(st),
		repo:     st,
		db:       st,
		origins:  []string{"*"},
	}
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: st, runner: runner, collector: collector}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthEndpoint_StoreDown(t *testing.T) {
	srv := &adminServer{db: failingPinger{}}
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "database is locked")
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/status?hours=6", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 6, ts.collector.hours)
	assert.Equal(t, true, body["enabled"])

	resp, _ = ts.do(t, http.MethodGet, "/status?hours=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCycleEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/cycles/enrichment", map[string]any{"batch_size": 3, "dry_run": true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, bot.CycleEnrichment, ts.runner.cycle)
	assert.Equal(t, bot.RunOptions{BatchSize: 3, DryRun: true}, ts.runner.opts)
	assert.Equal(t, "ok", body["status"])

	resp, _ = ts.do(t, http.MethodPost, "/cycles/cleanup", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, bot.RunOptions{}, ts.runner.opts)

	resp, _ = ts.do(t, http.MethodPost, "/cycles/nap", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/cycles/discovery", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/cycles/discovery", map[string]any{"batch_size": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSettingsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPut, "/settings/discovery_batch_size", "25")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(25), body["value"])
	assert.Equal(t, false, body["is_default"])

	resp, body = ts.do(t, http.MethodPut, "/settings/ai_enabled", map[string]any{"value": true})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["value"])

	resp, _ = ts.do(t, http.MethodPut, "/settings/discovery_batch_size", "-4")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPut, "/settings/warp_speed", "9")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/settings/discovery_batch_size", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(25), body["value"])

	list, err := http.Get(ts.URL + "/settings")
	require.NoError(t, err)
	defer list.Body.Close() //nolint:errcheck
	var entries []settings.Entry
	require.NoError(t, json.NewDecoder(list.Body).Decode(&entries))
	assert.Len(t, entries, len(settings.Keys()))
}

func TestActivityEndpoint(t *testing.T) {
	ts := newTestServer(t)
	led := ledger.New(ts.store)
	require.NoError(t, led.Append(context.Background(), model.ActivityEntry{
		Action: model.ActionDiscover, Kind: model.KindWrestler, EntityID: 1, Source: "wikipedia", Success: true,
		CreatedAt: time.Now().UTC(),
	}))

	resp, body := ts.do(t, http.MethodGet, "/activity?hours=24", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(100), body["success_rate"])
}

func TestRecordEndpoints(t *testing.T) {
	ts := newTestServer(t)
	r := model.NewRecord(model.KindVenue, "Tokyo Dome")
	require.NoError(t, ts.store.Save(context.Background(), r, nil))
	id := strconv.FormatInt(r.ID, 10)

	resp, body := ts.do(t, http.MethodGet, "/records/venue/"+id+"/score", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Tokyo Dome", body["name"])
	assert.InDelta(t, 15.0, body["percentage"], 0.01)

	resp, body = ts.do(t, http.MethodGet, "/records/venue/"+id+"/quality", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Tokyo Dome", body["name"])
	assert.NotNil(t, body["issues"])

	resp, _ = ts.do(t, http.MethodGet, "/records/venue/9999/score", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/records/spaceship/1/score", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/records/venue/abc/quality", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
