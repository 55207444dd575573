package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/bot"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/monitoring"
	"github.com/sells-group/wrestlebot/internal/quality"
	"github.com/sells-group/wrestlebot/internal/scorer"
	"github.com/sells-group/wrestlebot/internal/settings"
	"github.com/sells-group/wrestlebot/internal/store"
)

// maxBodyBytes caps admin request bodies.
const maxBodyBytes = 1 << 20

type cycleRunner interface {
	Run(ctx context.Context, cycle bot.Cycle, opts bot.RunOptions) *bot.Result
}

type statusCollector interface {
	Collect(ctx context.Context, lookbackHours int) *monitoring.Status
}

type activityStats interface {
	Stats(ctx context.Context, hours int) (*model.ActivityStats, error)
}

type settingsAPI interface {
	Load(ctx context.Context) (settings.Settings, error)
	Get(ctx context.Context, key string) (*settings.Entry, error)
	List(ctx context.Context) ([]settings.Entry, error)
	Set(ctx context.Context, key string, raw json.RawMessage) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// adminServer serves the administrative HTTP surface.
type adminServer struct {
	runner   cycleRunner
	status   statusCollector
	activity activityStats
	settings settingsAPI
	repo     store.Repository
	db       pinger
	origins  []string
}

func newAdminServer(e *env, origins []string) *adminServer {
	return &adminServer{
		runner:   e.Bot,
		status:   e.Collector,
		activity: e.Ledger,
		settings: e.Settings,
		repo:     e.Store,
		db:       e.Store,
		origins:  origins,
	}
}

func (s *adminServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/activity", s.handleActivity)
	r.Post("/cycles/{type}", s.handleCycle)
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", s.handleListSettings)
		r.Get("/{key}", s.handleGetSetting)
		r.Put("/{key}", s.handleSetSetting)
	})
	r.Route("/records/{kind}/{id}", func(r chi.Router) {
		r.Get("/score", s.handleScore)
		r.Get("/quality", s.handleQuality)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("admin request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *adminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *adminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	hours, ok := hoursParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.status.Collect(r.Context(), hours))
}

func (s *adminServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	hours, ok := hoursParam(w, r)
	if !ok {
		return
	}
	st, err := s.activity.Stats(r.Context(), hours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *adminServer) handleCycle(w http.ResponseWriter, r *http.Request) {
	cycle := bot.Cycle(chi.URLParam(r, "type"))
	if !cycle.Valid() {
		writeError(w, http.StatusNotFound, eris.Errorf("unknown cycle %q", cycle))
		return
	}
	var opts bot.RunOptions
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &opts); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
			return
		}
	}
	if opts.BatchSize < 0 {
		writeError(w, http.StatusBadRequest, eris.New("batch_size must be >= 0"))
		return
	}
	writeJSON(w, http.StatusOK, s.runner.Run(r.Context(), cycle, opts))
}

func (s *adminServer) handleListSettings(w http.ResponseWriter, r *http.Request) {
	entries, err := s.settings.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *adminServer) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !settings.Known(key) {
		writeError(w, http.StatusNotFound, eris.Errorf("unknown setting %q", key))
		return
	}
	e, err := s.settings.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *adminServer) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !settings.Known(key) {
		writeError(w, http.StatusNotFound, eris.Errorf("unknown setting %q", key))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	raw := json.RawMessage(body)
	// Accept both a bare JSON value and {"value": ...}.
	var wrapped struct {
		Value json.RawMessage `json:"value"`
	}
	if json.Unmarshal(body, &wrapped) == nil && len(wrapped.Value) > 0 {
		raw = wrapped.Value
	}
	if !json.Valid(raw) {
		writeError(w, http.StatusBadRequest, eris.New("value must be JSON"))
		return
	}
	if err := s.settings.Set(r.Context(), key, raw); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	e, err := s.settings.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *adminServer) record(w http.ResponseWriter, r *http.Request) (*model.Record, bool) {
	kind, err := model.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, eris.Errorf("invalid record id %q", chi.URLParam(r, "id")))
		return nil, false
	}
	rec, err := s.repo.GetByID(r.Context(), kind, id)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return rec, true
}

func (s *adminServer) handleScore(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.record(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, scorer.Score(rec))
}

func (s *adminServer) handleQuality(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.record(w, r)
	if !ok {
		return
	}
	cfg, err := s.settings.Load(r.Context())
	if err != nil {
		zap.L().Warn("settings unavailable, using defaults", zap.Error(err))
	}
	issues := quality.NewChecker(cfg.OrphanGrace()).Check(rec)
	if issues == nil {
		issues = []quality.Issue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":      rec.Kind,
		"entity_id": rec.ID,
		"name":      rec.Name,
		"issues":    issues,
	})
}

func hoursParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("hours")
	if v == "" {
		return 24, true
	}
	h, err := strconv.Atoi(v)
	if err != nil || h <= 0 || h > 24*90 {
		writeError(w, http.StatusBadRequest, eris.Errorf("invalid hours %q", v))
		return 0, false
	}
	return h, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
