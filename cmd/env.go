package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/ai"
	"github.com/sells-group/wrestlebot/internal/bot"
	"github.com/sells-group/wrestlebot/internal/cache"
	"github.com/sells-group/wrestlebot/internal/imagecache"
	"github.com/sells-group/wrestlebot/internal/ledger"
	"github.com/sells-group/wrestlebot/internal/monitoring"
	"github.com/sells-group/wrestlebot/internal/resilience"
	"github.com/sells-group/wrestlebot/internal/settings"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
	"github.com/sells-group/wrestlebot/pkg/anthropic"
	"github.com/sells-group/wrestlebot/pkg/cagematch"
	"github.com/sells-group/wrestlebot/pkg/commons"
	"github.com/sells-group/wrestlebot/pkg/ollama"
	"github.com/sells-group/wrestlebot/pkg/wikipedia"
)

// env holds the wired collaborators shared by every command.
type env struct {
	Store     store.Store
	Ledger    *ledger.Ledger
	Settings  *settings.Service
	Gateway   *ai.Gateway
	Budgets   *resilience.Budgets
	Bot       *bot.Bot
	Collector *monitoring.Collector
}

// Close releases the store.
func (e *env) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initBackend() ai.Backend {
	switch cfg.AI.Backend {
	case "ollama":
		c := ollama.NewClient(cfg.Ollama.BaseURL, time.Duration(cfg.Ollama.TimeoutSecs)*time.Second,
			ollama.WithModel(cfg.Ollama.Model),
			ollama.WithHealthTimeout(time.Duration(cfg.Ollama.HealthTimeoutSecs)*time.Second),
		)
		return ai.NewOllamaBackend(c)
	case "anthropic":
		return ai.NewAnthropicBackend(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	default:
		return nil
	}
}

func initGateway(st store.Store) *ai.Gateway {
	return ai.NewGateway(initBackend(), ai.Options{
		Breaker: resilience.NewCircuitBreaker("ai",
			resilience.FromCircuitConfig(cfg.AI.FailureThreshold, cfg.AI.CooldownSecs)),
		Budget: resilience.NewRateBudget("ai", resilience.BudgetLimits{
			PerMinute: cfg.AI.PerMinute,
			PerHour:   cfg.AI.PerHour,
		}),
		Cache:        cache.NewStore(st),
		LookupTTL:    time.Duration(cfg.AI.LookupTTLHours) * time.Hour,
		GeneratedTTL: time.Duration(cfg.AI.GeneratedTTLDays) * 24 * time.Hour,
	})
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	led := ledger.New(st)
	svc := settings.NewService(st)
	gw := initGateway(st)
	budgets := resilience.NewBudgets(cfg.Sources.DefaultBudget, cfg.Sources.Budgets)

	src := cfg.Sources
	wiki := source.NewWikipedia(wikipedia.NewClient(
		wikipedia.WithBaseURLs(src.WikipediaAPIURL, src.WikipediaRESTURL),
		wikipedia.WithUserAgent(src.UserAgent),
		wikipedia.WithRateLimit(src.RequestsPerSec),
	), budgets.Get(source.NameWikipedia))
	cm := source.NewCagematch(cagematch.NewClient(
		cagematch.WithBaseURL(src.CagematchURL),
		cagematch.WithUserAgent(src.UserAgent),
		cagematch.WithRateLimit(src.RequestsPerSec),
	), budgets.Get(source.NameCagematch))
	images := source.NewCommons(commons.NewClient(
		commons.WithBaseURL(src.CommonsURL),
		commons.WithUserAgent(src.UserAgent),
		commons.WithRateLimit(src.RequestsPerSec),
	), budgets.Get(source.NameCommons))

	imgCache := imagecache.NewService(
		imagecache.NewDownloader(imagecache.DownloaderOptions{
			MaxBytes:  cfg.Images.MaxBytes,
			Timeout:   time.Duration(cfg.Images.TimeoutSecs) * time.Second,
			UserAgent: src.UserAgent,
			HostRPS:   cfg.Images.HostRPS,
		}),
		imagecache.NewLocalStore(cfg.Images.StorageDir, cfg.Images.PublicBaseURL),
	)

	b := bot.New(bot.Deps{
		Store:       st,
		Ledger:      led,
		Settings:    svc,
		Gateway:     gw,
		Facts:       wiki,
		Results:     cm,
		Images:      images,
		Cache:       imgCache,
		Discoverers: []source.Discoverer{wiki, cm},
	})

	collector := monitoring.NewCollector(monitoring.Sources{
		Settings: svc,
		Daily:    st,
		Activity: led,
		Gateway:  gw,
		Budgets:  budgets,
	})

	return &env{
		Store:     st,
		Ledger:    led,
		Settings:  svc,
		Gateway:   gw,
		Budgets:   budgets,
		Bot:       b,
		Collector: collector,
	}, nil
}
