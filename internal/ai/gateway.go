// Package ai wraps an optional inference backend behind a circuit breaker, a
// call budget and a response cache. Every operation has a non-AI fallback;
// unavailability is a normal outcome, reported as ErrUnavailable.
package ai

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/cache"
	"github.com/sells-group/wrestlebot/internal/resilience"
)

// ErrUnavailable means the gateway did not produce an AI answer: no backend,
// disabled, circuit open, budget exhausted or the call failed. Callers take
// their fallback path.
var ErrUnavailable = eris.New("ai: unavailable")

// DefaultHealthTTL is how long a health check result is reused.
const DefaultHealthTTL = 60 * time.Second

// Options configures a Gateway.
type Options struct {
	Breaker   *resilience.CircuitBreaker
	Budget    *resilience.RateBudget
	Cache     cache.Cache
	HealthTTL time.Duration
	// LookupTTL and GeneratedTTL override the cache lifetimes.
	LookupTTL    time.Duration
	GeneratedTTL time.Duration
}

// Gateway is the single entry point to AI assistance. It is safe for
// concurrent use; breaker and budget carry their own locks.
type Gateway struct {
	backend      Backend
	breaker      *resilience.CircuitBreaker
	budget       *resilience.RateBudget
	cache        cache.Cache
	healthTTL    time.Duration
	lookupTTL    time.Duration
	generatedTTL time.Duration
	enabled      atomic.Bool
	calls        atomic.Int64
	cacheHits    atomic.Int64

	mu          sync.Mutex
	healthy     bool
	lastHealth  time.Time
	nowFunc     func() time.Time
	backendName string
}

// NewGateway creates a gateway. A nil backend yields a gateway that is never
// available. Missing options get defaults: a 3-failure/5-minute breaker, an
// unlimited budget and an in-memory cache.
func NewGateway(backend Backend, opts Options) *Gateway {
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker("ai", resilience.DefaultCircuitBreakerConfig())
	}
	if opts.Budget == nil {
		opts.Budget = resilience.NewRateBudget("ai", resilience.BudgetLimits{})
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	if opts.HealthTTL <= 0 {
		opts.HealthTTL = DefaultHealthTTL
	}
	if opts.LookupTTL <= 0 {
		opts.LookupTTL = cache.LookupTTL
	}
	if opts.GeneratedTTL <= 0 {
		opts.GeneratedTTL = cache.GeneratedTTL
	}
	g := &Gateway{
		backend:      backend,
		breaker:      opts.Breaker,
		budget:       opts.Budget,
		cache:        opts.Cache,
		healthTTL:    opts.HealthTTL,
		lookupTTL:    opts.LookupTTL,
		generatedTTL: opts.GeneratedTTL,
		nowFunc:      time.Now,
	}
	if backend != nil {
		g.backendName = backend.Name()
	}
	g.enabled.Store(true)
	return g
}

// SetClock replaces the gateway's time source (health check caching).
func (g *Gateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nowFunc = now
}

// SetEnabled toggles AI use at runtime without touching breaker state.
func (g *Gateway) SetEnabled(on bool) {
	g.enabled.Store(on)
}

// Enabled reports the runtime toggle.
func (g *Gateway) Enabled() bool {
	return g.enabled.Load()
}

// SetDailyLimit applies a per-day call cap, keeping other windows.
func (g *Gateway) SetDailyLimit(n int) {
	l := g.budget.Limits()
	l.PerDay = n
	g.budget.SetLimits(l)
}

// Breaker exposes the shared circuit breaker for status reports.
func (g *Gateway) Breaker() *resilience.CircuitBreaker { return g.breaker }

// Budget exposes the call budget for status reports.
func (g *Gateway) Budget() *resilience.RateBudget { return g.budget }

// BackendName returns the configured backend, or "" when none.
func (g *Gateway) BackendName() string { return g.backendName }

// Calls returns the number of backend calls dispatched.
func (g *Gateway) Calls() int64 { return g.calls.Load() }

// CacheHits returns the number of requests served from cache.
func (g *Gateway) CacheHits() int64 { return g.cacheHits.Load() }

// IsAvailable reports whether an AI call would currently be attempted. It
// never dispatches while the circuit is open or the budget is spent. A failed
// health check counts as a breaker failure; its result is reused for the
// health TTL.
func (g *Gateway) IsAvailable(ctx context.Context) bool {
	if g.backend == nil || !g.enabled.Load() {
		return false
	}
	if g.breaker.Allow() != nil || g.budget.Allow() != nil {
		return false
	}

	g.mu.Lock()
	now := g.nowFunc()
	if !g.lastHealth.IsZero() && now.Sub(g.lastHealth) < g.healthTTL {
		healthy := g.healthy
		g.mu.Unlock()
		return healthy
	}
	g.mu.Unlock()

	err := g.breaker.Execute(ctx, g.backend.Health)
	if err != nil {
		zap.L().Warn("ai: health check failed", zap.String("backend", g.backendName), zap.Error(err))
	}

	g.mu.Lock()
	g.healthy = err == nil
	g.lastHealth = now
	g.mu.Unlock()
	return err == nil
}

// call runs one request through cache, breaker and budget. Any refusal or
// failure is returned as ErrUnavailable.
func (g *Gateway) call(ctx context.Context, req Request, ttl time.Duration) (string, error) {
	if g.backend == nil || !g.enabled.Load() {
		return "", ErrUnavailable
	}
	log := zap.L().With(zap.String("component", "ai"), zap.String("operation", req.Operation))

	key := cache.Key(req.Operation, g.backendName, req.System, req.Prompt)
	if v, ok := g.cache.Get(ctx, key); ok {
		g.cacheHits.Add(1)
		return string(v), nil
	}

	if g.breaker.State() == resilience.CircuitOpen {
		log.Debug("ai: circuit open, skipping call")
		return "", ErrUnavailable
	}
	if err := g.budget.Take(); err != nil {
		log.Debug("ai: budget exhausted, skipping call")
		return "", ErrUnavailable
	}

	start := time.Now()
	out, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (string, error) {
		g.calls.Add(1)
		return g.backend.Generate(ctx, req)
	})
	if eris.Is(err, resilience.ErrCircuitOpen) {
		log.Debug("ai: circuit open, skipping call")
		return "", ErrUnavailable
	}
	if err != nil {
		log.Warn("ai: backend call failed",
			zap.String("backend", g.backendName),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", ErrUnavailable
	}
	g.mu.Lock()
	g.healthy = true
	g.lastHealth = g.nowFunc()
	g.mu.Unlock()

	g.cache.Set(ctx, key, []byte(out), ttl)
	log.Debug("ai: call succeeded", zap.Duration("elapsed", time.Since(start)))
	return out, nil
}
