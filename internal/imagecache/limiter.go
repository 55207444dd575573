package imagecache

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// hostLimiter paces downloads per host. It speeds up 20% after each success
// (to at most twice the initial rate) and halves after a 429 (to at least a
// quarter of it).
type hostLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	currentRate rate.Limit
}

func newHostLimiter(initial rate.Limit, burst int) *hostLimiter {
	return &hostLimiter{
		limiter:     rate.NewLimiter(initial, burst),
		initialRate: initial,
		currentRate: initial,
	}
}

func (h *hostLimiter) Wait(ctx context.Context) error {
	return h.limiter.Wait(ctx)
}

func (h *hostLimiter) onSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentRate = min(h.currentRate*1.2, h.initialRate*2)
	h.limiter.SetLimit(h.currentRate)
}

func (h *hostLimiter) onRateLimit(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentRate = max(h.currentRate*0.5, h.initialRate/4)
	h.limiter.SetLimit(h.currentRate)
	zap.L().Warn("imagecache: reducing download rate after 429",
		zap.String("host", host),
		zap.Float64("new_rate", float64(h.currentRate)),
	)
}

func (h *hostLimiter) limit() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentRate
}

// limiters hands out one hostLimiter per host.
type limiters struct {
	mu     sync.Mutex
	rps    rate.Limit
	byHost map[string]*hostLimiter
}

func newLimiters(rps float64) *limiters {
	return &limiters{rps: rate.Limit(rps), byHost: make(map[string]*hostLimiter)}
}

func (l *limiters) forHost(host string) *hostLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.byHost[host]
	if !ok {
		h = newHostLimiter(l.rps, 1)
		l.byHost[host] = h
	}
	return h
}
