package ai

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sells-group/wrestlebot/internal/resilience"
)

var errDown = errors.New("connection refused")

// fakeBackend replies with a fixed string or error and counts calls.
type fakeBackend struct {
	mu        sync.Mutex
	reply     string
	err       error
	healthErr error
	calls     int
	health    int
	last      Request
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(_ context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeBackend) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health++
	return f.healthErr
}

func (f *fakeBackend) set(reply string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = reply
	f.err = err
}

func (f *fakeBackend) counts() (calls, health int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.health
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 12, 0, 10, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestGateway wires a gateway whose breaker, budget and health cache share
// one fake clock.
func newTestGateway(b Backend, limits resilience.BudgetLimits) (*Gateway, *fakeClock) {
	clock := newFakeClock()
	breaker := resilience.NewCircuitBreaker("ai", resilience.DefaultCircuitBreakerConfig())
	breaker.SetClock(clock.Now)
	budget := resilience.NewRateBudget("ai", limits)
	budget.SetClock(clock.Now)
	g := NewGateway(b, Options{Breaker: breaker, Budget: budget})
	g.SetClock(clock.Now)
	return g, clock
}
