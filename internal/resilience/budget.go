package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrBudgetExhausted is returned when a call would exceed a rate window.
var ErrBudgetExhausted = eris.New("resilience: rate budget exhausted")

// Window is a fixed calendar rate window.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

var windows = []Window{WindowMinute, WindowHour, WindowDay}

// BudgetLimits caps calls per window. Zero means unlimited.
type BudgetLimits struct {
	PerMinute int `yaml:"per_minute" mapstructure:"per_minute" json:"per_minute"`
	PerHour   int `yaml:"per_hour" mapstructure:"per_hour" json:"per_hour"`
	PerDay    int `yaml:"per_day" mapstructure:"per_day" json:"per_day"`
}

func (l BudgetLimits) limit(w Window) int {
	switch w {
	case WindowMinute:
		return l.PerMinute
	case WindowHour:
		return l.PerHour
	default:
		return l.PerDay
	}
}

func windowStart(w Window, t time.Time) time.Time {
	t = t.UTC()
	switch w {
	case WindowMinute:
		return t.Truncate(time.Minute)
	case WindowHour:
		return t.Truncate(time.Hour)
	default:
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

func windowEnd(w Window, start time.Time) time.Time {
	switch w {
	case WindowMinute:
		return start.Add(time.Minute)
	case WindowHour:
		return start.Add(time.Hour)
	default:
		return start.AddDate(0, 0, 1)
	}
}

type counter struct {
	start time.Time
	used  int
}

// WindowUsage reports one window of a budget.
type WindowUsage struct {
	Used     int       `json:"used"`
	Limit    int       `json:"limit"`
	ResetsAt time.Time `json:"resets_at"`
}

// BudgetSnapshot is a point-in-time view of a budget.
type BudgetSnapshot struct {
	Name    string                 `json:"name"`
	Windows map[Window]WindowUsage `json:"windows"`
	Refused int                    `json:"refused"`
}

// RateBudget counts calls to one logical source per minute, hour and day.
// The check and the increment happen under one lock.
type RateBudget struct {
	name   string
	limits BudgetLimits

	mu       sync.Mutex
	counters map[Window]*counter
	refused  int
	nowFunc  func() time.Time
}

// NewRateBudget creates a budget.
func NewRateBudget(name string, limits BudgetLimits) *RateBudget {
	return &RateBudget{
		name:     name,
		limits:   limits,
		counters: make(map[Window]*counter, len(windows)),
		nowFunc:  time.Now,
	}
}

// SetClock replaces the budget's time source.
func (b *RateBudget) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nowFunc = now
}

// Name returns the source name.
func (b *RateBudget) Name() string { return b.name }

// SetLimits replaces the limits. Calls already counted in the current windows
// still count against the new limits.
func (b *RateBudget) SetLimits(l BudgetLimits) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits = l
}

// Limits returns the configured limits.
func (b *RateBudget) Limits() BudgetLimits {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limits
}

// Allow reports whether one more call fits every window, without recording it.
func (b *RateBudget) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkLocked(b.nowFunc())
}

// Take records one call if it fits every window, and refuses it otherwise.
func (b *RateBudget) Take() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFunc()
	if err := b.checkLocked(now); err != nil {
		b.refused++
		return err
	}
	for _, w := range windows {
		b.counterLocked(w, now).used++
	}
	return nil
}

// Record counts a call that was dispatched without Take.
func (b *RateBudget) Record() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFunc()
	for _, w := range windows {
		b.counterLocked(w, now).used++
	}
}

func (b *RateBudget) checkLocked(now time.Time) error {
	for _, w := range windows {
		limit := b.limits.limit(w)
		if limit <= 0 {
			continue
		}
		if b.counterLocked(w, now).used >= limit {
			return eris.Wrapf(ErrBudgetExhausted, "%s per-%s limit %d", b.name, w, limit)
		}
	}
	return nil
}

// counterLocked returns the counter for w, rolling it over when its window
// has passed.
func (b *RateBudget) counterLocked(w Window, now time.Time) *counter {
	start := windowStart(w, now)
	c, ok := b.counters[w]
	if !ok || !c.start.Equal(start) {
		c = &counter{start: start}
		b.counters[w] = c
	}
	return c
}

// Remaining returns the calls left in the tightest window, or -1 when the
// budget is unlimited.
func (b *RateBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFunc()
	remaining := -1
	for _, w := range windows {
		limit := b.limits.limit(w)
		if limit <= 0 {
			continue
		}
		left := limit - b.counterLocked(w, now).used
		if left < 0 {
			left = 0
		}
		if remaining < 0 || left < remaining {
			remaining = left
		}
	}
	return remaining
}

// Snapshot returns per-window usage.
func (b *RateBudget) Snapshot() BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFunc()
	s := BudgetSnapshot{Name: b.name, Windows: make(map[Window]WindowUsage, len(windows)), Refused: b.refused}
	for _, w := range windows {
		c := b.counterLocked(w, now)
		s.Windows[w] = WindowUsage{Used: c.used, Limit: b.limits.limit(w), ResetsAt: windowEnd(w, c.start)}
	}
	return s
}

// Budgets is a registry of per-source rate budgets.
type Budgets struct {
	mu       sync.RWMutex
	budgets  map[string]*RateBudget
	defaults BudgetLimits
}

// NewBudgets creates a registry. Sources without explicit limits get defaults.
func NewBudgets(defaults BudgetLimits, limits map[string]BudgetLimits) *Budgets {
	bs := &Budgets{budgets: make(map[string]*RateBudget), defaults: defaults}
	for name, l := range limits {
		bs.budgets[name] = NewRateBudget(name, l)
	}
	return bs
}

// Get returns the budget for source, creating it with defaults if needed.
func (bs *Budgets) Get(source string) *RateBudget {
	bs.mu.RLock()
	b, ok := bs.budgets[source]
	bs.mu.RUnlock()
	if ok {
		return b
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if b, ok = bs.budgets[source]; ok {
		return b
	}
	b = NewRateBudget(source, bs.defaults)
	bs.budgets[source] = b
	return b
}

// Snapshots returns every budget's usage ordered by name.
func (bs *Budgets) Snapshots() []BudgetSnapshot {
	bs.mu.RLock()
	names := make([]string, 0, len(bs.budgets))
	for n := range bs.budgets {
		names = append(names, n)
	}
	bs.mu.RUnlock()
	sort.Strings(names)

	out := make([]BudgetSnapshot, 0, len(names))
	for _, n := range names {
		out = append(out, bs.Get(n).Snapshot())
	}
	return out
}
