package bot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultSchedule is the cadence used when no schedule is configured.
var DefaultSchedule = map[Cycle]string{
	CycleDiscovery:    "@every 30m",
	CycleEnrichment:   "@every 15m",
	CycleCleanup:      "0 3 * * *",
	CycleVerification: "@every 6h",
}

// Runner runs one cycle.
type Runner interface {
	Run(ctx context.Context, cycle Cycle, opts RunOptions) *Result
}

// Scheduler triggers cycles on cron schedules. A cycle that is still
// running when its next tick fires is skipped rather than overlapped.
type Scheduler struct {
	runner Runner
	cron   *cron.Cron
	specs  map[Cycle]string
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[Cycle]bool
	wg      sync.WaitGroup
}

// NewScheduler parses specs (five-field cron expressions or descriptors
// such as "@every 15m"). An empty spec disables that cycle.
func NewScheduler(runner Runner, specs map[Cycle]string) (*Scheduler, error) {
	s := &Scheduler{
		runner:  runner,
		cron:    cron.New(),
		specs:   make(map[Cycle]string),
		running: make(map[Cycle]bool),
	}
	for cycle, spec := range specs {
		if spec == "" {
			continue
		}
		if !cycle.Valid() {
			return nil, eris.Errorf("bot: unknown cycle %q in schedule", cycle)
		}
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, eris.Wrapf(err, "bot: parse schedule for %s", cycle)
		}
		s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(cycle) }))
		s.specs[cycle] = spec
	}
	return s, nil
}

// Specs returns the active schedules.
func (s *Scheduler) Specs() map[Cycle]string {
	out := make(map[Cycle]string, len(s.specs))
	for k, v := range s.specs {
		out[k] = v
	}
	return out
}

// Next returns the next fire time of every scheduled cycle.
func (s *Scheduler) Next() map[Cycle]time.Time {
	out := make(map[Cycle]time.Time, len(s.specs))
	cycles := make([]Cycle, 0, len(s.specs))
	for c := range s.specs {
		cycles = append(cycles, c)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i] < cycles[j] })
	now := time.Now()
	for _, c := range cycles {
		sched, err := cron.ParseStandard(s.specs[c])
		if err != nil {
			continue
		}
		out[c] = sched.Next(now)
	}
	return out
}

// Start begins firing cycles in the background. Cycles run under ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	zap.L().With(zap.String("component", "scheduler")).Info("scheduler started", zap.Int("cycles", len(s.specs)))
}

// Stop stops the timer, cancels running cycles and waits for them.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Trigger runs cycle immediately, honoring the no-overlap rule. It reports
// false when the cycle is already running.
func (s *Scheduler) Trigger(cycle Cycle) bool {
	return s.fire(cycle)
}

func (s *Scheduler) fire(cycle Cycle) bool {
	log := zap.L().With(zap.String("component", "scheduler"), zap.String("cycle", string(cycle)))
	s.mu.Lock()
	if s.running[cycle] {
		s.mu.Unlock()
		log.Info("cycle still running, skipping tick")
		return false
	}
	s.running[cycle] = true
	s.wg.Add(1)
	s.mu.Unlock()

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer func() {
			s.mu.Lock()
			s.running[cycle] = false
			s.mu.Unlock()
			s.wg.Done()
		}()
		res := s.runner.Run(ctx, cycle, RunOptions{})
		log.Info("scheduled cycle finished", zap.String("status", res.Status), zap.Int64("duration_ms", res.DurationMS))
	}()
	return true
}

// Running reports whether cycle is in progress.
func (s *Scheduler) Running(cycle Cycle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[cycle]
}
