package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultRealert       = time.Hour
)

// Checker periodically evaluates the status snapshot and delivers alerts.
// An alert type that keeps firing is re-sent at most once per realert
// window; a type that clears and fires again is sent immediately.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	realert   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  time.Duration(cfg.CheckIntervalSecs) * time.Second,
		lookback:  cfg.LookbackWindowHours,
		realert:   time.Duration(cfg.RealertMinutes) * time.Minute,
		now:       time.Now,
		lastSent:  make(map[AlertType]time.Time),
	}
	if c.interval <= 0 {
		c.interval = defaultCheckInterval
	}
	if c.realert <= 0 {
		c.realert = defaultRealert
	}
	return c
}

// SetClock overrides the time source. Intended for tests.
func (c *Checker) SetClock(now func() time.Time) { c.now = now }

// Run checks once per interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
		zap.Duration("realert", c.realert),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and evaluates it. Every raised alert is
// returned; only those outside their realert window are delivered.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	alerts := c.alerter.Evaluate(c.collector.Collect(ctx, c.lookback))
	due := c.due(alerts)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return nil
	}

	sent := 0
	if len(due) > 0 {
		sent = c.alerter.SendAlerts(ctx, due)
	}
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_due", len(due)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}

// due filters alerts to those whose type was not sent within the realert
// window, and forgets types that did not fire this round.
func (c *Checker) due(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	firing := make(map[AlertType]bool, len(alerts))
	var out []Alert
	for _, a := range alerts {
		firing[a.Type] = true
		last, ok := c.lastSent[a.Type]
		if ok && now.Sub(last) < c.realert {
			continue
		}
		out = append(out, a)
	}
	for _, a := range out {
		c.lastSent[a.Type] = now
	}
	for t := range c.lastSent {
		if !firing[t] {
			delete(c.lastSent, t)
		}
	}
	return out
}
