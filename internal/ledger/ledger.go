// Package ledger is the append-only audit log of curation actions.
package ledger

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/model"
)

// DefaultStatsHours is the window used when Stats is asked for zero hours.
const DefaultStatsHours = 24

// Backend is the storage the ledger appends to.
type Backend interface {
	AppendActivity(ctx context.Context, e *model.ActivityEntry) error
	ListActivity(ctx context.Context, f model.ActivityFilter) ([]model.ActivityEntry, error)
	ActivityStats(ctx context.Context, since time.Time) (*model.ActivityStats, error)
	CountActivity(ctx context.Context, since time.Time) (int, error)
}

// Ledger appends and summarizes activity entries. Entries are never updated
// or deleted once written.
type Ledger struct {
	backend Backend
	batchID string
	now     func() time.Time
}

// New creates a Ledger over backend.
func New(backend Backend) *Ledger {
	return &Ledger{backend: backend, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// WithBatch returns a ledger that stamps batchID on entries that carry none.
func (l *Ledger) WithBatch(batchID string) *Ledger {
	cp := *l
	cp.batchID = batchID
	return &cp
}

// BatchID returns the batch stamped by this ledger, if any.
func (l *Ledger) BatchID() string { return l.batchID }

// Append writes one entry. The entry is copied, so callers may reuse it.
func (l *Ledger) Append(ctx context.Context, e model.ActivityEntry) error {
	if !e.Action.Valid() {
		return eris.Errorf("ledger: invalid action %q", e.Action)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if e.BatchID == "" {
		e.BatchID = l.batchID
	}
	if e.Action == model.ActionError {
		e.Success = false
	}
	if err := l.backend.AppendActivity(ctx, &e); err != nil {
		zap.L().Warn("ledger: append failed",
			zap.String("action", string(e.Action)),
			zap.String("kind", string(e.Kind)),
			zap.Int64("entity_id", e.EntityID),
			zap.Error(err),
		)
		return eris.Wrap(err, "ledger: append")
	}
	return nil
}

// Failure appends an error entry for one record.
func (l *Ledger) Failure(ctx context.Context, kind model.Kind, id int64, name, source string, cause error, details map[string]any) error {
	return l.Append(ctx, model.ActivityEntry{
		Action:     model.ActionError,
		Kind:       kind,
		EntityID:   id,
		EntityName: name,
		Source:     source,
		Details:    details,
		Error:      cause.Error(),
	})
}

// List returns entries matching f, newest first.
func (l *Ledger) List(ctx context.Context, f model.ActivityFilter) ([]model.ActivityEntry, error) {
	out, err := l.backend.ListActivity(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list")
	}
	return out, nil
}

// Recent returns up to limit entries from the last hours.
func (l *Ledger) Recent(ctx context.Context, hours, limit int) ([]model.ActivityEntry, error) {
	if hours <= 0 {
		hours = DefaultStatsHours
	}
	return l.List(ctx, model.ActivityFilter{
		Since: l.now().UTC().Add(-time.Duration(hours) * time.Hour),
		Limit: limit,
	})
}

// Stats aggregates the entries of the last hours.
func (l *Ledger) Stats(ctx context.Context, hours int) (*model.ActivityStats, error) {
	if hours <= 0 {
		hours = DefaultStatsHours
	}
	st, err := l.backend.ActivityStats(ctx, l.now().UTC().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, eris.Wrap(err, "ledger: stats")
	}
	st.Hours = hours
	return st, nil
}

// OperationsInLastHour counts the non-error entries of the rolling hour.
func (l *Ledger) OperationsInLastHour(ctx context.Context) (int, error) {
	n, err := l.backend.CountActivity(ctx, l.now().UTC().Add(-time.Hour))
	if err != nil {
		return 0, eris.Wrap(err, "ledger: count operations")
	}
	return n, nil
}

// OperationsRemaining reports how many operations the hourly cap still
// allows. A cap of zero or less means unlimited and returns -1.
func (l *Ledger) OperationsRemaining(ctx context.Context, maxPerHour int) (int, error) {
	if maxPerHour <= 0 {
		return -1, nil
	}
	used, err := l.OperationsInLastHour(ctx)
	if err != nil {
		return 0, err
	}
	if used >= maxPerHour {
		return 0, nil
	}
	return maxPerHour - used, nil
}

// Elapsed returns the milliseconds since start, for DurationMS.
func Elapsed(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
