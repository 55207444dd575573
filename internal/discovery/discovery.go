// Package discovery finds entities the knowledge base does not have yet and
// inserts stub records for enrichment to complete later.
package discovery

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/ai"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/quality"
	"github.com/sells-group/wrestlebot/internal/resilience"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

// candidateFactor widens each source listing so screening leaves enough
// candidates to fill the batch.
const candidateFactor = 2

// fallbackConfidenceCap bounds the threshold applied to heuristic verdicts.
const fallbackConfidenceCap = 0.5

// Ledger records discovery activity.
type Ledger interface {
	Append(ctx context.Context, e model.ActivityEntry) error
}

// Verifier checks a candidate's data for plausibility. *ai.Gateway
// implements it and falls back to heuristics when the backend is down.
type Verifier interface {
	VerifyFact(ctx context.Context, kind model.Kind, data map[string]any) ai.Verdict
}

// Deps are the collaborators of a Discoverer.
type Deps struct {
	Repo     store.Repository
	Ledger   Ledger
	Sources  []source.Discoverer
	Verifier Verifier // nil uses ai.FallbackVerify
}

// Options tune one discovery run.
type Options struct {
	RequireVerification bool
	MinConfidence       float64
	Pause               time.Duration
	Quota               *resilience.Quota
	DryRun              bool
}

// Added describes one inserted stub.
type Added struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Source            string  `json:"source"`
	SourceURL         string  `json:"source_url,omitempty"`
	Confidence        float64 `json:"confidence"`
	InferredPromotion string  `json:"inferred_promotion,omitempty"`
}

// Result summarizes one discovery run for a kind.
type Result struct {
	Kind        model.Kind     `json:"kind"`
	DryRun      bool           `json:"dry_run"`
	Discovered  int            `json:"discovered"`
	Added       int            `json:"added"`
	Skipped     map[string]int `json:"skipped"`
	Errors      int            `json:"errors"`
	SourceCalls map[string]int `json:"source_calls"`
	AIAssisted  int            `json:"ai_assisted"`
	RateLimited bool           `json:"rate_limited"`
	Records     []Added        `json:"records,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

func (r *Result) skip(reason string) {
	r.Skipped[reason]++
}

// Discoverer runs discovery batches.
type Discoverer struct {
	deps  Deps
	opts  Options
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Discoverer.
func New(deps Deps, opts Options) *Discoverer {
	return &Discoverer{deps: deps, opts: opts, now: time.Now, sleep: sleepCtx}
}

// SetClock overrides the time source. Intended for tests.
func (d *Discoverer) SetClock(now func() time.Time) { d.now = now }

// Run asks each source for new entities of kind and inserts up to limit
// stubs. Candidates that already exist, match ambiguously, carry an invalid
// name or fail verification are skipped. Existing records are never changed.
func (d *Discoverer) Run(ctx context.Context, kind model.Kind, limit int) (*Result, error) {
	start := d.now()
	res := &Result{
		Kind:        kind,
		DryRun:      d.opts.DryRun,
		Skipped:     make(map[string]int),
		SourceCalls: make(map[string]int),
	}
	defer func() { res.DurationMS = d.now().Sub(start).Milliseconds() }()
	log := zap.L().With(zap.String("component", "discovery"), zap.String("kind", string(kind)))

	if !kind.Valid() {
		return res, eris.Errorf("discovery: unknown kind %q", kind)
	}
	if limit <= 0 {
		return res, nil
	}
	if d.opts.Quota.Exhausted() {
		res.RateLimited = true
		return res, nil
	}

	seen := make(map[string]bool)
	skip := func(name string) bool {
		key := quality.NormalizeName(quality.StripDisambiguation(name))
		if seen[key] {
			return true
		}
		exists, err := d.exactMatch(ctx, kind, quality.StripDisambiguation(name))
		return err == nil && exists
	}

	first := true
	for _, src := range d.deps.Sources {
		if res.Added >= limit || res.RateLimited {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.SourceCalls[src.Name()]++
		candidates, err := src.Discover(ctx, kind, (limit-res.Added)*candidateFactor, skip)
		if err != nil {
			log.Warn("source discovery failed", zap.String("source", src.Name()), zap.Error(err))
		}
		res.Discovered += len(candidates)

		for _, c := range candidates {
			if res.Added >= limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if !first {
				if err := d.sleep(ctx, d.opts.Pause); err != nil {
					return res, err
				}
			}
			first = false

			key := quality.NormalizeName(quality.StripDisambiguation(c.Name))
			if seen[key] {
				res.skip(ReasonDuplicate)
				continue
			}
			seen[key] = true

			added, err := d.consider(ctx, res, c)
			if err != nil {
				if eris.Is(err, errRateLimited) {
					res.RateLimited = true
					log.Info("operations budget exhausted, stopping discovery", zap.Int("added", res.Added))
					break
				}
				res.Errors++
				log.Error("import candidate failed", zap.String("name", c.Name), zap.Error(err))
				d.logFailure(ctx, c, err)
				continue
			}
			if added != nil {
				res.Added++
				res.Records = append(res.Records, *added)
			}
		}
	}

	log.Info("discovery complete",
		zap.Int("discovered", res.Discovered),
		zap.Int("added", res.Added),
		zap.Any("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
		zap.Bool("rate_limited", res.RateLimited),
	)
	return res, nil
}

var errRateLimited = eris.New("discovery: operations budget exhausted")

// consider screens one candidate and inserts its stub. A nil result without
// error means the candidate was skipped.
func (d *Discoverer) consider(ctx context.Context, res *Result, c source.Candidate) (*Added, error) {
	start := d.now()
	log := zap.L().With(zap.String("component", "discovery"), zap.String("kind", string(c.Kind)), zap.String("name", c.Name))

	if reason := Disqualify(c); reason != "" {
		log.Debug("candidate disqualified", zap.String("reason", reason))
		res.skip(reason)
		return nil, nil
	}
	c.Name = quality.StripDisambiguation(c.Name)
	match, err := d.findExisting(ctx, c.Kind, c.Name)
	if err != nil {
		return nil, err
	}
	if match.Reason != "" {
		log.Debug("candidate matches existing record",
			zap.String("reason", match.Reason), zap.Int64("existing_id", match.ID), zap.Float64("similarity", match.Similarity))
		res.skip(match.Reason)
		return nil, nil
	}

	verdict := ai.Verdict{Valid: true, Confidence: 1, Reasoning: "verification not required"}
	if d.opts.RequireVerification {
		var ok bool
		verdict, ok = d.verify(ctx, c)
		if verdict.AIUsed {
			res.AIAssisted++
		}
		if !ok {
			log.Debug("candidate failed verification",
				zap.Float64("confidence", verdict.Confidence), zap.String("reasoning", verdict.Reasoning))
			res.skip(ReasonUnverified)
			return nil, nil
		}
	}

	added := &Added{Name: c.Name, Source: c.Source, SourceURL: c.SourceURL, Confidence: verdict.Confidence}
	if c.Kind == model.KindEvent || c.Kind == model.KindTitle {
		if p, ok := InferPromotion(c.Name); ok {
			added.InferredPromotion = p.Name
		}
	}
	if d.opts.DryRun {
		return added, nil
	}
	if !d.opts.Quota.Take() {
		return nil, errRateLimited
	}

	stub := model.NewRecord(c.Kind, c.Name)
	if err := d.deps.Repo.Save(ctx, stub, nil); err != nil {
		return nil, eris.Wrapf(err, "discovery: insert %s %q", c.Kind, c.Name)
	}
	added.ID = stub.ID

	details := map[string]any{
		"source_url": c.SourceURL,
		"confidence": verdict.Confidence,
		"reasoning":  verdict.Reasoning,
	}
	if !c.Facts.Empty() {
		details["imported_data"] = c.Facts.Fields
	}
	if added.InferredPromotion != "" {
		details["inferred_promotion"] = added.InferredPromotion
	}
	d.append(ctx, model.ActivityEntry{
		Action:     model.ActionDiscover,
		Kind:       c.Kind,
		EntityID:   stub.ID,
		EntityName: stub.Name,
		Source:     c.Source,
		Details:    details,
		AIAssisted: verdict.AIUsed,
		Success:    true,
		DurationMS: d.now().Sub(start).Milliseconds(),
	})
	log.Info("stub record created", zap.Int64("id", stub.ID), zap.String("source", c.Source))
	return added, nil
}

// verify applies VerifyFact with the configured threshold, lowered for
// heuristic verdicts.
func (d *Discoverer) verify(ctx context.Context, c source.Candidate) (ai.Verdict, bool) {
	data := map[string]any{"name": c.Name}
	if c.Facts != nil {
		for k, v := range c.Facts.Fields {
			data[k] = v
		}
	}
	var v ai.Verdict
	if d.deps.Verifier != nil {
		v = d.deps.Verifier.VerifyFact(ctx, c.Kind, data)
	} else {
		v = ai.FallbackVerify(c.Kind, data)
	}
	threshold := d.opts.MinConfidence
	if !v.AIUsed && threshold > fallbackConfidenceCap {
		threshold = fallbackConfidenceCap
	}
	return v, v.Valid && v.Confidence >= threshold
}

func (d *Discoverer) append(ctx context.Context, entry model.ActivityEntry) {
	if d.deps.Ledger == nil {
		return
	}
	if err := d.deps.Ledger.Append(ctx, entry); err != nil {
		zap.L().Warn("discovery: ledger append failed", zap.String("name", entry.EntityName), zap.Error(err))
	}
}

func (d *Discoverer) logFailure(ctx context.Context, c source.Candidate, cause error) {
	if d.opts.DryRun {
		return
	}
	d.append(ctx, model.ActivityEntry{
		Action:     model.ActionError,
		Kind:       c.Kind,
		EntityName: c.Name,
		Source:     c.Source,
		Details:    map[string]any{"source_url": c.SourceURL},
		Error:      cause.Error(),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
