// Package enrich fills missing fields of low-completeness records from
// external sources and cross-verifies wrestler facts between sources.
package enrich

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/imagecache"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/quality"
	"github.com/sells-group/wrestlebot/internal/resilience"
	"github.com/sells-group/wrestlebot/internal/scorer"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

const (
	// candidateFactor widens the query so enough records survive scoring.
	candidateFactor = 3
	// Text values at least this long are screened for copied prose.
	copyrightCheckChars = 300
	// SourceAI is the ledger source for AI-generated values.
	SourceAI = "ai"
	// SourceInference is the ledger source for values derived from other
	// fields of the same record.
	SourceInference = "inference"
)

// lookupFields lists, per kind, the fields a fact lookup can fill. A lookup
// is only made when at least one of them is missing.
var lookupFields = map[model.Kind][]string{
	model.KindWrestler: {
		model.FieldRealName, model.FieldHometown, model.FieldNationality, model.FieldDebutYear,
		model.FieldRetirementYear, model.FieldAliases, model.FieldFinishers,
	},
	model.KindPromotion: {
		model.FieldAbbreviation, model.FieldFoundedYear, model.FieldClosedYear,
		model.FieldWebsite, model.FieldHeadquarters,
	},
	model.KindEvent: {
		model.FieldDate, model.FieldAttendance, model.FieldTagline, model.RelPromotion, model.RelVenue,
	},
	model.KindTitle: {
		model.FieldWeightClass, model.FieldGender, model.RelPromotion,
	},
	model.KindVenue: {
		model.FieldLocation, model.FieldCapacity,
	},
}

// Ledger records enrichment activity.
type Ledger interface {
	Append(ctx context.Context, e model.ActivityEntry) error
}

// AI is the part of the AI gateway enrichment uses.
type AI interface {
	IsAvailable(ctx context.Context) bool
	GenerateBio(ctx context.Context, r *model.Record) string
	ExtractNationality(ctx context.Context, text string) (string, bool)
	IsSafeFromCopyright(ctx context.Context, text string) (bool, string)
}

// ImageCache screens and stores a candidate image for a record.
type ImageCache interface {
	Cache(ctx context.Context, kind model.Kind, id int64, img source.Image) (*imagecache.Stored, error)
}

// Deps are the collaborators of an Enricher. Facts, Results, Images, Cache
// and AI are optional; a missing collaborator skips its step.
type Deps struct {
	Repo    store.Repository
	Ledger  Ledger
	Facts   source.FactLookup
	Results source.FactLookup
	Images  source.ImageSearch
	Cache   ImageCache
	AI      AI
}

// Options tune one enrichment or verification run.
type Options struct {
	Pause          time.Duration
	GenerateBios   bool
	ImageLimit     int // images per batch, 0 for no limit
	Quota          *resilience.Quota
	DryRun         bool
	CandidateOrder string
}

// RecordResult describes the changes made to one record.
type RecordResult struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	PreviousScore float64  `json:"previous_score"`
	NewScore      float64  `json:"new_score"`
	Changed       []string `json:"changed"`
	Sources       []string `json:"sources"`
	AIAssisted    bool     `json:"ai_assisted"`
	Image         bool     `json:"image"`
}

// BatchResult summarizes EnrichBatch.
type BatchResult struct {
	Kind         model.Kind         `json:"kind"`
	DryRun       bool               `json:"dry_run"`
	Candidates   int                `json:"candidates"`
	Processed    int                `json:"processed"`
	Enriched     int                `json:"enriched"`
	ImagesAdded  int                `json:"images_added"`
	AIAssisted   int                `json:"ai_assisted"`
	Errors       int                `json:"errors"`
	FactCalls    int                `json:"fact_calls"`
	ImageCalls   int                `json:"image_calls"`
	RateLimited  bool               `json:"rate_limited"`
	Changed      map[int64][]string `json:"changed"`
	Records      []RecordResult     `json:"records,omitempty"`
	DurationMS   int64              `json:"duration_ms"`
}

// Enricher runs enrichment and verification batches.
type Enricher struct {
	deps  Deps
	opts  Options
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Enricher.
func New(deps Deps, opts Options) *Enricher {
	if opts.CandidateOrder == "" {
		opts.CandidateOrder = store.OrderRandom
	}
	return &Enricher{deps: deps, opts: opts, now: time.Now, sleep: sleepCtx}
}

// SetClock overrides the time source. Intended for tests.
func (e *Enricher) SetClock(now func() time.Time) { e.now = now }

// batch carries per-batch state so batches of different kinds can run
// concurrently on one Enricher.
type batch struct {
	res        *BatchResult
	factsDown  bool
	imagesDown bool
}

// EnrichBatch enriches up to batchSize records of kind scoring at or below
// maxScore, least complete first. One record's failure never stops the
// batch; cancellation is honoured between records.
func (e *Enricher) EnrichBatch(ctx context.Context, kind model.Kind, maxScore float64, batchSize int) (*BatchResult, error) {
	start := e.now()
	res := &BatchResult{Kind: kind, DryRun: e.opts.DryRun, Changed: make(map[int64][]string)}
	defer func() { res.DurationMS = e.now().Sub(start).Milliseconds() }()
	log := zap.L().With(zap.String("component", "enrich"), zap.String("kind", string(kind)))

	if !kind.Valid() {
		return res, eris.Errorf("enrich: unknown kind %q", kind)
	}
	if batchSize <= 0 {
		return res, nil
	}
	if e.opts.Quota.Exhausted() {
		res.RateLimited = true
		return res, nil
	}

	records, err := e.deps.Repo.Query(ctx, store.Filter{
		Kind:    kind,
		OrderBy: e.opts.CandidateOrder,
		Limit:   batchSize * candidateFactor,
	})
	if err != nil {
		return res, eris.Wrapf(err, "enrich: query %s candidates", kind)
	}
	targets := scorer.LowScore(records, maxScore, batchSize)
	res.Candidates = len(targets)
	log.Info("enrichment batch starting", zap.Int("candidates", len(targets)), zap.Float64("max_score", maxScore))

	b := &batch{res: res}
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if i > 0 {
			if err := e.sleep(ctx, e.opts.Pause); err != nil {
				return res, err
			}
		}
		res.Processed++

		rr, err := e.enrichRecord(ctx, b, t)
		if err != nil {
			if eris.Is(err, errRateLimited) {
				res.RateLimited = true
				log.Info("operations budget exhausted, stopping batch", zap.Int("processed", res.Processed))
				break
			}
			res.Errors++
			log.Error("enrich record failed", zap.Int64("id", t.Record.ID), zap.Error(err))
			e.logFailure(ctx, t.Record, err)
			continue
		}
		if rr == nil {
			continue
		}
		res.Enriched++
		res.Changed[rr.ID] = rr.Changed
		res.Records = append(res.Records, *rr)
		if rr.Image {
			res.ImagesAdded++
		}
		if rr.AIAssisted {
			res.AIAssisted++
		}
	}

	log.Info("enrichment batch complete",
		zap.Int("processed", res.Processed),
		zap.Int("enriched", res.Enriched),
		zap.Int("images_added", res.ImagesAdded),
		zap.Int("errors", res.Errors),
		zap.Bool("rate_limited", res.RateLimited),
	)
	return res, nil
}

var errRateLimited = eris.New("enrich: operations budget exhausted")

// change accumulates the pending update of one record.
type change struct {
	r       *model.Record
	fields  []string // written to storage
	changed []string // reported
	sources []string
	links   []pendingLink
	ai      bool
	image   *imagecache.Stored
}

func (c *change) set(field string, v any) {
	c.r.Set(field, v)
	c.fields = append(c.fields, field)
	c.changed = append(c.changed, field)
}

func (c *change) addSource(name string) {
	for _, s := range c.sources {
		if s == name {
			return
		}
	}
	c.sources = append(c.sources, name)
}

// drop removes field from the reported changes.
func (c *change) drop(field string) {
	out := c.changed[:0]
	for _, f := range c.changed {
		if f != field {
			out = append(out, f)
		}
	}
	c.changed = out
}

func (c *change) empty() bool {
	return len(c.changed) == 0
}

func (e *Enricher) enrichRecord(ctx context.Context, b *batch, t scorer.Scored) (*RecordResult, error) {
	start := e.now()
	r := t.Record.Clone()
	prev := t.Breakdown
	log := zap.L().With(zap.String("component", "enrich"), zap.String("kind", string(r.Kind)), zap.Int64("id", r.ID))
	log.Debug("enriching record", zap.String("name", r.Name), zap.Float64("score", prev.Percentage), zap.Strings("missing", prev.Missing))

	c := &change{r: r}
	if e.deps.Facts != nil && !b.factsDown && needsLookup(r.Kind, prev) {
		e.applyFacts(ctx, b, c, prev)
	}
	if r.Kind == model.KindWrestler && !r.Has(model.FieldNationality) && r.Has(model.FieldHometown) {
		e.inferNationality(ctx, c)
	}
	if prev.IsMissing(model.FieldImageURL) && e.deps.Images != nil && e.deps.Cache != nil && !b.imagesDown &&
		(e.opts.ImageLimit <= 0 || b.res.ImagesAdded < e.opts.ImageLimit) {
		e.applyImage(ctx, b, c)
	}
	if e.opts.GenerateBios && r.Kind == model.KindWrestler && !r.Has(model.FieldAbout) && e.deps.AI != nil &&
		e.deps.AI.IsAvailable(ctx) {
		if bio := e.deps.AI.GenerateBio(ctx, r); bio != "" {
			c.set(model.FieldAbout, bio)
			c.addSource(SourceAI)
			c.ai = true
		}
	}

	if c.empty() {
		log.Debug("nothing found for record")
		return nil, nil
	}

	rr := &RecordResult{
		ID:            r.ID,
		Name:          r.Name,
		PreviousScore: prev.Percentage,
		Changed:       c.changed,
		Sources:       c.sources,
		AIAssisted:    c.ai,
		Image:         c.image != nil,
	}
	if e.opts.DryRun {
		rr.NewScore = scorer.Score(r).Percentage
		return rr, nil
	}
	if !e.opts.Quota.Take() {
		return nil, errRateLimited
	}

	for _, l := range c.links {
		if err := e.link(ctx, r, l); err != nil {
			log.Warn("link failed", zap.String("relation", l.relation), zap.Error(err))
			c.drop(l.relation)
			continue
		}
		r.Relations[l.relation]++
	}
	if c.empty() {
		e.opts.Quota.Give()
		log.Debug("no change could be applied to record")
		return nil, nil
	}
	if len(c.fields) > 0 {
		if err := e.deps.Repo.Save(ctx, r, c.fields); err != nil {
			return nil, eris.Wrapf(err, "enrich: save %s %d", r.Kind, r.ID)
		}
	}
	rr.Changed = c.changed
	rr.NewScore = scorer.Score(r).Percentage

	action := model.ActionEnrich
	if len(c.changed) == 1 && c.image != nil {
		action = model.ActionImage
	}
	details := map[string]any{
		"updated_fields": c.changed,
		"previous_score": prev.Percentage,
		"new_score":      rr.NewScore,
	}
	if c.image != nil {
		details["image"] = map[string]any{
			"url":         c.image.URL,
			"source_url":  c.image.SourceURL,
			"license":     c.image.License,
			"attribution": c.image.Attribution,
		}
	}
	e.append(ctx, model.ActivityEntry{
		Action:     action,
		Kind:       r.Kind,
		EntityID:   r.ID,
		EntityName: r.Name,
		Source:     strings.Join(c.sources, ", "),
		Details:    details,
		AIAssisted: c.ai,
		Success:    true,
		DurationMS: e.now().Sub(start).Milliseconds(),
	})
	log.Info("record enriched", zap.String("name", r.Name), zap.Strings("fields", c.changed))
	return rr, nil
}

func needsLookup(kind model.Kind, b scorer.Breakdown) bool {
	for _, f := range lookupFields[kind] {
		if b.IsMissing(f) {
			return true
		}
	}
	return false
}

// applyFacts fills missing fields from one fact lookup. Values are taken in
// weight-table order so the reported change list is deterministic.
func (e *Enricher) applyFacts(ctx context.Context, b *batch, c *change, prev scorer.Breakdown) {
	r := c.r
	log := zap.L().With(zap.String("component", "enrich"), zap.Int64("id", r.ID))

	b.res.FactCalls++
	facts, err := e.deps.Facts.LookupByName(ctx, r.Kind, r.Name)
	if err != nil {
		if eris.Is(err, resilience.ErrBudgetExhausted) || resilience.IsRateLimited(err) {
			b.factsDown = true
		}
		log.Warn("fact lookup failed", zap.String("source", e.deps.Facts.Name()), zap.Error(err))
		return
	}
	if facts.Empty() {
		return
	}

	found := false
	for _, field := range orderedLookupFields(r.Kind) {
		if !prev.IsMissing(field) || r.Has(field) {
			continue
		}
		if l, ok := linkFor(r.Kind, field, facts); ok {
			if l, ok = e.resolveLink(ctx, l); !ok {
				continue
			}
			c.links = append(c.links, l)
			c.changed = append(c.changed, field)
			found = true
			continue
		}
		v, ok := facts.Fields[field]
		if !ok || !e.acceptValue(ctx, field, v) {
			continue
		}
		c.set(field, v)
		found = true
	}
	if !found {
		return
	}
	c.addSource(facts.Source)
	if facts.Source == source.NameWikipedia && facts.SourceURL != "" && !r.Has(model.FieldWikipediaURL) {
		r.Set(model.FieldWikipediaURL, facts.SourceURL)
		c.fields = append(c.fields, model.FieldWikipediaURL)
	}
}

// orderedLookupFields returns the lookup fields of kind in weight-table order.
func orderedLookupFields(kind model.Kind) []string {
	fields := append([]string(nil), lookupFields[kind]...)
	table, ok := scorer.TableFor(kind)
	if !ok {
		return fields
	}
	pos := make(map[string]int, len(table))
	for i, w := range table {
		pos[w.Field] = i
	}
	sort.SliceStable(fields, func(i, j int) bool {
		pi, iok := pos[fields[i]]
		pj, jok := pos[fields[j]]
		if iok != jok {
			return iok
		}
		return pi < pj
	})
	return fields
}

// acceptValue rejects implausible years and long text that may be copied
// prose.
func (e *Enricher) acceptValue(ctx context.Context, field string, v any) bool {
	log := zap.L().With(zap.String("component", "enrich"), zap.String("field", field))
	switch t := v.(type) {
	case int:
		if strings.HasSuffix(field, "_year") && !quality.ValidYear(t, e.now()) {
			log.Debug("discarding implausible year", zap.Int("year", t))
			return false
		}
		return t > 0
	case string:
		if strings.TrimSpace(t) == "" {
			return false
		}
		if len(t) >= copyrightCheckChars && e.deps.AI != nil {
			if safe, reason := e.deps.AI.IsSafeFromCopyright(ctx, t); !safe {
				log.Debug("discarding text that may be copied", zap.String("reason", reason))
				return false
			}
		}
	}
	return true
}

func (e *Enricher) inferNationality(ctx context.Context, c *change) {
	hometown := c.r.Text(model.FieldHometown)
	if n, ok := NationalityFromHometown(hometown); ok {
		c.set(model.FieldNationality, n)
		c.addSource(SourceInference)
		return
	}
	if e.deps.AI == nil || !e.deps.AI.IsAvailable(ctx) {
		return
	}
	if n, ok := e.deps.AI.ExtractNationality(ctx, hometown); ok {
		c.set(model.FieldNationality, n)
		c.addSource(SourceAI)
		c.ai = true
	}
}

func (e *Enricher) applyImage(ctx context.Context, b *batch, c *change) {
	r := c.r
	log := zap.L().With(zap.String("component", "enrich"), zap.Int64("id", r.ID))

	b.res.ImageCalls++
	hints := source.HintsFor(r)
	img, err := e.deps.Images.FindImage(ctx, r.Kind, r.Name, hints)
	if err != nil {
		if eris.Is(err, resilience.ErrBudgetExhausted) || resilience.IsRateLimited(err) {
			b.imagesDown = true
		}
		log.Warn("image search failed", zap.String("source", e.deps.Images.Name()), zap.Error(err))
		return
	}
	if img == nil {
		return
	}
	if e.opts.DryRun {
		if imagecache.Allowed(img.License) {
			c.changed = append(c.changed, model.FieldImageURL)
			c.addSource(e.deps.Images.Name())
			c.image = &imagecache.Stored{URL: img.URL, SourceURL: img.DescriptionURL, License: img.License}
		}
		return
	}

	stored, err := e.deps.Cache.Cache(ctx, r.Kind, r.ID, *img)
	if err != nil {
		if eris.Is(err, imagecache.ErrLicenseRejected) {
			log.Debug("image rejected", zap.String("license", img.License), zap.String("url", img.URL))
		} else {
			log.Warn("image cache failed", zap.String("url", img.URL), zap.Error(err))
		}
		return
	}
	c.set(model.FieldImageURL, stored.URL)
	r.Set(model.FieldImageSource, stored.SourceURL)
	r.Set(model.FieldImageLicense, stored.License)
	c.fields = append(c.fields, model.FieldImageSource, model.FieldImageLicense)
	if stored.Attribution != "" {
		r.Set(model.FieldImageAttribution, stored.Attribution)
		c.fields = append(c.fields, model.FieldImageAttribution)
	}
	c.addSource(e.deps.Images.Name())
	c.image = stored
}

func (e *Enricher) append(ctx context.Context, entry model.ActivityEntry) {
	if e.deps.Ledger == nil {
		return
	}
	if err := e.deps.Ledger.Append(ctx, entry); err != nil {
		zap.L().Warn("enrich: ledger append failed", zap.Int64("id", entry.EntityID), zap.Error(err))
	}
}

func (e *Enricher) logFailure(ctx context.Context, r *model.Record, cause error) {
	if e.opts.DryRun {
		return
	}
	e.append(ctx, model.ActivityEntry{
		Action:     model.ActionError,
		Kind:       r.Kind,
		EntityID:   r.ID,
		EntityName: r.Name,
		Source:     "enrichment",
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
