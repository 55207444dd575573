package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/quality"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

// RealNameMatchThreshold is the similarity below which two sources are said
// to disagree on a real name.
const RealNameMatchThreshold = 0.8

// verifiedFields are the wrestler fields the verification cycle targets.
var verifiedFields = []string{model.FieldDebutYear, model.FieldRealName, model.FieldHometown}

// Verification is the cross-source check of one wrestler.
type Verification struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Verified       bool           `json:"verified"`
	SourcesChecked []string       `json:"sources_checked"`
	Discrepancies  []string       `json:"discrepancies"`
	Corrections    map[string]any `json:"corrections"`
	Applied        []string       `json:"applied,omitempty"`
}

// VerifyResult summarizes a verification cycle.
type VerifyResult struct {
	DryRun               bool           `json:"dry_run"`
	Checked              int            `json:"checked"`
	Verified             int            `json:"verified"`
	Discrepancies        int            `json:"discrepancies"`
	CorrectionsAvailable int            `json:"corrections_available"`
	CorrectionsApplied   int            `json:"corrections_applied"`
	Errors               int            `json:"errors"`
	FactCalls            int            `json:"fact_calls"`
	ResultsCalls         int            `json:"results_calls"`
	RateLimited          bool           `json:"rate_limited"`
	Records              []Verification `json:"records,omitempty"`
	DurationMS           int64          `json:"duration_ms"`
}

// RunVerification cross-checks up to limit wrestlers missing a debut year,
// real name or hometown against the fact source and the results database.
// Corrections are written only into empty fields.
func (e *Enricher) RunVerification(ctx context.Context, limit int) (*VerifyResult, error) {
	start := e.now()
	res := &VerifyResult{DryRun: e.opts.DryRun}
	defer func() { res.DurationMS = e.now().Sub(start).Milliseconds() }()
	log := zap.L().With(zap.String("component", "verify"))

	if limit <= 0 {
		return res, nil
	}
	if e.opts.Quota.Exhausted() {
		res.RateLimited = true
		return res, nil
	}
	records, err := e.deps.Repo.Query(ctx, store.Filter{
		Kind:       model.KindWrestler,
		MissingAny: verifiedFields,
		OrderBy:    e.opts.CandidateOrder,
		Limit:      limit,
	})
	if err != nil {
		return res, eris.Wrap(err, "enrich: query verification candidates")
	}

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if i > 0 {
			if err := e.sleep(ctx, e.opts.Pause); err != nil {
				return res, err
			}
		}
		res.Checked++

		v, err := e.verifyRecord(ctx, res, r)
		if err != nil {
			if eris.Is(err, errRateLimited) {
				res.RateLimited = true
				break
			}
			res.Errors++
			log.Error("verify record failed", zap.Int64("id", r.ID), zap.Error(err))
			e.logFailure(ctx, r, err)
			continue
		}
		if v.Verified {
			res.Verified++
		}
		res.Discrepancies += len(v.Discrepancies)
		res.CorrectionsAvailable += len(v.Corrections)
		res.CorrectionsApplied += len(v.Applied)
		res.Records = append(res.Records, *v)
	}

	log.Info("verification cycle complete",
		zap.Int("checked", res.Checked),
		zap.Int("verified", res.Verified),
		zap.Int("discrepancies", res.Discrepancies),
		zap.Int("corrections_applied", res.CorrectionsApplied),
	)
	return res, nil
}

func (e *Enricher) lookupQuietly(ctx context.Context, fl source.FactLookup, r *model.Record) *source.Facts {
	if fl == nil {
		return nil
	}
	f, err := fl.LookupByName(ctx, r.Kind, r.Name)
	if err != nil {
		zap.L().Debug("verification lookup failed",
			zap.String("source", fl.Name()), zap.Int64("id", r.ID), zap.Error(err))
		return nil
	}
	if f.Empty() {
		return nil
	}
	return f
}

func (e *Enricher) verifyRecord(ctx context.Context, res *VerifyResult, r *model.Record) (*Verification, error) {
	v := &Verification{ID: r.ID, Name: r.Name, Verified: true, Corrections: make(map[string]any)}

	if e.deps.Facts != nil {
		res.FactCalls++
	}
	wiki := e.lookupQuietly(ctx, e.deps.Facts, r)
	if wiki != nil {
		v.SourcesChecked = append(v.SourcesChecked, wiki.Source)
	}
	if e.deps.Results != nil {
		res.ResultsCalls++
	}
	cm := e.lookupQuietly(ctx, e.deps.Results, r)
	if cm != nil {
		v.SourcesChecked = append(v.SourcesChecked, cm.Source)
	}
	if wiki == nil && cm == nil {
		v.Verified = false
		v.Discrepancies = append(v.Discrepancies, "No data found in external sources")
		return v, nil
	}

	v.Discrepancies = append(v.Discrepancies, compareFacts(r, wiki, cm)...)
	for field, val := range deriveCorrections(r, wiki, cm) {
		v.Corrections[field] = val
	}

	if len(v.Discrepancies) == 0 && len(v.Corrections) == 0 {
		return v, nil
	}
	if e.opts.DryRun {
		return v, nil
	}
	if !e.opts.Quota.Take() {
		return nil, errRateLimited
	}
	e.append(ctx, model.ActivityEntry{
		Action:     model.ActionVerify,
		Kind:       r.Kind,
		EntityID:   r.ID,
		EntityName: r.Name,
		Source:     strings.Join(v.SourcesChecked, ", "),
		Details: map[string]any{
			"discrepancies":         v.Discrepancies,
			"suggested_corrections": v.Corrections,
		},
		Success: true,
	})

	applied, err := e.applyCorrections(ctx, r, v.Corrections)
	if err != nil {
		return nil, err
	}
	v.Applied = applied
	return v, nil
}

// compareFacts lists disagreements between the record and the sources.
func compareFacts(r *model.Record, wiki, cm *source.Facts) []string {
	var out []string
	if dbDebut, ok := r.Int(model.FieldDebutYear); ok {
		wikiDebut, wok := wiki.Int(model.FieldDebutYear)
		cmDebut, cok := cm.Int(model.FieldDebutYear)
		switch {
		case wok && cok && wikiDebut != cmDebut:
			out = append(out, fmt.Sprintf("Debut year mismatch: DB=%d, %s=%d, %s=%d",
				dbDebut, wiki.Source, wikiDebut, cm.Source, cmDebut))
		case wok && wikiDebut != dbDebut:
			out = append(out, fmt.Sprintf("Debut year differs from %s: DB=%d, source=%d",
				wiki.Source, dbDebut, wikiDebut))
		}
	}
	if r.Has(model.FieldRealName) {
		wikiReal, cmReal := wiki.Text(model.FieldRealName), cm.Text(model.FieldRealName)
		if wikiReal != "" && cmReal != "" && quality.Similarity(wikiReal, cmReal) < RealNameMatchThreshold {
			out = append(out, fmt.Sprintf("Real name mismatch: %s=%q, %s=%q",
				wiki.Source, wikiReal, cm.Source, cmReal))
		}
	}
	return out
}

// deriveCorrections proposes values for empty fields, preferring agreement
// between the sources, then the fact source, then the results database.
func deriveCorrections(r *model.Record, wiki, cm *source.Facts) map[string]any {
	out := make(map[string]any)
	if !r.Has(model.FieldDebutYear) {
		wikiDebut, wok := wiki.Int(model.FieldDebutYear)
		cmDebut, cok := cm.Int(model.FieldDebutYear)
		switch {
		case wok:
			out[model.FieldDebutYear] = wikiDebut
		case cok:
			out[model.FieldDebutYear] = cmDebut
		}
	}
	for _, field := range []string{model.FieldRealName, model.FieldHometown} {
		if r.Has(field) {
			continue
		}
		if v := wiki.Text(field); v != "" {
			out[field] = v
		} else if v := cm.Text(field); v != "" {
			out[field] = v
		}
	}
	return out
}

func (e *Enricher) applyCorrections(ctx context.Context, r *model.Record, corrections map[string]any) ([]string, error) {
	if len(corrections) == 0 {
		return nil, nil
	}
	start := e.now()
	upd := r.Clone()
	var applied []string
	for _, field := range verifiedFields {
		val, ok := corrections[field]
		if !ok || upd.Has(field) {
			continue
		}
		if y, isInt := val.(int); isInt && !quality.ValidYear(y, e.now()) {
			continue
		}
		upd.Set(field, val)
		applied = append(applied, field)
	}
	if len(applied) == 0 {
		return nil, nil
	}
	if err := e.deps.Repo.Save(ctx, upd, applied); err != nil {
		return nil, eris.Wrapf(err, "enrich: save corrections %d", r.ID)
	}
	e.append(ctx, model.ActivityEntry{
		Action:     model.ActionEnrich,
		Kind:       r.Kind,
		EntityID:   r.ID,
		EntityName: r.Name,
		Source:     model.SourceCrossVerification,
		Details: map[string]any{
			"updated_fields": applied,
			"verified":       true,
		},
		Success:    true,
		DurationMS: e.now().Sub(start).Milliseconds(),
	})
	zap.L().Info("applied verified corrections", zap.Int64("id", r.ID), zap.Strings("fields", applied))
	return applied, nil
}
