package quality

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/store"
)

// Duplicate similarity thresholds.
const (
	NameThreshold  = 0.85
	AliasThreshold = 0.90
)

// Defaults used when CleanerOptions leaves a limit unset.
const (
	DefaultCleanupBatch    = 100
	DefaultDuplicateSample = 500
	maxReportedDuplicates  = 10
)

// Cleanup operations recorded in ledger details.
const (
	OpAutoFix       = "auto_fix"
	OpRemoveInvalid = "remove_invalid"
	OpSplit         = "split"
	OpSplitRemoved  = "split_removed"
	OpFlagStable    = "flag_stable"
)

// Ledger records cleanup actions.
type Ledger interface {
	Append(ctx context.Context, e model.ActivityEntry) error
}

// DuplicatePair is an advisory duplicate candidate. Nothing is merged.
type DuplicatePair struct {
	Kind       model.Kind `json:"kind"`
	IDA        int64      `json:"id_a"`
	IDB        int64      `json:"id_b"`
	NameA      string     `json:"name_a"`
	NameB      string     `json:"name_b"`
	Similarity float64    `json:"similarity"`
	MatchedOn  string     `json:"matched_on"` // "name" or "alias"
}

// Summary is the aggregate result of a cleanup cycle.
type Summary struct {
	DryRun          bool                           `json:"dry_run"`
	QualityIssues   int                            `json:"quality_issues"`
	AutoFixed       int                            `json:"auto_fixed"`
	AutoFixedByCode map[string]int                 `json:"auto_fixed_by_code"`
	InvalidRemoved  int                            `json:"invalid_removed"`
	MultiNameSplit  int                            `json:"multi_name_split"`
	StablesFlagged  int                            `json:"stables_flagged"`
	DuplicatesFound int                            `json:"duplicates_found"`
	Duplicates      map[model.Kind][]DuplicatePair `json:"duplicates"`
	Errors          int                            `json:"errors"`
}

// CleanerOptions bounds the work of one cleanup cycle.
type CleanerOptions struct {
	BatchSize       int
	DuplicateSample int
}

// Cleaner applies the safe subset of quality fixes against a repository.
type Cleaner struct {
	repo    store.Repository
	ledger  Ledger
	checker *Checker
	opts    CleanerOptions
}

// NewCleaner creates a Cleaner. A nil checker uses the default rule set.
func NewCleaner(repo store.Repository, ledger Ledger, checker *Checker, opts CleanerOptions) *Cleaner {
	if checker == nil {
		checker = defaultChecker
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultCleanupBatch
	}
	if opts.DuplicateSample <= 0 {
		opts.DuplicateSample = DefaultDuplicateSample
	}
	return &Cleaner{repo: repo, ledger: ledger, checker: checker, opts: opts}
}

// ApplyAutoFixes performs the correction encoded by each auto-fixable issue.
// Each fix is recomputed from the stored record, so a fix that has already
// been applied is a no-op and is not logged again.
func (c *Cleaner) ApplyAutoFixes(ctx context.Context, issues []Issue, dryRun bool) (map[string]int, error) {
	log := zap.L().With(zap.String("component", "cleaner"), zap.Bool("dry_run", dryRun))
	counts := make(map[string]int)

	for _, issue := range issues {
		if !issue.AutoFixable {
			continue
		}
		if err := ctx.Err(); err != nil {
			return counts, err
		}

		r, err := c.repo.GetByID(ctx, issue.Kind, issue.EntityID)
		if err != nil {
			log.Warn("load record for fix failed", zap.Int64("id", issue.EntityID), zap.Error(err))
			continue
		}
		field, oldVal, newVal, ok := applyFix(r, issue.Code)
		if !ok {
			continue
		}
		if dryRun {
			counts[issue.Code]++
			continue
		}
		if err := c.repo.Save(ctx, r, []string{field}); err != nil {
			log.Error("save fix failed", zap.Int64("id", r.ID), zap.String("code", issue.Code), zap.Error(err))
			continue
		}
		counts[issue.Code]++
		c.record(ctx, r.Kind, r.ID, r.Name, map[string]any{
			"operation":  OpAutoFix,
			"issue_code": issue.Code,
			"field":      field,
			"old_value":  oldVal,
			"new_value":  newVal,
		})
	}
	return counts, nil
}

// applyFix mutates r for code and reports the change.
func applyFix(r *model.Record, code string) (field string, oldVal, newVal any, changed bool) {
	switch code {
	case CodeNameWhitespace:
		fixed := strings.TrimSpace(r.Name)
		if fixed == "" || fixed == r.Name {
			return "", nil, nil, false
		}
		old := r.Name
		r.Name = fixed
		return "name", old, fixed, true

	case CodeNameControlChars:
		fixed := strings.TrimSpace(StripControl(r.Name))
		if fixed == "" || fixed == r.Name {
			return "", nil, nil, false
		}
		old := r.Name
		r.Name = fixed
		return "name", old, fixed, true

	case CodeInvalidAttendance, CodeInvalidCapacity:
		field = model.FieldAttendance
		if code == CodeInvalidCapacity {
			field = model.FieldCapacity
		}
		if !r.Has(field) {
			return "", nil, nil, false
		}
		if n, ok := r.Int(field); ok && n >= 0 {
			return "", nil, nil, false
		}
		old, _ := r.Get(field)
		r.Clear(field)
		return field, old, nil, true

	case CodeInvalidURLFormat:
		site := strings.TrimSpace(r.Text(model.FieldWebsite))
		if site == "" || hasScheme(site) {
			return "", nil, nil, false
		}
		fixed := "https://" + site
		r.Set(model.FieldWebsite, fixed)
		return model.FieldWebsite, site, fixed, true
	}
	return "", nil, nil, false
}

// FindDuplicates scans up to sampleLimit records of kind for likely duplicate
// pairs. Each unordered pair is reported at most once with its best score.
func (c *Cleaner) FindDuplicates(ctx context.Context, kind model.Kind, sampleLimit int) ([]DuplicatePair, error) {
	if sampleLimit <= 0 {
		sampleLimit = c.opts.DuplicateSample
	}
	records, err := c.repo.Query(ctx, store.Filter{Kind: kind, OrderBy: store.OrderID, Limit: sampleLimit})
	if err != nil {
		return nil, err
	}
	return DuplicatePairs(records), nil
}

// DuplicatePairs runs the pairwise similarity scan over records.
func DuplicatePairs(records []*model.Record) []DuplicatePair {
	alts := make([][]string, len(records))
	for i, r := range records {
		alts[i] = alternateNames(r)
	}

	var pairs []DuplicatePair
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			a, b := records[i], records[j]
			best, on := 0.0, ""
			if s := Similarity(a.Name, b.Name); s >= NameThreshold {
				best, on = s, "name"
			}
			for _, alt := range alts[i] {
				if s := Similarity(alt, b.Name); s >= AliasThreshold && s > best {
					best, on = s, "alias"
				}
			}
			for _, alt := range alts[j] {
				if s := Similarity(alt, a.Name); s >= AliasThreshold && s > best {
					best, on = s, "alias"
				}
			}
			if on == "" {
				continue
			}
			pairs = append(pairs, DuplicatePair{
				Kind: a.Kind, IDA: a.ID, IDB: b.ID,
				NameA: a.Name, NameB: b.Name,
				Similarity: best, MatchedOn: on,
			})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	return pairs
}

func alternateNames(r *model.Record) []string {
	switch r.Kind {
	case model.KindWrestler:
		return r.Aliases()
	case model.KindPromotion:
		if abbr := strings.TrimSpace(r.Text(model.FieldAbbreviation)); abbr != "" {
			return []string{abbr}
		}
	}
	return nil
}

// RemoveInvalidEntries deletes placeholder-named records of kind. A record
// with any relationship link is never deleted.
func (c *Cleaner) RemoveInvalidEntries(ctx context.Context, kind model.Kind, dryRun bool) (int, error) {
	log := zap.L().With(zap.String("component", "cleaner"), zap.String("kind", string(kind)))

	f := store.Filter{Kind: kind, NamePrefixes: invalidNamePrefixes, OrderBy: store.OrderID}
	if kind == model.KindWrestler {
		f.NameIn = invalidWrestlerNameList()
	}
	candidates, err := c.repo.Query(ctx, f)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, r := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !IsInvalidName(kind, r.Name) {
			continue
		}
		n, err := c.repo.CountRelated(ctx, kind, r.ID, "")
		if err != nil {
			log.Warn("count related failed", zap.Int64("id", r.ID), zap.Error(err))
			continue
		}
		if n > 0 {
			log.Debug("keeping invalid name with relations", zap.Int64("id", r.ID), zap.Int("related", n))
			continue
		}
		if dryRun {
			removed++
			continue
		}
		if err := c.repo.Delete(ctx, kind, r.ID); err != nil {
			log.Error("delete invalid entry failed", zap.Int64("id", r.ID), zap.Error(err))
			continue
		}
		removed++
		c.record(ctx, kind, r.ID, r.Name, map[string]any{
			"operation": OpRemoveInvalid,
			"action":    "removed",
			"reason":    "invalid_name",
		})
	}
	return removed, nil
}

func invalidWrestlerNameList() []string {
	out := make([]string, 0, len(invalidWrestlerNames))
	for n := range invalidWrestlerNames {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SplitMultiNameEntries keeps the first of several comma-joined wrestler names
// and logs the rest for later discovery. Only wrestlers are split.
func (c *Cleaner) SplitMultiNameEntries(ctx context.Context, kind model.Kind, dryRun bool) (int, error) {
	if kind != model.KindWrestler {
		return 0, nil
	}
	log := zap.L().With(zap.String("component", "cleaner"), zap.String("kind", string(kind)))

	candidates, err := c.repo.Query(ctx, store.Filter{
		Kind: kind, NameContains: ",", OrderBy: store.OrderID, Limit: c.opts.BatchSize,
	})
	if err != nil {
		return 0, err
	}

	split := 0
	for _, r := range candidates {
		if err := ctx.Err(); err != nil {
			return split, err
		}
		names := SplitNames(r.Name)
		if len(names) < 2 {
			continue
		}
		if dryRun {
			split++
			continue
		}
		old := r.Name
		r.Name = names[0]
		if err := c.repo.Save(ctx, r, []string{"name"}); err != nil {
			log.Error("save split name failed", zap.Int64("id", r.ID), zap.Error(err))
			continue
		}
		split++
		c.record(ctx, kind, r.ID, r.Name, map[string]any{
			"operation": OpSplit,
			"old_value": old,
			"new_value": r.Name,
			"remaining": names[1:],
		})
		for _, extra := range names[1:] {
			c.record(ctx, kind, 0, extra, map[string]any{
				"operation": OpSplitRemoved,
				"source_id": r.ID,
			})
		}
	}
	return split, nil
}

// FlagMisclassifiedStables marks wrestler records that name a stable or tag
// team for review. Flagged records are never deleted.
func (c *Cleaner) FlagMisclassifiedStables(ctx context.Context, dryRun bool) (int, error) {
	log := zap.L().With(zap.String("component", "cleaner"), zap.String("kind", string(model.KindWrestler)))

	known := make([]string, 0, len(knownStables)+len(knownTagTeams))
	for n := range knownStables {
		known = append(known, n)
	}
	for n := range knownTagTeams {
		known = append(known, n)
	}
	sort.Strings(known)

	byName, err := c.repo.Query(ctx, store.Filter{Kind: model.KindWrestler, NameIn: known, OrderBy: store.OrderID})
	if err != nil {
		return 0, err
	}
	bySuffix, err := c.repo.Query(ctx, store.Filter{
		Kind: model.KindWrestler, NameContains: "(", OrderBy: store.OrderID, Limit: c.opts.BatchSize,
	})
	if err != nil {
		return 0, err
	}

	seen := make(map[int64]bool)
	flagged := 0
	for _, r := range append(byName, bySuffix...) {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		if r.Text(ReviewFlagField) != "" || !IsLikelyGroup(r.Name) {
			continue
		}
		if dryRun {
			flagged++
			continue
		}
		r.Set(ReviewFlagField, "misclassified_stable")
		if err := c.repo.Save(ctx, r, []string{ReviewFlagField}); err != nil {
			log.Error("flag stable failed", zap.Int64("id", r.ID), zap.Error(err))
			continue
		}
		flagged++
		details := map[string]any{"operation": OpFlagStable, "issue_code": CodeMisclassifiedStable}
		if members, ok := TagTeamMembers(r.Name); ok {
			details["members"] = members
		}
		c.record(ctx, model.KindWrestler, r.ID, r.Name, details)
	}
	return flagged, nil
}

// RunCleanupCycle runs auto-fix, invalid removal, multi-name split and the
// duplicate scan for each kind, then flags misclassified stables.
func (c *Cleaner) RunCleanupCycle(ctx context.Context, kinds []model.Kind, dryRun bool) (*Summary, error) {
	log := zap.L().With(zap.String("component", "cleaner"), zap.Bool("dry_run", dryRun))
	sum := &Summary{
		DryRun:          dryRun,
		AutoFixedByCode: make(map[string]int),
		Duplicates:      make(map[model.Kind][]DuplicatePair),
	}

	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		klog := log.With(zap.String("kind", string(kind)))

		records, err := c.repo.Query(ctx, store.Filter{Kind: kind, OrderBy: store.OrderID, Limit: c.opts.BatchSize})
		if err != nil {
			klog.Error("query records failed", zap.Error(err))
			sum.Errors++
			continue
		}
		rep := c.checker.CheckAll(records)
		sum.QualityIssues += len(rep.Issues)

		fixed, err := c.ApplyAutoFixes(ctx, rep.Fixable(), dryRun)
		if err != nil {
			return sum, err
		}
		for code, n := range fixed {
			sum.AutoFixedByCode[code] += n
			sum.AutoFixed += n
		}

		if n, err := c.RemoveInvalidEntries(ctx, kind, dryRun); err != nil {
			klog.Error("remove invalid entries failed", zap.Error(err))
			sum.Errors++
		} else {
			sum.InvalidRemoved += n
		}

		if n, err := c.SplitMultiNameEntries(ctx, kind, dryRun); err != nil {
			klog.Error("split multi-name entries failed", zap.Error(err))
			sum.Errors++
		} else {
			sum.MultiNameSplit += n
		}

		dups, err := c.FindDuplicates(ctx, kind, c.opts.DuplicateSample)
		if err != nil {
			klog.Error("duplicate scan failed", zap.Error(err))
			sum.Errors++
			continue
		}
		sum.DuplicatesFound += len(dups)
		if len(dups) > maxReportedDuplicates {
			dups = dups[:maxReportedDuplicates]
		}
		if len(dups) > 0 {
			sum.Duplicates[kind] = dups
		}
	}

	if containsKind(kinds, model.KindWrestler) {
		if n, err := c.FlagMisclassifiedStables(ctx, dryRun); err != nil {
			log.Error("flag stables failed", zap.Error(err))
			sum.Errors++
		} else {
			sum.StablesFlagged = n
		}
	}

	log.Info("cleanup cycle complete",
		zap.Int("quality_issues", sum.QualityIssues),
		zap.Int("auto_fixed", sum.AutoFixed),
		zap.Int("invalid_removed", sum.InvalidRemoved),
		zap.Int("multi_name_split", sum.MultiNameSplit),
		zap.Int("stables_flagged", sum.StablesFlagged),
		zap.Int("duplicates_found", sum.DuplicatesFound),
	)
	return sum, nil
}

func (c *Cleaner) record(ctx context.Context, kind model.Kind, id int64, name string, details map[string]any) {
	if c.ledger == nil {
		return
	}
	err := c.ledger.Append(ctx, model.ActivityEntry{
		Action:     model.ActionVerify,
		Kind:       kind,
		EntityID:   id,
		EntityName: name,
		Source:     model.SourceQualityCleanup,
		Details:    details,
		Success:    true,
	})
	if err != nil {
		zap.L().Warn("cleaner: ledger append failed", zap.Int64("id", id), zap.Error(err))
	}
}

func containsKind(kinds []model.Kind, k model.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
