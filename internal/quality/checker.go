package quality

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/sells-group/wrestlebot/internal/model"
)

// DefaultOrphanGrace is how long a record may exist without relations before
// it is reported as an orphan.
const DefaultOrphanGrace = 30 * 24 * time.Hour

// ReviewFlagField marks records that need manual review.
const ReviewFlagField = "review_flag"

// Checker runs the rule set. It holds no state beyond its clock and grace
// period, so a single Checker is safe for concurrent use.
type Checker struct {
	Now         func() time.Time
	OrphanGrace time.Duration
}

// NewChecker returns a Checker on the wall clock.
func NewChecker(orphanGrace time.Duration) *Checker {
	if orphanGrace <= 0 {
		orphanGrace = DefaultOrphanGrace
	}
	return &Checker{Now: time.Now, OrphanGrace: orphanGrace}
}

var defaultChecker = NewChecker(DefaultOrphanGrace)

// Check runs the default rule set against r.
func Check(r *model.Record) []Issue {
	return defaultChecker.Check(r)
}

// Check returns every issue found on r.
func (c *Checker) Check(r *model.Record) []Issue {
	ic := issueCollector{r: r}
	if !c.checkName(&ic) {
		return ic.issues
	}
	switch r.Kind {
	case model.KindWrestler:
		c.checkWrestler(&ic)
	case model.KindEvent:
		c.checkEvent(&ic)
	case model.KindPromotion:
		c.checkPromotion(&ic)
	case model.KindVenue:
		c.checkVenue(&ic)
	case model.KindTitle:
		c.checkTitle(&ic)
	}
	return ic.issues
}

// CheckAll checks every record and aggregates the result.
func (c *Checker) CheckAll(records []*model.Record) *Report {
	rep := &Report{Issues: []Issue{}}
	for _, r := range records {
		rep.TotalChecked++
		issues := c.Check(r)
		if len(issues) > 0 {
			rep.EntitiesWithIssues++
		}
		for _, i := range issues {
			rep.Add(i)
		}
	}
	return rep
}

type issueCollector struct {
	r      *model.Record
	issues []Issue
}

func (ic *issueCollector) add(sev Severity, code, field, desc string, current, suggested any, fixable bool) {
	ic.issues = append(ic.issues, Issue{
		Kind:           ic.r.Kind,
		EntityID:       ic.r.ID,
		EntityName:     ic.r.Name,
		Severity:       sev,
		Code:           code,
		Description:    desc,
		Field:          field,
		CurrentValue:   current,
		SuggestedValue: suggested,
		AutoFixable:    fixable,
	})
}

func (ic *issueCollector) has(code string) bool {
	for _, i := range ic.issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// checkName reports name problems. It returns false when the name is missing
// and no further rules apply.
func (c *Checker) checkName(ic *issueCollector) bool {
	name := ic.r.Name
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		ic.add(SeverityError, CodeMissingName, "name", "Name is empty", name, nil, false)
		return false
	}
	if trimmed != name {
		ic.add(SeverityWarning, CodeNameWhitespace, "name",
			"Name has leading or trailing whitespace", name, trimmed, true)
	}
	if stripped := StripControl(name); stripped != name {
		ic.add(SeverityWarning, CodeNameControlChars, "name",
			"Name contains control characters", name, strings.TrimSpace(stripped), true)
	}

	for _, p := range suspiciousNamePatterns {
		if p.re.MatchString(trimmed) {
			ic.add(p.sev, p.code, "name",
				fmt.Sprintf("Name %q matches suspicious pattern %s", trimmed, p.re.String()), name, nil, false)
			break
		}
	}

	if IsInvalidName(ic.r.Kind, trimmed) {
		ic.add(SeverityError, CodeInvalidPlaceholderName, "name",
			fmt.Sprintf("Name %q is a placeholder", trimmed), name, nil, false)
	}
	return true
}

func (c *Checker) checkWrestler(ic *issueCollector) {
	r := ic.r
	name := strings.TrimSpace(r.Name)

	if r.Text(ReviewFlagField) == "" && IsLikelyGroup(name) {
		ic.add(SeverityWarning, CodeMisclassifiedStable, "name",
			fmt.Sprintf("%q looks like a stable or tag team, not a single wrestler", name), name, nil, false)
	}
	if !ic.has(CodeSuspiciousNameMulti) && len(SplitNames(name)) > 1 {
		ic.add(SeverityError, CodeInvalidMultiName, "name",
			"Name appears to list several wrestlers", name, SplitNames(name)[0], false)
	}

	debut, debutOK := c.yearField(ic, model.FieldDebutYear, CodeInvalidDebutYear)
	retire, retireOK := c.yearField(ic, model.FieldRetirementYear, CodeInvalidRetirementYear)
	if debutOK && retireOK && retire < debut {
		ic.add(SeverityError, CodeInvalidYearSequence, model.FieldRetirementYear,
			fmt.Sprintf("Retirement year %d precedes debut year %d", retire, debut), retire, nil, false)
	}

	if about := strings.TrimSpace(r.Text(model.FieldAbout)); about != "" && len(about) < minAboutLen {
		ic.add(SeveritySuggestion, CodeIncompleteAbout, model.FieldAbout,
			"About text is too short to be useful", about, nil, false)
	}

	if c.pastGrace(r) && r.Related(model.RelMatches) == 0 {
		ic.add(SeveritySuggestion, CodeOrphanNoMatches, model.RelMatches,
			"Wrestler has no recorded matches", 0, nil, false)
	}
}

func (c *Checker) checkEvent(ic *issueCollector) {
	r := ic.r
	now := c.now()

	if r.Has(model.FieldDate) {
		d, ok := r.Date(model.FieldDate)
		switch {
		case !ok || d.Year() < minYear:
			ic.add(SeverityError, CodeInvalidDate, model.FieldDate,
				"Event date is not a valid date", r.Text(model.FieldDate), nil, false)
		case d.After(now.AddDate(0, 0, futureEventHorizon)):
			ic.add(SeverityWarning, CodeFutureEvent, model.FieldDate,
				fmt.Sprintf("Event is more than %d days in the future", futureEventHorizon), r.Text(model.FieldDate), nil, false)
		}
	}

	if r.Related(model.RelPromotion) == 0 {
		ic.add(SeverityWarning, CodeMissingPromotion, model.RelPromotion,
			"Event is not linked to a promotion", nil, nil, false)
	}
	if c.pastGrace(r) && r.Related(model.RelMatches) == 0 {
		ic.add(SeveritySuggestion, CodeOrphanNoMatches, model.RelMatches,
			"Event has no recorded matches", 0, nil, false)
	}

	if r.Has(model.FieldAttendance) {
		n, ok := r.Int(model.FieldAttendance)
		switch {
		case !ok || n < 0:
			ic.add(SeverityError, CodeInvalidAttendance, model.FieldAttendance,
				"Attendance is not a valid count", r.Text(model.FieldAttendance), nil, true)
		case n > maxAttendance:
			ic.add(SeverityWarning, CodeSuspiciousAttendance, model.FieldAttendance,
				fmt.Sprintf("Attendance %d exceeds %d", n, maxAttendance), n, nil, false)
		}
	}
}

func (c *Checker) checkPromotion(ic *issueCollector) {
	r := ic.r
	founded, foundedOK := c.yearField(ic, model.FieldFoundedYear, CodeInvalidFoundedYear)
	closed, closedOK := c.yearField(ic, model.FieldClosedYear, CodeInvalidClosedYear)
	if foundedOK && closedOK && closed < founded {
		ic.add(SeverityError, CodeInvalidYearSequence, model.FieldClosedYear,
			fmt.Sprintf("Closed year %d precedes founded year %d", closed, founded), closed, nil, false)
	}

	if site := strings.TrimSpace(r.Text(model.FieldWebsite)); site != "" && !hasScheme(site) {
		ic.add(SeverityWarning, CodeInvalidURLFormat, model.FieldWebsite,
			"Website is missing the protocol prefix", site, "https://"+site, true)
	}
}

func (c *Checker) checkVenue(ic *issueCollector) {
	r := ic.r
	if r.Has(model.FieldCapacity) {
		n, ok := r.Int(model.FieldCapacity)
		switch {
		case !ok || n < 0:
			ic.add(SeverityError, CodeInvalidCapacity, model.FieldCapacity,
				"Capacity is not a valid count", r.Text(model.FieldCapacity), nil, true)
		case n > maxCapacity:
			ic.add(SeverityWarning, CodeSuspiciousCapacity, model.FieldCapacity,
				fmt.Sprintf("Capacity %d exceeds %d", n, maxCapacity), n, nil, false)
		}
	}
	if c.pastGrace(r) && r.Related(model.RelEvents) == 0 {
		ic.add(SeveritySuggestion, CodeOrphanNoEvents, model.RelEvents,
			"Venue has no recorded events", 0, nil, false)
	}
}

func (c *Checker) checkTitle(ic *issueCollector) {
	if ic.r.Related(model.RelPromotion) == 0 {
		ic.add(SeverityError, CodeMissingPromotion, model.RelPromotion,
			"Title is not linked to a promotion", nil, nil, false)
	}
	c.yearField(ic, model.FieldDebutYear, CodeInvalidDebutYear)
}

// yearField validates an optional year field and returns it when valid.
func (c *Checker) yearField(ic *issueCollector, field, code string) (int, bool) {
	if !ic.r.Has(field) {
		return 0, false
	}
	y, ok := ic.r.Int(field)
	if !ok || !c.validYear(y) {
		ic.add(SeverityError, code, field,
			fmt.Sprintf("%s is outside %d-%d", strings.ReplaceAll(field, "_", " "), minYear, c.maxYear()),
			ic.r.Text(field), nil, false)
		return 0, false
	}
	return y, true
}

func (c *Checker) validYear(y int) bool {
	return ValidYear(y, c.now())
}

// ValidYear reports whether y lies in the plausible range for records
// checked at now.
func ValidYear(y int, now time.Time) bool {
	return y >= minYear && y <= now.Year()+maxYearOffset
}

func (c *Checker) maxYear() int {
	return c.now().Year() + maxYearOffset
}

// pastGrace reports whether r is old enough for orphan checks. Records without
// a creation time are treated as old.
func (c *Checker) pastGrace(r *model.Record) bool {
	if r.CreatedAt.IsZero() {
		return true
	}
	return c.now().Sub(r.CreatedAt) >= c.OrphanGrace
}

func (c *Checker) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// IsInvalidName reports whether name is a known placeholder for kind.
func IsInvalidName(kind model.Kind, name string) bool {
	name = strings.TrimSpace(name)
	if invalidNamePattern.MatchString(name) {
		return true
	}
	return kind == model.KindWrestler && invalidWrestlerNames[normalizeLower(name)]
}

// IsLikelyGroup reports whether a wrestler name actually names a stable or
// tag team.
func IsLikelyGroup(name string) bool {
	for _, re := range stableIndicators {
		if re.MatchString(name) {
			return true
		}
	}
	base := normalizeLower(disambiguationSuffix.ReplaceAllString(name, ""))
	if knownStables[base] {
		return true
	}
	_, ok := knownTagTeams[base]
	return ok
}

// StripDisambiguation drops a trailing parenthetical such as " (wrestler)".
func StripDisambiguation(name string) string {
	return strings.TrimSpace(disambiguationSuffix.ReplaceAllString(name, ""))
}

// SplitNames splits a comma-joined name into plausible proper names. A result
// with fewer than two entries means the name is not a multi-name.
func SplitNames(name string) []string {
	if !strings.Contains(name, ",") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(name, ",") {
		part = strings.TrimSpace(part)
		if len(part) < 3 {
			continue
		}
		if first := []rune(part)[0]; !unicode.IsUpper(first) {
			continue
		}
		out = append(out, part)
	}
	return out
}

// StripControl removes control characters from s.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != ' ' {
			return -1
		}
		return r
	}, s)
}

func hasScheme(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
