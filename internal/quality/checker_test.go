package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wrestlebot/internal/model"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testChecker() *Checker {
	c := NewChecker(DefaultOrphanGrace)
	c.Now = func() time.Time { return fixedNow }
	return c
}

func codes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func findIssue(issues []Issue, code string) (Issue, bool) {
	for _, i := range issues {
		if i.Code == code {
			return i, true
		}
	}
	return Issue{}, false
}

func TestCheck_WhitespaceAndVersusNames(t *testing.T) {
	t.Parallel()
	c := testChecker()

	rep := c.CheckAll([]*model.Record{wrestler(1, "  John Doe"), wrestler(2, "Bob vs Steve")})

	require.Len(t, rep.Issues, 2)
	assert.Equal(t, 2, rep.TotalChecked)
	assert.Equal(t, 2, rep.EntitiesWithIssues)

	ws, ok := findIssue(rep.Issues, CodeNameWhitespace)
	require.True(t, ok)
	assert.True(t, ws.AutoFixable)
	assert.Equal(t, int64(1), ws.EntityID)
	assert.Equal(t, "John Doe", ws.SuggestedValue)

	vs, ok := findIssue(rep.Issues, CodeSuspiciousNameVS)
	require.True(t, ok)
	assert.False(t, vs.AutoFixable)
	assert.Equal(t, SeverityError, vs.Severity)
	assert.Equal(t, int64(2), vs.EntityID)

	assert.Equal(t, 1, rep.AutoFixable)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 1, rep.Warnings)
}

func TestCheck_NameRules(t *testing.T) {
	t.Parallel()
	c := testChecker()

	tests := []struct {
		name    string
		input   string
		want    []string
		notWant []string
	}{
		{name: "clean", input: "Bret Hart", want: []string{}},
		{name: "empty", input: "   ", want: []string{CodeMissingName}},
		{name: "leading lowercase", input: "bret Hart", want: []string{CodeSuspiciousNameFormat}},
		{name: "digit run", input: "Wrestler 12345", want: []string{CodeSuspiciousNameFormat}},
		{name: "brackets", input: "Sting [1]", want: []string{CodeSuspiciousNameFormat}},
		{name: "double space", input: "Bret  Hart", want: []string{CodeSuspiciousNameFormat}},
		{name: "placeholder", input: "TBD", want: []string{CodeSuspiciousNameFormat, CodeInvalidPlaceholderName}},
		{name: "placeholder with suffix", input: "Unknown2", want: []string{CodeInvalidPlaceholderName}},
		{name: "control chars", input: "John\x00Doe", want: []string{CodeNameControlChars}},
		{name: "comma list", input: "John Cena, Randy Orton", want: []string{CodeSuspiciousNameMulti}, notWant: []string{CodeInvalidMultiName}},
		{name: "short comma list", input: "Edge, Christian", want: []string{CodeInvalidMultiName}},
		{name: "known stable", input: "The Shield", want: []string{CodeMisclassifiedStable}},
		{name: "disambiguated stable", input: "Retribution (professional wrestling)", want: []string{CodeMisclassifiedStable}},
		{name: "tag team", input: "FTR", want: []string{CodeMisclassifiedStable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codes(c.Check(wrestler(1, tt.input)))
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, got, nw)
			}
			if len(tt.want) == 0 {
				assert.Empty(t, got)
			}
		})
	}
}

func TestCheck_MissingNameStopsFurtherRules(t *testing.T) {
	t.Parallel()
	r := wrestler(1, "")
	r.Set(model.FieldDebutYear, 1500)

	got := testChecker().Check(r)

	assert.Equal(t, []string{CodeMissingName}, codes(got))
}

func TestCheck_FlaggedStableNotReportedAgain(t *testing.T) {
	t.Parallel()
	r := wrestler(1, "The Shield")
	r.Set(ReviewFlagField, "misclassified_stable")

	assert.NotContains(t, codes(testChecker().Check(r)), CodeMisclassifiedStable)
}

func TestCheck_WrestlerYears(t *testing.T) {
	t.Parallel()
	c := testChecker()

	tests := []struct {
		name   string
		debut  any
		retire any
		want   []string
	}{
		{name: "valid", debut: 1990, retire: 2010, want: nil},
		{name: "debut too early", debut: 1899, want: []string{CodeInvalidDebutYear}},
		{name: "debut at upper bound", debut: 2028, want: nil},
		{name: "debut beyond upper bound", debut: 2029, want: []string{CodeInvalidDebutYear}},
		{name: "debut not a number", debut: "nineteen", want: []string{CodeInvalidDebutYear}},
		{name: "retired before debut", debut: 2000, retire: 1990, want: []string{CodeInvalidYearSequence}},
		{name: "bad retirement", debut: 2000, retire: 3000, want: []string{CodeInvalidRetirementYear}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := wrestler(1, "Bret Hart")
			if tt.debut != nil {
				r.Set(model.FieldDebutYear, tt.debut)
			}
			if tt.retire != nil {
				r.Set(model.FieldRetirementYear, tt.retire)
			}
			got := codes(c.Check(r))
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheck_WrestlerAboutAndOrphan(t *testing.T) {
	t.Parallel()
	c := testChecker()

	r := model.NewRecord(model.KindWrestler, "Owen Hart")
	r.ID = 7
	r.Set(model.FieldAbout, "Wrestler.")
	r.CreatedAt = fixedNow.Add(-40 * 24 * time.Hour)

	got := codes(c.Check(r))
	assert.Contains(t, got, CodeIncompleteAbout)
	assert.Contains(t, got, CodeOrphanNoMatches)

	r.CreatedAt = fixedNow.Add(-24 * time.Hour)
	assert.NotContains(t, codes(c.Check(r)), CodeOrphanNoMatches)
}

func TestCheck_Event(t *testing.T) {
	t.Parallel()
	c := testChecker()

	event := func() *model.Record {
		r := model.NewRecord(model.KindEvent, "WrestleMania III")
		r.ID = 3
		r.Relations[model.RelPromotion] = 1
		r.Relations[model.RelMatches] = 12
		r.Set(model.FieldDate, "1987-03-29")
		return r
	}

	assert.Empty(t, c.Check(event()))

	r := event()
	r.Set(model.FieldDate, "29/03/1987")
	assert.Equal(t, []string{CodeInvalidDate}, codes(c.Check(r)))

	r = event()
	r.Set(model.FieldDate, fixedNow.AddDate(0, 0, 60).Format(model.DateLayout))
	assert.Equal(t, []string{CodeFutureEvent}, codes(c.Check(r)))

	r = event()
	r.Set(model.FieldDate, fixedNow.AddDate(0, 0, 10).Format(model.DateLayout))
	assert.Empty(t, c.Check(r))

	r = event()
	r.Relations[model.RelPromotion] = 0
	assert.Equal(t, []string{CodeMissingPromotion}, codes(c.Check(r)))

	r = event()
	r.Set(model.FieldAttendance, -5)
	issues := c.Check(r)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeInvalidAttendance, issues[0].Code)
	assert.True(t, issues[0].AutoFixable)

	r = event()
	r.Set(model.FieldAttendance, 250_000)
	issues = c.Check(r)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeSuspiciousAttendance, issues[0].Code)
	assert.False(t, issues[0].AutoFixable)
}

func TestCheck_Promotion(t *testing.T) {
	t.Parallel()
	c := testChecker()

	r := model.NewRecord(model.KindPromotion, "Extreme Championship Wrestling")
	r.Set(model.FieldFoundedYear, 1992)
	r.Set(model.FieldClosedYear, 1990)
	r.Set(model.FieldWebsite, "ecw.com")

	issues := c.Check(r)
	assert.ElementsMatch(t, []string{CodeInvalidYearSequence, CodeInvalidURLFormat}, codes(issues))

	url, ok := findIssue(issues, CodeInvalidURLFormat)
	require.True(t, ok)
	assert.True(t, url.AutoFixable)
	assert.Equal(t, "https://ecw.com", url.SuggestedValue)

	r.Set(model.FieldFoundedYear, 1800)
	r.Set(model.FieldWebsite, "HTTPS://ecw.com")
	assert.Equal(t, []string{CodeInvalidFoundedYear}, codes(c.Check(r)))
}

func TestCheck_VenueAndTitle(t *testing.T) {
	t.Parallel()
	c := testChecker()

	v := model.NewRecord(model.KindVenue, "Madison Square Garden")
	v.Relations[model.RelEvents] = 4
	v.Set(model.FieldCapacity, -1)
	issues := c.Check(v)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeInvalidCapacity, issues[0].Code)
	assert.True(t, issues[0].AutoFixable)

	v.Set(model.FieldCapacity, 600_000)
	assert.Equal(t, []string{CodeSuspiciousCapacity}, codes(c.Check(v)))

	v.Set(model.FieldCapacity, 20_000)
	v.Relations[model.RelEvents] = 0
	assert.Equal(t, []string{CodeOrphanNoEvents}, codes(c.Check(v)))

	title := model.NewRecord(model.KindTitle, "Intercontinental Championship")
	title.Set(model.FieldDebutYear, 1979)
	issues = c.Check(title)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeMissingPromotion, issues[0].Code)
	assert.Equal(t, SeverityError, issues[0].Severity)
}

func TestReport_Counters(t *testing.T) {
	t.Parallel()
	var rep Report
	rep.Add(Issue{Code: CodeNameWhitespace, Severity: SeverityWarning, AutoFixable: true})
	rep.Add(Issue{Code: CodeMissingName, Severity: SeverityError})
	rep.Add(Issue{Code: CodeIncompleteAbout, Severity: SeveritySuggestion})
	rep.Add(Issue{Code: CodeNameWhitespace, Severity: SeverityWarning, AutoFixable: true})

	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 2, rep.Warnings)
	assert.Equal(t, 1, rep.Suggestions)
	assert.Equal(t, 2, rep.AutoFixable)
	assert.Len(t, rep.Fixable(), 2)
	assert.Equal(t, 2, rep.CountByCode()[CodeNameWhitespace])
}

func TestSimilarity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.0, Similarity("Eddie Guerrero", "eddie  guerrero!"))
	assert.Equal(t, 1.0, Similarity("Rey Mysterio", "Rey Mystério"))
	assert.Equal(t, 0.0, Similarity("", "Sting"))
	assert.Less(t, Similarity("Bryan Danielson", "Daniel Bryan"), NameThreshold)
	assert.GreaterOrEqual(t, Similarity("Steve Austin", "Steve Austn"), NameThreshold)
}

func TestSplitNames(t *testing.T) {
	t.Parallel()
	assert.Nil(t, SplitNames("Bret Hart"))
	assert.Equal(t, []string{"Edge", "Christian"}, SplitNames("Edge, Christian, x"))
	assert.Equal(t, []string{"Ric Flair"}, SplitNames("Ric Flair, jr."))
}

func TestTagTeamMembers(t *testing.T) {
	t.Parallel()
	m, ok := TagTeamMembers("  The Young Bucks ")
	require.True(t, ok)
	assert.Equal(t, []string{"Matt Jackson", "Nick Jackson"}, m)

	_, ok = TagTeamMembers("Bret Hart")
	assert.False(t, ok)
}
