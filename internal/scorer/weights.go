package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wrestlebot/internal/model"
)

// Check selects how a weighted field earns its points.
type Check int

const (
	// CheckPresent awards full points when the field is non-empty.
	CheckPresent Check = iota
	// CheckText awards full points above MinTextLen characters, half below.
	CheckText
	// CheckRelation awards full points when the relation count reaches FullAt,
	// half points at HalfAt when HalfAt > 0.
	CheckRelation
)

// MinTextLen is the length a free-text field must exceed for full credit.
const MinTextLen = 50

// Weight is one row of a kind's weight table.
type Weight struct {
	Field      string
	Points     float64
	Check      Check
	FullAt     int
	HalfAt     int
	Suggestion string
	// AppliesTo excludes the field from both numerator and denominator when
	// it returns false. Nil means always applicable.
	AppliesTo func(r *model.Record) bool
}

// Table is the ordered weight table for one entity kind.
type Table []Weight

// Possible returns the sum of applicable weights for r.
func (t Table) Possible(r *model.Record) float64 {
	var sum float64
	for _, w := range t {
		if w.AppliesTo == nil || w.AppliesTo(r) {
			sum += w.Points
		}
	}
	return sum
}

func isRetired(r *model.Record) bool {
	retired, _ := r.Bool(model.FieldRetired)
	return retired
}

func isDefunct(r *model.Record) bool {
	active, ok := r.Bool(model.FieldIsActive)
	return ok && !active
}

var tables = map[model.Kind]Table{
	model.KindWrestler: {
		{Field: "name", Points: 10},
		{Field: model.FieldRealName, Points: 10, Suggestion: "Add real name from the encyclopedia source"},
		{Field: model.FieldHometown, Points: 5, Suggestion: "Add hometown"},
		{Field: model.FieldNationality, Points: 5, Suggestion: "Add nationality"},
		{Field: model.FieldDebutYear, Points: 10, Suggestion: "Add debut year from the results database"},
		{Field: model.FieldRetirementYear, Points: 5, Suggestion: "Add retirement year", AppliesTo: isRetired},
		{Field: model.FieldAbout, Points: 15, Check: CheckText, Suggestion: "Add a biography"},
		{Field: model.FieldImageURL, Points: 15, Suggestion: "Add a freely licensed image"},
		{Field: model.FieldAliases, Points: 5, Suggestion: "Add ring name aliases"},
		{Field: model.FieldFinishers, Points: 5, Suggestion: "Add finishing moves"},
		{Field: model.RelPromotions, Points: 10, Check: CheckRelation, FullAt: 1, Suggestion: "Link to promotions worked for"},
		{Field: model.RelMatches, Points: 10, Check: CheckRelation, FullAt: 1, Suggestion: "Add match history"},
	},
	model.KindPromotion: {
		{Field: "name", Points: 10},
		{Field: model.FieldAbbreviation, Points: 10, Suggestion: "Add abbreviation"},
		{Field: model.FieldFoundedYear, Points: 10, Suggestion: "Add founding year"},
		{Field: model.FieldClosedYear, Points: 5, Suggestion: "Add closing year", AppliesTo: isDefunct},
		{Field: model.FieldAbout, Points: 15, Check: CheckText, Suggestion: "Add a description"},
		{Field: model.FieldImageURL, Points: 15, Suggestion: "Add a logo"},
		{Field: model.FieldWebsite, Points: 5, Suggestion: "Add official website"},
		{Field: model.FieldHeadquarters, Points: 5, Suggestion: "Add headquarters"},
		{Field: model.RelWrestlers, Points: 15, Check: CheckRelation, FullAt: 1, Suggestion: "Link roster wrestlers"},
		{Field: model.RelEvents, Points: 10, Check: CheckRelation, FullAt: 1, Suggestion: "Add events"},
	},
	model.KindEvent: {
		{Field: "name", Points: 10},
		{Field: model.FieldDate, Points: 10, Suggestion: "Add event date"},
		{Field: model.RelPromotion, Points: 15, Check: CheckRelation, FullAt: 1, Suggestion: "Link the promoting organization"},
		{Field: model.RelVenue, Points: 10, Check: CheckRelation, FullAt: 1, Suggestion: "Link the venue"},
		{Field: model.FieldAttendance, Points: 10, Suggestion: "Add attendance"},
		{Field: model.FieldImageURL, Points: 10, Suggestion: "Add a poster image"},
		{Field: model.RelMatches, Points: 25, Check: CheckRelation, FullAt: 5, HalfAt: 1, Suggestion: "Add the match card"},
		{Field: model.FieldTagline, Points: 5, Suggestion: "Add tagline"},
		{Field: model.FieldAbout, Points: 5, Check: CheckText, Suggestion: "Add a description"},
	},
	model.KindTitle: {
		{Field: "name", Points: 15},
		{Field: model.RelPromotion, Points: 15, Check: CheckRelation, FullAt: 1, Suggestion: "Link the sanctioning promotion"},
		{Field: model.FieldWeightClass, Points: 10, Suggestion: "Add weight class"},
		{Field: model.FieldGender, Points: 10, Suggestion: "Add division gender"},
		{Field: model.FieldIsActive, Points: 5, Suggestion: "Mark whether the title is active"},
		{Field: model.FieldImageURL, Points: 15, Suggestion: "Add a belt image"},
		{Field: model.FieldAbout, Points: 10, Check: CheckText, Suggestion: "Add title history"},
		{Field: model.RelTitleMatches, Points: 20, Check: CheckRelation, FullAt: 1, Suggestion: "Add title match history"},
	},
	model.KindVenue: {
		{Field: "name", Points: 15},
		{Field: model.FieldLocation, Points: 15, Suggestion: "Add location"},
		{Field: model.FieldCapacity, Points: 15, Suggestion: "Add capacity"},
		{Field: model.FieldImageURL, Points: 20, Suggestion: "Add a venue photo"},
		{Field: model.RelEvents, Points: 20, Check: CheckRelation, FullAt: 1, Suggestion: "Link hosted events"},
		{Field: model.FieldAbout, Points: 15, Check: CheckText, Suggestion: "Add a description"},
	},
}

// TableFor returns the weight table for kind.
func TableFor(kind model.Kind) (Table, bool) {
	t, ok := tables[kind]
	return t, ok
}

// ValidateTables checks every registered table for internal consistency.
func ValidateTables() error {
	var errs []string
	for kind, t := range tables {
		seen := make(map[string]bool, len(t))
		for _, w := range t {
			if w.Points <= 0 {
				errs = append(errs, fmt.Sprintf("%s.%s: points must be > 0", kind, w.Field))
			}
			if seen[w.Field] {
				errs = append(errs, fmt.Sprintf("%s.%s: duplicate field", kind, w.Field))
			}
			seen[w.Field] = true
			if w.Check == CheckRelation && w.FullAt <= 0 {
				errs = append(errs, fmt.Sprintf("%s.%s: relation threshold must be > 0", kind, w.Field))
			}
			if w.HalfAt > 0 && w.HalfAt >= w.FullAt {
				errs = append(errs, fmt.Sprintf("%s.%s: half threshold must be below full threshold", kind, w.Field))
			}
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("scorer: weight table validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
