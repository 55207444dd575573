// Package scorer computes weighted completeness scores for curated records.
package scorer

import (
	"math"
	"sort"
	"strings"

	"github.com/sells-group/wrestlebot/internal/model"
)

// MaxSuggestions caps Breakdown.Suggestions.
const MaxSuggestions = 5

// UnscoredField is reported as missing for kinds with no weight table.
const UnscoredField = "unscored_kind"

// neutral score for kinds without a table.
const (
	neutralEarned   = 50
	neutralPossible = 100
)

// FieldScore is the points earned for one field out of its weight.
type FieldScore struct {
	Earned   float64 `json:"earned"`
	Possible float64 `json:"possible"`
}

// Breakdown is the result of scoring one record. It is computed on demand and
// never persisted.
type Breakdown struct {
	Kind        model.Kind            `json:"kind"`
	EntityID    int64                 `json:"entity_id"`
	Name        string                `json:"name"`
	Earned      float64               `json:"earned"`
	Possible    float64               `json:"possible"`
	Percentage  float64               `json:"percentage"`
	Fields      map[string]FieldScore `json:"fields"`
	Missing     []string              `json:"missing"`
	Suggestions []string              `json:"suggestions"`
}

// IsMissing reports whether field is listed in Missing.
func (b Breakdown) IsMissing(field string) bool {
	for _, f := range b.Missing {
		if f == field {
			return true
		}
	}
	return false
}

// Complete reports whether nothing is missing.
func (b Breakdown) Complete() bool {
	return len(b.Missing) == 0
}

type suggestion struct {
	text   string
	weight float64
	order  int
}

// Score computes the completeness breakdown for r. It is pure and has no side
// effects. Fields that earn only partial credit are listed as missing so that
// a record reaches 100% only when every applicable field is complete.
func Score(r *model.Record) Breakdown {
	b := Breakdown{
		Kind:     r.Kind,
		EntityID: r.ID,
		Name:     r.Name,
		Fields:   make(map[string]FieldScore),
	}

	table, ok := TableFor(r.Kind)
	if !ok {
		b.Earned = neutralEarned
		b.Possible = neutralPossible
		b.Percentage = percentage(neutralEarned, neutralPossible)
		b.Missing = []string{UnscoredField}
		return b
	}

	var sugs []suggestion
	for i, w := range table {
		if w.AppliesTo != nil && !w.AppliesTo(r) {
			continue
		}
		earned, partialHint := earn(r, w)
		b.Fields[w.Field] = FieldScore{Earned: earned, Possible: w.Points}
		b.Earned += earned
		b.Possible += w.Points

		if earned >= w.Points {
			continue
		}
		b.Missing = append(b.Missing, w.Field)
		text := w.Suggestion
		if partialHint != "" {
			text = partialHint
		}
		if text != "" {
			sugs = append(sugs, suggestion{text: text, weight: w.Points - earned, order: i})
		}
	}

	b.Percentage = percentage(b.Earned, b.Possible)
	if len(b.Missing) == 0 {
		b.Percentage = 100
	}
	b.Suggestions = rankSuggestions(sugs)
	return b
}

func earn(r *model.Record, w Weight) (float64, string) {
	switch w.Check {
	case CheckText:
		text := strings.TrimSpace(r.Text(w.Field))
		switch {
		case text == "":
			return 0, ""
		case len(text) > MinTextLen:
			return w.Points, ""
		default:
			return w.Points / 2, "Expand " + strings.ReplaceAll(w.Field, "_", " ") + " beyond a short fragment"
		}
	case CheckRelation:
		n := r.Related(w.Field)
		switch {
		case n >= w.FullAt:
			return w.Points, ""
		case w.HalfAt > 0 && n >= w.HalfAt:
			return w.Points / 2, w.Suggestion
		default:
			return 0, ""
		}
	default:
		if r.Has(w.Field) {
			return w.Points, ""
		}
		return 0, ""
	}
}

// rankSuggestions orders by lost points descending, then table order.
func rankSuggestions(sugs []suggestion) []string {
	sort.SliceStable(sugs, func(i, j int) bool {
		if sugs[i].weight != sugs[j].weight {
			return sugs[i].weight > sugs[j].weight
		}
		return sugs[i].order < sugs[j].order
	})
	out := make([]string, 0, MaxSuggestions)
	for _, s := range sugs {
		if len(out) == MaxSuggestions {
			break
		}
		out = append(out, s.text)
	}
	return out
}

func percentage(earned, possible float64) float64 {
	if possible <= 0 {
		return 0
	}
	p := math.Round(earned/possible*1000) / 10
	return math.Min(100, math.Max(0, p))
}

// Scored pairs a record with its breakdown.
type Scored struct {
	Record    *model.Record
	Breakdown Breakdown
}

// LowScore scores every record, keeps those at or below maxPercent, and returns
// up to limit of them ordered by ascending percentage. Ties keep input order.
func LowScore(records []*model.Record, maxPercent float64, limit int) []Scored {
	out := make([]Scored, 0, len(records))
	for _, r := range records {
		b := Score(r)
		if b.Percentage <= maxPercent {
			out = append(out, Scored{Record: r, Breakdown: b})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Breakdown.Percentage < out[j].Breakdown.Percentage
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
