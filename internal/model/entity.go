// Package model defines the curated entity records and audit types shared by
// every curation component.
package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Kind identifies one of the closed set of curated entity kinds.
type Kind string

const (
	KindWrestler  Kind = "wrestler"
	KindPromotion Kind = "promotion"
	KindEvent     Kind = "event"
	KindVenue     Kind = "venue"
	KindTitle     Kind = "title"
)

// Kinds lists every supported kind in default processing order.
var Kinds = []Kind{KindWrestler, KindPromotion, KindEvent, KindVenue, KindTitle}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindWrestler, KindPromotion, KindEvent, KindVenue, KindTitle:
		return true
	}
	return false
}

// ParseKind converts a string (case-insensitive) into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", eris.Errorf("model: unknown entity kind %q", s)
	}
	return k, nil
}

// ParseKinds converts a list of strings into kinds, skipping blanks.
func ParseKinds(ss []string) ([]Kind, error) {
	out := make([]Kind, 0, len(ss))
	for _, s := range ss {
		if strings.TrimSpace(s) == "" {
			continue
		}
		k, err := ParseKind(s)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// Field names stored in Record.Fields.
const (
	FieldRealName         = "real_name"
	FieldHometown         = "hometown"
	FieldNationality      = "nationality"
	FieldDebutYear        = "debut_year"
	FieldRetirementYear   = "retirement_year"
	FieldRetired          = "retired"
	FieldAbout            = "about"
	FieldImageURL         = "image_url"
	FieldImageSource      = "image_source_url"
	FieldImageLicense     = "image_license"
	FieldImageAttribution = "image_attribution"
	FieldAliases          = "aliases"
	FieldFinishers        = "finishers"
	FieldWikipediaURL     = "wikipedia_url"
	FieldAbbreviation     = "abbreviation"
	FieldFoundedYear      = "founded_year"
	FieldClosedYear       = "closed_year"
	FieldIsActive         = "is_active"
	FieldWebsite          = "website"
	FieldHeadquarters     = "headquarters"
	FieldDate             = "date"
	FieldAttendance       = "attendance"
	FieldTagline          = "tagline"
	FieldWeightClass      = "weight_class"
	FieldGender           = "gender"
	FieldLocation         = "location"
	FieldCapacity         = "capacity"
)

// Relation names used with Record.Relations and Repository.CountRelated.
const (
	RelPromotions   = "promotions"
	RelMatches      = "matches"
	RelWrestlers    = "wrestlers"
	RelEvents       = "events"
	RelPromotion    = "promotion"
	RelVenue        = "venue"
	RelTitleMatches = "title_matches"
	RelTitles       = "titles"
)

// InverseRelation names the relation seen from the other end of a link, or ""
// when the link is one-directional.
func InverseRelation(kind Kind, relation string) string {
	switch {
	case kind == KindEvent && (relation == RelPromotion || relation == RelVenue):
		return RelEvents
	case kind == KindWrestler && relation == RelPromotions:
		return RelWrestlers
	case kind == KindPromotion && relation == RelWrestlers:
		return RelPromotions
	case kind == KindPromotion && relation == RelTitles:
		return RelPromotion
	case kind == KindTitle && relation == RelPromotion:
		return RelTitles
	}
	return ""
}

// DateLayout is the storage format of date fields.
const DateLayout = "2006-01-02"

// Record is one curated entity. Fields hold typed optional attributes keyed by
// the Field* constants; Relations hold counts of linked records.
type Record struct {
	ID        int64          `json:"id"`
	Kind      Kind           `json:"kind"`
	Name      string         `json:"name"`
	Fields    map[string]any `json:"fields"`
	Relations map[string]int `json:"relations"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewRecord returns an empty record of the given kind.
func NewRecord(kind Kind, name string) *Record {
	return &Record{
		Kind:      kind,
		Name:      name,
		Fields:    make(map[string]any),
		Relations: make(map[string]int),
	}
}

// Clone returns a deep copy of the record's maps.
func (r *Record) Clone() *Record {
	c := *r
	c.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	c.Relations = make(map[string]int, len(r.Relations))
	for k, v := range r.Relations {
		c.Relations[k] = v
	}
	return &c
}

// Get returns the raw value of a field. "name" resolves to Record.Name.
func (r *Record) Get(field string) (any, bool) {
	if field == "name" {
		return r.Name, r.Name != ""
	}
	if r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[field]
	return v, ok && v != nil
}

// Has reports whether a field holds a non-empty value.
func (r *Record) Has(field string) bool {
	v, ok := r.Get(field)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	return true
}

// Text returns a field as a string; numbers are formatted.
func (r *Record) Text(field string) string {
	v, ok := r.Get(field)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	if n, ok := toInt(v); ok {
		return strconv.Itoa(n)
	}
	return ""
}

// Int returns a field as an int. JSON round-trips produce float64 and
// json.Number values, both of which are accepted.
func (r *Record) Int(field string) (int, bool) {
	v, ok := r.Get(field)
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// Bool returns a boolean field.
func (r *Record) Bool(field string) (bool, bool) {
	v, ok := r.Get(field)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	}
	return false, false
}

// Date parses a date field stored in DateLayout.
func (r *Record) Date(field string) (time.Time, bool) {
	s := r.Text(field)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Set assigns a field. "name" updates Record.Name.
func (r *Record) Set(field string, v any) {
	if field == "name" {
		if s, ok := v.(string); ok {
			r.Name = s
		}
		return
	}
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[field] = v
}

// Clear removes a field value.
func (r *Record) Clear(field string) {
	delete(r.Fields, field)
}

// Related returns the relation count for name.
func (r *Record) Related(name string) int {
	if r.Relations == nil {
		return 0
	}
	return r.Relations[name]
}

// TotalRelated sums every relation count.
func (r *Record) TotalRelated() int {
	total := 0
	for _, n := range r.Relations {
		total += n
	}
	return total
}

// Aliases splits the aliases field on commas.
func (r *Record) Aliases() []string {
	raw := r.Text(FieldAliases)
	if raw == "" {
		return nil
	}
	var out []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
