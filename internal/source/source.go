// Package source adapts external data providers into the read-only lookup
// contracts used by enrichment, verification and discovery. Every external
// request first takes a token from the provider's rate budget.
package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/resilience"
)

// Provider names, used for budgets, ledger sources and daily counters.
const (
	NameWikipedia = "wikipedia"
	NameCommons   = "wikimedia_commons"
	NameCagematch = "cagematch"
)

// Link keys carried in Facts.Links. They name related records by name; the
// caller decides whether to link them.
const (
	LinkPromotion     = "promotion_name"
	LinkVenue         = "venue_name"
	LinkVenueLocation = "venue_location"
)

// Facts is a partial record returned by a fact lookup. Fields only ever
// contains short factual values keyed by model field names.
type Facts struct {
	Source    string            `json:"source"`
	SourceURL string            `json:"source_url"`
	Title     string            `json:"title"`
	Fields    map[string]any    `json:"fields"`
	Links     map[string]string `json:"links,omitempty"`
}

func newFacts(source, sourceURL, title string) *Facts {
	return &Facts{
		Source:    source,
		SourceURL: sourceURL,
		Title:     title,
		Fields:    make(map[string]any),
		Links:     make(map[string]string),
	}
}

// Empty reports whether the lookup produced no usable field or link.
func (f *Facts) Empty() bool {
	return f == nil || (len(f.Fields) == 0 && len(f.Links) == 0)
}

// Text returns a field as a string.
func (f *Facts) Text(field string) string {
	if f == nil {
		return ""
	}
	s, _ := f.Fields[field].(string)
	return s
}

// Int returns an integer field.
func (f *Facts) Int(field string) (int, bool) {
	if f == nil {
		return 0, false
	}
	n, ok := f.Fields[field].(int)
	return n, ok
}

func (f *Facts) setText(field, value string, max int) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if r := []rune(value); max > 0 && len(r) > max {
		value = strings.TrimSpace(string(r[:max]))
	}
	f.Fields[field] = value
}

func (f *Facts) setLink(key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		f.Links[key] = value
	}
}

// FactLookup returns textual facts for a named entity. A nil result with a
// nil error means the provider has nothing for that name.
type FactLookup interface {
	Name() string
	LookupByName(ctx context.Context, kind model.Kind, name string) (*Facts, error)
}

// Hints narrow an image search.
type Hints struct {
	RealName     string
	Abbreviation string
	Location     string
	Promotion    string
	Year         int
}

// HintsFor derives search hints from a record.
func HintsFor(r *model.Record) Hints {
	h := Hints{
		RealName:     r.Text(model.FieldRealName),
		Abbreviation: r.Text(model.FieldAbbreviation),
		Location:     r.Text(model.FieldLocation),
	}
	if d, ok := r.Date(model.FieldDate); ok {
		h.Year = d.Year()
	}
	return h
}

// Image is a candidate image with its licensing metadata. The license is
// reported as published; callers enforce their own allow-list.
type Image struct {
	Title          string `json:"title"`
	URL            string `json:"url"`
	ThumbURL       string `json:"thumb_url,omitempty"`
	DescriptionURL string `json:"description_url,omitempty"`
	License        string `json:"license"`
	LicenseURL     string `json:"license_url,omitempty"`
	Attribution    string `json:"attribution,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

// ImageSearch finds one candidate image for a record.
type ImageSearch interface {
	Name() string
	FindImage(ctx context.Context, kind model.Kind, name string, hints Hints) (*Image, error)
}

// Candidate is a newly seen entity offered to discovery.
type Candidate struct {
	Kind      model.Kind `json:"kind"`
	Name      string     `json:"name"`
	Source    string     `json:"source"`
	SourceURL string     `json:"source_url,omitempty"`
	Excerpt   string     `json:"excerpt,omitempty"`
	Facts     *Facts     `json:"facts,omitempty"`
}

// Discoverer lists entities of a kind the provider knows about. skip reports
// names the caller already has; skipped names cost no further lookups.
type Discoverer interface {
	Name() string
	Discover(ctx context.Context, kind model.Kind, limit int, skip func(name string) bool) ([]Candidate, error)
}

// take spends one budget token. A nil budget is unlimited.
func take(b *resilience.RateBudget, provider string) error {
	if b == nil {
		return nil
	}
	if err := b.Take(); err != nil {
		return eris.Wrapf(err, "%s: budget", provider)
	}
	return nil
}
