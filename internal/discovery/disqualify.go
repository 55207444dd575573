package discovery

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/quality"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

// Skip reason codes.
const (
	ReasonInvalidName = "invalid_name"
	ReasonLikelyGroup = "likely_group"
	ReasonMultiName   = "multi_name"
	ReasonExists      = "exists"
	ReasonNearMatch   = "near_match"
	ReasonAmbiguous   = "ambiguous"
	ReasonUnverified  = "unverified"
	ReasonDuplicate   = "duplicate"
)

// Name similarity thresholds for the existing-record check. At or above
// NearMatchThreshold a candidate is the same entity; between the two it is
// too close to call and is skipped as ambiguous.
const (
	NearMatchThreshold = 0.92
	AmbiguousThreshold = 0.85
)

// nearMatchSample bounds the records compared for a near match.
const (
	nearMatchSample = 200
	nearMatchPrefix = 3
)

// Disqualify returns the reason a candidate must not become a record, or ""
// when it may.
func Disqualify(c source.Candidate) string {
	name := strings.TrimSpace(c.Name)
	if utf8.RuneCountInString(name) < 2 || quality.IsInvalidName(c.Kind, name) {
		return ReasonInvalidName
	}
	if name != quality.StripControl(name) {
		return ReasonInvalidName
	}
	if c.Kind != model.KindWrestler {
		return ""
	}
	if len(quality.SplitNames(name)) > 1 {
		return ReasonMultiName
	}
	if quality.IsLikelyGroup(name) {
		return ReasonLikelyGroup
	}
	return ""
}

// Match is the outcome of the existing-record check.
type Match struct {
	Reason     string  `json:"reason,omitempty"` // "" when no record matches
	ID         int64   `json:"id,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
}

func (d *Discoverer) exactMatch(ctx context.Context, kind model.Kind, name string) (bool, error) {
	hits, err := d.deps.Repo.Query(ctx, store.Filter{Kind: kind, NameIn: []string{name}, Limit: 1})
	if err != nil {
		return false, eris.Wrapf(err, "discovery: exact match %q", name)
	}
	return len(hits) > 0, nil
}

// findExisting looks for a record with the same or a nearly identical name.
// Near matches are searched among records whose name starts like the
// candidate's and also compare aliases.
func (d *Discoverer) findExisting(ctx context.Context, kind model.Kind, name string) (Match, error) {
	hits, err := d.deps.Repo.Query(ctx, store.Filter{Kind: kind, NameIn: []string{name}, OrderBy: store.OrderID, Limit: 1})
	if err != nil {
		return Match{}, eris.Wrapf(err, "discovery: exact match %q", name)
	}
	if len(hits) > 0 {
		return Match{Reason: ReasonExists, ID: hits[0].ID, Similarity: 1}, nil
	}

	prefix := namePrefix(name)
	if prefix == "" {
		return Match{}, nil
	}
	similar, err := d.deps.Repo.Query(ctx, store.Filter{
		Kind:         kind,
		NamePrefixes: []string{prefix},
		OrderBy:      store.OrderID,
		Limit:        nearMatchSample,
	})
	if err != nil {
		return Match{}, eris.Wrapf(err, "discovery: near match %q", name)
	}

	var best Match
	for _, r := range similar {
		score := quality.Similarity(name, r.Name)
		for _, alias := range r.Aliases() {
			if s := quality.Similarity(name, alias); s > score {
				score = s
			}
		}
		if score > best.Similarity {
			best = Match{ID: r.ID, Similarity: score}
		}
	}
	switch {
	case best.Similarity >= NearMatchThreshold:
		best.Reason = ReasonNearMatch
	case best.Similarity >= AmbiguousThreshold:
		best.Reason = ReasonAmbiguous
	default:
		best = Match{}
	}
	return best, nil
}

// namePrefix is the lowercased start of the first word, short enough to
// survive a one-letter typo later in the word.
func namePrefix(name string) string {
	words := strings.Fields(strings.ToLower(name))
	if len(words) == 0 {
		return ""
	}
	r := []rune(words[0])
	if len(r) > nearMatchPrefix {
		r = r[:nearMatchPrefix]
	}
	return string(r)
}
