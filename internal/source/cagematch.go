package source

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/resilience"
	"github.com/sells-group/wrestlebot/pkg/cagematch"
)

const (
	cagematchSearchLimit = 5
	// eventsScannedPerDiscovery bounds profile fetches; the site is paced at
	// one request every five seconds.
	eventsScannedPerDiscovery = 5
)

// Cagematch is the results-database adapter. It supports wrestler lookups
// and discovers wrestlers from recent match cards and recent events.
type Cagematch struct {
	client cagematch.Client
	budget *resilience.RateBudget
}

// NewCagematch wraps a Cagematch client behind a rate budget.
func NewCagematch(c cagematch.Client, budget *resilience.RateBudget) *Cagematch {
	return &Cagematch{client: c, budget: budget}
}

// Name implements FactLookup and Discoverer.
func (c *Cagematch) Name() string { return NameCagematch }

// LookupByName finds a wrestler profile whose name matches exactly
// (case-insensitive). Other kinds are not supported and return nil.
func (c *Cagematch) LookupByName(ctx context.Context, kind model.Kind, name string) (*Facts, error) {
	name = strings.TrimSpace(name)
	if kind != model.KindWrestler || name == "" {
		return nil, nil
	}
	if err := take(c.budget, NameCagematch); err != nil {
		return nil, err
	}
	hits, err := c.client.SearchWorkers(ctx, name, cagematchSearchLimit)
	if err != nil {
		return nil, eris.Wrapf(err, "cagematch: search %q", name)
	}
	var hit *cagematch.Listing
	for i := range hits {
		if strings.EqualFold(hits[i].Name, name) {
			hit = &hits[i]
			break
		}
	}
	if hit == nil {
		return nil, nil
	}

	if err := take(c.budget, NameCagematch); err != nil {
		return nil, err
	}
	p, err := c.client.Profile(ctx, cagematch.PageWorker, hit.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "cagematch: profile %d", hit.ID)
	}
	if p == nil {
		return nil, nil
	}
	facts := mapWorker(p)
	if facts.Empty() {
		return nil, nil
	}
	return facts, nil
}

// mapWorker converts profile rows into wrestler fields. The career row gives
// the debut year and, when it spans several years, the retirement year.
func mapWorker(p *cagematch.Profile) *Facts {
	title := p.Name
	f := newFacts(NameCagematch, p.URL, title)
	f.setText(model.FieldRealName, p.Find("real name"), maxTextField)
	f.setText(model.FieldAliases, p.Find("alter ego", "ring name"), maxFinishers)
	f.setText(model.FieldHometown, p.Find("birthplace"), maxTextField)
	f.setText(model.FieldNationality, p.Find("nationality"), maxTextField)
	f.setText(model.FieldFinishers, p.Find("finisher", "finishing"), maxFinishers)
	if years := cagematch.Years(p.Find("career", "active")); len(years) > 0 {
		f.Fields[model.FieldDebutYear] = years[0]
		if len(years) > 1 {
			f.Fields[model.FieldRetirementYear] = years[len(years)-1]
		}
	}
	return f
}

// Discover lists recent events (event kind) or extracts wrestler names from
// the match cards of recent events (wrestler kind).
func (c *Cagematch) Discover(ctx context.Context, kind model.Kind, limit int, skip func(string) bool) ([]Candidate, error) {
	if limit <= 0 || (kind != model.KindWrestler && kind != model.KindEvent) {
		return nil, nil
	}
	log := zap.L().With(zap.String("source", NameCagematch), zap.String("kind", string(kind)))

	if err := take(c.budget, NameCagematch); err != nil {
		return nil, err
	}
	listLimit := limit * 3
	if kind == model.KindWrestler {
		listLimit = eventsScannedPerDiscovery
	}
	events, err := c.client.RecentEvents(ctx, listLimit)
	if err != nil {
		return nil, eris.Wrap(err, "cagematch: recent events")
	}

	seen := make(map[string]bool)
	var out []Candidate
	add := func(name, url string) {
		key := strings.ToLower(name)
		if len(out) >= limit || seen[key] || (skip != nil && skip(name)) {
			return
		}
		seen[key] = true
		out = append(out, Candidate{Kind: kind, Name: name, Source: NameCagematch, SourceURL: url})
	}

	if kind == model.KindEvent {
		for _, e := range events {
			add(e.Name, e.URL)
		}
		return out, nil
	}

	for _, e := range events {
		if len(out) >= limit || ctx.Err() != nil {
			break
		}
		if err := take(c.budget, NameCagematch); err != nil {
			return out, err
		}
		p, err := c.client.Profile(ctx, cagematch.PageEvent, e.ID)
		if err != nil {
			log.Warn("event profile failed", zap.Int("event_id", e.ID), zap.Error(err))
			continue
		}
		if p == nil {
			continue
		}
		for _, m := range p.Matches {
			for _, n := range ExtractMatchNames(m.Card) {
				add(n, "")
			}
		}
	}
	return out, nil
}

var (
	parenRe      = regexp.MustCompile(`\([^)]*\)`)
	bracketRe    = regexp.MustCompile(`\[[^\]]*\]`)
	matchSplitRe = regexp.MustCompile(`(?i)\s+vs\.?\s+|\s+def\.?\s+|\s+defeated\s+|\s+beat\s+|\s+&\s+|\s+and\s+|\s*,\s*|\s+over\s+`)
)

var matchStopWords = map[string]bool{
	"defeated": true, "def": true, "beat": true, "pinned": true, "submitted": true, "won": true,
	"lost": true, "drew": true, "retained": true, "captured": true, "defended": true, "vacant": true,
	"vacated": true, "via": true, "by": true, "after": true, "with": true, "and": true, "the": true,
	"for": true, "match": true, "title": true, "championship": true, "belt": true, "minutes": true,
	"seconds": true, "time": true, "disqualification": true, "dq": true, "countout": true, "count": true,
	"out": true, "pinfall": true, "submission": true, "referee": true, "stoppage": true, "no": true,
	"contest": true, "draw": true, "table": true, "ladder": true, "cage": true, "cell": true,
	"steel": true, "falls": true, "anywhere": true, "team": true, "vs": true, "over": true, "in": true,
	"at": true, "to": true, "from": true, "into": true,
}

var matchNonNames = map[string]bool{"world": true, "heavyweight": true, "champion": true, "title match": true}

// ExtractMatchNames pulls plausible participant names out of a match line
// such as "Triple H (c) vs. Shawn Michaels & Kevin Nash".
func ExtractMatchNames(text string) []string {
	text = parenRe.ReplaceAllString(text, " ")
	text = bracketRe.ReplaceAllString(text, " ")

	var names []string
	for _, part := range matchSplitRe.Split(text, -1) {
		words := strings.Fields(part)
		if len(words) < 1 || len(words) > 5 {
			continue
		}
		content := 0
		for _, w := range words {
			if !matchStopWords[strings.ToLower(w)] && len([]rune(w)) > 1 {
				content++
			}
		}
		if float64(content) < float64(len(words))*0.5 {
			continue
		}
		if first := []rune(words[0]); !unicode.IsUpper(first[0]) {
			continue
		}
		name := strings.Join(words, " ")
		if n := len([]rune(name)); n < 3 || n > 50 || matchNonNames[strings.ToLower(name)] {
			continue
		}
		names = append(names, name)
	}
	return names
}
