package source

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/resilience"
	"github.com/sells-group/wrestlebot/pkg/wikipedia"
)

// Categories walked by discovery, per kind. Two consecutive categories are
// used per cycle, rotating every five minutes.
var wikipediaCategories = map[model.Kind][]string{
	model.KindWrestler: {
		"American_male_professional_wrestlers",
		"Japanese_male_professional_wrestlers",
		"Mexican_male_professional_wrestlers",
		"Canadian_male_professional_wrestlers",
		"British_male_professional_wrestlers",
		"American_female_professional_wrestlers",
		"Japanese_female_professional_wrestlers",
		"WWE_Hall_of_Fame_inductees",
		"AEW_wrestlers",
		"WWE_Champions",
	},
	model.KindPromotion: {
		"Professional_wrestling_promotions",
		"American_professional_wrestling_promotions",
		"Japanese_professional_wrestling_promotions",
		"Mexican_professional_wrestling_promotions",
		"British_professional_wrestling_promotions",
		"Professional_wrestling_promotions_in_Canada",
	},
	model.KindEvent: {
		"WWE_pay-per-view_events",
		"AEW_pay-per-view_events",
		"Impact_Wrestling_pay-per-view_events",
		"New_Japan_Pro-Wrestling_events",
		"Professional_wrestling_annual_events",
		"WrestleMania",
		"Royal_Rumble",
		"SummerSlam",
		"Survivor_Series",
	},
	model.KindTitle: {
		"Professional_wrestling_championships",
		"World_heavyweight_wrestling_championships",
		"WWE_championships",
		"AEW_championships",
		"Women's_professional_wrestling_championships",
		"Tag_team_wrestling_championships",
	},
	model.KindVenue: {
		"Professional_wrestling_venues",
		"Indoor_arenas_in_the_United_States",
	},
}

// searchQualifier is appended to a name when the article title does not
// resolve directly.
var searchQualifier = map[model.Kind]string{
	model.KindWrestler:  "professional wrestler",
	model.KindPromotion: "wrestling promotion",
	model.KindEvent:     "professional wrestling event",
	model.KindTitle:     "wrestling championship",
	model.KindVenue:     "arena",
}

const (
	categoryRotation = 5 * time.Minute
	maxTextField     = 255
	maxFinishers     = 1000
)

// Wikipedia looks up infobox facts and walks categories for discovery.
type Wikipedia struct {
	client  wikipedia.Client
	budget  *resilience.RateBudget
	nowFunc func() time.Time
}

// NewWikipedia wraps a Wikipedia client behind a rate budget.
func NewWikipedia(c wikipedia.Client, budget *resilience.RateBudget) *Wikipedia {
	return &Wikipedia{client: c, budget: budget, nowFunc: time.Now}
}

// SetClock replaces the time source used for year bounds and category
// rotation.
func (w *Wikipedia) SetClock(now func() time.Time) { w.nowFunc = now }

// Name implements FactLookup and Discoverer.
func (w *Wikipedia) Name() string { return NameWikipedia }

// LookupByName resolves name to an article (directly, then by search) and
// maps its infobox to record fields. Prose is never copied.
func (w *Wikipedia) LookupByName(ctx context.Context, kind model.Kind, name string) (*Facts, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	title := name
	box, err := w.infobox(ctx, title)
	if err != nil {
		return nil, err
	}
	if len(box) == 0 {
		if err := take(w.budget, NameWikipedia); err != nil {
			return nil, err
		}
		pages, err := w.client.Search(ctx, name+" "+searchQualifier[kind], 1)
		if err != nil {
			return nil, eris.Wrapf(err, "wikipedia: search %q", name)
		}
		if len(pages) == 0 || pages[0].Title == name {
			return nil, nil
		}
		title = pages[0].Title
		if box, err = w.infobox(ctx, title); err != nil {
			return nil, err
		}
		if len(box) == 0 {
			return nil, nil
		}
	}
	facts := w.mapInfobox(kind, title, box)
	if facts.Empty() {
		return nil, nil
	}
	return facts, nil
}

func (w *Wikipedia) infobox(ctx context.Context, title string) (wikipedia.Infobox, error) {
	if err := take(w.budget, NameWikipedia); err != nil {
		return nil, err
	}
	box, err := w.client.Infobox(ctx, title)
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: infobox %q", title)
	}
	return box, nil
}

func (w *Wikipedia) year(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	return wikipedia.ExtractYear(text, w.nowFunc())
}

// mapInfobox converts infobox rows into record fields for kind. The article
// URL is recorded in wikipedia_url.
func (w *Wikipedia) mapInfobox(kind model.Kind, title string, box wikipedia.Infobox) *Facts {
	f := newFacts(NameWikipedia, wikipedia.ArticleURL(title), title)

	switch kind {
	case model.KindWrestler:
		if v := box.First("birth_name"); v != "" {
			f.setText(model.FieldRealName, v, maxTextField)
		} else if born := box.First("born"); born != "" && !hasDigit(prefix(born, 20)) {
			f.setText(model.FieldRealName, strings.Split(born, "(")[0], maxTextField)
		}
		f.setText(model.FieldAliases, box.First("ring_names", "ring_name"), maxFinishers)
		f.setText(model.FieldHometown, box.First("billed_from", "residence", "birth_place"), maxTextField)
		if y, ok := w.year(box.First("debut")); ok {
			f.Fields[model.FieldDebutYear] = y
		}
		if y, ok := w.year(box.First("retired")); ok {
			f.Fields[model.FieldRetirementYear] = y
		}
		f.setText(model.FieldFinishers, box.First("finishing_moves", "finishing_move", "finisher"), maxFinishers)

	case model.KindPromotion:
		f.setText(model.FieldAbbreviation, box.First("acronym", "short_name", "abbreviation"), 50)
		if y, ok := w.year(box.First("founded", "formation")); ok {
			f.Fields[model.FieldFoundedYear] = y
		}
		if y, ok := w.year(box.First("defunct", "closed")); ok {
			f.Fields[model.FieldClosedYear] = y
		}
		if u, ok := wikipedia.ExtractURL(box.First("website")); ok {
			f.Fields[model.FieldWebsite] = u
		}
		f.setText(model.FieldHeadquarters, box.First("headquarters"), maxTextField)

	case model.KindEvent:
		if d, ok := wikipedia.ExtractDate(box.First("date", "dates")); ok {
			f.Fields[model.FieldDate] = d
		}
		if n, ok := wikipedia.ExtractNumber(box.First("attendance")); ok && n > 0 {
			f.Fields[model.FieldAttendance] = n
		}
		f.setText(model.FieldTagline, box.First("tagline"), maxTextField)
		f.setLink(LinkVenue, box.First("venue"))
		f.setLink(LinkVenueLocation, box.First("city", "location"))
		f.setLink(LinkPromotion, box.First("promotion"))

	case model.KindTitle:
		f.setLink(LinkPromotion, box.First("promotion", "current_promotion"))
		if y, ok := w.year(box.First("date_created", "created")); ok {
			f.Fields[model.FieldDebutYear] = y
		}
		if y, ok := w.year(box.First("date_retired", "retired")); ok {
			f.Fields[model.FieldRetirementYear] = y
		}
		f.setText(model.FieldWeightClass, box.First("weight_class", "weight"), 50)
		f.setText(model.FieldGender, box.First("gender", "division"), 50)

	case model.KindVenue:
		f.setText(model.FieldLocation, box.First("location", "address", "city"), maxTextField)
		if n, ok := wikipedia.ExtractNumber(box.First("capacity")); ok && n > 0 {
			f.Fields[model.FieldCapacity] = n
		}
	}
	return f
}

// Discover walks the kind's categories and returns articles whose infobox
// yields usable facts. Wrestlers need at least one fact; events need a date.
func (w *Wikipedia) Discover(ctx context.Context, kind model.Kind, limit int, skip func(string) bool) ([]Candidate, error) {
	cats := wikipediaCategories[kind]
	if len(cats) == 0 || limit <= 0 {
		return nil, nil
	}
	log := zap.L().With(zap.String("source", NameWikipedia), zap.String("kind", string(kind)))

	idx := int(w.nowFunc().Unix()/int64(categoryRotation/time.Second)) % len(cats)
	picked := []string{cats[idx]}
	if len(cats) > 1 {
		picked = append(picked, cats[(idx+1)%len(cats)])
	}

	seen := make(map[string]bool)
	var out []Candidate
	for _, cat := range picked {
		if len(out) >= limit {
			break
		}
		if err := take(w.budget, NameWikipedia); err != nil {
			return out, err
		}
		members, err := w.client.CategoryMembers(ctx, cat, limit*3)
		if err != nil {
			log.Warn("category listing failed", zap.String("category", cat), zap.Error(err))
			continue
		}
		for _, m := range members {
			if len(out) >= limit || ctx.Err() != nil {
				break
			}
			if seen[m.Title] || (skip != nil && skip(m.Title)) {
				continue
			}
			seen[m.Title] = true

			box, err := w.infobox(ctx, m.Title)
			if err != nil {
				if eris.Is(err, resilience.ErrBudgetExhausted) {
					return out, err
				}
				log.Warn("infobox fetch failed", zap.String("title", m.Title), zap.Error(err))
				continue
			}
			facts := w.mapInfobox(kind, m.Title, box)
			if !usableForDiscovery(kind, facts) {
				log.Debug("skipping article without usable facts", zap.String("title", m.Title))
				continue
			}
			out = append(out, Candidate{
				Kind:      kind,
				Name:      m.Title,
				Source:    NameWikipedia,
				SourceURL: facts.SourceURL,
				Facts:     facts,
			})
		}
	}
	return out, nil
}

// Summary returns the article lead for classification hints. Missing and
// non-standard articles yield nil.
func (w *Wikipedia) Summary(ctx context.Context, title string) (*wikipedia.Summary, error) {
	if err := take(w.budget, NameWikipedia); err != nil {
		return nil, err
	}
	s, err := w.client.Summary(ctx, title)
	if err != nil {
		return nil, eris.Wrapf(err, "wikipedia: summary %q", title)
	}
	return s, nil
}

func usableForDiscovery(kind model.Kind, f *Facts) bool {
	switch kind {
	case model.KindWrestler:
		return len(f.Fields) > 0
	case model.KindEvent:
		_, ok := f.Fields[model.FieldDate]
		return ok
	}
	return !f.Empty()
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
