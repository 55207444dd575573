package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/resilience"
	"github.com/sells-group/wrestlebot/pkg/commons"
)

const imagesPerQuery = 5

// Commons searches Wikimedia Commons with kind-specific queries and
// filters. The first acceptable result wins.
type Commons struct {
	client commons.Client
	budget *resilience.RateBudget
}

// NewCommons wraps a Commons client behind a rate budget.
func NewCommons(c commons.Client, budget *resilience.RateBudget) *Commons {
	return &Commons{client: c, budget: budget}
}

// Name implements ImageSearch.
func (c *Commons) Name() string { return NameCommons }

// FindImage tries each query for kind in order and returns the first result
// its filter accepts. Nil means nothing suitable was found.
func (c *Commons) FindImage(ctx context.Context, kind model.Kind, name string, hints Hints) (*Image, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	log := zap.L().With(zap.String("source", NameCommons), zap.String("kind", string(kind)), zap.String("name", name))

	for _, q := range ImageQueries(kind, name, hints) {
		if err := take(c.budget, NameCommons); err != nil {
			return nil, err
		}
		results, err := c.client.Search(ctx, q, imagesPerQuery)
		if err != nil {
			return nil, eris.Wrapf(err, "commons: search %q", q)
		}
		if img := pickImage(kind, results); img != nil {
			log.Debug("image candidate found", zap.String("query", q), zap.String("title", img.Title))
			return img, nil
		}
	}
	return nil, nil
}

// ImageQueries returns the search queries tried for a record, most specific
// first.
func ImageQueries(kind model.Kind, name string, h Hints) []string {
	quoted := fmt.Sprintf("%q", name)
	switch kind {
	case model.KindWrestler:
		var qs []string
		if h.RealName != "" && h.RealName != name {
			qs = append(qs, fmt.Sprintf("%q wrestler", h.RealName))
		}
		return append(qs, quoted+" wrestler", quoted+" wrestling", quoted+" WWE", name)
	case model.KindPromotion:
		var qs []string
		if h.Abbreviation != "" {
			qs = append(qs, fmt.Sprintf("%q wrestling logo", h.Abbreviation))
		}
		qs = append(qs, quoted+" logo", quoted+" wrestling")
		if h.Abbreviation != "" {
			qs = append(qs, fmt.Sprintf("%q wrestling", h.Abbreviation))
		}
		return qs
	case model.KindVenue:
		var qs []string
		if h.Location != "" {
			qs = append(qs, quoted+" "+h.Location)
		}
		return append(qs, quoted+" arena", quoted+" stadium", name)
	case model.KindEvent:
		var qs []string
		if h.Year > 0 {
			qs = append(qs, fmt.Sprintf("%s %d", quoted, h.Year))
			if h.Promotion != "" {
				qs = append(qs, fmt.Sprintf("%s %s %d", quoted, h.Promotion, h.Year))
			}
		}
		return append(qs, quoted+" wrestling", quoted+" logo", name)
	case model.KindTitle:
		var qs []string
		if h.Promotion != "" {
			qs = append(qs, fmt.Sprintf("%q %s", h.Promotion, quoted))
		}
		return append(qs, quoted+" belt", quoted+" championship", name)
	}
	return []string{name}
}

var wrestlerImageSkip = []string{"logo", "belt", "championship", "title", "arena", "stadium"}

// pickImage applies the per-kind filter: portraits for wrestlers, landscape
// photos for venues, belt images for titles (else the first result).
func pickImage(kind model.Kind, results []commons.Image) *Image {
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		title := strings.ToLower(r.Title)
		switch kind {
		case model.KindWrestler:
			if containsAny(title, wrestlerImageSkip) {
				continue
			}
			if r.Width > 0 && r.Height > 0 && float64(r.Width) > float64(r.Height)*1.5 {
				continue
			}
		case model.KindVenue:
			if strings.Contains(title, "logo") {
				continue
			}
			if r.Width > 0 && r.Height > 0 && float64(r.Height) > float64(r.Width)*1.5 {
				continue
			}
		case model.KindTitle:
			if !containsAny(title, []string{"belt", "championship", "title"}) {
				continue
			}
		}
		return toImage(r)
	}
	if kind == model.KindTitle {
		for _, r := range results {
			if r.URL != "" {
				return toImage(r)
			}
		}
	}
	return nil
}

func toImage(r commons.Image) *Image {
	return &Image{
		Title:          r.Title,
		URL:            r.URL,
		ThumbURL:       r.ThumbURL,
		DescriptionURL: r.DescriptionURL,
		License:        r.License,
		LicenseURL:     r.LicenseURL,
		Attribution:    r.Artist,
		Width:          r.Width,
		Height:         r.Height,
	}
}

func containsAny(s string, parts []string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
