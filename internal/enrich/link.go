package enrich

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

// pendingLink is a relation written together with the record's field changes.
type pendingLink struct {
	relation string
	kind     model.Kind
	name     string
	location string
	create   bool          // create a stub when no record matches
	target   *model.Record // resolved before the link counts as a change
}

// linkFor maps a missing relation field to the named record the facts point
// at. Venues are created as stubs when missing; promotions must already
// exist.
func linkFor(kind model.Kind, field string, f *source.Facts) (pendingLink, bool) {
	switch {
	case field == model.RelVenue && kind == model.KindEvent:
		name := f.Links[source.LinkVenue]
		if name == "" {
			return pendingLink{}, false
		}
		return pendingLink{
			relation: model.RelVenue,
			kind:     model.KindVenue,
			name:     name,
			location: f.Links[source.LinkVenueLocation],
			create:   true,
		}, true
	case field == model.RelPromotion && (kind == model.KindEvent || kind == model.KindTitle):
		name := f.Links[source.LinkPromotion]
		if name == "" {
			return pendingLink{}, false
		}
		return pendingLink{relation: model.RelPromotion, kind: model.KindPromotion, name: name}, true
	}
	return pendingLink{}, false
}

// resolveLink finds the record l points at by case-insensitive name or
// abbreviation. It reports false when the link cannot be made: the lookup
// failed, or nothing matches and no stub may be created.
func (e *Enricher) resolveLink(ctx context.Context, l pendingLink) (pendingLink, bool) {
	log := zap.L().With(zap.String("component", "enrich"), zap.String("relation", l.relation))
	target, err := e.findByName(ctx, l.kind, l.name)
	if err != nil {
		log.Warn("resolve link target failed", zap.String("name", l.name), zap.Error(err))
		return l, false
	}
	if target == nil && !l.create {
		log.Debug("no record to link to", zap.String("kind", string(l.kind)), zap.String("name", l.name))
		return l, false
	}
	l.target = target
	return l, true
}

// link links r to the resolved target of l, creating a stub target first
// when none exists.
func (e *Enricher) link(ctx context.Context, r *model.Record, l pendingLink) error {
	target := l.target
	if target == nil {
		target = model.NewRecord(l.kind, l.name)
		if l.location != "" {
			target.Set(model.FieldLocation, l.location)
		}
		if err := e.deps.Repo.Save(ctx, target, nil); err != nil {
			return eris.Wrapf(err, "enrich: create %s %q", l.kind, l.name)
		}
		zap.L().Info("created linked record",
			zap.String("kind", string(l.kind)), zap.Int64("id", target.ID), zap.String("name", l.name))
	}
	if err := e.deps.Repo.Link(ctx, r.Kind, r.ID, l.relation, target.Kind, target.ID); err != nil {
		return eris.Wrapf(err, "enrich: link %s %d %s", r.Kind, r.ID, l.relation)
	}
	return nil
}

func (e *Enricher) findByName(ctx context.Context, kind model.Kind, name string) (*model.Record, error) {
	hits, err := e.deps.Repo.Query(ctx, store.Filter{Kind: kind, NameEquals: name, OrderBy: store.OrderID, Limit: 1})
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: find %s %q", kind, name)
	}
	if len(hits) > 0 {
		return hits[0], nil
	}
	if kind != model.KindPromotion {
		return nil, nil
	}
	// Infoboxes often name a promotion by its abbreviation.
	all, err := e.deps.Repo.Query(ctx, store.Filter{Kind: kind, OrderBy: store.OrderID, Limit: 1000})
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: find %s %q", kind, name)
	}
	for _, p := range all {
		if abbr := p.Text(model.FieldAbbreviation); abbr != "" && strings.EqualFold(abbr, name) {
			return p, nil
		}
	}
	return nil, nil
}
