package enrich

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wrestlebot/internal/imagecache"
	"github.com/sells-group/wrestlebot/internal/model"
	"github.com/sells-group/wrestlebot/internal/resilience"
	"github.com/sells-group/wrestlebot/internal/scorer"
	"github.com/sells-group/wrestlebot/internal/source"
	"github.com/sells-group/wrestlebot/internal/store"
)

func TestEnrichBatch_FillsMissingFieldsWithOneLedgerEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := seed(t, s, model.NewRecord(model.KindWrestler, "Bret Hart"))
	before := scorer.Score(r).Percentage
	assert.InDelta(t, 10.5, before, 0.1)

	ff := &fakeFacts{name: "stub", facts: map[string]*source.Facts{
		"Bret Hart": facts("stub", map[string]any{model.FieldHometown: "Calgary", model.FieldDebutYear: 1990}),
	}}
	e, led, _ := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{})

	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Enriched)
	assert.Equal(t, []string{model.FieldHometown, model.FieldDebutYear}, res.Changed[r.ID])

	require.Len(t, led.entries, 1)
	entry := led.entries[0]
	assert.Equal(t, model.ActionEnrich, entry.Action)
	assert.Equal(t, r.ID, entry.EntityID)
	assert.Equal(t, "stub", entry.Source)
	assert.True(t, entry.Success)
	assert.Equal(t, []string{model.FieldHometown, model.FieldDebutYear}, entry.Details["updated_fields"])
	assert.InDelta(t, before, entry.Details["previous_score"], 0.001)

	got, err := s.GetByID(ctx, model.KindWrestler, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Calgary", got.Text(model.FieldHometown))
	y, ok := got.Int(model.FieldDebutYear)
	require.True(t, ok)
	assert.Equal(t, 1990, y)
	assert.Greater(t, scorer.Score(got).Percentage, before)
}

func TestEnrichBatch_NeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := model.NewRecord(model.KindWrestler, "Bret Hart")
	r.Set(model.FieldHometown, "Montreal")
	seed(t, s, r)

	ff := &fakeFacts{name: "stub", facts: map[string]*source.Facts{
		"Bret Hart": facts("stub", map[string]any{model.FieldHometown: "Calgary", model.FieldDebutYear: 1976}),
	}}
	e, _, _ := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{})

	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{model.FieldDebutYear}, res.Changed[r.ID])

	got, err := s.GetByID(ctx, model.KindWrestler, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Montreal", got.Text(model.FieldHometown))
}

func TestEnrichBatch_RejectsImplausibleYearAndCopiedText(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := seed(t, s, model.NewRecord(model.KindWrestler, "Bret Hart"))

	ff := &fakeFacts{name: "stub", facts: map[string]*source.Facts{
		"Bret Hart": facts("stub", map[string]any{
			model.FieldDebutYear: 1850,
			model.FieldFinishers: strings.Repeat("Sharpshooter ", 30),
			model.FieldRealName:  "Bret Sergeant Hart",
		}),
	}}
	e, _, _ := newTestEnricher(Deps{Repo: s, Facts: ff, AI: &fakeAI{unsafe: true}}, Options{})

	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{model.FieldRealName}, res.Changed[r.ID])
}

func TestEnrichBatch_RejectsUnlicensedImage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := seed(t, s, model.NewRecord(model.KindWrestler, "Bret Hart"))

	fetch := &fakeFetcher{}
	imgs := &fakeImages{img: &source.Image{URL: "https://upload.example.org/bret.jpg", License: "All-Rights-Reserved"}}
	e, led, _ := newTestEnricher(Deps{
		Repo:   s,
		Images: imgs,
		Cache:  imagecache.NewService(fetch, &fakeUploader{}),
	}, Options{})

	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, imgs.calls)
	assert.Zero(t, fetch.calls, "rejected images are never downloaded")
	assert.Zero(t, res.Enriched)
	assert.Zero(t, res.ImagesAdded)
	assert.Empty(t, led.byAction(model.ActionImage))
	assert.Empty(t, led.entries)

	got, err := s.GetByID(ctx, model.KindWrestler, r.ID)
	require.NoError(t, err)
	assert.False(t, got.Has(model.FieldImageURL))
}

func TestEnrichBatch_StoresLicensedImage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := seed(t, s, model.NewRecord(model.KindVenue, "Tokyo Dome"))

	up := &fakeUploader{}
	svc := imagecache.NewService(&fakeFetcher{}, up)
	svc.SetClock(func() time.Time { return fixedNow })
	imgs := &fakeImages{img: &source.Image{
		URL:            "https://upload.example.org/dome.jpg",
		DescriptionURL: "https://commons.example.org/wiki/File:Dome.jpg",
		License:        "CC BY-SA 4.0",
		Attribution:    "Photographer",
	}}
	e, led, _ := newTestEnricher(Deps{Repo: s, Images: imgs, Cache: svc}, Options{})

	res, err := e.EnrichBatch(ctx, model.KindVenue, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ImagesAdded)

	entries := led.byAction(model.ActionImage)
	require.Len(t, entries, 1)
	assert.Equal(t, source.NameCommons, entries[0].Source)
	img, ok := entries[0].Details["image"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CC BY-SA 4.0", img["license"])

	got, err := s.GetByID(ctx, model.KindVenue, r.ID)
	require.NoError(t, err)
	require.Len(t, up.paths, 1)
	assert.Equal(t, "https://cdn.example.com/"+up.paths[0], got.Text(model.FieldImageURL))
	assert.True(t, strings.HasPrefix(up.paths[0], "venue/"))
	assert.Equal(t, "https://commons.example.org/wiki/File:Dome.jpg", got.Text(model.FieldImageSource))
	assert.Equal(t, "Photographer", got.Text(model.FieldImageAttribution))
}

func TestEnrichBatch_ImageLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, model.NewRecord(model.KindVenue, "Tokyo Dome"))
	seed(t, s, model.NewRecord(model.KindVenue, "Korakuen Hall"))

	imgs := &fakeImages{img: &source.Image{URL: "https://upload.example.org/x.jpg", License: "CC0"}}
	e, _, _ := newTestEnricher(Deps{
		Repo:   s,
		Images: imgs,
		Cache:  imagecache.NewService(&fakeFetcher{}, &fakeUploader{}),
	}, Options{ImageLimit: 1})

	res, err := e.EnrichBatch(ctx, model.KindVenue, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ImagesAdded)
	assert.Equal(t, 1, imgs.calls)
}

func TestEnrichBatch_LinksEventToVenueAndPromotion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	promo := model.NewRecord(model.KindPromotion, "World Wrestling Federation")
	promo.Set(model.FieldAbbreviation, "WWF")
	seed(t, s, promo)
	ev := seed(t, s, model.NewRecord(model.KindEvent, "WrestleMania III"))

	f := facts(source.NameWikipedia, map[string]any{model.FieldDate: "1987-03-29", model.FieldAttendance: 93173})
	f.SourceURL = "https://en.wikipedia.org/wiki/WrestleMania_III"
	f.Links[source.LinkVenue] = "Pontiac Silverdome"
	f.Links[source.LinkVenueLocation] = "Pontiac, Michigan"
	f.Links[source.LinkPromotion] = "WWF"
	ff := &fakeFacts{name: source.NameWikipedia, facts: map[string]*source.Facts{"WrestleMania III": f}}
	e, _, _ := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{})

	res, err := e.EnrichBatch(ctx, model.KindEvent, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{model.FieldDate, model.RelPromotion, model.RelVenue, model.FieldAttendance}, res.Changed[ev.ID])

	n, err := s.CountRelated(ctx, model.KindEvent, ev.ID, model.RelVenue)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountRelated(ctx, model.KindEvent, ev.ID, model.RelPromotion)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountRelated(ctx, model.KindPromotion, promo.ID, model.RelEvents)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	venues, err := s.Query(ctx, store.Filter{Kind: model.KindVenue, NameEquals: "pontiac silverdome"})
	require.NoError(t, err)
	require.Len(t, venues, 1)
	assert.Equal(t, "Pontiac, Michigan", venues[0].Text(model.FieldLocation))

	got, err := s.GetByID(ctx, model.KindEvent, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, f.SourceURL, got.Text(model.FieldWikipediaURL))
	assert.Equal(t, "1987-03-29", got.Text(model.FieldDate))
}

func TestEnrichBatch_UnknownPromotionIsNotAChange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ev := seed(t, s, model.NewRecord(model.KindEvent, "Some Show"))

	f := facts(source.NameWikipedia, nil)
	f.SourceURL = "https://en.wikipedia.org/wiki/Some_Show"
	f.Links[source.LinkPromotion] = "Nonexistent Promotion"
	ff := &fakeFacts{name: source.NameWikipedia, facts: map[string]*source.Facts{"Some Show": f}}
	quota := resilience.NewQuota(5)
	e, led, _ := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{Quota: quota})

	for i := 0; i < 2; i++ {
		res, err := e.EnrichBatch(ctx, model.KindEvent, 100, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Enriched)
		assert.Empty(t, res.Changed[ev.ID])
	}

	assert.Empty(t, led.byAction(model.ActionEnrich))
	assert.Equal(t, 0, quota.Used())
	n, err := s.CountRelated(ctx, model.KindEvent, ev.ID, model.RelPromotion)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	promos, err := s.Query(ctx, store.Filter{Kind: model.KindPromotion})
	require.NoError(t, err)
	assert.Empty(t, promos)
	got, err := s.GetByID(ctx, model.KindEvent, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Text(model.FieldWikipediaURL))
}

func TestEnrichBatch_LeastCompleteFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alpha := model.NewRecord(model.KindWrestler, "Alpha")
	alpha.Set(model.FieldRealName, "A")
	alpha.Set(model.FieldHometown, "Somewhere")
	alpha.Set(model.FieldDebutYear, 2001)
	seed(t, s, alpha)
	seed(t, s, model.NewRecord(model.KindWrestler, "Beta"))

	ff := &fakeFacts{name: "stub"}
	e, _, pauses := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{})

	_, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta", "Alpha"}, ff.calls)
	assert.Equal(t, 1, *pauses)
}

func TestEnrichBatch_ScoreThreshold(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	full := model.NewRecord(model.KindVenue, "Full Arena")
	full.Set(model.FieldLocation, "Somewhere")
	full.Set(model.FieldCapacity, 10000)
	seed(t, s, full)

	ff := &fakeFacts{name: "stub"}
	e, _, _ := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{})

	res, err := e.EnrichBatch(ctx, model.KindVenue, 40, 5)
	require.NoError(t, err)
	assert.Zero(t, res.Candidates, "a venue at 45 percent is above the threshold")
	assert.Empty(t, ff.calls)
}

func TestEnrichBatch_OperationsBudget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, model.NewRecord(model.KindWrestler, "Alpha"))
	seed(t, s, model.NewRecord(model.KindWrestler, "Beta"))
	ff := &fakeFacts{name: "stub", facts: map[string]*source.Facts{
		"Alpha": facts("stub", map[string]any{model.FieldDebutYear: 2001}),
		"Beta":  facts("stub", map[string]any{model.FieldDebutYear: 2002}),
	}}

	e, _, _ := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{Quota: resilience.NewQuota(0)})
	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 2)
	require.NoError(t, err)
	assert.True(t, res.RateLimited)
	assert.Empty(t, ff.calls, "nothing is attempted once the budget is spent")

	e, led, _ := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{Quota: resilience.NewQuota(1)})
	res, err = e.EnrichBatch(ctx, model.KindWrestler, 100, 2)
	require.NoError(t, err)
	assert.True(t, res.RateLimited)
	assert.Equal(t, 1, res.Enriched)
	assert.Len(t, led.entries, 1)
}

func TestEnrichBatch_StorageFailureContinues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := seed(t, s, model.NewRecord(model.KindWrestler, "Alpha"))
	b := seed(t, s, model.NewRecord(model.KindWrestler, "Beta"))
	ff := &fakeFacts{name: "stub", facts: map[string]*source.Facts{
		"Alpha": facts("stub", map[string]any{model.FieldDebutYear: 2001}),
		"Beta":  facts("stub", map[string]any{model.FieldDebutYear: 2002}),
	}}
	e, led, _ := newTestEnricher(Deps{Repo: &failingSaveRepo{Repository: s, failID: a.ID}, Facts: ff}, Options{})

	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Enriched)
	assert.Contains(t, res.Changed, b.ID)

	errs := led.byAction(model.ActionError)
	require.Len(t, errs, 1)
	assert.Equal(t, a.ID, errs[0].EntityID)
	assert.Contains(t, errs[0].Error, "disk I/O error")
}

func TestEnrichBatch_SourceBudgetStopsLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, model.NewRecord(model.KindWrestler, "Alpha"))
	seed(t, s, model.NewRecord(model.KindWrestler, "Beta"))
	ff := &fakeFacts{name: "stub", err: eris.Wrap(resilience.ErrBudgetExhausted, "stub: budget")}
	e, _, _ := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{})

	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 2)
	require.NoError(t, err)
	assert.Len(t, ff.calls, 1)
	assert.Zero(t, res.Errors, "an unavailable source is not a record failure")
}

func TestEnrichBatch_ThrottledSourceStopsLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, model.NewRecord(model.KindWrestler, "Alpha"))
	seed(t, s, model.NewRecord(model.KindWrestler, "Beta"))
	throttled := resilience.HTTPError("stub", 429, []byte("slow down"))
	ff := &fakeFacts{name: "stub", err: eris.Wrap(throttled, "stub: lookup")}
	e, _, _ := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{})

	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 2)
	require.NoError(t, err)
	assert.Len(t, ff.calls, 1)
	assert.Zero(t, res.Errors)
}

func TestEnrichBatch_Nationality(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := model.NewRecord(model.KindWrestler, "Bret Hart")
	r.Set(model.FieldHometown, "Calgary, Alberta, Canada")
	seed(t, s, r)
	tokyo := model.NewRecord(model.KindWrestler, "Jushin Liger")
	tokyo.Set(model.FieldHometown, "Hiroshima")
	seed(t, s, tokyo)

	ai := &fakeAI{available: true, nationality: "Japanese"}
	e, led, _ := newTestEnricher(Deps{Repo: s, AI: ai}, Options{})
	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Enriched)
	assert.Equal(t, 1, res.AIAssisted)

	got, err := s.GetByID(ctx, model.KindWrestler, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Canadian", got.Text(model.FieldNationality))
	got, err = s.GetByID(ctx, model.KindWrestler, tokyo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Japanese", got.Text(model.FieldNationality))

	for _, entry := range led.entries {
		if entry.EntityID == tokyo.ID {
			assert.True(t, entry.AIAssisted)
			assert.Equal(t, SourceAI, entry.Source)
		} else {
			assert.Equal(t, SourceInference, entry.Source)
		}
	}
}

func TestEnrichBatch_BioIsOptIn(t *testing.T) {
	ctx := context.Background()
	bio := strings.Repeat("A long career in Calgary. ", 5)

	s := newTestStore(t)
	r := seed(t, s, model.NewRecord(model.KindWrestler, "Bret Hart"))
	ai := &fakeAI{available: true, bio: bio}
	e, _, _ := newTestEnricher(Deps{Repo: s, AI: ai}, Options{})
	_, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 1)
	require.NoError(t, err)
	assert.Zero(t, ai.bioCalls, "bios need the opt-in flag")

	e, led, _ := newTestEnricher(Deps{Repo: s, AI: &fakeAI{available: false, bio: bio}}, Options{GenerateBios: true})
	_, err = e.EnrichBatch(ctx, model.KindWrestler, 100, 1)
	require.NoError(t, err)
	assert.Empty(t, led.entries, "unavailable AI is skipped silently")

	e, led, _ = newTestEnricher(Deps{Repo: s, AI: ai}, Options{GenerateBios: true})
	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{model.FieldAbout}, res.Changed[r.ID])
	require.Len(t, led.entries, 1)
	assert.True(t, led.entries[0].AIAssisted)

	got, err := s.GetByID(ctx, model.KindWrestler, r.ID)
	require.NoError(t, err)
	assert.Equal(t, bio, got.Text(model.FieldAbout))
}

func TestEnrichBatch_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := seed(t, s, model.NewRecord(model.KindWrestler, "Bret Hart"))
	ff := &fakeFacts{name: "stub", facts: map[string]*source.Facts{
		"Bret Hart": facts("stub", map[string]any{model.FieldDebutYear: 1976}),
	}}
	e, led, _ := newTestEnricher(Deps{Repo: s, Facts: ff}, Options{DryRun: true})

	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 1)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, []string{model.FieldDebutYear}, res.Changed[r.ID])
	assert.Empty(t, led.entries)

	got, err := s.GetByID(ctx, model.KindWrestler, r.ID)
	require.NoError(t, err)
	assert.False(t, got.Has(model.FieldDebutYear))
}

func TestEnrichBatch_InvalidKindAndCancel(t *testing.T) {
	s := newTestStore(t)
	e, _, _ := newTestEnricher(Deps{Repo: s}, Options{})

	_, err := e.EnrichBatch(context.Background(), model.Kind("referee"), 100, 1)
	require.Error(t, err)

	seed(t, s, model.NewRecord(model.KindWrestler, "Alpha"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.EnrichBatch(ctx, model.KindWrestler, 100, 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Processed)
}

func TestNationalityFromHometown(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Calgary, Alberta, Canada", "Canadian"},
		{"Calgary, Alberta", "Canadian"},
		{"Houston, Texas", "American"},
		{"Houston, Texas, U.S.", "American"},
		{"Mexico City, Mexico", "Mexican"},
		{"Yokohama, Kanagawa, Japan", "Japanese"},
		{"Wigan, England", "British"},
		{"San Juan, Puerto Rico", "Puerto Rican"},
		{"Québec", "Canadian"},
		{"Hiroshima", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NationalityFromHometown(tt.in)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
