package dataset

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/swiss-bandmap/pkg/gazetteer"
	"github.com/hazyhaar/swiss-bandmap/pkg/gig"
)

func TestBuild(t *testing.T) {
	idx := testIndex()
	events := []gig.Event{
		event("Z Band", "Zürich", "2024-12-26T20:00:00Z"),
		event("A Band", "Basel", "2024-12-25T20:00:00Z"),
		event("B Band", "Zürich", "2024-12-25T20:00:00Z"),
		event("Nowhere Band", "Geneva", ""),
	}
	agg, unmatched := Aggregate(events, idx)

	b := &Builder{Tolerance: DefaultTolerance, Now: fixedNow}
	ds, err := b.Build(events, agg, unmatched, idx)
	require.NoError(t, err)

	bandsOf := func(evs []gig.Event) []string {
		out := make([]string, len(evs))
		for i, e := range evs {
			out[i] = e.BandName
		}
		return out
	}
	assert.Equal(t, []string{"A Band", "B Band", "Z Band", "Nowhere Band"}, bandsOf(ds.Events))
	assert.Equal(t, []string{"B Band", "Z Band"}, bandsOf(ds.Municipalities.Events("Zürich")), "per-municipality lists sorted")
	assert.Equal(t, []string{"Z Band", "B Band"}, bandsOf(agg.Events("Zürich")), "input aggregate untouched")

	require.Len(t, ds.Geo.Features, agg.Len(), "one feature per municipality with events")
	assert.Equal(t, "Zürich", ds.Geo.Features[0].ID)
	assert.Equal(t, "Zürich", ds.Geo.Features[0].Properties["NAME"])
	assert.Equal(t, "Basel", ds.Geo.Features[1].ID)

	assert.Equal(t, Metadata{
		GeneratedAt:              fixedNow(),
		TotalEvents:              4,
		MunicipalitiesWithEvents: 2,
		TotalMunicipalities:      4,
		GeometryFeaturesEmitted:  2,
		UnmatchedLocations:       1,
	}, ds.Metadata)
	assert.Equal(t, []string{"Geneva"}, ds.Unmatched)
}

func TestBuild_SimplifiesGeometry(t *testing.T) {
	idx := testIndex()
	events := []gig.Event{event("A", "Bern", "")}
	agg, unmatched := Aggregate(events, idx)

	ds, err := (&Builder{Tolerance: 0.01}).Build(events, agg, unmatched, idx)
	require.NoError(t, err)

	require.Len(t, ds.Geo.Features, 1)
	got := ds.Geo.Features[0].Geometry.(orb.Polygon)
	assert.Len(t, got[0], 5, "near-collinear vertex removed")

	rec, _ := idx.Record("Bern")
	assert.Len(t, rec.Geometry.(orb.Polygon)[0], 6, "index geometry untouched")
}

func TestBuild_SimplifierFailureKeepsOriginal(t *testing.T) {
	idx := testIndex()
	events := []gig.Event{event("A", "Bern", ""), event("B", "Basel", "")}
	agg, unmatched := Aggregate(events, idx)

	failing := SimplifierFunc(func(g orb.Geometry, tol float64) (orb.Geometry, error) {
		if p, ok := g.(orb.Polygon); ok && p[0][0][0] == 7.4 {
			return nil, errors.New("boom")
		}
		return DouglasPeucker{}.Simplify(g, tol)
	})

	ds, err := (&Builder{Simplifier: failing, Tolerance: 0.01}).Build(events, agg, unmatched, idx)
	require.NoError(t, err)

	require.Len(t, ds.Geo.Features, 2, "failure must not drop a feature")
	bern, _ := idx.Record("Bern")
	assert.Equal(t, bern.Geometry, ds.Geo.Features[0].Geometry)
	assert.Len(t, ds.Geo.Features[1].Geometry.(orb.Polygon)[0], 5)
	assert.Equal(t, 1, ds.Metadata.SimplificationFallbacks)
}

func TestBuild_NilGeometryStillEmitted(t *testing.T) {
	idx := gazetteer.NewIndex([]gazetteer.Municipality{{Name: "Bern"}}, nil)
	events := []gig.Event{event("A", "Bern", "")}
	agg, unmatched := Aggregate(events, idx)

	ds, err := (&Builder{}).Build(events, agg, unmatched, idx)
	require.NoError(t, err)
	require.Len(t, ds.Geo.Features, 1)
	assert.Nil(t, ds.Geo.Features[0].Geometry)
	assert.Zero(t, ds.Metadata.SimplificationFallbacks)
}

func TestBuild_UnknownMunicipality(t *testing.T) {
	events := []gig.Event{event("A", "Bern", "")}
	agg, unmatched := Aggregate(events, testIndex())

	other := gazetteer.NewIndex([]gazetteer.Municipality{{Name: "Basel"}}, nil)
	_, err := (&Builder{}).Build(events, agg, unmatched, other)
	assert.Error(t, err)
}

func TestMetadataJSONKeys(t *testing.T) {
	data, err := json.Marshal(Metadata{GeneratedAt: fixedNow(), TotalEvents: 3})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, k := range []string{"generatedAt", "totalEvents", "municipalitiesWithEvents", "totalMunicipalities", "geometryFeaturesEmitted"} {
		assert.Contains(t, m, k)
	}
	assert.Equal(t, "2024-12-20T10:00:00Z", m["generatedAt"])
}

func TestMetadataStale(t *testing.T) {
	md := Metadata{GeneratedAt: fixedNow()}
	assert.False(t, md.Stale(fixedNow().Add(23*time.Hour), 24*time.Hour))
	assert.True(t, md.Stale(fixedNow().Add(25*time.Hour), 24*time.Hour))
	assert.True(t, Metadata{}.Stale(fixedNow(), 24*time.Hour))
}
