// Package dataset builds, persists and serves the pre-aggregated gig dataset:
// the sorted event list, events grouped by municipality, the reduced
// municipality geometries and run metadata.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/hazyhaar/swiss-bandmap/pkg/gazetteer"
	"github.com/hazyhaar/swiss-bandmap/pkg/gig"
)

// DefaultTolerance is the simplification tolerance in degrees.
const DefaultTolerance = 0.007

// Metadata summarizes one published dataset.
type Metadata struct {
	GeneratedAt              time.Time `json:"generatedAt"`
	TotalEvents              int       `json:"totalEvents"`
	MunicipalitiesWithEvents int       `json:"municipalitiesWithEvents"`
	TotalMunicipalities      int       `json:"totalMunicipalities"`
	GeometryFeaturesEmitted  int       `json:"geometryFeaturesEmitted"`

	RunID                   string   `json:"runId,omitempty"`
	GeographySource         string   `json:"geographySource,omitempty"`
	UnmatchedLocations      int      `json:"unmatchedLocations"`
	SimplificationFallbacks int      `json:"simplificationFallbacks"`
	FailedRegions           []string `json:"failedRegions,omitempty"`
}

// Stale reports whether the dataset is older than maxAge at now.
func (m Metadata) Stale(now time.Time, maxAge time.Duration) bool {
	if m.GeneratedAt.IsZero() {
		return true
	}
	return now.Sub(m.GeneratedAt) > maxAge
}

// Dataset is the unit persisted for the presentation layer.
type Dataset struct {
	Events         []gig.Event
	Municipalities *Municipalities
	Geo            *geojson.FeatureCollection
	Metadata       Metadata
	Unmatched      []string
}

// Builder assembles a Dataset from aggregated events.
type Builder struct {
	Simplifier Simplifier
	Tolerance  float64
	Now        func() time.Time
	Logger     *slog.Logger
}

// Build sorts events, emits one simplified feature per municipality in agg
// (feature id is the canonical name) and computes the metadata. A feature whose geometry cannot be simplified
// keeps its original geometry. The only error is a municipality in agg that
// idx does not know, meaning agg was built against another index.
func (b *Builder) Build(events []gig.Event, agg *Municipalities, unmatched Unmatched, idx *gazetteer.Index) (*Dataset, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	simplifier := b.Simplifier
	if simplifier == nil {
		simplifier = DouglasPeucker{}
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	grouped := newMunicipalities()
	fc := geojson.NewFeatureCollection()
	fallbacks := 0

	for _, name := range agg.Names() {
		rec, ok := idx.Record(name)
		if !ok {
			return nil, fmt.Errorf("municipality %q is not in the index", name)
		}

		for _, e := range gig.Sorted(agg.Events(name)) {
			grouped.add(name, e)
		}

		geom := rec.Geometry
		if geom != nil {
			simplified, err := simplifier.Simplify(geom, b.Tolerance)
			if err != nil {
				fallbacks++
				level := slog.LevelWarn
				if errors.Is(err, ErrSimplify) {
					level = slog.LevelDebug
				}
				logger.Log(context.Background(), level, "keeping original geometry", "municipality", name, "error", err)
			} else {
				geom = simplified
			}
		}

		f := geojson.NewFeature(geom)
		f.ID = name
		f.Properties = copyProperties(rec.Properties)
		fc.Append(f)
	}

	ds := &Dataset{
		Events:         gig.Sorted(events),
		Municipalities: grouped,
		Geo:            fc,
		Unmatched:      unmatched.Sorted(),
		Metadata: Metadata{
			GeneratedAt:              now().UTC(),
			TotalEvents:              len(events),
			MunicipalitiesWithEvents: grouped.Len(),
			TotalMunicipalities:      idx.Len(),
			GeometryFeaturesEmitted:  len(fc.Features),
			GeographySource:          idx.Source(),
			UnmatchedLocations:       len(unmatched),
			SimplificationFallbacks:  fallbacks,
		},
	}
	return ds, nil
}

func copyProperties(props map[string]any) geojson.Properties {
	out := make(geojson.Properties, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
