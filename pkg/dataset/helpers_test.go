package dataset

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/hazyhaar/swiss-bandmap/pkg/gazetteer"
	"github.com/hazyhaar/swiss-bandmap/pkg/gig"
)

// square returns a closed polygon with an extra, almost collinear vertex on
// its right edge.
func square(x, y float64) orb.Polygon {
	return orb.Polygon{{
		{x, y}, {x + 0.1, y}, {x + 0.1001, y + 0.05}, {x + 0.1, y + 0.1}, {x, y + 0.1}, {x, y},
	}}
}

func testIndex() *gazetteer.Index {
	return gazetteer.NewIndex([]gazetteer.Municipality{
		{Name: "Zürich", CantonCode: "ZH", Properties: map[string]any{"NAME": "Zürich", "KANTON": "ZH"}, Geometry: square(8.5, 47.3)},
		{Name: "Basel", CantonCode: "BS", Properties: map[string]any{"NAME": "Basel", "KANTON": "BS"}, Geometry: square(7.5, 47.5)},
		{Name: "Bern", CantonCode: "BE", Properties: map[string]any{"NAME": "Bern", "KANTON": "BE"}, Geometry: square(7.4, 46.9)},
		{Name: "Sankt Gallen", CantonCode: "SG", Properties: map[string]any{"NAME": "Sankt Gallen", "KANTON": "SG"}, Geometry: square(9.3, 47.4)},
	}, nil)
}

func event(band, location, date string) gig.Event {
	e := gig.Event{BandName: band, Location: location, Date: date, Categories: []string{}}
	if date != "" {
		t, err := gig.ParseDate(date)
		if err != nil {
			panic(err)
		}
		e.ParsedDate = &t
	}
	return e
}

func fixedNow() time.Time {
	return time.Date(2024, 12, 20, 10, 0, 0, 0, time.UTC)
}
