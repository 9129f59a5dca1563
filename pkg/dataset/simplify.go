package dataset

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// ErrSimplify marks a geometry that could not be simplified. The builder keeps
// the original geometry in that case.
var ErrSimplify = errors.New("geometry simplification failed")

// Simplifier reduces the vertex count of a geometry. It must not modify g.
type Simplifier interface {
	Simplify(g orb.Geometry, tolerance float64) (orb.Geometry, error)
}

// SimplifierFunc adapts a function to Simplifier.
type SimplifierFunc func(g orb.Geometry, tolerance float64) (orb.Geometry, error)

func (f SimplifierFunc) Simplify(g orb.Geometry, tolerance float64) (orb.Geometry, error) {
	return f(g, tolerance)
}

// DouglasPeucker simplifies with the Ramer-Douglas-Peucker algorithm.
// Tolerance is in coordinate units (degrees for WGS84 sources).
type DouglasPeucker struct{}

func (DouglasPeucker) Simplify(g orb.Geometry, tolerance float64) (out orb.Geometry, err error) {
	if g == nil {
		return nil, fmt.Errorf("%w: no geometry", ErrSimplify)
	}
	if tolerance <= 0 {
		return g, nil
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrSimplify, r)
		}
	}()

	// orb simplifies in place.
	out = simplify.DouglasPeucker(tolerance).Simplify(orb.Clone(g))
	if collapsed(out) {
		return nil, fmt.Errorf("%w: %s collapsed at tolerance %g", ErrSimplify, g.GeoJSONType(), tolerance)
	}
	return out, nil
}

// collapsed reports geometries that no longer describe an area or a line.
func collapsed(g orb.Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) < 4
	case orb.MultiPolygon:
		if len(v) == 0 {
			return true
		}
		for _, p := range v {
			if !collapsed(p) {
				return false
			}
		}
		return true
	case orb.LineString:
		return len(v) < 2
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Collection:
		return len(v) == 0
	}
	return false
}
