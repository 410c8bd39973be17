// Package geo maps latitude/longitude coordinates onto the fixed grid
// used as the cache's sharding key.
package geo

import (
	"fmt"
	"math"

	"github.com/spotmeet/spotmeet/internal/model"
)

// Grid steps in degrees, sized so a cell is roughly 500m on each side at
// mid latitudes.
const (
	LatStep = 0.0045
	LngStep = 0.0057
)

// Epsilon absorbs floating-point rounding at cell boundaries so that
// containment checks stay inclusive.
const Epsilon = 1e-9

// CellID returns the grid cell key for a coordinate. Identical input
// always yields the identical key; adjacent cells tile the plane with no
// gaps or overlaps. Callers guarantee valid lat/lng ranges.
func CellID(lat, lng float64) string {
	return cellKey(index(lat, LatStep), index(lng, LngStep))
}

// CellIDsForBBox returns every grid cell intersecting the box. An
// inverted box (NE south or west of SW) yields nil; a degenerate
// single-point box yields exactly one cell.
func CellIDsForBBox(b model.BBox) []string {
	// Inversion is decided on the raw coordinates: an inverted box whose
	// corners floor into the same cell must still be empty.
	if b.NELat < b.SWLat || b.NELng < b.SWLng {
		return nil
	}
	latLo, latHi := index(b.SWLat, LatStep), index(b.NELat, LatStep)
	lngLo, lngHi := index(b.SWLng, LngStep), index(b.NELng, LngStep)

	out := make([]string, 0, (latHi-latLo+1)*(lngHi-lngLo+1))
	for i := latLo; i <= latHi; i++ {
		for j := lngLo; j <= lngHi; j++ {
			out = append(out, cellKey(i, j))
		}
	}
	return out
}

// InArea reports whether a coordinate lies inside the box, bounds
// inclusive with epsilon tolerance.
func InArea(b model.BBox, lat, lng float64) bool {
	return lat >= b.SWLat-Epsilon && lat <= b.NELat+Epsilon &&
		lng >= b.SWLng-Epsilon && lng <= b.NELng+Epsilon
}

func index(v, step float64) int64 {
	return int64(math.Floor(v / step))
}

func cellKey(latIdx, lngIdx int64) string {
	return fmt.Sprintf("grid_%d_%d", latIdx, lngIdx)
}
