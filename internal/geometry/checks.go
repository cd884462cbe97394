package geometry

import (
	"github.com/twpayne/go-geom"
)

// CoordValid reports whether c lies within lon [-180, 180] and lat [-90, 90].
func CoordValid(c geom.Coord) bool {
	lon, lat := c.X(), c.Y()
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// CoordsValid reports whether every coordinate of g is valid.
func CoordsValid(g geom.T) bool {
	for _, ring := range Rings(g) {
		for _, c := range ring {
			if !CoordValid(c) {
				return false
			}
		}
	}
	return true
}

// PolygonCount returns the number of top-level parts of g: polygons for a
// multipolygon and rings for a polygon. A single-ring polygon counts one.
func PolygonCount(g geom.T) int {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.NumLinearRings()
	case *geom.MultiPolygon:
		return t.NumPolygons()
	default:
		return 0
	}
}

// OuterRingLen returns the number of coordinates in the first outer ring.
func OuterRingLen(g geom.T) int {
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			return 0
		}
		return t.LinearRing(0).NumCoords()
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 || t.Polygon(0).NumLinearRings() == 0 {
			return 0
		}
		return t.Polygon(0).LinearRing(0).NumCoords()
	default:
		return 0
	}
}

// IsClosed reports whether every ring of g ends where it starts.
func IsClosed(g geom.T) bool {
	rings := Rings(g)
	if len(rings) == 0 {
		return false
	}
	for _, ring := range rings {
		if !isClosedRing(ring) {
			return false
		}
	}
	return true
}

func isClosedRing(ring []geom.Coord) bool {
	if len(ring) < 2 {
		return false
	}
	first, last := ring[0], ring[len(ring)-1]
	return first.X() == last.X() && first.Y() == last.Y()
}
