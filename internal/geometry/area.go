// Package geometry computes and checks mask polygons: geodesic area,
// self-intersections, coordinate validity, and clipping to the world extent.
package geometry

import (
	"math"

	"github.com/twpayne/go-geom"
)

// EarthRadius is the WGS84 equatorial radius in meters.
const EarthRadius = 6378137.0

// Area returns the geodesic area of g in square meters. Polygons count their
// outer ring minus their holes; multipolygons sum their polygons. Other
// geometry types have no area.
func Area(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonArea(t)
	case *geom.MultiPolygon:
		var total float64
		for i := range t.NumPolygons() {
			total += polygonArea(t.Polygon(i))
		}
		return total
	default:
		return 0
	}
}

// AreaKm2 returns the area of g in square kilometers: the area in square
// meters is rounded to a whole number, scaled, then rounded to decimals.
func AreaKm2(g geom.T, decimals int) float64 {
	return RoundDecimals(math.Round(Area(g))*1e-6, decimals)
}

// RoundDecimals rounds v to the given number of decimal places.
func RoundDecimals(v float64, decimals int) float64 {
	n := math.Pow(10, float64(decimals))
	return math.Round(v*n) / n
}

func polygonArea(p *geom.Polygon) float64 {
	if p == nil || p.NumLinearRings() == 0 {
		return 0
	}
	area := math.Abs(ringArea(p.LinearRing(0).Coords()))
	for i := 1; i < p.NumLinearRings(); i++ {
		area -= math.Abs(ringArea(p.LinearRing(i).Coords()))
	}
	return area
}

// ringArea is the spherical excess approximation of a ring's signed area.
// Each vertex contributes using its neighbours, wrapping around the ring.
func ringArea(coords []geom.Coord) float64 {
	n := len(coords)
	if n <= 2 {
		return 0
	}

	var total float64
	for i := range n {
		var lower, middle, upper int
		switch i {
		case n - 2:
			lower, middle, upper = n-2, n-1, 0
		case n - 1:
			lower, middle, upper = n-1, 0, 1
		default:
			lower, middle, upper = i, i+1, i+2
		}
		p1, p2, p3 := coords[lower], coords[middle], coords[upper]
		total += (rad(p3.X()) - rad(p1.X())) * math.Sin(rad(p2.Y()))
	}
	return total * EarthRadius * EarthRadius / 2
}

func rad(deg float64) float64 {
	return deg * math.Pi / 180
}
