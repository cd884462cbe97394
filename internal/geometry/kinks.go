package geometry

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy/lineintersection"
	"github.com/twpayne/go-geom/xy/lineintersector"
)

// Kinks returns the points where g intersects itself. Segments of the same
// ring that share a vertex are never compared, including the first and last
// segment of a closed ring. Overlapping collinear segments do not count.
func Kinks(g geom.T) []geom.Coord {
	rings := Rings(g)

	var points []geom.Coord
	for a, ringA := range rings {
		for b := a; b < len(rings); b++ {
			ringB := rings[b]
			same := a == b
			closed := same && isClosedRing(ringA)

			for i := 0; i < len(ringA)-1; i++ {
				start := 0
				if same {
					start = i + 1
				}
				for k := start; k < len(ringB)-1; k++ {
					if same {
						if k-i == 1 {
							continue
						}
						if closed && i == 0 && k == len(ringA)-2 {
							continue
						}
					}
					if p, ok := segmentIntersection(ringA[i], ringA[i+1], ringB[k], ringB[k+1]); ok {
						points = append(points, p)
					}
				}
			}
		}
	}
	return points
}

// Rings returns every ring of a polygon or multipolygon in order.
func Rings(g geom.T) [][]geom.Coord {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.Coords()
	case *geom.MultiPolygon:
		var rings [][]geom.Coord
		for _, p := range t.Coords() {
			rings = append(rings, p...)
		}
		return rings
	default:
		return nil
	}
}

// segmentIntersection reports the single point where a1-a2 meets b1-b2.
// Collinear overlaps are not kinks.
func segmentIntersection(a1, a2, b1, b2 geom.Coord) (geom.Coord, bool) {
	res := lineintersector.LineIntersectsLine(lineintersector.RobustLineIntersector{}, a1, a2, b1, b2)
	if res.Type() != lineintersection.PointIntersection {
		return nil, false
	}
	p := res.Intersection()[0]
	return geom.Coord{p.X(), p.Y()}, true
}
