package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrEmptyGeometry is returned by Clip when no ring survives clipping.
var ErrEmptyGeometry = eris.New("geometry: nothing left after clipping")

// World is the valid lon/lat extent.
var World = Bounds{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}

// Bounds is an axis-aligned rectangle.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Clip snaps vertices closer than tolerance together, clips every ring to the
// world extent and re-closes it. Rings left with fewer than four coordinates
// are dropped, as are polygons whose outer ring is dropped. The result has
// the same type as g.
func Clip(g geom.T, tolerance float64) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		rings := clipPolygon(t.Coords(), tolerance)
		if rings == nil {
			return nil, ErrEmptyGeometry
		}
		p, err := geom.NewPolygon(geom.XY).SetCoords(rings)
		if err != nil {
			return nil, eris.Wrap(err, "geometry: build clipped polygon")
		}
		return p.SetSRID(t.SRID()), nil

	case *geom.MultiPolygon:
		var polys [][][]geom.Coord
		for _, rings := range t.Coords() {
			if clipped := clipPolygon(rings, tolerance); clipped != nil {
				polys = append(polys, clipped)
			}
		}
		if len(polys) == 0 {
			return nil, ErrEmptyGeometry
		}
		mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(polys)
		if err != nil {
			return nil, eris.Wrap(err, "geometry: build clipped multipolygon")
		}
		return mp.SetSRID(t.SRID()), nil

	default:
		return nil, eris.Errorf("geometry: cannot clip %T", g)
	}
}

func clipPolygon(rings [][]geom.Coord, tolerance float64) [][]geom.Coord {
	var out [][]geom.Coord
	for i, ring := range rings {
		clipped := clipRing(ring, tolerance, World)
		if len(clipped) < 4 {
			if i == 0 {
				return nil
			}
			continue
		}
		out = append(out, clipped)
	}
	return out
}

// clipRing returns the closed ring clipped to b, or nil.
func clipRing(ring []geom.Coord, tolerance float64, b Bounds) []geom.Coord {
	pts := dedupe(openRing(ring), tolerance)

	edges := []func(geom.Coord) bool{
		func(c geom.Coord) bool { return c.X() >= b.MinX },
		func(c geom.Coord) bool { return c.X() <= b.MaxX },
		func(c geom.Coord) bool { return c.Y() >= b.MinY },
		func(c geom.Coord) bool { return c.Y() <= b.MaxY },
	}
	crossings := []func(p, q geom.Coord) geom.Coord{
		func(p, q geom.Coord) geom.Coord { return atX(p, q, b.MinX) },
		func(p, q geom.Coord) geom.Coord { return atX(p, q, b.MaxX) },
		func(p, q geom.Coord) geom.Coord { return atY(p, q, b.MinY) },
		func(p, q geom.Coord) geom.Coord { return atY(p, q, b.MaxY) },
	}

	for e, inside := range edges {
		if len(pts) == 0 {
			return nil
		}
		var next []geom.Coord
		prev := pts[len(pts)-1]
		for _, cur := range pts {
			switch {
			case inside(cur) && inside(prev):
				next = append(next, cur)
			case inside(cur):
				next = append(next, crossings[e](prev, cur), cur)
			case inside(prev):
				next = append(next, crossings[e](prev, cur))
			}
			prev = cur
		}
		pts = dedupe(next, tolerance)
	}

	if len(pts) < 3 {
		return nil
	}
	return append(pts, geom.Coord{pts[0].X(), pts[0].Y()})
}

// openRing drops the closing coordinate of a closed ring.
func openRing(ring []geom.Coord) []geom.Coord {
	if isClosedRing(ring) {
		return ring[:len(ring)-1]
	}
	return ring
}

// dedupe drops vertices within tolerance of their predecessor, treating the
// ring as cyclic.
func dedupe(pts []geom.Coord, tolerance float64) []geom.Coord {
	out := make([]geom.Coord, 0, len(pts))
	for _, p := range pts {
		if len(out) > 0 && near(out[len(out)-1], p, tolerance) {
			continue
		}
		out = append(out, geom.Coord{p.X(), p.Y()})
	}
	for len(out) > 1 && near(out[0], out[len(out)-1], tolerance) {
		out = out[:len(out)-1]
	}
	return out
}

func near(a, b geom.Coord, tolerance float64) bool {
	return math.Abs(a.X()-b.X()) <= tolerance && math.Abs(a.Y()-b.Y()) <= tolerance
}

func atX(p, q geom.Coord, x float64) geom.Coord {
	t := (x - p.X()) / (q.X() - p.X())
	return geom.Coord{x, p.Y() + t*(q.Y()-p.Y())}
}

func atY(p, q geom.Coord, y float64) geom.Coord {
	t := (y - p.Y()) / (q.Y() - p.Y())
	return geom.Coord{p.X() + t*(q.X()-p.X()), y}
}
