package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// RoundCoords returns a copy of g with every coordinate rounded to precision
// decimals. A non-positive precision returns g unchanged.
func RoundCoords(g geom.T, precision int) (geom.T, error) {
	if precision <= 0 {
		return g, nil
	}

	round := func(rings [][]geom.Coord) [][]geom.Coord {
		out := make([][]geom.Coord, len(rings))
		for i, ring := range rings {
			out[i] = make([]geom.Coord, len(ring))
			for j, c := range ring {
				out[i][j] = geom.Coord{RoundDecimals(c.X(), precision), RoundDecimals(c.Y(), precision)}
			}
		}
		return out
	}

	switch t := g.(type) {
	case *geom.Polygon:
		p, err := geom.NewPolygon(geom.XY).SetCoords(round(t.Coords()))
		if err != nil {
			return nil, eris.Wrap(err, "geometry: round polygon")
		}
		return p.SetSRID(t.SRID()), nil
	case *geom.MultiPolygon:
		polys := t.Coords()
		out := make([][][]geom.Coord, len(polys))
		for i, rings := range polys {
			out[i] = round(rings)
		}
		mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(out)
		if err != nil {
			return nil, eris.Wrap(err, "geometry: round multipolygon")
		}
		return mp.SetSRID(t.SRID()), nil
	default:
		return nil, eris.Errorf("geometry: cannot round %T", g)
	}
}

// Options configures a Processor.
type Options struct {
	Clip                bool
	ClipTolerance       float64
	AreaDecimals        int
	CoordinatePrecision int
}

// DefaultOptions returns options that leave the geometry untouched and
// report area to five decimals.
func DefaultOptions() Options {
	return Options{ClipTolerance: 1e-9, AreaDecimals: 5}
}

// Processed is a geometry ready for output.
type Processed struct {
	Geometry geom.T
	AreaKm2  float64
}

// Processor prepares validated mask geometries for output.
type Processor struct {
	opts Options
}

// NewProcessor creates a Processor.
func NewProcessor(opts Options) *Processor {
	return &Processor{opts: opts}
}

// Process clips (when enabled) and rounds g, then computes its area. The
// input is never modified.
func (p *Processor) Process(g geom.T) (Processed, error) {
	if g == nil {
		return Processed{}, eris.New("geometry: nil geometry")
	}

	out := g
	if p.opts.Clip {
		clipped, err := Clip(out, p.opts.ClipTolerance)
		if err != nil {
			return Processed{}, err
		}
		out = clipped
	}

	rounded, err := RoundCoords(out, p.opts.CoordinatePrecision)
	if err != nil {
		return Processed{}, err
	}

	return Processed{
		Geometry: rounded,
		AreaKm2:  AreaKm2(rounded, p.opts.AreaDecimals),
	}, nil
}
