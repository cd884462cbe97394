package store

import (
	"context"
	"encoding/json"
	"math"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/mapwarper-cli/internal/model"
)

// ShapefileName is the shapefile written next to the NDJSON artifacts.
const ShapefileName = "maps.shp"

// Attribute columns of the shapefile's DBF table.
var shapeFields = []shp.Field{
	shp.StringField("ID", 32),
	shp.StringField("NAME", 254),
	shp.NumberField("YEAR", 6),
	shp.FloatField("AREA_KM2", 18, 5),
}

// ShapefileSink writes every envelope to NDJSON and, in addition, every map
// object with a geometry to a polygon shapefile for GIS tools.
type ShapefileSink struct {
	*NDJSONSink
	w      *shp.Writer
	shapes int
}

// NewShapefile creates the NDJSON artifacts and maps.shp under dir.
func NewShapefile(dir string) (*ShapefileSink, error) {
	nd, err := NewNDJSON(dir)
	if err != nil {
		return nil, err
	}

	w, err := shp.Create(joinPath(dir, ShapefileName), shp.POLYGON)
	if err != nil {
		nd.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "store: create %s", ShapefileName)
	}
	if err := w.SetFields(shapeFields); err != nil {
		w.Close()
		nd.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "store: set shapefile fields")
	}
	return &ShapefileSink{NDJSONSink: nd, w: w}, nil
}

// Write appends env to the NDJSON artifacts and, for objects carrying a
// geometry, to the shapefile.
func (s *ShapefileSink) Write(ctx context.Context, env model.Envelope) error {
	if err := s.NDJSONSink.Write(ctx, env); err != nil {
		return err
	}
	if env.Type != model.EnvelopeObject || env.Object.Geometry == nil {
		return nil
	}

	o := env.Object
	g, err := o.Geometry.Decode()
	if err != nil {
		return eris.Wrapf(err, "store: decode geometry of %s", o.ID)
	}
	poly, err := toShapePolygon(g)
	if err != nil {
		return eris.Wrapf(err, "store: shapefile geometry of %s", o.ID)
	}

	row := int(s.w.Write(poly))
	year := 0
	if o.ValidSince != nil {
		year = *o.ValidSince
	}
	var data struct {
		Area float64 `json:"area"`
	}
	if len(o.Data) > 0 {
		if err := json.Unmarshal(o.Data, &data); err != nil {
			return eris.Wrapf(err, "store: decode data of %s", o.ID)
		}
	}

	for i, v := range []any{o.ID, o.Name, year, data.Area} {
		if err := s.w.WriteAttribute(row, i, v); err != nil {
			return eris.Wrapf(err, "store: write attribute %d of %s", i, o.ID)
		}
	}
	s.shapes++
	return nil
}

// Shapes returns the number of shapes written.
func (s *ShapefileSink) Shapes() int { return s.shapes }

// Close closes the shapefile and the NDJSON artifacts.
func (s *ShapefileSink) Close() error {
	s.w.Close()
	return s.NDJSONSink.Close()
}

// toShapePolygon flattens a Polygon or MultiPolygon into one shapefile
// polygon with a part per ring. Outer rings are written clockwise and holes
// counter-clockwise, as the format requires.
func toShapePolygon(g geom.T) (*shp.Polygon, error) {
	var polys [][][]geom.Coord
	switch t := g.(type) {
	case *geom.Polygon:
		polys = [][][]geom.Coord{t.Coords()}
	case *geom.MultiPolygon:
		polys = t.Coords()
	default:
		return nil, eris.Errorf("unsupported geometry %T", g)
	}

	p := &shp.Polygon{Box: shp.Box{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}}
	for _, rings := range polys {
		for i, ring := range rings {
			if len(ring) == 0 {
				continue
			}
			if len(ring) < 4 {
				return nil, eris.Errorf("ring %d has %d coordinates", i, len(ring))
			}
			if ccw := isCounterClockwise(ring); ccw == (i == 0) {
				ring = reversed(ring)
			}
			p.Parts = append(p.Parts, int32(len(p.Points)))
			for _, c := range ring {
				x, y := c.X(), c.Y()
				p.Points = append(p.Points, shp.Point{X: x, Y: y})
				p.Box.MinX = math.Min(p.Box.MinX, x)
				p.Box.MinY = math.Min(p.Box.MinY, y)
				p.Box.MaxX = math.Max(p.Box.MaxX, x)
				p.Box.MaxY = math.Max(p.Box.MaxY, y)
			}
		}
	}
	if len(p.Points) == 0 {
		return nil, eris.New("empty geometry")
	}
	p.NumParts = int32(len(p.Parts))
	p.NumPoints = int32(len(p.Points))
	return p, nil
}

func isCounterClockwise(ring []geom.Coord) bool {
	flat := make([]float64, 0, 2*len(ring))
	for _, c := range ring {
		flat = append(flat, c.X(), c.Y())
	}
	return xy.IsRingCounterClockwise(geom.XY, flat)
}

func reversed(ring []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, len(ring))
	for i, c := range ring {
		out[len(ring)-1-i] = c
	}
	return out
}
