package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(x0, y0, size float64) []geom.Coord {
	return []geom.Coord{{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0}}
}

func polygon(t *testing.T, rings ...[]geom.Coord) *geom.Polygon {
	t.Helper()
	p, err := geom.NewPolygon(geom.XY).SetCoords(rings)
	require.NoError(t, err)
	return p
}

func TestArea_DegreeSquare(t *testing.T) {
	p := polygon(t, square(0, 0, 1))

	want := EarthRadius * EarthRadius * (math.Pi / 180) * math.Sin(math.Pi/180)
	assert.InDelta(t, want, Area(p), 1e-3)
	assert.Equal(t, 12391.3999, AreaKm2(p, 5))
}

func TestArea_OrientationIndependent(t *testing.T) {
	ring := square(10, 10, 1)
	reversed := make([]geom.Coord, len(ring))
	for i, c := range ring {
		reversed[len(ring)-1-i] = c
	}
	assert.InDelta(t, Area(polygon(t, ring)), Area(polygon(t, reversed)), 1e-6)
	assert.Positive(t, Area(polygon(t, reversed)))
}

func TestArea_DoubleScaleIsFourTimes(t *testing.T) {
	small := AreaKm2(polygon(t, square(0, 0, 0.1)), 5)
	large := AreaKm2(polygon(t, square(0, 0, 0.2)), 5)

	require.Positive(t, small)
	assert.InEpsilon(t, 4.0, large/small, 1e-3)
}

func TestArea_HolesSubtract(t *testing.T) {
	hole := []geom.Coord{{0.25, 0.25}, {0.75, 0.25}, {0.75, 0.75}, {0.25, 0.75}, {0.25, 0.25}}
	outer := Area(polygon(t, square(0, 0, 1)))
	withHole := Area(polygon(t, square(0, 0, 1), hole))

	assert.Less(t, withHole, outer)
	assert.InDelta(t, outer-Area(polygon(t, hole)), withHole, 1e-3)
}

func TestArea_MultiPolygonSums(t *testing.T) {
	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords([][][]geom.Coord{
		{square(0, 0, 1)},
		{square(5, 0, 1)},
	})
	require.NoError(t, err)

	a := Area(polygon(t, square(0, 0, 1)))
	b := Area(polygon(t, square(5, 0, 1)))
	assert.InDelta(t, a+b, Area(mp), 1e-3)
}

func TestArea_Deterministic(t *testing.T) {
	p := polygon(t, square(-73.99, 40.70, 0.05))
	assert.Equal(t, AreaKm2(p, 5), AreaKm2(p, 5))
	assert.Zero(t, Area(geom.NewPoint(geom.XY)))
}

func TestRoundDecimals(t *testing.T) {
	assert.Equal(t, 1.23457, RoundDecimals(1.234567, 5))
	assert.Equal(t, 2.0, RoundDecimals(1.5, 0))
	assert.Equal(t, 0.0, RoundDecimals(0.000001, 5))
}

func TestKinks_FigureEight(t *testing.T) {
	p := polygon(t, []geom.Coord{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}})

	kinks := Kinks(p)
	require.Len(t, kinks, 1)
	assert.InDelta(t, 1.0, kinks[0].X(), 1e-12)
	assert.InDelta(t, 1.0, kinks[0].Y(), 1e-12)
}

func TestKinks_SimpleRings(t *testing.T) {
	assert.Empty(t, Kinks(polygon(t, square(0, 0, 1))))
	assert.Empty(t, Kinks(polygon(t, []geom.Coord{{0, 0}, {4, 0}, {5, 3}, {2, 5}, {-1, 3}, {0, 0}})))
	assert.Empty(t, Kinks(polygon(t, []geom.Coord{{0, 0}, {1, 0}, {0, 1}, {0, 0}})))
}

func TestKinks_AcrossRings(t *testing.T) {
	crossing := []geom.Coord{{0.5, 0.5}, {1.5, 0.5}, {1.5, 0.8}, {0.5, 0.8}, {0.5, 0.5}}
	kinks := Kinks(polygon(t, square(0, 0, 1), crossing))
	assert.Len(t, kinks, 2)
}

func TestSegmentIntersection(t *testing.T) {
	p, ok := segmentIntersection(geom.Coord{0, 0}, geom.Coord{2, 2}, geom.Coord{0, 2}, geom.Coord{2, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.0, p.X(), 1e-12)
	assert.InDelta(t, 1.0, p.Y(), 1e-12)

	// Touching at an endpoint counts.
	_, ok = segmentIntersection(geom.Coord{0, 0}, geom.Coord{2, 0}, geom.Coord{1, 0}, geom.Coord{1, 3})
	assert.True(t, ok)

	_, ok = segmentIntersection(geom.Coord{0, 0}, geom.Coord{3, 0}, geom.Coord{1, 0}, geom.Coord{2, 0})
	assert.False(t, ok, "collinear overlap")

	_, ok = segmentIntersection(geom.Coord{0, 0}, geom.Coord{1, 0}, geom.Coord{0, 1}, geom.Coord{1, 1})
	assert.False(t, ok, "parallel")
}

func TestCoordsValid(t *testing.T) {
	assert.True(t, CoordsValid(polygon(t, square(-180, -90, 10))))
	assert.False(t, CoordsValid(polygon(t, square(175, 0, 10))))
	assert.False(t, CoordsValid(polygon(t, square(0, 85, 10))))
	assert.False(t, CoordValid(geom.Coord{math.NaN(), 0}))
}

func TestPolygonCount(t *testing.T) {
	assert.Equal(t, 1, PolygonCount(polygon(t, square(0, 0, 1))))

	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords([][][]geom.Coord{{square(0, 0, 1)}, {square(3, 0, 1)}})
	require.NoError(t, err)
	assert.Equal(t, 2, PolygonCount(mp))
	assert.Equal(t, 5, OuterRingLen(mp))
}

func TestOuterRingLenAndClosed(t *testing.T) {
	open := polygon(t, []geom.Coord{{0, 0}, {1, 0}, {1, 1}})
	assert.Equal(t, 3, OuterRingLen(open))
	assert.False(t, IsClosed(open))

	closed := polygon(t, square(0, 0, 1))
	assert.Equal(t, 5, OuterRingLen(closed))
	assert.True(t, IsClosed(closed))
	assert.False(t, IsClosed(geom.NewPolygon(geom.XY)))
}

func TestClip_InsideUnchanged(t *testing.T) {
	p := polygon(t, square(10, 10, 1))

	out, err := Clip(p, 1e-9)
	require.NoError(t, err)
	clipped := out.(*geom.Polygon)
	assert.InDelta(t, Area(p), Area(clipped), 1e-6)
	assert.True(t, IsClosed(clipped))
}

func TestClip_CrossesAntimeridian(t *testing.T) {
	p := polygon(t, square(179, 0, 2))

	out, err := Clip(p, 1e-9)
	require.NoError(t, err)
	assert.True(t, CoordsValid(out))
	assert.True(t, IsClosed(out))
	assert.InDelta(t, Area(polygon(t, []geom.Coord{{179, 0}, {180, 0}, {180, 2}, {179, 2}, {179, 0}})), Area(out), 1e-3)
}

func TestClip_OutsideIsEmpty(t *testing.T) {
	_, err := Clip(polygon(t, square(200, 0, 5)), 1e-9)
	assert.True(t, errors.Is(err, ErrEmptyGeometry))
}

func TestClip_DropsDuplicateVertices(t *testing.T) {
	p := polygon(t, []geom.Coord{{0, 0}, {1, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}})

	out, err := Clip(p, 1e-9)
	require.NoError(t, err)
	assert.Equal(t, 5, OuterRingLen(out))
}

func TestClip_MultiPolygonDropsOutsideParts(t *testing.T) {
	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords([][][]geom.Coord{
		{square(0, 0, 1)},
		{square(300, 0, 1)},
	})
	require.NoError(t, err)

	out, err := Clip(mp, 1e-9)
	require.NoError(t, err)
	assert.Equal(t, 1, PolygonCount(out))
}

func TestRoundCoords(t *testing.T) {
	p := polygon(t, []geom.Coord{{0.123456, 0.987654}, {1.111119, 0}, {1, 1}, {0.123456, 0.987654}})

	out, err := RoundCoords(p, 3)
	require.NoError(t, err)
	ring := out.(*geom.Polygon).LinearRing(0).Coords()
	assert.Equal(t, geom.Coord{0.123, 0.988}, ring[0])
	assert.Equal(t, geom.Coord{1.111, 0}, ring[1])

	same, err := RoundCoords(p, 0)
	require.NoError(t, err)
	assert.Same(t, p, same)
}

func TestProcessor(t *testing.T) {
	p := polygon(t, square(179.5, 0, 1))
	before := p.FlatCoords()[2]

	plain, err := NewProcessor(DefaultOptions()).Process(p)
	require.NoError(t, err)
	assert.Same(t, p, plain.Geometry)
	assert.Equal(t, AreaKm2(p, 5), plain.AreaKm2)

	opts := DefaultOptions()
	opts.Clip = true
	clipped, err := NewProcessor(opts).Process(p)
	require.NoError(t, err)
	assert.True(t, CoordsValid(clipped.Geometry))
	assert.Less(t, clipped.AreaKm2, plain.AreaKm2)
	assert.Equal(t, before, p.FlatCoords()[2])

	_, err = NewProcessor(opts).Process(nil)
	assert.Error(t, err)
}
