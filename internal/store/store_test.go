package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonas-p/go-shp"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/mapwarper-cli/internal/model"
)

func testObject(t *testing.T) model.Envelope {
	t.Helper()
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{-74, 40.7}, {-73.9, 40.7}, {-73.9, 40.8}, {-74, 40.7}},
	})
	gj, err := geojson.Encode(poly)
	require.NoError(t, err)
	year := 1857
	return model.ObjectEnvelope(&model.DomainObject{
		ID:         "14290",
		Type:       model.ObjectTypeMap,
		Name:       "Plan of the city",
		ValidSince: &year,
		ValidUntil: &year,
		Data:       json.RawMessage(`{"area":12.5}`),
		Geometry:   gj,
	})
}

func testRelation() model.Envelope {
	return model.RelationEnvelope(&model.Relation{Type: model.RelationIn, From: "14290", To: "layer-3"})
}

func testLog() model.Envelope {
	return model.LogEnvelope(&model.LogBundle{
		ID:      "77",
		ImageID: "1234",
		Logs:    []model.Diagnostic{{Kind: model.KindMissingUUID, Message: "Map has no UUID"}},
	})
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// --- NDJSON ---

func TestNDJSON_SplitsArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := NewNDJSON(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, testObject(t)))
	require.NoError(t, s.Write(ctx, testRelation()))
	require.NoError(t, s.Write(ctx, testLog()))

	objects, logs := s.Counts()
	assert.Equal(t, 2, objects)
	assert.Equal(t, 1, logs)
	require.NoError(t, s.Close())

	objLines := readLines(t, filepath.Join(dir, ObjectsFile))
	require.Len(t, objLines, 2)
	var env model.Envelope
	require.NoError(t, json.Unmarshal([]byte(objLines[0]), &env))
	assert.Equal(t, "14290", env.Object.ID)
	assert.Contains(t, objLines[1], `"type":"relation"`)

	logLines := readLines(t, filepath.Join(dir, LogsFile))
	require.Len(t, logLines, 1)
	assert.JSONEq(t, `{"type":"log","obj":{"id":"77","imageId":"1234",
		"logs":[{"type":"missing_uuid","message":"Map has no UUID"}]}}`, logLines[0])
}

func TestNDJSON_RejectsUnknownType(t *testing.T) {
	s, err := NewNDJSON(t.TempDir())
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	assert.Error(t, s.Write(context.Background(), model.Envelope{Type: "bogus"}))
}

// --- Shapefile ---

func shpAttr(r *shp.Reader, i int) string {
	return strings.TrimSpace(strings.TrimRight(r.Attribute(i), "\x00"))
}

func TestShapefile_WritesGeometryObjects(t *testing.T) {
	dir := t.TempDir()
	s, err := NewShapefile(dir)
	require.NoError(t, err)

	ctx := context.Background()
	noGeom := model.ObjectEnvelope(&model.DomainObject{ID: "layer-3", Type: model.ObjectTypeMap})
	require.NoError(t, s.Write(ctx, testObject(t)))
	require.NoError(t, s.Write(ctx, noGeom))
	require.NoError(t, s.Write(ctx, testRelation()))
	require.NoError(t, s.Write(ctx, testLog()))
	assert.Equal(t, 1, s.Shapes())
	require.NoError(t, s.Close())

	assert.Len(t, readLines(t, filepath.Join(dir, ObjectsFile)), 3)
	assert.Len(t, readLines(t, filepath.Join(dir, LogsFile)), 1)

	r, err := shp.Open(filepath.Join(dir, ShapefileName))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	require.True(t, r.Next())
	_, shape := r.Shape()
	poly, ok := shape.(*shp.Polygon)
	require.True(t, ok)
	assert.Equal(t, int32(1), poly.NumParts)
	assert.Len(t, poly.Points, 4)
	assert.InDelta(t, -74.0, poly.Box.MinX, 1e-9)
	assert.InDelta(t, 40.8, poly.Box.MaxY, 1e-9)

	assert.Equal(t, "14290", shpAttr(r, 0))
	assert.Equal(t, "Plan of the city", shpAttr(r, 1))
	assert.Equal(t, "1857", shpAttr(r, 2))
	assert.Equal(t, "12.50000", shpAttr(r, 3))
	assert.False(t, r.Next())
}

func TestToShapePolygon_Orientation(t *testing.T) {
	ccwOuter := []geom.Coord{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}
	cwHole := []geom.Coord{{1, 1}, {1, 2}, {2, 2}, {2, 1}, {1, 1}}
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{ccwOuter, cwHole})

	p, err := toShapePolygon(poly)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 5}, p.Parts)

	outer := make([]geom.Coord, 0, 5)
	hole := make([]geom.Coord, 0, 5)
	for i, pt := range p.Points {
		if i < 5 {
			outer = append(outer, geom.Coord{pt.X, pt.Y})
		} else {
			hole = append(hole, geom.Coord{pt.X, pt.Y})
		}
	}
	assert.False(t, isCounterClockwise(outer))
	assert.True(t, isCounterClockwise(hole))
}

func TestToShapePolygon_KeepsClockwiseOuter(t *testing.T) {
	cwOuter := []geom.Coord{{0, 0}, {0, 4}, {4, 4}, {4, 0}, {0, 0}}
	p, err := toShapePolygon(geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{cwOuter}))
	require.NoError(t, err)
	require.Len(t, p.Points, 5)
	assert.Equal(t, shp.Point{X: 0, Y: 4}, p.Points[1])
}

func TestToShapePolygon_ShortRing(t *testing.T) {
	short := []geom.Coord{{0, 0}, {1, 0}, {0, 0}}
	_, err := toShapePolygon(geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{short}))
	assert.ErrorContains(t, err, "ring 0 has 3 coordinates")
}

func TestToShapePolygon_Unsupported(t *testing.T) {
	_, err := toShapePolygon(geom.NewPointFlat(geom.XY, []float64{1, 2}))
	assert.Error(t, err)
}

// --- SQLite ---

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), "run-1")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.start(context.Background()))
	return st
}

func TestSQLite_WritesAllTables(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Write(ctx, testObject(t)))
	require.NoError(t, st.Write(ctx, testRelation()))
	require.NoError(t, st.Write(ctx, testLog()))

	var name, data, geometry string
	var since int
	require.NoError(t, st.db.QueryRowContext(ctx,
		`SELECT name, valid_since, data, geometry FROM objects WHERE run_id = ? AND id = ?`, "run-1", "14290",
	).Scan(&name, &since, &data, &geometry))
	assert.Equal(t, "Plan of the city", name)
	assert.Equal(t, 1857, since)
	assert.JSONEq(t, `{"area":12.5}`, data)
	assert.Contains(t, geometry, `"Polygon"`)

	var to string
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT to_id FROM relations WHERE from_id = ?`, "14290").Scan(&to))
	assert.Equal(t, "layer-3", to)

	var logs string
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT logs FROM logs WHERE id = ?`, "77").Scan(&logs))
	assert.JSONEq(t, `[{"type":"missing_uuid","message":"Map has no UUID"}]`, logs)
}

func TestSQLite_ObjectReplacedWithinRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Write(ctx, testObject(t)))
	require.NoError(t, st.Write(ctx, testObject(t)))

	var n int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLite_NullableColumns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Write(ctx, model.ObjectEnvelope(&model.DomainObject{ID: "layer-1", Type: model.ObjectTypeMap})))

	var since, geometry *string
	var data string
	require.NoError(t, st.db.QueryRowContext(ctx,
		`SELECT valid_since, geometry, data FROM objects WHERE id = ?`, "layer-1",
	).Scan(&since, &geometry, &data))
	assert.Nil(t, since)
	assert.Nil(t, geometry)
	assert.Equal(t, "{}", data)
}

func TestSQLite_FinishRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.FinishRun(ctx, RunSummary{
		RunID:      "run-1",
		FinishedAt: time.Now(),
		Counts:     map[string]int{"emitted": 3},
	}))

	var counts string
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT counts FROM runs WHERE id = ?`, "run-1").Scan(&counts))
	assert.JSONEq(t, `{"emitted":3}`, counts)

	err := st.FinishRun(ctx, RunSummary{RunID: "missing", FinishedAt: time.Now()})
	assert.ErrorContains(t, err, "run not found")
}

// --- Postgres ---

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return newPostgresStore(mock, "run-1"), mock
}

func TestPostgres_Start(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS postgis`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO runs \(id, started_at\) VALUES \(\$1, \$2\)`).
		WithArgs("run-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.start(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BuffersUntilFlush(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, testObject(t)))
	require.NoError(t, s.Write(ctx, testRelation()))
	require.NoError(t, s.Write(ctx, testLog()))
	assert.Equal(t, 3, s.pending())

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_objects"}, objectColumns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "objects"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectCopyFrom(pgx.Identifier{"relations"}, relationColumns).WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"logs"}, logColumns).WillReturnResult(1)

	require.NoError(t, s.Flush(ctx))
	assert.Zero(t, s.pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SameObjectTwiceInOneBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	first := testObject(t)
	second := testObject(t)
	second.Object.Name = "Plan of the city, revised"
	other := testObject(t)
	other.Object.ID = "14291"

	require.NoError(t, s.Write(ctx, first))
	require.NoError(t, s.Write(ctx, other))
	require.NoError(t, s.Write(ctx, second))
	require.Len(t, s.objects, 2)
	assert.Equal(t, "14290", s.objects[0][1])
	assert.Equal(t, "Plan of the city, revised", s.objects[0][3])
	assert.Equal(t, "14291", s.objects[1][1])

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_objects"}, objectColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "objects"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	require.NoError(t, s.Flush(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())

	// The next batch starts with an empty index.
	require.NoError(t, s.Write(ctx, first))
	require.Len(t, s.objects, 1)
	assert.Equal(t, "Plan of the city", s.objects[0][3])
}

func TestPostgres_FlushesAtBatchSize(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	s.batchSize = 2
	ctx := context.Background()

	mock.ExpectCopyFrom(pgx.Identifier{"relations"}, relationColumns).WillReturnResult(2)

	require.NoError(t, s.Write(ctx, testRelation()))
	require.NoError(t, s.Write(ctx, testRelation()))
	assert.Zero(t, s.pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET finished_at = \$1, counts = \$2 WHERE id = \$3`).
		WithArgs(pgxmock.AnyArg(), `{"logged":1}`, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishRun(context.Background(), RunSummary{
		RunID:      "run-1",
		FinishedAt: time.Now(),
		Counts:     map[string]int{"logged": 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeEWKB(t *testing.T) {
	env := testObject(t)

	data, err := EncodeEWKB(env.Object)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	poly, ok := g.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, SRID, poly.SRID())
	assert.Equal(t, 4, poly.LinearRing(0).NumCoords())

	none, err := EncodeEWKB(&model.DomainObject{ID: "x"})
	require.NoError(t, err)
	assert.Nil(t, none)
}

// --- Open ---

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Options{Dir: dir}, "run-1")
	require.NoError(t, err)
	assert.IsType(t, &NDJSONSink{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Driver: DriverSQLite, Dir: dir}, "run-1")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())
	assert.FileExists(t, filepath.Join(dir, DefaultSQLiteFile))

	s, err = Open(ctx, Options{Driver: DriverShapefile, Dir: dir}, "run-1")
	require.NoError(t, err)
	assert.IsType(t, &ShapefileSink{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Driver: DriverPostgres}, "run-1")
	assert.ErrorContains(t, err, "database url")

	_, err = Open(ctx, Options{Driver: "mongo"}, "run-1")
	assert.ErrorContains(t, err, "unknown driver")
}
