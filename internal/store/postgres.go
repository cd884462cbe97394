package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/mapwarper-cli/internal/db"
	"github.com/sells-group/mapwarper-cli/internal/model"
)

// SRID of every stored geometry.
const SRID = 4326

// DefaultBatchSize is the number of buffered rows that triggers a flush.
const DefaultBatchSize = 500

// PostgresStore implements Sink on PostGIS. Rows are buffered and flushed in
// batches: objects are upserted, relations and logs are COPYed.
type PostgresStore struct {
	pool      db.Pool
	closeFn   func()
	runID     string
	batchSize int

	// objects holds at most one row per id; seen maps an id to its row.
	objects   [][]any
	seen      map[string]int
	relations [][]any
	logs      [][]any
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `mapstructure:"max_conns"`
	MinConns int32 `mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString, runID string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	s := newPostgresStore(pool, runID)
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool, runID string) *PostgresStore {
	return &PostgresStore{pool: pool, runID: runID, batchSize: DefaultBatchSize}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	counts      JSONB
);

CREATE TABLE IF NOT EXISTS objects (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	id          TEXT NOT NULL,
	type        TEXT NOT NULL,
	name        TEXT,
	valid_since INTEGER,
	valid_until INTEGER,
	data        JSONB NOT NULL,
	geometry    geometry(Geometry, 4326),
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS relations (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	type    TEXT NOT NULL,
	from_id TEXT NOT NULL,
	to_id   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS logs (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	id       TEXT NOT NULL,
	image_id TEXT,
	logs     JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_objects_geometry ON objects USING GIST (geometry);
CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(run_id, from_id);
CREATE INDEX IF NOT EXISTS idx_logs_id ON logs(run_id, id);
`

var (
	objectColumns   = []string{"run_id", "id", "type", "name", "valid_since", "valid_until", "data", "geometry"}
	relationColumns = []string{"run_id", "type", "from_id", "to_id"}
	logColumns      = []string{"run_id", "id", "image_id", "logs"}
)

// Migrate creates the PostGIS extension and tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) start(ctx context.Context) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, started_at) VALUES ($1, $2)`,
		s.runID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert run %s", s.runID)
}

// Write buffers env, flushing once a batch fills.
func (s *PostgresStore) Write(ctx context.Context, env model.Envelope) error {
	switch env.Type {
	case model.EnvelopeObject:
		geometry, err := EncodeEWKB(env.Object)
		if err != nil {
			return err
		}
		row := toObjectRow(env.Object)
		s.bufferObject(row.ID, []any{
			s.runID, row.ID, row.Type, row.Name, row.ValidSince, row.ValidUntil, row.Data, geometry,
		})

	case model.EnvelopeRelation:
		r := env.Relation
		s.relations = append(s.relations, []any{s.runID, r.Type, r.From, r.To})

	case model.EnvelopeLog:
		logs, err := logsJSON(env.Log)
		if err != nil {
			return err
		}
		s.logs = append(s.logs, []any{s.runID, env.Log.ID, env.Log.ImageID, logs})

	default:
		return eris.Errorf("postgres: unknown envelope type %q", env.Type)
	}

	if s.pending() >= s.batchSize {
		return s.Flush(ctx)
	}
	return nil
}

// bufferObject queues an object row. A second write of the same id in one
// batch replaces the first, since one upsert cannot touch a row twice.
func (s *PostgresStore) bufferObject(id string, row []any) {
	if i, ok := s.seen[id]; ok {
		s.objects[i] = row
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]int)
	}
	s.seen[id] = len(s.objects)
	s.objects = append(s.objects, row)
}

func (s *PostgresStore) pending() int {
	return len(s.objects) + len(s.relations) + len(s.logs)
}

// Flush writes every buffered row.
func (s *PostgresStore) Flush(ctx context.Context) error {
	if len(s.objects) > 0 {
		if _, err := db.Upsert(ctx, s.pool, db.UpsertConfig{
			Table:        "objects",
			Columns:      objectColumns,
			ConflictKeys: []string{"run_id", "id"},
		}, s.objects); err != nil {
			return eris.Wrap(err, "postgres: flush objects")
		}
		s.objects = nil
		clear(s.seen)
	}
	if _, err := db.CopyFrom(ctx, s.pool, "relations", relationColumns, s.relations); err != nil {
		return eris.Wrap(err, "postgres: flush relations")
	}
	s.relations = nil
	if _, err := db.CopyFrom(ctx, s.pool, "logs", logColumns, s.logs); err != nil {
		return eris.Wrap(err, "postgres: flush logs")
	}
	s.logs = nil
	return nil
}

// FinishRun flushes remaining rows and records the end of the run.
func (s *PostgresStore) FinishRun(ctx context.Context, summary RunSummary) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	counts, err := countsJSON(summary.Counts)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET finished_at = $1, counts = $2 WHERE id = $3`,
		summary.FinishedAt.UTC(), counts, summary.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", summary.RunID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", summary.RunID)
	}
	return nil
}

// Close flushes remaining rows and closes the pool.
func (s *PostgresStore) Close() error {
	err := s.Flush(context.Background())
	if s.closeFn != nil {
		s.closeFn()
	}
	return err
}

// EncodeEWKB converts the object's GeoJSON geometry to EWKB with SRID 4326.
// Objects without geometry yield nil.
func EncodeEWKB(o *model.DomainObject) ([]byte, error) {
	if o.Geometry == nil {
		return nil, nil
	}

	g, err := o.Geometry.Decode()
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: decode geometry of %s", o.ID)
	}

	switch t := g.(type) {
	case *geom.Polygon:
		g = t.SetSRID(SRID)
	case *geom.MultiPolygon:
		g = t.SetSRID(SRID)
	default:
		return nil, eris.Errorf("postgres: unsupported geometry %T for %s", g, o.ID)
	}

	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: encode EWKB for %s", o.ID)
	}
	return data, nil
}
