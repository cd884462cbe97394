package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/mapwarper-cli/internal/model"
)

// SQLiteStore implements Sink using modernc.org/sqlite. Geometry is stored
// as GeoJSON text.
type SQLiteStore struct {
	db    *sql.DB
	runID string
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn, runID string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, runID: runID}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME,
	counts      TEXT
);

CREATE TABLE IF NOT EXISTS objects (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	id          TEXT NOT NULL,
	type        TEXT NOT NULL,
	name        TEXT,
	valid_since INTEGER,
	valid_until INTEGER,
	data        TEXT NOT NULL,
	geometry    TEXT,
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
	logs     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(run_id, from_id);
CREATE INDEX IF NOT EXISTS idx_logs_id ON logs(run_id, id);
`

// Migrate creates the tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) start(ctx context.Context) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		s.runID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", s.runID)
}

// Write stores env. Objects are replaced when the same id is written twice
// in a run.
func (s *SQLiteStore) Write(ctx context.Context, env model.Envelope) error {
	switch env.Type {
	case model.EnvelopeObject:
		row := toObjectRow(env.Object)
		geometry, err := geometryJSON(env.Object)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO objects (run_id, id, type, name, valid_since, valid_until, data, geometry)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.runID, row.ID, row.Type, row.Name, row.ValidSince, row.ValidUntil, row.Data, geometry,
		)
		return eris.Wrapf(err, "sqlite: insert object %s", row.ID)

	case model.EnvelopeRelation:
		r := env.Relation
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO relations (run_id, type, from_id, to_id) VALUES (?, ?, ?, ?)`,
			s.runID, r.Type, r.From, r.To,
		)
		return eris.Wrapf(err, "sqlite: insert relation %s -> %s", r.From, r.To)

	case model.EnvelopeLog:
		logs, err := logsJSON(env.Log)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO logs (run_id, id, image_id, logs) VALUES (?, ?, ?, ?)`,
			s.runID, env.Log.ID, env.Log.ImageID, logs,
		)
		return eris.Wrapf(err, "sqlite: insert log %s", env.Log.ID)

	default:
		return eris.Errorf("sqlite: unknown envelope type %q", env.Type)
	}
}

// FinishRun records the end of the run and its counts.
func (s *SQLiteStore) FinishRun(ctx context.Context, summary RunSummary) error {
	counts, err := countsJSON(summary.Counts)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, counts = ? WHERE id = ?`,
		summary.FinishedAt.UTC(), counts, summary.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", summary.RunID)
	}
	return checkRowsAffected(res, "run", summary.RunID)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
