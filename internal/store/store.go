// Package store writes transform output to newline-delimited JSON files,
// optionally with a shapefile, or to a SQLite or PostGIS database.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mapwarper-cli/internal/model"
)

// Driver names accepted by Open.
const (
	DriverNDJSON    = "ndjson"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverShapefile = "shapefile"
)

// Sink receives output envelopes in order.
type Sink interface {
	Write(ctx context.Context, env model.Envelope) error
	Close() error
}

// RunRecorder is implemented by sinks that keep a ledger of runs.
type RunRecorder interface {
	FinishRun(ctx context.Context, summary RunSummary) error
}

// RunSummary closes out a run in the ledger.
type RunSummary struct {
	RunID      string
	FinishedAt time.Time
	Counts     map[string]int
}

// Options selects and configures a sink.
type Options struct {
	Driver      string
	DatabaseURL string
	// Dir receives the NDJSON artifacts, and the SQLite file when
	// DatabaseURL is empty.
	Dir string
}

// DefaultSQLiteFile is the database created under Dir when the sqlite driver
// has no DatabaseURL.
const DefaultSQLiteFile = "mapwarper.db"

// Open creates the sink for opts. Database sinks are migrated and the run is
// registered before Open returns.
func Open(ctx context.Context, opts Options, runID string) (Sink, error) {
	switch opts.Driver {
	case "", DriverNDJSON:
		return NewNDJSON(opts.Dir)

	case DriverShapefile:
		return NewShapefile(opts.Dir)

	case DriverSQLite:
		dsn := opts.DatabaseURL
		if dsn == "" {
			dsn = joinPath(opts.Dir, DefaultSQLiteFile)
		}
		s, err := NewSQLite(dsn, runID)
		if err != nil {
			return nil, err
		}
		if err := s.start(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil

	case DriverPostgres:
		if opts.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver needs a database url")
		}
		s, err := NewPostgres(ctx, opts.DatabaseURL, runID, nil)
		if err != nil {
			return nil, err
		}
		if err := s.start(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil

	default:
		return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
	}
}
