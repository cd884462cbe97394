package store

import (
	"context"
	"errors"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mapwarper-cli/internal/model"
	"github.com/sells-group/mapwarper-cli/internal/ndjson"
)

// Output artifacts of the NDJSON sink.
const (
	ObjectsFile = "objects.ndjson"
	LogsFile    = "logs.ndjson"
)

// NDJSONSink writes objects and relations to objects.ndjson and log records
// to logs.ndjson.
type NDJSONSink struct {
	objects *ndjson.Writer
	logs    *ndjson.Writer
}

// NewNDJSON creates dir if needed and truncates both artifacts.
func NewNDJSON(dir string) (*NDJSONSink, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "store: create %s", dir)
		}
	}

	objects, err := ndjson.Create(joinPath(dir, ObjectsFile))
	if err != nil {
		return nil, err
	}
	logs, err := ndjson.Create(joinPath(dir, LogsFile))
	if err != nil {
		objects.Close() //nolint:errcheck
		return nil, err
	}
	return &NDJSONSink{objects: objects, logs: logs}, nil
}

// Write appends env to the artifact matching its type.
func (s *NDJSONSink) Write(_ context.Context, env model.Envelope) error {
	switch env.Type {
	case model.EnvelopeObject, model.EnvelopeRelation:
		return s.objects.Write(env)
	case model.EnvelopeLog:
		return s.logs.Write(env)
	default:
		return eris.Errorf("store: unknown envelope type %q", env.Type)
	}
}

// Counts returns the number of lines written to each artifact.
func (s *NDJSONSink) Counts() (objects, logs int) {
	return s.objects.Count(), s.logs.Count()
}

// Close flushes and closes both artifacts.
func (s *NDJSONSink) Close() error {
	return errors.Join(s.objects.Close(), s.logs.Close())
}
