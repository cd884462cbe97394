package store

import (
	"encoding/json"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mapwarper-cli/internal/model"
)

// objectRow is the column form of a DomainObject shared by the database
// sinks. Geometry is encoded per sink.
type objectRow struct {
	ID         string
	Type       string
	Name       string
	ValidSince *int
	ValidUntil *int
	Data       string
}

func toObjectRow(o *model.DomainObject) objectRow {
	data := "{}"
	if len(o.Data) > 0 {
		data = string(o.Data)
	}
	return objectRow{
		ID:         o.ID,
		Type:       o.Type,
		Name:       o.Name,
		ValidSince: o.ValidSince,
		ValidUntil: o.ValidUntil,
		Data:       data,
	}
}

// geometryJSON returns the GeoJSON text of the object's geometry, or nil.
func geometryJSON(o *model.DomainObject) (*string, error) {
	if o.Geometry == nil {
		return nil, nil
	}
	raw, err := json.Marshal(o.Geometry)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal geometry of %s", o.ID)
	}
	s := string(raw)
	return &s, nil
}

func logsJSON(l *model.LogBundle) (string, error) {
	raw, err := json.Marshal(l.Logs)
	if err != nil {
		return "", eris.Wrapf(err, "store: marshal logs of %s", l.ID)
	}
	return string(raw), nil
}

func countsJSON(counts map[string]int) (string, error) {
	if counts == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal run counts")
	}
	return string(raw), nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
