package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// LineType discriminates lines in the intermediate harvest files.
type LineType string

const (
	LineMap   LineType = "map"
	LineLayer LineType = "layer"
	LineError LineType = "error"
)

// Line is one line of maps.ndjson or layers.ndjson.
type Line struct {
	Type LineType        `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PageError records a catalog page that could not be fetched. It is written to
// the harvest output in place of the page's items.
type PageError struct {
	Error string `json:"error"`
	URL   string `json:"url"`
	Page  int    `json:"page"`
	MapID int64  `json:"mapId,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// NewLine marshals v as the data of a line of the given type.
func NewLine(t LineType, v any) (Line, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Line{}, eris.Wrapf(err, "model: marshal %s line", t)
	}
	return Line{Type: t, Data: raw}, nil
}

// Decode unmarshals the line data into v.
func (l Line) Decode(v any) error {
	if err := json.Unmarshal(l.Data, v); err != nil {
		return eris.Wrapf(err, "model: decode %s line", l.Type)
	}
	return nil
}
