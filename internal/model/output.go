package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// DiagnosticKind names one validation rule.
type DiagnosticKind string

const (
	KindMissingUUID      DiagnosticKind = "missing_uuid"
	KindCoordinatesCount DiagnosticKind = "mask_coordinates_count"
	KindSelfIntersection DiagnosticKind = "self_intersection"
	KindInvalidCoords    DiagnosticKind = "invalid_coordinates"
	KindMultiPolygon     DiagnosticKind = "multipolygon"
	KindMaskToGeoJSON    DiagnosticKind = "mask_to_geojson"
	KindWarpedUnmasked   DiagnosticKind = "warped_but_unmasked"
	KindUnwarpedMasked   DiagnosticKind = "unwarped_but_masked"
	KindMaskMissing      DiagnosticKind = "mask_missing"
	KindClipFailed       DiagnosticKind = "clip_failed"
)

// DiagnosticKinds lists every kind in rule evaluation order.
var DiagnosticKinds = []DiagnosticKind{
	KindMissingUUID,
	KindCoordinatesCount,
	KindSelfIntersection,
	KindInvalidCoords,
	KindMultiPolygon,
	KindMaskToGeoJSON,
	KindWarpedUnmasked,
	KindUnwarpedMasked,
	KindMaskMissing,
	KindClipFailed,
}

// Diagnostic is one rule violation found on a map.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"type"`
	Message string         `json:"message"`
}

// LogBundle is the diagnostic report emitted in place of an invalid map.
type LogBundle struct {
	ID      string       `json:"id"`
	ImageID string       `json:"imageId,omitempty"`
	Logs    []Diagnostic `json:"logs"`
}

// ObjectTypeMap is the type tag of every emitted object.
const ObjectTypeMap = "st:Map"

// RelationIn expresses catalog membership of a map in a layer.
const RelationIn = "st:in"

// DomainObject is the normalized spatiotemporal record for one map or layer.
type DomainObject struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name,omitempty"`
	ValidSince *int              `json:"validSince,omitempty"`
	ValidUntil *int              `json:"validUntil,omitempty"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry,omitempty"`
}

// MapData is the data payload of a map object.
type MapData struct {
	Description string  `json:"description,omitempty"`
	ImageID     string  `json:"imageId,omitempty"`
	UUID        string  `json:"uuid,omitempty"`
	ParentUUID  string  `json:"parentUuid,omitempty"`
	Inset       bool    `json:"inset"`
	Masked      bool    `json:"masked"`
	NYPLURL     string  `json:"nyplUrl,omitempty"`
	TileURL     string  `json:"tileUrl,omitempty"`
	Area        float64 `json:"area"`
	GCPs        []GCP   `json:"gcps,omitempty"`
}

// LayerData is the data payload of a layer object.
type LayerData struct {
	MapCount int       `json:"mapCount"`
	TileURL  string    `json:"tileUrl,omitempty"`
	BBox     []float64 `json:"bbox,omitempty"`
}

// GCP is a ground control point linking an image pixel to a lon/lat position.
type GCP struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Relation is a directed edge between two emitted objects.
type Relation struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

// EnvelopeType discriminates output lines.
type EnvelopeType string

const (
	EnvelopeObject   EnvelopeType = "object"
	EnvelopeRelation EnvelopeType = "relation"
	EnvelopeLog      EnvelopeType = "log"
)

// Envelope is one output line: {"type": ..., "obj": {...}}. Exactly one of
// Object, Relation and Log is set, matching Type.
type Envelope struct {
	Type     EnvelopeType
	Object   *DomainObject
	Relation *Relation
	Log      *LogBundle
}

// ObjectEnvelope wraps an object.
func ObjectEnvelope(o *DomainObject) Envelope { return Envelope{Type: EnvelopeObject, Object: o} }

// RelationEnvelope wraps a relation.
func RelationEnvelope(r *Relation) Envelope { return Envelope{Type: EnvelopeRelation, Relation: r} }

// LogEnvelope wraps a log bundle.
func LogEnvelope(l *LogBundle) Envelope { return Envelope{Type: EnvelopeLog, Log: l} }

type envelopeWire struct {
	Type EnvelopeType    `json:"type"`
	Obj  json.RawMessage `json:"obj"`
}

// MarshalJSON writes the {"type","obj"} wire form.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var obj any
	switch e.Type {
	case EnvelopeObject:
		obj = e.Object
	case EnvelopeRelation:
		obj = e.Relation
	case EnvelopeLog:
		obj = e.Log
	default:
		return nil, eris.Errorf("model: unknown envelope type %q", e.Type)
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, eris.Wrapf(err, "model: marshal %s", e.Type)
	}
	return json.Marshal(envelopeWire{Type: e.Type, Obj: raw})
}

// UnmarshalJSON reads the {"type","obj"} wire form.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return eris.Wrap(err, "model: decode envelope")
	}

	*e = Envelope{Type: w.Type}
	var target any
	switch w.Type {
	case EnvelopeObject:
		e.Object = &DomainObject{}
		target = e.Object
	case EnvelopeRelation:
		e.Relation = &Relation{}
		target = e.Relation
	case EnvelopeLog:
		e.Log = &LogBundle{}
		target = e.Log
	default:
		return eris.Errorf("model: unknown envelope type %q", w.Type)
	}

	if err := json.Unmarshal(w.Obj, target); err != nil {
		return eris.Wrapf(err, "model: decode %s", w.Type)
	}
	return nil
}

// SubjectID returns the identifier of the map or layer the envelope is about.
func (e Envelope) SubjectID() string {
	switch {
	case e.Object != nil:
		return e.Object.ID
	case e.Relation != nil:
		return e.Relation.From
	case e.Log != nil:
		return e.Log.ID
	default:
		return ""
	}
}
