// Package emit maps validated records onto output envelopes.
package emit

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/mapwarper-cli/internal/model"
)

// Default URL templates. {id} and {uuid} are filled in; {z}, {x} and {y} are
// left for tile clients.
const (
	DefaultMapTileTemplate   = "http://maps.nypl.org/warper/maps/tile/{id}/{z}/{x}/{y}.png"
	DefaultLayerTileTemplate = "http://maps.nypl.org/warper/layers/tile/{id}/{z}/{x}/{y}.png"
	DefaultItemTemplate      = "http://digitalcollections.nypl.org/items/{uuid}"
)

// Templates holds the URL templates written into object payloads.
type Templates struct {
	MapTile   string
	LayerTile string
	Item      string
}

// DefaultTemplates returns the stock templates.
func DefaultTemplates() Templates {
	return Templates{
		MapTile:   DefaultMapTileTemplate,
		LayerTile: DefaultLayerTileTemplate,
		Item:      DefaultItemTemplate,
	}
}

// Emitter builds output envelopes.
type Emitter struct {
	tmpl Templates
}

// New creates an Emitter. Empty templates fall back to the defaults.
func New(tmpl Templates) *Emitter {
	def := DefaultTemplates()
	if tmpl.MapTile == "" {
		tmpl.MapTile = def.MapTile
	}
	if tmpl.LayerTile == "" {
		tmpl.LayerTile = def.LayerTile
	}
	if tmpl.Item == "" {
		tmpl.Item = def.Item
	}
	return &Emitter{tmpl: tmpl}
}

// LayerID namespaces a layer id so it cannot collide with map ids.
func LayerID(id int64) string {
	return "layer-" + strconv.FormatInt(id, 10)
}

// MapID formats a map id.
func MapID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Map returns the map object followed by one st:in relation per layer the
// map belongs to. g may be nil, in which case the object has no geometry.
func (e *Emitter) Map(m model.MapRecord, g geom.T, areaKm2 float64, gcps []model.GCP) ([]model.Envelope, error) {
	id := MapID(m.ID)

	data, err := json.Marshal(model.MapData{
		Description: m.Description,
		ImageID:     m.DigitalID,
		UUID:        m.UUID,
		ParentUUID:  m.ParentUUID,
		Inset:       strings.HasPrefix(m.UUID, "inset"),
		Masked:      m.MaskStatus.HasMask(),
		NYPLURL:     fill(e.tmpl.Item, "{uuid}", m.UUID),
		TileURL:     fill(e.tmpl.MapTile, "{id}", id),
		Area:        areaKm2,
		GCPs:        gcps,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "emit: marshal data for map %s", id)
	}

	obj := &model.DomainObject{
		ID:         id,
		Type:       model.ObjectTypeMap,
		Name:       m.Title,
		ValidSince: m.Year().Ptr(),
		ValidUntil: m.Year().Ptr(),
		Data:       data,
	}
	if g != nil {
		gj, err := geojson.Encode(g)
		if err != nil {
			return nil, eris.Wrapf(err, "emit: encode geometry for map %s", id)
		}
		obj.Geometry = gj
	}

	out := make([]model.Envelope, 0, 1+len(m.LayerIDs))
	out = append(out, model.ObjectEnvelope(obj))
	for _, layerID := range m.LayerIDs {
		out = append(out, model.RelationEnvelope(&model.Relation{
			Type: model.RelationIn,
			From: id,
			To:   LayerID(layerID),
		}))
	}
	return out, nil
}

// Log returns the diagnostic report for a rejected map.
func (e *Emitter) Log(m model.MapRecord, diags []model.Diagnostic) model.Envelope {
	return model.LogEnvelope(&model.LogBundle{
		ID:      MapID(m.ID),
		ImageID: m.DigitalID,
		Logs:    diags,
	})
}

// Layer returns the object for a layer. An unparseable bbox is dropped.
func (e *Emitter) Layer(l model.Layer) (model.Envelope, error) {
	id := LayerID(l.ID)

	bbox, err := model.ParseBBox(l.BBox)
	if err != nil {
		zap.L().Debug("dropping unparseable layer bbox",
			zap.String("component", "emit"),
			zap.String("layer_id", id),
			zap.Error(err),
		)
		bbox = nil
	}

	data, err := json.Marshal(model.LayerData{
		MapCount: l.MapsCount,
		TileURL:  fill(e.tmpl.LayerTile, "{id}", strconv.FormatInt(l.ID, 10)),
		BBox:     bbox,
	})
	if err != nil {
		return model.Envelope{}, eris.Wrapf(err, "emit: marshal data for %s", id)
	}

	return model.ObjectEnvelope(&model.DomainObject{
		ID:         id,
		Type:       model.ObjectTypeMap,
		Name:       l.Name,
		ValidSince: l.Year().Ptr(),
		ValidUntil: l.Year().Ptr(),
		Data:       data,
	}), nil
}

func fill(tmpl, key, value string) string {
	return strings.ReplaceAll(tmpl, key, value)
}
