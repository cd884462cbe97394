package mask

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/mapwarper-cli/internal/model"
)

// ParseGML extracts every <gml:coordinates> ring from a mask document. Each
// ring is a list of pixel coordinates in document order. Namespaces are
// ignored.
func ParseGML(doc []byte) ([][]geom.Coord, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))

	var rings [][]geom.Coord
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "mask: parse gml")
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "coordinates" {
			continue
		}

		var text string
		if err := dec.DecodeElement(&text, &start); err != nil {
			return nil, eris.Wrap(err, "mask: parse gml coordinates")
		}
		ring, err := parseCoordinates(text, attr(start, "cs", ","), attr(start, "ts", " "))
		if err != nil {
			return nil, err
		}
		if len(ring) > 0 {
			rings = append(rings, ring)
		}
	}

	if len(rings) == 0 {
		return nil, eris.New("mask: gml has no coordinates")
	}
	return rings, nil
}

func attr(el xml.StartElement, name, fallback string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name && a.Value != "" {
			return a.Value
		}
	}
	return fallback
}

// parseCoordinates parses "x,y x,y ..." using the given coordinate and tuple
// separators. Whitespace tuple separators match any run of whitespace.
func parseCoordinates(text, cs, ts string) ([]geom.Coord, error) {
	var tuples []string
	if strings.TrimSpace(ts) == "" {
		tuples = strings.Fields(text)
	} else {
		for t := range strings.SplitSeq(text, ts) {
			if t = strings.TrimSpace(t); t != "" {
				tuples = append(tuples, t)
			}
		}
	}

	coords := make([]geom.Coord, 0, len(tuples))
	for _, t := range tuples {
		parts := strings.Split(t, cs)
		if len(parts) < 2 {
			return nil, eris.Errorf("mask: malformed coordinate %q", t)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "mask: malformed coordinate %q", t)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "mask: malformed coordinate %q", t)
		}
		coords = append(coords, geom.Coord{x, y})
	}
	return coords, nil
}

// number accepts a JSON number or a numeric string.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "mask: invalid number %s", b)
	}
	*n = number(f)
	return nil
}

type gcpDoc struct {
	Items []struct {
		X   number `json:"x"`
		Y   number `json:"y"`
		Lon number `json:"lon"`
		Lat number `json:"lat"`
	} `json:"items"`
}

// ParseGCPs decodes a gcps.json document.
func ParseGCPs(doc []byte) ([]model.GCP, error) {
	var d gcpDoc
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, eris.Wrap(err, "mask: parse gcps")
	}
	gcps := make([]model.GCP, 0, len(d.Items))
	for _, it := range d.Items {
		gcps = append(gcps, model.GCP{
			X:   float64(it.X),
			Y:   float64(it.Y),
			Lon: float64(it.Lon),
			Lat: float64(it.Lat),
		})
	}
	return gcps, nil
}
