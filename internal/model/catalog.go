package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// MaskStatus describes how far a map's mask has been drawn.
type MaskStatus string

const (
	MaskUnmasked MaskStatus = "unmasked"
	MaskMasking  MaskStatus = "masking"
	MaskMasked   MaskStatus = "masked"
)

// HasMask reports whether a mask exists (complete or in progress).
func (s MaskStatus) HasMask() bool {
	return s == MaskMasked || s == MaskMasking
}

// MapTypeMap is the map_type tag carried by genuine maps. Index sheets and
// placeholders carry other tags and are filtered out before validation.
const MapTypeMap = "is_map"

// MapRecord is one map as returned by the catalog's maps.json endpoint, plus the
// layer membership annotations added during harvest.
type MapRecord struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title,omitempty"`
	Description      string     `json:"description,omitempty"`
	BBox             string     `json:"bbox,omitempty"`
	MapType          string     `json:"map_type,omitempty"`
	Status           string     `json:"status,omitempty"`
	MaskStatus       MaskStatus `json:"mask_status,omitempty"`
	DepictsYear      Year       `json:"depicts_year,omitempty"`
	IssueYear        Year       `json:"issue_year,omitempty"`
	DigitalID        string     `json:"nypl_digital_id,omitempty"`
	UUID             string     `json:"uuid,omitempty"`
	ParentUUID       string     `json:"parent_uuid,omitempty"`
	TransformOptions string     `json:"transform_options,omitempty"`
	Width            int        `json:"width,omitempty"`
	Height           int        `json:"height,omitempty"`

	LayerIDs    []int64     `json:"layer_ids,omitempty"`
	LayerErrors []PageError `json:"layer_errors,omitempty"`
}

// Year returns the depicted year, falling back to the issue year. Zero means
// the map carries no usable year.
func (m MapRecord) Year() Year {
	if m.DepictsYear != 0 {
		return m.DepictsYear
	}
	return m.IssueYear
}

// Layer is a grouping of maps as returned by layers.json.
type Layer struct {
	ID          int64  `json:"id"`
	Name        string `json:"name,omitempty"`
	BBox        string `json:"bbox,omitempty"`
	MapsCount   int    `json:"maps_count,omitempty"`
	DepictsYear Year   `json:"depicts_year,omitempty"`
	IssueYear   Year   `json:"issue_year,omitempty"`
}

// Year returns the depicted year, falling back to the issue year.
func (l Layer) Year() Year {
	if l.DepictsYear != 0 {
		return l.DepictsYear
	}
	return l.IssueYear
}

// CatalogPage is the body of a paginated catalog response.
type CatalogPage[T any] struct {
	TotalEntries *int `json:"total_entries,omitempty"`
	Items        []T  `json:"items"`
}

// Year is a calendar year that the catalog serializes either as a number or as
// a string such as "1857" or "1857-1860". Only the leading digits are used.
type Year int

// UnmarshalJSON accepts numbers, numeric strings, empty strings and null.
func (y *Year) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*y = 0
		return nil
	}

	var s string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "model: decode year")
		}
	} else {
		s = string(b)
	}

	*y = ParseYear(s)
	return nil
}

// ParseYear parses the leading integer of s, ignoring anything after it.
// Strings that do not start with a digit yield zero.
func ParseYear(s string) Year {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return Year(n)
}

// Ptr returns nil for the zero year so it can be omitted from output.
func (y Year) Ptr() *int {
	if y == 0 {
		return nil
	}
	v := int(y)
	return &v
}

// ParseBBox splits a "minx,miny,maxx,maxy" string into floats. An empty string
// yields nil.
func ParseBBox(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "model: parse bbox %q", s)
		}
		out = append(out, f)
	}
	return out, nil
}
