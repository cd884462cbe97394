// Package validate decides whether a harvested map is fit to emit, reporting
// every problem found as a diagnostic.
package validate

import (
	"fmt"
	"slices"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/mapwarper-cli/internal/geometry"
	"github.com/sells-group/mapwarper-cli/internal/model"
)

// Subject is what the validator inspects: the map record, its resolved mask
// geometry (nil when none) and the mask resolution error message, if any.
type Subject struct {
	Map      model.MapRecord
	Geometry geom.T
	MaskErr  string
}

// Admit reports whether a record takes part in the transform at all: it must
// carry a bbox and be tagged as a map. Rejected records produce no output.
func Admit(m model.MapRecord) bool {
	return m.BBox != "" && m.MapType == model.MapTypeMap
}

// Validator applies the rule table to subjects.
type Validator struct {
	rules Rules
}

// New creates a Validator.
func New(rules Rules) *Validator {
	return &Validator{rules: rules}
}

// Validate evaluates every rule in order and returns the diagnostics that
// fired. An empty result means the subject may be emitted. Validate has no
// side effects.
func (v *Validator) Validate(s Subject) []model.Diagnostic {
	var diags []model.Diagnostic
	add := func(kind model.DiagnosticKind, msg string) {
		if v.rules.enabled(kind) {
			diags = append(diags, model.Diagnostic{Kind: kind, Message: msg})
		}
	}

	m := s.Map
	g := s.Geometry

	if m.UUID == "" {
		add(model.KindMissingUUID, "Map has no UUID")
	}

	if g != nil {
		switch n := geometry.OuterRingLen(g); {
		case n < v.rules.MinCoordinates:
			add(model.KindCoordinatesCount,
				fmt.Sprintf("Mask has %d coordinates (should have at least %d)", n, v.rules.MinCoordinates))
		case !geometry.IsClosed(g):
			add(model.KindCoordinatesCount, "Mask ring is not closed")
		}

		if kinks := geometry.Kinks(g); len(kinks) > 0 {
			add(model.KindSelfIntersection, fmt.Sprintf("Mask has %d self-intersections", len(kinks)))
		}

		if !geometry.CoordsValid(g) {
			add(model.KindInvalidCoords, "Mask has invalid coordinates")
		}

		if n := geometry.PolygonCount(g); n != 1 {
			add(model.KindMultiPolygon, fmt.Sprintf("Mask is a MultiPolygon with %d polygons", n))
		}
	}

	if s.MaskErr != "" {
		add(model.KindMaskToGeoJSON, s.MaskErr)
	}

	if slices.Contains(v.rules.UnmaskedWarnStatuses, m.Status) && m.MaskStatus == model.MaskUnmasked {
		add(model.KindWarpedUnmasked, "Map is warped, but not masked")
	}

	if !slices.Contains(v.rules.WarpedStatuses, m.Status) && m.MaskStatus.HasMask() {
		add(model.KindUnwarpedMasked, "Map is masked, but not warped")
	}

	if len(diags) == 0 && g == nil {
		add(model.KindMaskMissing, "Map is unmasked")
	}

	return diags
}
