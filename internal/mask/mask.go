// Package mask resolves a map's pixel-space mask into a lon/lat polygon.
package mask

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/mapwarper-cli/internal/model"
)

// ErrToolchainMissing is returned by Probe when the coordinate transformation
// tool cannot be run. No mask can be resolved without it, so the run aborts.
var ErrToolchainMissing = eris.New("mask: gdaltransform is not available")

// Result is a resolved mask: a closed polygon in lon/lat and the ground
// control points used to compute it.
type Result struct {
	Geometry geom.T
	GCPs     []model.GCP
}

// Resolver resolves a map's mask. transform is the map's transform_options
// value (auto, p1, p2, p3 or tps).
type Resolver interface {
	Resolve(ctx context.Context, mapID int64, transform string) (Result, error)
}

// Prober checks that a resolver can run at all.
type Prober interface {
	Probe(ctx context.Context) error
}
