package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/mapwarper-cli/internal/mask"
	"github.com/sells-group/mapwarper-cli/internal/model"
)

func TestRecord_HappyPath(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	start := Fetched(model.MapRecord{ID: 1})

	resolved, err := start.WithMask(mask.Result{Geometry: poly, GCPs: []model.GCP{{X: 1}}})
	require.NoError(t, err)
	assert.Equal(t, StateMaskResolved, resolved.State())
	assert.Same(t, poly, resolved.Geometry())

	validated, err := resolved.Validated(nil)
	require.NoError(t, err)

	emitted, err := validated.Emitted([]model.Envelope{model.ObjectEnvelope(&model.DomainObject{ID: "1"})})
	require.NoError(t, err)
	assert.Equal(t, StateEmitted, emitted.State())
	assert.True(t, emitted.State().Terminal())
	assert.Len(t, emitted.Output(), 1)

	assert.Equal(t, StateFetched, start.State())
	assert.Nil(t, start.Geometry())
	assert.Equal(t, StateValidated, validated.State())
	assert.Empty(t, validated.Output())
}

func TestRecord_MaskError(t *testing.T) {
	rec, err := Fetched(model.MapRecord{ID: 2}).WithMaskError(errors.New("no gcps"))
	require.NoError(t, err)
	assert.Equal(t, StateMaskResolved, rec.State())
	assert.Equal(t, "no gcps", rec.MaskErr())
	assert.Nil(t, rec.Geometry())
	assert.Equal(t, "no gcps", rec.Subject().MaskErr)
}

func TestRecord_InvalidTransitions(t *testing.T) {
	fetched := Fetched(model.MapRecord{ID: 3})

	_, err := fetched.Validated(nil)
	assert.ErrorContains(t, err, "cannot move from fetched to validated")

	_, err = fetched.Logged(model.Envelope{})
	assert.Error(t, err)

	skipped, err := fetched.SkipMask()
	require.NoError(t, err)
	_, err = skipped.SkipMask()
	assert.Error(t, err)
	_, err = skipped.Filter()
	assert.Error(t, err)

	filtered, err := fetched.Filter()
	require.NoError(t, err)
	assert.True(t, filtered.State().Terminal())
	_, err = filtered.SkipMask()
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "mask_skipped", StateMaskSkipped.String())
	assert.Equal(t, "logged", StateLogged.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.False(t, StateValidated.Terminal())
}
