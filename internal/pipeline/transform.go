package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapwarper-cli/internal/emit"
	"github.com/sells-group/mapwarper-cli/internal/geometry"
	"github.com/sells-group/mapwarper-cli/internal/mask"
	"github.com/sells-group/mapwarper-cli/internal/model"
	"github.com/sells-group/mapwarper-cli/internal/ndjson"
	"github.com/sells-group/mapwarper-cli/internal/store"
	"github.com/sells-group/mapwarper-cli/internal/validate"
)

// Clip failure policies.
const (
	OnClipFailureEmit = "emit"
	OnClipFailureLog  = "log"
)

// TransformOptions configures a Transformer.
type TransformOptions struct {
	// Dir holds the intermediate files.
	Dir string

	// MaskEnabled resolves masks of masked and masking maps. When false every
	// record skips resolution.
	MaskEnabled bool

	// MaskDelay is slept after every resolution attempt.
	MaskDelay time.Duration

	// OnClipFailure is emit (object without geometry) or log (clip_failed
	// log record).
	OnClipFailure string
}

// Stats counts what a transform did.
type Stats struct {
	Read         int
	Filtered     int
	MaskResolved int
	MaskFailed   int
	Logged       int
	Emitted      int
	Relations    int
	Layers       int
	PageErrors   int
}

// Counts returns the stats keyed by name for run ledgers.
func (s Stats) Counts() map[string]int {
	return map[string]int{
		"read":          s.Read,
		"filtered":      s.Filtered,
		"mask_resolved": s.MaskResolved,
		"mask_failed":   s.MaskFailed,
		"logged":        s.Logged,
		"emitted":       s.Emitted,
		"relations":     s.Relations,
		"layers":        s.Layers,
		"page_errors":   s.PageErrors,
	}
}

// Transformer turns the intermediate files into output envelopes.
type Transformer struct {
	resolver  mask.Resolver
	validator *validate.Validator
	processor *geometry.Processor
	emitter   *emit.Emitter
	sink      store.Sink
	opts      TransformOptions
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewTransformer creates a Transformer. resolver may be nil when masks are
// disabled.
func NewTransformer(
	resolver mask.Resolver,
	validator *validate.Validator,
	processor *geometry.Processor,
	emitter *emit.Emitter,
	sink store.Sink,
	opts TransformOptions,
) *Transformer {
	if opts.OnClipFailure == "" {
		opts.OnClipFailure = OnClipFailureEmit
	}
	return &Transformer{
		resolver:  resolver,
		validator: validator,
		processor: processor,
		emitter:   emitter,
		sink:      sink,
		opts:      opts,
		sleep:     sleepCtx,
	}
}

// Run reads maps.ndjson then layers.ndjson and writes every resulting
// envelope to the sink. Records are handled one at a time in file order.
func (t *Transformer) Run(ctx context.Context) (Stats, error) {
	log := zap.L().With(zap.String("component", "pipeline.transform"))

	var stats Stats
	for _, name := range []string{MapsFile, LayersFile} {
		path := filepath.Join(t.opts.Dir, name)
		for line, err := range ndjson.DecodeFile[model.Line](path) {
			if err != nil {
				return stats, eris.Wrapf(err, "pipeline: read %s", name)
			}
			if err := ctx.Err(); err != nil {
				return stats, eris.Wrap(err, "pipeline: transform")
			}
			if err := t.handleLine(ctx, line, &stats); err != nil {
				return stats, err
			}
		}
	}

	log.Info("pipeline: transform complete",
		zap.Int("read", stats.Read),
		zap.Int("filtered", stats.Filtered),
		zap.Int("emitted", stats.Emitted),
		zap.Int("logged", stats.Logged),
		zap.Int("relations", stats.Relations),
		zap.Int("layers", stats.Layers),
		zap.Int("page_errors", stats.PageErrors),
	)
	return stats, nil
}

func (t *Transformer) handleLine(ctx context.Context, line model.Line, stats *Stats) error {
	switch line.Type {
	case model.LineMap:
		var m model.MapRecord
		if err := line.Decode(&m); err != nil {
			return err
		}
		stats.Read++

		rec, err := t.Process(ctx, m)
		if err != nil {
			return err
		}
		stats.add(rec)
		return t.write(ctx, rec.Output())

	case model.LineLayer:
		var l model.Layer
		if err := line.Decode(&l); err != nil {
			return err
		}
		env, err := t.emitter.Layer(l)
		if err != nil {
			return err
		}
		stats.Layers++
		return t.write(ctx, []model.Envelope{env})

	case model.LineError:
		var pe model.PageError
		if err := line.Decode(&pe); err != nil {
			return err
		}
		zap.L().Warn("pipeline: harvest recorded a failed page",
			zap.String("url", pe.URL),
			zap.Int("page", pe.Page),
			zap.Int64("map_id", pe.MapID),
			zap.String("kind", pe.Kind),
			zap.String("error", pe.Error),
		)
		stats.PageErrors++
		return nil

	default:
		zap.L().Debug("pipeline: skipping unknown line type", zap.String("type", string(line.Type)))
		return nil
	}
}

func (s *Stats) add(r Record) {
	switch r.State() {
	case StateFiltered:
		s.Filtered++
		return
	case StateLogged:
		s.Logged++
	case StateEmitted:
		s.Emitted++
		s.Relations += len(r.Output()) - 1
	}
	switch {
	case r.MaskErr() != "":
		s.MaskFailed++
	case r.Geometry() != nil:
		s.MaskResolved++
	}
}

func (t *Transformer) write(ctx context.Context, envs []model.Envelope) error {
	for _, env := range envs {
		if err := t.sink.Write(ctx, env); err != nil {
			return eris.Wrapf(err, "pipeline: write %s %s", env.Type, env.SubjectID())
		}
	}
	return nil
}

// Process takes one map through admission, mask resolution, validation and
// emission. The returned record is terminal: filtered, logged or emitted.
// Errors are returned only when the context ends or output cannot be built.
func (t *Transformer) Process(ctx context.Context, m model.MapRecord) (Record, error) {
	rec := Fetched(m)
	if !validate.Admit(m) {
		return rec.Filter()
	}

	rec, err := t.ResolveMask(ctx, rec)
	if err != nil {
		return rec, err
	}

	rec, err = rec.Validated(t.validator.Validate(rec.Subject()))
	if err != nil {
		return rec, err
	}
	if diags := rec.Diagnostics(); len(diags) > 0 {
		return rec.Logged(t.emitter.Log(m, diags))
	}

	processed, err := t.processor.Process(rec.Geometry())
	if err != nil {
		return t.clipFailed(rec, err)
	}

	envs, err := t.emitter.Map(m, processed.Geometry, processed.AreaKm2, rec.GCPs())
	if err != nil {
		return rec, err
	}
	return rec.Emitted(envs)
}

// ResolveMask resolves the mask of a masked or masking map and records the
// outcome. Other maps, and every map when masks are disabled, skip
// resolution. A failed resolution is never fatal.
func (t *Transformer) ResolveMask(ctx context.Context, rec Record) (Record, error) {
	m := rec.Map()
	if !t.opts.MaskEnabled || t.resolver == nil || !m.MaskStatus.HasMask() {
		return rec.SkipMask()
	}

	res, resolveErr := t.resolver.Resolve(ctx, m.ID, m.TransformOptions)
	if err := ctx.Err(); err != nil {
		return rec, eris.Wrapf(err, "pipeline: resolve mask for map %d", m.ID)
	}

	var next Record
	var err error
	if resolveErr != nil {
		zap.L().Warn("pipeline: mask resolution failed",
			zap.Int64("map_id", m.ID),
			zap.Error(resolveErr),
		)
		next, err = rec.WithMaskError(resolveErr)
	} else {
		next, err = rec.WithMask(res)
	}
	if err != nil {
		return rec, err
	}

	if err := t.sleep(ctx, t.opts.MaskDelay); err != nil {
		return rec, eris.Wrap(err, "pipeline: mask delay")
	}
	return next, nil
}

func (t *Transformer) clipFailed(rec Record, cause error) (Record, error) {
	m := rec.Map()
	zap.L().Warn("pipeline: geometry processing failed",
		zap.Int64("map_id", m.ID),
		zap.String("policy", t.opts.OnClipFailure),
		zap.Error(cause),
	)

	if t.opts.OnClipFailure == OnClipFailureLog {
		return rec.Logged(t.emitter.Log(m, []model.Diagnostic{{
			Kind:    model.KindClipFailed,
			Message: cause.Error(),
		}}))
	}

	envs, err := t.emitter.Map(m, nil, 0, rec.GCPs())
	if err != nil {
		return rec, err
	}
	return rec.Emitted(envs)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
