package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapwarper-cli/internal/catalog"
	"github.com/sells-group/mapwarper-cli/internal/model"
	"github.com/sells-group/mapwarper-cli/internal/ndjson"
)

// Intermediate files written by the harvest and read by the transform.
const (
	MapsFile   = "maps.ndjson"
	LayersFile = "layers.ndjson"
)

// HarvestOptions configures a Harvester.
type HarvestOptions struct {
	// Dir receives the intermediate files.
	Dir string

	// IncludeMapLayers looks up the layers of every map, so relations can be
	// emitted.
	IncludeMapLayers bool
}

// HarvestStats summarizes a harvest.
type HarvestStats struct {
	Layers      int
	Maps        int
	PageErrors  int
	LayerErrors int
}

// Counts returns the stats keyed by name.
func (s HarvestStats) Counts() map[string]int {
	return map[string]int{
		"layers":       s.Layers,
		"maps":         s.Maps,
		"page_errors":  s.PageErrors,
		"layer_errors": s.LayerErrors,
	}
}

// Harvester copies the catalog into the intermediate files.
type Harvester struct {
	client *catalog.Client
	opts   HarvestOptions
}

// NewHarvester creates a Harvester.
func NewHarvester(client *catalog.Client, opts HarvestOptions) *Harvester {
	return &Harvester{client: client, opts: opts}
}

// Run writes layers.ndjson, then maps.ndjson. Failed pages are written as
// error lines. The returned error is non-nil only for failures that make the
// harvest meaningless: the catalog size cannot be determined, a page fails
// in strict mode, the context ends, or a file cannot be written.
func (h *Harvester) Run(ctx context.Context) (HarvestStats, error) {
	log := zap.L().With(zap.String("component", "pipeline.harvest"))

	var stats HarvestStats
	if err := os.MkdirAll(h.opts.Dir, 0o755); err != nil {
		return stats, eris.Wrapf(err, "pipeline: create %s", h.opts.Dir)
	}

	if err := h.harvestLayers(ctx, &stats); err != nil {
		return stats, err
	}
	log.Info("pipeline: layers harvested",
		zap.Int("layers", stats.Layers),
		zap.Int("page_errors", stats.PageErrors),
	)

	if err := h.harvestMaps(ctx, &stats); err != nil {
		return stats, err
	}
	log.Info("pipeline: maps harvested",
		zap.Int("maps", stats.Maps),
		zap.Int("page_errors", stats.PageErrors),
		zap.Int("layer_errors", stats.LayerErrors),
	)
	return stats, nil
}

func (h *Harvester) harvestLayers(ctx context.Context, stats *HarvestStats) (err error) {
	w, err := ndjson.Create(filepath.Join(h.opts.Dir, LayersFile))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, w.Close()) }()

	layers, pageErrs := h.client.Layers(ctx, 0)
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "pipeline: harvest layers")
	}

	for _, l := range layers {
		if err := writeLine(w, model.LineLayer, l); err != nil {
			return err
		}
		stats.Layers++
	}
	for _, pe := range pageErrs {
		if err := writeLine(w, model.LineError, pe); err != nil {
			return err
		}
		stats.PageErrors++
	}
	return nil
}

func (h *Harvester) harvestMaps(ctx context.Context, stats *HarvestStats) (err error) {
	w, err := ndjson.Create(filepath.Join(h.opts.Dir, MapsFile))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, w.Close()) }()

	for page, err := range h.client.Maps(ctx) {
		if err != nil {
			return err
		}

		if page.Err != nil {
			if err := writeLine(w, model.LineError, page.PageError()); err != nil {
				return err
			}
			stats.PageErrors++
			continue
		}

		for _, m := range page.Maps {
			if h.opts.IncludeMapLayers {
				m = h.withLayers(ctx, m)
				stats.LayerErrors += len(m.LayerErrors)
			}
			if err := writeLine(w, model.LineMap, m); err != nil {
				return err
			}
			stats.Maps++
		}
	}
	return nil
}

// withLayers annotates m with the ids of the layers it belongs to.
func (h *Harvester) withLayers(ctx context.Context, m model.MapRecord) model.MapRecord {
	layers, errs := h.client.Layers(ctx, m.ID)
	m.LayerIDs = make([]int64, 0, len(layers))
	for _, l := range layers {
		m.LayerIDs = append(m.LayerIDs, l.ID)
	}
	m.LayerErrors = errs
	return m
}

func writeLine(w *ndjson.Writer, t model.LineType, v any) error {
	line, err := model.NewLine(t, v)
	if err != nil {
		return err
	}
	return w.Write(line)
}
