package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapwarper-cli/internal/catalog"
	"github.com/sells-group/mapwarper-cli/internal/config"
	"github.com/sells-group/mapwarper-cli/internal/emit"
	"github.com/sells-group/mapwarper-cli/internal/fetcher"
	"github.com/sells-group/mapwarper-cli/internal/geometry"
	"github.com/sells-group/mapwarper-cli/internal/mask"
	"github.com/sells-group/mapwarper-cli/internal/metrics"
	"github.com/sells-group/mapwarper-cli/internal/model"
	"github.com/sells-group/mapwarper-cli/internal/pipeline"
	"github.com/sells-group/mapwarper-cli/internal/resilience"
	"github.com/sells-group/mapwarper-cli/internal/store"
	"github.com/sells-group/mapwarper-cli/internal/validate"
)

// newFetcher builds the shared HTTP fetcher. Per-stage delays are applied
// with WithDelay by the callers.
func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	opts := fetcher.HTTPOptions{
		UserAgent:         c.Catalog.UserAgent,
		Timeout:           c.Catalog.Timeout(),
		Retry:             retryConfig(c.Catalog),
		RequestsPerSecond: c.Catalog.RequestsPerSecond,
	}
	if c.Catalog.BreakerThreshold > 0 {
		opts.Breaker = resilience.NewBreaker(resilience.BreakerConfig{Threshold: c.Catalog.BreakerThreshold})
	}
	return fetcher.NewHTTPFetcher(opts)
}

func retryConfig(c config.CatalogConfig) resilience.RetryConfig {
	return resilience.FromRetryConfig(c.MaxAttempts, c.InitialBackoff(), c.MaxBackoff())
}

func newCatalogClient(c *config.Config, f *fetcher.HTTPFetcher) *catalog.Client {
	return catalog.NewClient(
		catalog.NewURLs(c.Catalog.BaseURL, c.Catalog.PerPage),
		catalog.ClientOptions{
			Pages:       f.WithDelay(c.Catalog.PageDelay()),
			Layers:      f.WithDelay(c.Catalog.LayerDelay()),
			StrictPages: c.Catalog.StrictPages,
		},
	)
}

// newResolver returns the GDAL resolver, or nil when masks are disabled.
func newResolver(c *config.Config, f *fetcher.HTTPFetcher) *mask.GDAL {
	if !c.Mask.Enabled {
		return nil
	}
	return mask.NewGDAL(
		f.WithDelay(0),
		catalog.NewURLs(c.Catalog.BaseURL, c.Catalog.PerPage),
		mask.GDALOptions{
			BinPath:         c.Mask.GDALTransformPath,
			MaskURLTemplate: c.Mask.MaskURLTemplate,
			GCPsURLTemplate: c.Mask.GCPsURLTemplate,
		},
	)
}

// loadRules reads the rules file when one is configured, otherwise applies
// the inline overrides to the defaults.
func loadRules(c config.ValidateConfig) (validate.Rules, error) {
	if c.RulesFile != "" {
		return validate.LoadRules(c.RulesFile)
	}

	rules := validate.DefaultRules()
	for _, k := range c.Disabled {
		rules.Disabled = append(rules.Disabled, model.DiagnosticKind(k))
	}
	if len(c.WarpedStatuses) > 0 {
		rules.WarpedStatuses = c.WarpedStatuses
	}
	if len(c.UnmaskedWarnStatuses) > 0 {
		rules.UnmaskedWarnStatuses = c.UnmaskedWarnStatuses
	}
	if err := rules.Check(); err != nil {
		return validate.Rules{}, eris.Wrap(err, "validate config")
	}
	return rules, nil
}

func geometryOptions(c config.GeometryConfig) geometry.Options {
	opts := geometry.DefaultOptions()
	opts.Clip = c.Clip
	if c.ClipTolerance > 0 {
		opts.ClipTolerance = c.ClipTolerance
	}
	opts.AreaDecimals = c.AreaDecimals
	opts.CoordinatePrecision = c.CoordinatePrecision
	return opts
}

func emitTemplates(c config.EmitConfig) emit.Templates {
	return emit.Templates{
		MapTile:   c.TileURLTemplate,
		LayerTile: c.LayerTileURLTemplate,
		Item:      c.ItemURLTemplate,
	}
}

// runHarvest copies the catalog into the data directory.
func runHarvest(ctx context.Context, c *config.Config, runID string) (pipeline.HarvestStats, error) {
	client := newCatalogClient(c, newFetcher(c))
	h := pipeline.NewHarvester(client, pipeline.HarvestOptions{
		Dir:              c.Data.Dir,
		IncludeMapLayers: c.Catalog.IncludeMapLayers,
	})

	zap.L().Info("harvest starting",
		zap.String("run_id", runID),
		zap.String("catalog", client.URLs().Base()),
		zap.Int("per_page", client.URLs().PerPage()),
	)
	started := time.Now()
	stats, err := h.Run(ctx)
	if err != nil {
		return stats, eris.Wrap(err, "harvest")
	}
	return stats, observe(c, metrics.StageHarvest, stats.Counts(), started)
}

// runTransform turns the intermediate files into output. The mask toolchain
// is probed before any record is read.
func runTransform(ctx context.Context, c *config.Config, runID string) (pipeline.Stats, error) {
	rules, err := loadRules(c.Validation)
	if err != nil {
		return pipeline.Stats{}, err
	}

	var resolver mask.Resolver
	if gdal := newResolver(c, newFetcher(c)); gdal != nil {
		if err := gdal.Probe(ctx); err != nil {
			return pipeline.Stats{}, err
		}
		resolver = gdal
	}

	sink, err := store.Open(ctx, store.Options{
		Driver:      c.Sink.Driver,
		DatabaseURL: c.Sink.DatabaseURL,
		Dir:         c.Data.Dir,
	}, runID)
	if err != nil {
		return pipeline.Stats{}, eris.Wrap(err, "open sink")
	}
	closed := false
	defer func() {
		if !closed {
			sink.Close() //nolint:errcheck
		}
	}()

	t := pipeline.NewTransformer(
		resolver,
		validate.New(rules),
		geometry.NewProcessor(geometryOptions(c.Geometry)),
		emit.New(emitTemplates(c.Emit)),
		sink,
		pipeline.TransformOptions{
			Dir:           c.Data.Dir,
			MaskEnabled:   c.Mask.Enabled,
			MaskDelay:     c.Mask.Delay(),
			OnClipFailure: c.Geometry.OnClipFailure,
		},
	)

	zap.L().Info("transform starting",
		zap.String("run_id", runID),
		zap.String("sink", c.Sink.Driver),
		zap.Bool("mask", c.Mask.Enabled),
	)
	started := time.Now()
	stats, err := t.Run(ctx)
	if err != nil {
		return stats, eris.Wrap(err, "transform")
	}

	if rec, ok := sink.(store.RunRecorder); ok {
		if err := rec.FinishRun(ctx, store.RunSummary{
			RunID:      runID,
			FinishedAt: time.Now(),
			Counts:     stats.Counts(),
		}); err != nil {
			return stats, eris.Wrap(err, "finish run")
		}
	}
	closed = true
	if err := sink.Close(); err != nil {
		return stats, eris.Wrap(err, "close sink")
	}
	return stats, observe(c, metrics.StageTransform, stats.Counts(), started)
}

var recorder *metrics.Recorder

// observe records a finished stage and rewrites the metrics textfile when
// one is configured.
func observe(c *config.Config, stage string, counts map[string]int, started time.Time) error {
	if c.Metrics.Textfile == "" {
		return nil
	}
	if recorder == nil {
		recorder = metrics.New(version)
	}
	now := time.Now()
	recorder.Observe(stage, counts, now.Sub(started), now)
	return recorder.WriteTextfile(c.Metrics.Textfile)
}
