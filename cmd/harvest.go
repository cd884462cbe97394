package main

import (
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mapwarper-cli/internal/config"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Copy the catalog into the data directory",
	Long:  "Pages through layers.json and maps.json and writes layers.ndjson and maps.ndjson. Failed pages are recorded as error lines.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyFlags(cmd)
		if err := cfg.Validate(config.ModeHarvest); err != nil {
			return err
		}

		runID := uuid.NewString()
		stats, err := runHarvest(ctx, cfg, runID)
		if err != nil {
			return err
		}

		zap.L().Info("harvest complete",
			zap.String("run_id", runID),
			zap.Int("layers", stats.Layers),
			zap.Int("maps", stats.Maps),
			zap.Int("page_errors", stats.PageErrors),
			zap.Int("layer_errors", stats.LayerErrors),
		)
		return nil
	},
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("dir") {
		cfg.Data.Dir, _ = f.GetString("dir")
	}
	if f.Changed("strict") {
		cfg.Catalog.StrictPages, _ = f.GetBool("strict")
	}
	if f.Changed("include-map-layers") {
		cfg.Catalog.IncludeMapLayers, _ = f.GetBool("include-map-layers")
	}
	if f.Changed("sink") {
		cfg.Sink.Driver, _ = f.GetString("sink")
	}
	if f.Changed("no-mask") {
		noMask, _ := f.GetBool("no-mask")
		cfg.Mask.Enabled = !noMask
	}
}

func addHarvestFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("strict", false, "abort on the first failed catalog page")
	cmd.Flags().Bool("include-map-layers", false, "look up the layers of every map")
}

func addTransformFlags(cmd *cobra.Command) {
	cmd.Flags().String("sink", "", "output driver: ndjson, sqlite, postgres or shapefile")
	cmd.Flags().Bool("no-mask", false, "skip mask resolution")
}

func init() {
	rootCmd.PersistentFlags().String("dir", "", "data directory (overrides data.dir)")
	addHarvestFlags(harvestCmd)
	rootCmd.AddCommand(harvestCmd)
}
