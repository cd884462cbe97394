package main

import (
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mapwarper-cli/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest the catalog, then transform it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyFlags(cmd)
		if err := cfg.Validate(config.ModeRun); err != nil {
			return err
		}

		runID := uuid.NewString()
		if cfg.Mask.Enabled {
			// Fail before the harvest if masks cannot be resolved.
			if err := newResolver(cfg, newFetcher(cfg)).Probe(ctx); err != nil {
				return err
			}
		}

		hs, err := runHarvest(ctx, cfg, runID)
		if err != nil {
			return err
		}
		zap.L().Info("harvest complete",
			zap.String("run_id", runID),
			zap.Int("maps", hs.Maps),
			zap.Int("page_errors", hs.PageErrors),
		)

		stats, err := runTransform(ctx, cfg, runID)
		if err != nil {
			return err
		}
		logTransformStats(runID, stats)
		return nil
	},
}

func init() {
	addHarvestFlags(runCmd)
	addTransformFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
