package main

import (
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mapwarper-cli/internal/config"
	"github.com/sells-group/mapwarper-cli/internal/pipeline"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Validate harvested maps and write objects, relations and logs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyFlags(cmd)
		if err := cfg.Validate(config.ModeTransform); err != nil {
			return err
		}

		runID := uuid.NewString()
		stats, err := runTransform(ctx, cfg, runID)
		if err != nil {
			return err
		}
		logTransformStats(runID, stats)
		return nil
	},
}

func logTransformStats(runID string, stats pipeline.Stats) {
	zap.L().Info("transform complete",
		zap.String("run_id", runID),
		zap.Int("read", stats.Read),
		zap.Int("filtered", stats.Filtered),
		zap.Int("emitted", stats.Emitted),
		zap.Int("logged", stats.Logged),
		zap.Int("relations", stats.Relations),
		zap.Int("layers", stats.Layers),
		zap.Int("mask_failed", stats.MaskFailed),
		zap.Int("page_errors", stats.PageErrors),
	)
}

func init() {
	addTransformFlags(transformCmd)
	rootCmd.AddCommand(transformCmd)
}
