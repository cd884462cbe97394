package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/mapwarper-cli/internal/config"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the mask toolchain is installed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(config.ModeProbe); err != nil {
			return err
		}

		c := *cfg
		c.Mask.Enabled = true
		if err := newResolver(&c, newFetcher(&c)).Probe(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", c.Mask.GDALTransformPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
