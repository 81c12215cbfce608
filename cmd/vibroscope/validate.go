package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vibroscope/internal/config"
	"vibroscope/internal/engine"
)

func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a config file and its calibration without starting anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			p, err := engine.NewProfile(cfg.Calibration)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: window_size=%d region_size=%d stat_mode=%s metric=%s masks=%d\n",
				p.WindowSize, p.RegionSize, p.Mode(), p.Metric, p.Mask.Len())
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "vibroscope.yaml", "config file (YAML or JSON)")
	return cmd
}
