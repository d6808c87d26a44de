package main

import (
	"fmt"

	"github.com/forest-guardian/geoprep/internal/gdalio"
	"github.com/forest-guardian/geoprep/internal/notification"
	"github.com/forest-guardian/geoprep/internal/pipeline"
	"github.com/forest-guardian/geoprep/internal/properties"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "run [flags] pipeline.yaml",
		Short: "Run a preprocessing pipeline described in YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pipeline.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if cfg.Export.URL == "" {
				cfg.Export.URL = properties.ExportURL()
			}
			if cfg.Workers == 0 {
				cfg.Workers = properties.Workers()
			}
			if err := ensureDir(properties.CacheDir()); err != nil {
				return err
			}

			runner := &pipeline.Runner{
				Loader:  gdalio.Loader{},
				Encoder: gdalio.GeoTIFF{Dir: properties.CacheDir()},
				Project: gdalio.ProjectGeometry,
				Locate:  gdalio.ToWGS84,
				Quiet:   quiet,
			}
			report, err := runner.Run(cmd.Context(), cfg)

			discord := notification.FromEnv()
			if err != nil {
				if notify {
					if nerr := discord.Error(cmd.Context(), fmt.Sprintf("geoprep\n\nPipeline %s failed: %s", cfg.Name, err)); nerr != nil {
						zap.L().Warn("failed to send notification", zap.Error(nerr))
					}
				}
				return err
			}

			if rerr := report.Err(); rerr != nil {
				zap.L().Warn("pipeline finished with failures", zap.Error(rerr))
			}
			msg := fmt.Sprintf("geoprep\n\nPipeline %s finished: %d of %d inputs loaded, %d images, %d exported, %d tables",
				cfg.Name, report.Loaded, report.Inputs, report.Images, len(report.Export.Exported), len(report.Tables))
			fmt.Println(msg)
			if notify {
				if nerr := discord.Success(cmd.Context(), msg); nerr != nil {
					zap.L().Warn("failed to send notification", zap.Error(nerr))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", true, "send the outcome to the Discord webhooks when configured")
	return cmd
}
