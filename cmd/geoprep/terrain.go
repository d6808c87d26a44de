package main

import (
	"github.com/forest-guardian/geoprep/internal/gdalio"
	"github.com/forest-guardian/geoprep/internal/terrain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTerrainCmd() *cobra.Command {
	var (
		metrics string
		band    string
		opts    terrain.Options
		out     string
	)
	cmd := &cobra.Command{
		Use:   "terrain [flags] dem.tif",
		Short: "Derive slope, aspect, hillshade and roughness metrics from a DEM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var selected []terrain.Metric
			for _, name := range splitList(metrics) {
				m, err := terrain.ParseMetric(name)
				if err != nil {
					return err
				}
				selected = append(selected, m)
			}

			img, err := gdalio.Read(args[0], gdalio.ReadOptions{})
			if err != nil {
				return err
			}
			name := band
			if name == "" {
				name = img.BandNames()[0]
			}
			dem, err := img.Band(name)
			if err != nil {
				return err
			}
			res, err := terrain.Compute(dem, opts, selected...)
			if err != nil {
				return err
			}
			if err := gdalio.Write(out, res); err != nil {
				return err
			}
			zap.L().Info("terrain metrics written",
				zap.String("path", out),
				zap.Strings("bands", res.BandNames()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&metrics, "metrics", "m", "", "comma separated metrics (default all)")
	cmd.Flags().StringVar(&band, "band", "", "elevation band (default the first band)")
	cmd.Flags().Float64Var(&opts.ZFactor, "z-factor", 1, "elevation multiplier")
	cmd.Flags().Float64Var(&opts.SunAzimuth, "azimuth", 315, "hillshade sun azimuth in degrees")
	cmd.Flags().Float64Var(&opts.SunAltitude, "altitude", 45, "hillshade sun altitude in degrees")
	cmd.Flags().StringVarP(&out, "out", "o", "terrain.tif", "output GeoTIFF")
	return cmd
}
