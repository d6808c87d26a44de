package main

import (
	"fmt"
	"time"

	"github.com/forest-guardian/geoprep/internal/gapfill"
	"github.com/forest-guardian/geoprep/internal/gdalio"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newGapFillCmd() *cobra.Command {
	var (
		dates      dateFlags
		bands      string
		maxGapDays int
		edge       string
		spatial    bool
		maxHole    int
		smooth     int
		outDir     string
	)
	cmd := &cobra.Command{
		Use:   "gapfill [flags] image.tif...",
		Short: "Fill missing pixels of a dated series in time and space",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			topts := gapfill.TemporalOptions{MaxGap: time.Duration(maxGapDays) * 24 * time.Hour}
			switch edge {
			case "leave":
			case "nearest":
				topts.Edge = gapfill.EdgeNearest
			default:
				return fmt.Errorf("unknown edge mode %q", edge)
			}

			files, err := dates.resolve(args)
			if err != nil {
				return err
			}
			s, err := readStack(files, nil)
			if err != nil {
				return err
			}

			selected := splitList(bands)
			if len(selected) == 0 {
				selected = s.BandNames()
			}
			var temporal, spatialFilled int
			for _, band := range selected {
				series, err := s.Series(band)
				if err != nil {
					return err
				}
				series, n, err := gapfill.Temporal(series, topts)
				if err != nil {
					return fmt.Errorf("band %s: %w", band, err)
				}
				temporal += n
				if spatial {
					for i := range series {
						g, n := gapfill.Spatial(series[i].Grid, gapfill.SpatialOptions{MaxHoleSize: maxHole})
						series[i].Grid = g
						spatialFilled += n
					}
				}
				if smooth > 1 {
					smoothSeries(series, smooth)
				}
				if err := s.SetSeries(band, series); err != nil {
					return err
				}
			}

			if err := ensureDir(outDir); err != nil {
				return err
			}
			paths := make(map[time.Time]string, len(files))
			for _, f := range files {
				paths[f.Date] = f.Path
			}
			for _, img := range s.Images() {
				out := outputPath(outDir, paths[img.Date], "_filled")
				if err := gdalio.Write(out, img); err != nil {
					return err
				}
			}
			zap.L().Info("gap fill finished",
				zap.Int("images", s.Len()),
				zap.Int("temporal", temporal),
				zap.Int("spatial", spatialFilled))
			return nil
		},
	}
	dates.register(cmd)
	cmd.Flags().StringVar(&bands, "bands", "", "comma separated bands to fill (default all)")
	cmd.Flags().IntVar(&maxGapDays, "max-gap-days", 0, "largest distance to an interpolation neighbour (0 unbounded)")
	cmd.Flags().StringVar(&edge, "edge", "leave", "leave or nearest, for gaps at the series ends")
	cmd.Flags().BoolVar(&spatial, "spatial", false, "fill remaining holes from neighbouring pixels")
	cmd.Flags().IntVar(&maxHole, "max-hole", 0, "largest hole filled spatially, in pixels (0 any)")
	cmd.Flags().IntVar(&smooth, "smooth", 0, "moving average window applied per pixel after filling")
	cmd.Flags().StringVarP(&outDir, "out", "o", "filled", "output directory")
	return cmd
}

// smoothSeries applies a moving average along time to every pixel.
func smoothSeries(series []gapfill.Observation, window int) {
	if len(series) == 0 {
		return
	}
	values := make([]float64, len(series))
	for p := range series[0].Grid.Data {
		for i, o := range series {
			values[i] = o.Grid.Data[p]
		}
		for i, v := range gapfill.Smooth(values, window) {
			series[i].Grid.Data[p] = v
		}
	}
}
