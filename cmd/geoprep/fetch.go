package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest-guardian/geoprep/internal/aoi"
	"github.com/forest-guardian/geoprep/internal/properties"
	"github.com/forest-guardian/geoprep/internal/sentinel"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newFetchCmd() *cobra.Command {
	var (
		aoiPath    string
		idProperty string
		feature    string
		from, to   string
		interval   int
		bands      string
		resolution float64
		outDir     string
	)
	cmd := &cobra.Command{
		Use:   "fetch [flags]",
		Short: "Download Sentinel-2 scenes for an area from the Copernicus Process API",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := time.Parse(time.DateOnly, from)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			end, err := time.Parse(time.DateOnly, to)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			if end.Before(start) {
				return fmt.Errorf("--to is before --from")
			}

			a, err := aoi.LoadFile(aoiPath, idProperty)
			if err != nil {
				return err
			}
			geom := a.Geometry()
			prefix := strings.TrimSuffix(filepath.Base(aoiPath), filepath.Ext(aoiPath))
			if feature != "" {
				f, err := a.ByID(feature)
				if err != nil {
					return err
				}
				geom = f.Geometry
				prefix = prefix + "_" + feature
			}

			creds, err := sentinel.ParseCredentials(properties.CopernicusClientIDs(), properties.CopernicusClientSecrets())
			if err != nil {
				return err
			}
			client := sentinel.NewClient(creds)
			client.Retries = properties.CopernicusRetries()
			if u := properties.CopernicusTokenURL(); u != "" {
				client.TokenURL = u
			}
			if u := properties.CopernicusProcessURL(); u != "" {
				client.ProcessURL = u
			}

			dir := outDir
			if dir == "" {
				dir = filepath.Join(properties.ImagesDir(), prefix)
			}
			scenes, err := sentinel.Download(cmd.Context(), client, sentinel.DownloadOptions{
				Dir:          dir,
				Prefix:       prefix,
				From:         start,
				To:           end,
				IntervalDays: interval,
				Geometry:     geom,
				Bands:        splitList(bands),
				Resolution:   resolution,
			})
			zap.L().Info("scenes available",
				zap.String("dir", dir),
				zap.Int("count", len(scenes)))
			return err
		},
	}
	cmd.Flags().StringVar(&aoiPath, "aoi", "", "GeoJSON area of interest")
	cmd.Flags().StringVar(&idProperty, "id-property", aoi.DefaultIDProperty, "feature property holding the feature id")
	cmd.Flags().StringVar(&feature, "feature", "", "feature id to fetch (default the whole file)")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	cmd.Flags().IntVar(&interval, "interval", 1, "days between requests")
	cmd.Flags().StringVar(&bands, "bands", strings.Join(sentinel.DefaultBands, ","), "comma separated bands")
	cmd.Flags().Float64Var(&resolution, "resolution", 10, "output resolution in metres")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default IMAGES_DIR/<aoi>)")
	_ = cmd.MarkFlagRequired("aoi")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
