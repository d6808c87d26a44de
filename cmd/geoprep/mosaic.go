package main

import (
	"github.com/forest-guardian/geoprep/internal/gdalio"
	"github.com/forest-guardian/geoprep/internal/mosaic"
	"github.com/forest-guardian/geoprep/internal/properties"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMosaicCmd() *cobra.Command {
	var (
		method      string
		bands       string
		batchSize   int
		concurrency int
		onDisk      bool
		out         string
	)
	cmd := &cobra.Command{
		Use:   "mosaic [flags] tile.tif...",
		Short: "Merge tiles into one image, batch by batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := mosaic.ParseMethod(method)
			if err != nil {
				return err
			}
			opts := mosaic.Options{
				BatchSize:   batchSize,
				Concurrency: concurrency,
				Method:      m,
				Quiet:       quiet,
			}
			if opts.BatchSize == 0 {
				opts.BatchSize = properties.BatchSize()
			}
			if onDisk {
				if err := ensureDir(properties.CacheDir()); err != nil {
					return err
				}
				store, err := gdalio.NewTempStore(properties.CacheDir())
				if err != nil {
					return err
				}
				defer store.Close()
				opts.Store = store
			}

			sources := make([]mosaic.Source, 0, len(args))
			for _, path := range args {
				src, err := gdalio.OpenSource(path, gdalio.ReadOptions{Bands: splitList(bands)})
				if err != nil {
					return err
				}
				sources = append(sources, src)
			}

			img, err := mosaic.Mosaic(cmd.Context(), sources, opts)
			if err != nil {
				return err
			}
			if err := gdalio.Write(out, img); err != nil {
				return err
			}
			zap.L().Info("mosaic written",
				zap.String("path", out),
				zap.Int("tiles", len(sources)),
				zap.Int("width", img.Width),
				zap.Int("height", img.Height))
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "method", "first", "first, last, mean, min or max")
	cmd.Flags().StringVar(&bands, "bands", "", "comma separated band names for the tiles")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "tiles merged per batch (default BATCH_SIZE)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "concurrent tile loads per batch")
	cmd.Flags().BoolVar(&onDisk, "on-disk", true, "park partial mosaics in CACHE_DIR between batches")
	cmd.Flags().StringVarP(&out, "out", "o", "mosaic.tif", "output GeoTIFF")
	return cmd
}
