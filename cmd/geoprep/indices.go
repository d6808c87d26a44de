package main

import (
	"fmt"
	"os"

	"github.com/forest-guardian/geoprep/internal/gdalio"
	"github.com/forest-guardian/geoprep/internal/indices"
	"github.com/forest-guardian/geoprep/internal/mask"
	"github.com/forest-guardian/geoprep/internal/pipeline"
	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIndicesCmd() *cobra.Command {
	var (
		sensorName string
		names      string
		catalog    string
		maskType   string
		scale      bool
		outDir     string
		list       bool
	)
	cmd := &cobra.Command{
		Use:   "indices [flags] image.tif...",
		Short: "Compute spectral indices for each image",
		RunE: func(cmd *cobra.Command, args []string) error {
			sensor, err := indices.SensorByName(sensorName)
			if err != nil {
				return err
			}
			cat := indices.NewCatalog()
			if catalog != "" {
				f, err := os.Open(catalog)
				if err != nil {
					return err
				}
				err = cat.LoadYAML(f)
				f.Close()
				if err != nil {
					return err
				}
			}
			if list {
				for _, name := range cat.Supported(sensor) {
					idx, _ := cat.Get(name)
					fmt.Printf("%-10s %s\n", idx.Name, idx.Description)
				}
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("no input images")
			}
			requested := splitList(names)
			if len(requested) == 0 {
				return fmt.Errorf("no index requested")
			}
			maskFn, err := pipeline.MaskFunc(pipeline.MaskConfig{Type: maskType}, sensor, scale)
			if err != nil {
				return err
			}
			if err := ensureDir(outDir); err != nil {
				return err
			}

			calc := indices.NewCalculator(sensor, cat)
			calc.Scale = scale
			failed := 0
			for _, path := range args {
				out := outputPath(outDir, path, "_indices")
				if err := computeFile(calc, maskFn, path, out, requested); err != nil {
					zap.L().Error("failed to compute indices", zap.String("path", path), zap.Error(err))
					failed++
					continue
				}
				zap.L().Info("indices written", zap.String("path", out))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sensorName, "sensor", indices.Sentinel2.Name, "sensor band mapping")
	cmd.Flags().StringVarP(&names, "index", "i", "NDVI", "comma separated index names")
	cmd.Flags().StringVar(&catalog, "catalog", "", "YAML file with custom index expressions")
	cmd.Flags().StringVar(&maskType, "mask", "none", "none, sentinel2, scl, landsat or modis")
	cmd.Flags().BoolVar(&scale, "scale", false, "convert digital numbers to reflectance first")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().BoolVar(&list, "list", false, "list the indices available for the sensor and exit")
	return cmd
}

func computeFile(calc *indices.Calculator, maskFn func(*raster.Image) (mask.Mask, error), path, out string, names []string) error {
	img, err := gdalio.Read(path, gdalio.ReadOptions{})
	if err != nil {
		return err
	}
	if maskFn != nil {
		m, err := maskFn(img)
		if err != nil {
			return err
		}
		if err := mask.Apply(img, m); err != nil {
			return err
		}
	}
	res, err := calc.Compute(img, names...)
	if err != nil {
		return err
	}
	return gdalio.Write(out, res)
}
