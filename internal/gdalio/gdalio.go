// Package gdalio moves rasters between GDAL datasets and raster.Image. It is
// the only package that needs cgo and a GDAL installation.
package gdalio

import (
	"fmt"
	"math"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/geoprep/internal/raster"
)

const dateKey = "ACQUISITION_DATE"

// RegisterAll registers the GDAL drivers. Call once at startup.
func RegisterAll() {
	godal.RegisterAll()
}

// quiet drops GDAL warnings and turns anything worse into an error.
var quiet = godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
	if ec <= godal.CE_Warning {
		return nil
	}
	return fmt.Errorf("gdal error %d: %s", code, msg)
})

type ReadOptions struct {
	// Bands names the dataset bands in order, overriding band descriptions.
	Bands []string
	// Date overrides the acquisition date stored in the dataset metadata.
	Date time.Time
}

// Read loads every band of path as float64, with nodata mapped to NaN.
func Read(path string, opts ReadOptions) (*raster.Image, error) {
	ds, err := godal.Open(path, quiet)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	ref, err := georef(ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	date := opts.Date
	if date.IsZero() {
		if v := ds.Metadata(dateKey); v != "" {
			date, _ = time.Parse(time.DateOnly, v)
		}
	}

	img := raster.NewImage(ref, date)
	bands := ds.Bands()
	if len(opts.Bands) > 0 && len(opts.Bands) != len(bands) {
		return nil, fmt.Errorf("%s has %d bands, %d names given", path, len(bands), len(opts.Bands))
	}
	for i, band := range bands {
		data := make([]float64, ref.Size())
		if err := band.Read(0, 0, data, ref.Width, ref.Height, quiet); err != nil {
			return nil, fmt.Errorf("failed to read band %d of %s: %w", i+1, path, err)
		}
		if nodata, ok := band.NoData(); ok && !math.IsNaN(nodata) {
			for p, v := range data {
				if v == nodata {
					data[p] = math.NaN()
				}
			}
		}
		if err := img.AddBand(bandName(band, opts.Bands, i), data); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func bandName(band godal.Band, names []string, i int) string {
	if len(names) > 0 {
		return names[i]
	}
	if d := band.Description(); d != "" {
		return d
	}
	return fmt.Sprintf("b%d", i+1)
}

func georef(ds *godal.Dataset) (raster.Georef, error) {
	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return raster.Georef{}, fmt.Errorf("failed to get GeoTransform: %w", err)
	}
	ref := raster.Georef{
		Width:      st.SizeX,
		Height:     st.SizeY,
		Transform:  raster.GeoTransform(gt),
		Projection: ds.Projection(),
	}
	if sr := ds.SpatialRef(); sr != nil {
		ref.Geographic = sr.Geographic()
		sr.Close()
	}
	return ref, nil
}

// Write stores img as a tiled, deflate-compressed Float32 GeoTIFF with NaN
// as nodata and band names as descriptions.
func Write(path string, img *raster.Image) error {
	names := img.BandNames()
	if len(names) == 0 {
		return fmt.Errorf("image has no bands")
	}
	ds, err := godal.Create(godal.GTiff, path, len(names), godal.Float32, img.Width, img.Height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE", "PREDICTOR=3", "BIGTIFF=IF_SAFER"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fill(ds, img, names); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return ds.Close()
}

func fill(ds *godal.Dataset, img *raster.Image, names []string) error {
	if err := ds.SetGeoTransform([6]float64(img.Transform)); err != nil {
		return err
	}
	if img.Projection != "" {
		if err := ds.SetProjection(img.Projection); err != nil {
			return err
		}
	}
	if !img.Date.IsZero() {
		if err := ds.SetMetadata(dateKey, img.Date.Format(time.DateOnly)); err != nil {
			return err
		}
	}
	buf := make([]float32, img.Size())
	for i, band := range ds.Bands() {
		g, err := img.Band(names[i])
		if err != nil {
			return err
		}
		for p, v := range g.Data {
			buf[p] = float32(v)
		}
		if err := band.SetNoData(math.NaN()); err != nil {
			return err
		}
		if err := band.SetDescription(names[i]); err != nil {
			return err
		}
		if err := band.Write(0, 0, buf, img.Width, img.Height); err != nil {
			return err
		}
	}
	return nil
}
