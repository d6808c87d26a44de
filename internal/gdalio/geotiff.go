package gdalio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forest-guardian/geoprep/internal/raster"
)

// GeoTIFF encodes images for export. GDAL needs a seekable file, so each
// image goes through a temporary file under Dir.
type GeoTIFF struct {
	Dir string
}

func (GeoTIFF) Extension() string   { return ".tif" }
func (GeoTIFF) ContentType() string { return "image/tiff" }

func (e GeoTIFF) Encode(w io.Writer, img *raster.Image) error {
	f, err := os.CreateTemp(e.Dir, "export-*.tif")
	if err != nil {
		return err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := Write(path, img); err != nil {
		return err
	}
	f, err = os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(path), err)
	}
	return nil
}
