package gdalio

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/geoprep/internal/raster"
)

// Source is a raster file whose pixels are read only when Load is called.
type Source struct {
	Path string
	Opts ReadOptions
	ref  raster.Georef
}

// OpenSource reads the georef of path without loading its pixels.
func OpenSource(path string, opts ReadOptions) (*Source, error) {
	ds, err := godal.Open(path, quiet)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()
	ref, err := georef(ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Source{Path: path, Opts: opts, ref: ref}, nil
}

func (s *Source) Name() string {
	return filepath.Base(s.Path)
}

func (s *Source) Georef() raster.Georef {
	return s.ref
}

func (s *Source) Load(ctx context.Context) (*raster.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Read(s.Path, s.Opts)
}

// Loader reads whole files, as the pipeline runner expects.
type Loader struct{}

func (Loader) Load(ctx context.Context, path string) (*raster.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Read(path, ReadOptions{})
}
