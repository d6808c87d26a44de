package gdalio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/forest-guardian/geoprep/internal/raster"
)

var unsafeKey = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// TempStore parks partial mosaics as GeoTIFFs in a directory so their pixels
// leave the Go heap between batches.
type TempStore struct {
	Dir string

	mu sync.Mutex
	// GDAL may normalise the WKT it stores; Get hands back the original so
	// partials still compare equal to the mosaic projection.
	projections map[string]string
}

// NewTempStore creates a fresh directory under parent ("" for the system
// temp dir). Remove it with Close.
func NewTempStore(parent string) (*TempStore, error) {
	dir, err := os.MkdirTemp(parent, "mosaic-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create mosaic store: %w", err)
	}
	return &TempStore{Dir: dir, projections: make(map[string]string)}, nil
}

func (s *TempStore) path(key string) string {
	return filepath.Join(s.Dir, unsafeKey.ReplaceAllString(key, "_")+".tif")
}

func (s *TempStore) Put(_ context.Context, key string, img *raster.Image) error {
	if err := Write(s.path(key), img); err != nil {
		return err
	}
	s.mu.Lock()
	s.projections[key] = img.Projection
	s.mu.Unlock()
	return nil
}

func (s *TempStore) Get(_ context.Context, key string) (*raster.Image, error) {
	img, err := Read(s.path(key), ReadOptions{})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if p, ok := s.projections[key]; ok {
		img.Projection = p
	}
	s.mu.Unlock()
	return img, nil
}

func (s *TempStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.projections, key)
	s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *TempStore) Close() error {
	return os.RemoveAll(s.Dir)
}
