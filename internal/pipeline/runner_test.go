package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forest-guardian/geoprep/internal/indices"
	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

var ref = raster.Georef{Width: 2, Height: 2, Transform: raster.GeoTransform{0, 10, 0, 20, 0, -10}}

type memLoader map[string]*raster.Image

func (m memLoader) Load(_ context.Context, path string) (*raster.Image, error) {
	img, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	return img.Clone(), nil
}

// textEncoder writes the image width and every value of every band.
type textEncoder struct{}

func (textEncoder) Extension() string   { return ".txt" }
func (textEncoder) ContentType() string { return "text/plain" }

func (textEncoder) Encode(w io.Writer, img *raster.Image) error {
	fmt.Fprintf(w, "w=%d\n", img.Width)
	for _, name := range img.BandNames() {
		g, _ := img.Band(name)
		if _, err := fmt.Fprintf(w, "%s=%v\n", name, g.Data); err != nil {
			return err
		}
	}
	return nil
}

func scene(t *testing.T, red, nir, scl []float64) *raster.Image {
	t.Helper()
	img := raster.NewImage(ref, time.Time{})
	require.NoError(t, img.AddBand("B04", red))
	require.NoError(t, img.AddBand("B08", nir))
	require.NoError(t, img.AddBand("SCL", scl))
	return img
}

func loader(t *testing.T) memLoader {
	return memLoader{
		"a.tif": scene(t, []float64{1, 1, 1, 1}, []float64{3, 3, 3, 3}, []float64{4, 4, 9, 4}),
		"b.tif": scene(t, []float64{1, 1, 1, 1}, []float64{4, 4, 4, 4}, []float64{4, 4, 4, 4}),
	}
}

func read(t *testing.T, ctx context.Context, r *Runner, key string) string {
	t.Helper()
	data, err := r.Bucket.ReadAll(ctx, key)
	require.NoError(t, err)
	return string(data)
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	points := filepath.Join(dir, "points.csv")
	require.NoError(t, os.WriteFile(points, []byte("id,x,y\np1,5,15\np2,500,500\n"), 0o644))

	r := &Runner{Loader: loader(t), Encoder: textEncoder{}, Bucket: memblob.OpenBucket(nil), Quiet: true}
	defer r.Bucket.Close()

	cfg := &Config{
		Inputs: Inputs{Files: []InputFile{
			{Path: "b.tif", Date: "2024-06-11"},
			{Path: "a.tif", Date: "2024-06-01"},
			{Path: "missing.tif", Date: "2024-06-21"},
		}},
		Indices: []string{"NDVI"},
		Mask:    MaskConfig{Type: "scl"},
		GapFill: GapFillConfig{Temporal: true, Edge: "nearest"},
		Export:  ExportConfig{Prefix: "out"},
		Extract: ExtractConfig{Points: points, Output: "plots"},
	}
	report, err := r.Run(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Inputs)
	assert.Equal(t, 2, report.Loaded)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, os.ErrNotExist)
	assert.Error(t, report.Err())

	assert.Equal(t, 1, report.TemporalFilled)
	assert.Equal(t, 2, report.Images)
	assert.Equal(t, []string{"out/2024-06-01.txt", "out/2024-06-11.txt"}, report.Export.Exported)
	assert.Equal(t, "w=2\nNDVI=[0.5 0.5 0.6 0.5]\n", read(t, ctx, r, "out/2024-06-01.txt"))

	assert.Equal(t, []string{"out/plots_points.csv"}, report.Tables)
	table := read(t, ctx, r, "out/plots_points.csv")
	assert.Contains(t, table, "id,date,band,x,y,value,lon,lat\n")
	assert.Contains(t, table, "p1,2024-06-01,NDVI,5,15,0.5,5,15\n")
	assert.NotContains(t, table, "p2")
}

func TestRunClipsToAOI(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	geojson := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"plot_id":"west"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,20],[0,20],[0,0]]]}},
		{"type":"Feature","properties":{"plot_id":"east"},"geometry":{"type":"Polygon","coordinates":[[[10,0],[20,0],[20,20],[10,20],[10,0]]]}}
	]}`
	aoiPath := filepath.Join(dir, "plots.geojson")
	require.NoError(t, os.WriteFile(aoiPath, []byte(geojson), 0o644))

	var projected []string
	r := &Runner{
		Loader:  loader(t),
		Encoder: textEncoder{},
		Bucket:  memblob.OpenBucket(nil),
		Project: func(g orb.Geometry, projection string) (orb.Geometry, error) {
			projected = append(projected, projection)
			return g, nil
		},
		Quiet: true,
	}
	defer r.Bucket.Close()

	cfg := &Config{
		Inputs: Inputs{Files: []InputFile{{Path: "a.tif", Date: "2024-06-01"}, {Path: "b.tif", Date: "2024-06-11"}}},
		AOI:    AOIConfig{Path: aoiPath, Feature: "east"},
	}
	report, err := r.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Len(t, projected, 1, "the aoi is projected once per projection")
	assert.Equal(t, 2, report.Images)
	assert.Contains(t, read(t, ctx, r, "2024-06-01.txt"), "w=1\nB04=[1 1]\n")
}

func TestRunMaskOnly(t *testing.T) {
	r := &Runner{Loader: loader(t), Encoder: textEncoder{}, Bucket: memblob.OpenBucket(nil), Quiet: true}
	defer r.Bucket.Close()

	cfg := &Config{
		Inputs: Inputs{Files: []InputFile{{Path: "a.tif", Date: "2024-06-01"}}},
		Mask:   MaskConfig{Type: "scl"},
	}
	_, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	out := read(t, context.Background(), r, "2024-06-01.txt")
	assert.Contains(t, out, "B08=[3 3 NaN 3]")
}

func TestRunFilter(t *testing.T) {
	r := &Runner{Loader: loader(t), Encoder: textEncoder{}, Bucket: memblob.OpenBucket(nil), Quiet: true}
	defer r.Bucket.Close()

	cfg := &Config{
		Inputs:  Inputs{Files: []InputFile{{Path: "a.tif", Date: "2024-06-01"}, {Path: "b.tif", Date: "2024-06-11"}}},
		Indices: []string{"NDVI"},
		Filter:  []FilterConfig{{Band: "NDVI", Min: bound(0.55)}},
	}
	report, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	assert.Contains(t, read(t, context.Background(), r, "2024-06-01.txt"), "NDVI=[NaN NaN NaN NaN]")
	assert.Contains(t, read(t, context.Background(), r, "2024-06-11.txt"), "NDVI=[0.6 0.6 0.6 0.6]")

	t.Run("unknown band", func(t *testing.T) {
		cfg.Filter = []FilterConfig{{Band: "EVI", Max: bound(1)}}
		report, err := r.Run(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrNoImages)
		assert.Len(t, report.Failures, 2)
	})
}

func TestRunLocatesPoints(t *testing.T) {
	dir := t.TempDir()
	points := filepath.Join(dir, "points.csv")
	require.NoError(t, os.WriteFile(points, []byte("id,x,y\np1,5,15\n"), 0o644))

	locate := func(_ raster.Georef, x, y int) (float64, float64, error) {
		return 10 + float64(x), 50 + float64(y), nil
	}
	r := &Runner{Loader: loader(t), Encoder: textEncoder{}, Bucket: memblob.OpenBucket(nil), Locate: locate, Quiet: true}
	defer r.Bucket.Close()

	cfg := &Config{
		Inputs:  Inputs{Files: []InputFile{{Path: "a.tif", Date: "2024-06-01"}}},
		Indices: []string{"NDVI"},
		Extract: ExtractConfig{Points: points, Output: "plots"},
	}
	_, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Contains(t, read(t, context.Background(), r, "plots_points.csv"), "p1,2024-06-01,NDVI,5,15,0.5,10,50\n")
}

func TestRunComposite(t *testing.T) {
	r := &Runner{Loader: loader(t), Encoder: textEncoder{}, Bucket: memblob.OpenBucket(nil), Quiet: true}
	defer r.Bucket.Close()

	cfg := &Config{
		Inputs:    Inputs{Files: []InputFile{{Path: "a.tif", Date: "2024-06-01"}, {Path: "b.tif", Date: "2024-06-11"}}},
		Indices:   []string{"NDVI"},
		Composite: CompositeConfig{Period: "monthly", Reducer: "max"},
	}
	report, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-01.txt"}, report.Export.Exported)
	assert.Contains(t, read(t, context.Background(), r, "2024-06-01.txt"), "NDVI=[0.6 0.6 0.6 0.6]")
}

func TestRunNothingLoaded(t *testing.T) {
	r := &Runner{Loader: memLoader{}, Quiet: true}
	cfg := &Config{Inputs: Inputs{Files: []InputFile{{Path: "a.tif", Date: "2024-06-01"}}}}
	report, err := r.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNoImages)
	assert.Len(t, report.Failures, 1)
}

func TestRunWithoutEncoder(t *testing.T) {
	r := &Runner{Loader: loader(t), Bucket: memblob.OpenBucket(nil), Quiet: true}
	defer r.Bucket.Close()
	cfg := &Config{Inputs: Inputs{Files: []InputFile{{Path: "a.tif", Date: "2024-06-01"}}}}
	_, err := r.Run(context.Background(), cfg)
	assert.ErrorContains(t, err, "encoder")
}

func TestMaskBuilder(t *testing.T) {
	img := raster.NewImage(ref, time.Time{})
	require.NoError(t, img.AddBand("QA_PIXEL", []float64{0, 1 << 3, 1 << 5, 0}))

	fn, err := MaskFunc(MaskConfig{Type: "landsat"}, indices.Landsat89, false)
	require.NoError(t, err)
	m, err := fn(img)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true}, []bool(m))

	fn, err = MaskFunc(MaskConfig{Type: "modis"}, indices.Landsat89, false)
	require.NoError(t, err)
	_, err = fn(img)
	assert.ErrorIs(t, err, raster.ErrBandNotFound)

	fn, err = MaskFunc(MaskConfig{}, indices.Landsat89, false)
	require.NoError(t, err)
	assert.Nil(t, fn)

	_, err = MaskFunc(MaskConfig{Type: "fog"}, indices.Landsat89, false)
	assert.Error(t, err)
}

func TestWriteTableLocal(t *testing.T) {
	name := filepath.Join(t.TempDir(), "t.csv")
	got, err := writeTable(context.Background(), nil, name, []struct {
		V float64 `csv:"v"`
	}{{V: math.Pi}})
	require.NoError(t, err)
	assert.Equal(t, name, got)
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "v\n3.14")

	_, err = writeTable(context.Background(), nil, filepath.Join(t.TempDir(), "no", "dir.csv"), []struct{}{})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
