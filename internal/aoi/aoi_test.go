package aoi

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const farm = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"plot_id": 7, "farm": "north"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]}
    },
    {
      "type": "Feature",
      "id": "b",
      "properties": {},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[4,4],[5,4],[5,6],[4,6],[4,4]]]]}
    }
  ]
}`

func TestLoad(t *testing.T) {
	a, err := Load(strings.NewReader(farm), "")
	require.NoError(t, err)
	require.Len(t, a.Features, 2)
	assert.Equal(t, "7", a.Features[0].ID)
	assert.Equal(t, "b", a.Features[1].ID)

	f, err := a.ByID("7")
	require.NoError(t, err)
	assert.Equal(t, "north", f.Properties["farm"])
	assert.InDelta(t, 1.0, f.Centroid().X(), 1e-12)
	assert.InDelta(t, 1.0, f.Centroid().Y(), 1e-12)

	_, err = a.ByID("missing")
	assert.ErrorIs(t, err, ErrFeatureNotFound)

	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{5, 6}}, a.Bound())
	mp, ok := a.Geometry().(orb.MultiPolygon)
	require.True(t, ok)
	assert.Len(t, mp, 2)

	t.Run("custom id property", func(t *testing.T) {
		a, err := Load(strings.NewReader(farm), "farm")
		require.NoError(t, err)
		assert.Equal(t, "north", a.Features[0].ID)
	})
}

func TestLoadSingleGeometry(t *testing.T) {
	a, err := Load(strings.NewReader(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`), "")
	require.NoError(t, err)
	require.Len(t, a.Features, 1)
	assert.Equal(t, "0", a.Features[0].ID)

	_, err = Load(strings.NewReader(`{"type":"Point","coordinates":[0,0]}`), "")
	assert.Error(t, err)

	_, err = Load(strings.NewReader(`not json`), "")
	assert.Error(t, err)
}

func TestLoadNullGeometry(t *testing.T) {
	for name, doc := range map[string]string{
		"collection": `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"plot_id":"a"},"geometry":null}]}`,
		"feature":    `{"type":"Feature","properties":{"plot_id":"a"},"geometry":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc), "")
			assert.ErrorContains(t, err, "feature 0 has no geometry")
		})
	}
}

// image builds a 10x10 one-metre raster with its upper-left corner at (0, 10).
func image(t *testing.T) *raster.Image {
	t.Helper()
	ref := raster.Georef{Width: 10, Height: 10, Transform: raster.GeoTransform{0, 1, 0, 10, 0, -1}}
	img := raster.NewImage(ref, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	data := make([]float64, ref.Size())
	for i := range data {
		data[i] = float64(i)
	}
	require.NoError(t, img.AddBand("B04", data))
	return img
}

func TestClip(t *testing.T) {
	img := image(t)
	triangle := orb.Polygon{{{2, 2}, {6.2, 2}, {2, 6.2}, {2, 2}}}

	out, err := Clip(img, triangle, ClipOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, out.Width)
	assert.Equal(t, 5, out.Height)
	assert.Equal(t, raster.GeoTransform{2, 1, 0, 7, 0, -1}, out.Transform)
	assert.Equal(t, 10, out.ValidCount())
	assert.Equal(t, img.Date, out.Date)

	red, err := out.Band("B04")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(red.At(0, 0)))
	assert.Equal(t, float64(4*10+2), red.At(0, 1))

	orig, _ := img.Band("B04")
	assert.Equal(t, 0.0, orig.At(0, 0), "input untouched")

	t.Run("crop only", func(t *testing.T) {
		out, err := Clip(img, triangle, ClipOptions{CropOnly: true})
		require.NoError(t, err)
		assert.Equal(t, 25, out.ValidCount())
	})

	t.Run("partly outside", func(t *testing.T) {
		square := orb.Polygon{{{-5, -5}, {3, -5}, {3, 3}, {-5, 3}, {-5, -5}}}
		out, err := Clip(img, square, ClipOptions{})
		require.NoError(t, err)
		assert.Equal(t, 3, out.Width)
		assert.Equal(t, 3, out.Height)
		assert.Equal(t, 9, out.ValidCount())
	})

	t.Run("outside", func(t *testing.T) {
		_, err := Clip(img, orb.Bound{Min: orb.Point{20, 20}, Max: orb.Point{21, 21}}, ClipOptions{})
		assert.ErrorIs(t, err, ErrOutside)
	})

	t.Run("grid", func(t *testing.T) {
		g, err := ClipGrid(orig, triangle, ClipOptions{})
		require.NoError(t, err)
		assert.Equal(t, 10, g.ValidCount())
	})
}
