package output

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = raster.Georef{Width: 2, Height: 2, Transform: raster.GeoTransform{0, 10, 0, 20, 0, -10}}

func TestRender(t *testing.T) {
	g, err := raster.GridFrom(ref, []float64{0, 1, math.NaN(), 0.5})
	require.NoError(t, err)

	img, err := Render(g, RenderOptions{
		Min:    0,
		Max:    1,
		Scale:  10,
		Points: []orb.Point{{15, 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	assert.Equal(t, color.RGBA{0, 0, 255, 255}, img.At(5, 5))
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, img.At(15, 5))
	assert.Equal(t, color.RGBA{}, img.At(5, 15), "nodata is transparent")
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, img.At(18, 18))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.At(15, 15), "point overlay")
}

func TestRenderOwnRange(t *testing.T) {
	g, _ := raster.GridFrom(raster.Georef{Width: 2, Height: 1, Transform: ref.Transform}, []float64{2, 4})
	img, err := Render(g, RenderOptions{Ramp: Greyscale})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.At(0, 0))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.At(1, 0))
}

func TestPNGEncoder(t *testing.T) {
	im := raster.NewImage(ref, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, im.AddBand("NDVI", []float64{0.1, 0.2, 0.3, 0.4}))

	var buf bytes.Buffer
	enc := PNG{Band: "NDVI", Options: RenderOptions{Scale: 4}}
	require.NoError(t, enc.Encode(&buf, im))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 8, decoded.Bounds().Dx())
	assert.Equal(t, ".png", enc.Extension())

	err = PNG{Band: "EVI"}.Encode(&buf, im)
	assert.ErrorIs(t, err, raster.ErrBandNotFound)
}

func TestRenderPNGMatchesRender(t *testing.T) {
	g, err := raster.GridFrom(ref, []float64{0, 1, math.NaN(), 0.5})
	require.NoError(t, err)
	opts := RenderOptions{Min: 0, Max: 1, Scale: 3}
	want, err := Render(g, opts)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderPNG(&buf, g, opts))
	got, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, want.Bounds(), got.Bounds())
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			assert.Equal(t, color.RGBAModel.Convert(want.At(x, y)), color.RGBAModel.Convert(got.At(x, y)), "pixel %d,%d", x, y)
		}
	}

	assert.Error(t, RenderPNG(&buf, raster.NewGrid(raster.Georef{}), opts))
}
