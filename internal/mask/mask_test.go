package mask

import (
	"math"
	"testing"
	"time"

	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grid(values ...float64) *raster.Grid {
	g, _ := raster.GridFrom(raster.Georef{Width: len(values), Height: 1, Transform: raster.GeoTransform{0, 1, 0, 0, 0, -1}}, values)
	return g
}

func TestSCLMask(t *testing.T) {
	scl := grid(4, 3, 8, 9, 10, 5, 11, 0, math.NaN())
	assert.Equal(t, Mask{true, false, false, false, false, true, true, false, false}, SCLMask(scl))
	assert.Equal(t, Mask{true, true, true, true, true, true, false, true, false}, SCLMask(scl, SCLSnow))
}

func TestQABitMask(t *testing.T) {
	// clear, cloud (bit 3), shadow (bit 4), snow (bit 5), fill (bit 0)
	qa := grid(21824, 21824|1<<3, 1<<4, 1<<5, 1)
	assert.Equal(t, Mask{true, false, false, true, false}, QABitMask(qa, DefaultLandsatBits...))

	modis := grid(0, 1, 2, 1<<2, 1<<10, math.NaN())
	assert.Equal(t, Mask{true, false, false, false, false, false}, QABitMask(modis, DefaultMODISBits...))
}

func TestThresholdAndRange(t *testing.T) {
	cld := grid(0, 5, 20, math.NaN())
	assert.Equal(t, Mask{true, true, false, false}, ThresholdMask(cld, 10))

	ndvi := grid(-1.5, -0.2, 0.8, 1.2, math.NaN())
	assert.Equal(t, Mask{false, true, true, false, false}, RangeMask(ndvi, -1, 1))
}

func TestMaskCombination(t *testing.T) {
	m := Mask{true, true, false, true}
	_, err := m.And(Mask{true, false, true, true})
	require.NoError(t, err)
	assert.Equal(t, Mask{true, false, false, true}, m)
	assert.Equal(t, 0.5, m.ValidFraction())

	_, err = m.And(Mask{true})
	assert.ErrorIs(t, err, raster.ErrSizeMismatch)
	assert.Equal(t, 0.0, Mask{}.ValidFraction())
}

func TestSentinel2Quality(t *testing.T) {
	ref := raster.Georef{Width: 4, Height: 1, Transform: raster.GeoTransform{0, 10, 0, 0, 0, -10}}
	img := raster.NewImage(ref, time.Now())
	require.NoError(t, img.AddBand("B02", []float64{0.1, 0.95, 0.1, 0.1}))
	require.NoError(t, img.AddBand("B04", []float64{0.1, 0.95, 0.1, 0.1}))
	require.NoError(t, img.AddBand("B08", []float64{0.5, 0.5, 0.5, 0.5}))
	require.NoError(t, img.AddBand("SCL", []float64{4, 4, 9, 4}))
	require.NoError(t, img.AddBand("CLD", []float64{0, 0, 0, 30}))

	m, err := Sentinel2Quality(img, DefaultSentinel2Options())
	require.NoError(t, err)
	assert.Equal(t, Mask{true, false, false, false}, m)

	require.NoError(t, Apply(img, m))
	nir, _ := img.Band("B08")
	assert.Equal(t, 0.5, nir.Data[0])
	assert.True(t, math.IsNaN(nir.Data[3]))

	t.Run("scaled digital numbers", func(t *testing.T) {
		img := raster.NewImage(ref, time.Now())
		require.NoError(t, img.AddBand("B02", []float64{1000, 9500, 1000, 1000}))
		require.NoError(t, img.AddBand("B04", []float64{1000, 9500, 1000, 1000}))
		opts := DefaultSentinel2Options()
		opts.Scale = 1.0 / 10000
		m, err := Sentinel2Quality(img, opts)
		require.NoError(t, err)
		assert.Equal(t, Mask{true, false, true, true}, m)
	})
}
