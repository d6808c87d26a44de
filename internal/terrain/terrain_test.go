package terrain

import (
	"math"
	"testing"

	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plane(w, h int, res float64, z func(x, y int) float64) *raster.Grid {
	g := raster.NewGrid(raster.Georef{Width: w, Height: h, Transform: raster.GeoTransform{0, res, 0, 0, 0, -res}})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, z(x, y))
		}
	}
	return g
}

func TestSlopeAndAspect(t *testing.T) {
	tests := []struct {
		name   string
		z      func(x, y int) float64
		slope  float64
		aspect float64
		north  float64
		east   float64
	}{
		{"rises east, faces west", func(x, y int) float64 { return float64(x) * 10 }, 45, 270, 0, -1},
		{"rises north, faces south", func(x, y int) float64 { return float64(-y) * 10 }, 45, 180, -1, 0},
		{"rises south, faces north", func(x, y int) float64 { return float64(y) * 10 }, 45, 0, 1, 0},
		{"rises west, faces east", func(x, y int) float64 { return float64(-x) * 10 }, 45, 90, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Compute(plane(5, 5, 10, tt.z), Options{}, Slope, Aspect, Northness, Eastness)
			require.NoError(t, err)
			slope, _ := img.Band("slope")
			aspect, _ := img.Band("aspect")
			north, _ := img.Band("northness")
			east, _ := img.Band("eastness")
			assert.InDelta(t, tt.slope, slope.At(2, 2), 1e-9)
			assert.InDelta(t, tt.aspect, aspect.At(2, 2), 1e-9)
			assert.InDelta(t, tt.north, north.At(2, 2), 1e-9)
			assert.InDelta(t, tt.east, east.At(2, 2), 1e-9)
			assert.True(t, math.IsNaN(slope.At(0, 0)), "border is NaN")
		})
	}
}

func TestFlatSurface(t *testing.T) {
	img, err := Compute(plane(3, 3, 30, func(x, y int) float64 { return 100 }), DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, img.BandNames(), len(AllMetrics))

	at := func(m Metric) float64 {
		g, err := img.Band(string(m))
		require.NoError(t, err)
		return g.At(1, 1)
	}
	assert.Equal(t, 0.0, at(Slope))
	assert.True(t, math.IsNaN(at(Aspect)))
	assert.Equal(t, 0.0, at(Northness))
	assert.Equal(t, 0.0, at(Eastness))
	assert.InDelta(t, math.Cos(math.Pi/4), at(Hillshade), 1e-9)
	assert.Equal(t, 0.0, at(TPI))
	assert.Equal(t, 0.0, at(TRI))
	assert.Equal(t, 0.0, at(Roughness))
}

func TestNeighbourhoodMetrics(t *testing.T) {
	dem := plane(3, 3, 1, func(x, y int) float64 { return 0 })
	dem.Set(1, 1, 8)
	img, err := Compute(dem, Options{}, TPI, TRI, Roughness)
	require.NoError(t, err)
	tpi, _ := img.Band("tpi")
	tri, _ := img.Band("tri")
	rough, _ := img.Band("roughness")
	assert.Equal(t, 8.0, tpi.At(1, 1))
	assert.Equal(t, 8.0, tri.At(1, 1))
	assert.Equal(t, 8.0, rough.At(1, 1))
}

func TestHillshadeFacingSun(t *testing.T) {
	// faces north-west, the default sun azimuth
	dem := plane(3, 3, 1, func(x, y int) float64 { return float64(x+y) * 0.5 })
	img, err := Compute(dem, DefaultOptions(), Hillshade, Aspect)
	require.NoError(t, err)
	aspect, _ := img.Band("aspect")
	hs, _ := img.Band("hillshade")
	assert.InDelta(t, 315, aspect.At(1, 1), 1e-9)
	assert.Greater(t, hs.At(1, 1), math.Cos(math.Pi/4))
}

func TestHillshadeZeroSun(t *testing.T) {
	dem := plane(3, 3, 1, func(x, y int) float64 { return float64(x+y) * 0.5 })
	shade := func(opts Options) float64 {
		img, err := Compute(dem, opts, Hillshade)
		require.NoError(t, err)
		hs, _ := img.Band("hillshade")
		return hs.At(1, 1)
	}
	slope := math.Atan(math.Sqrt(0.5))

	north := DefaultOptions()
	north.SunAzimuth = 0
	assert.Less(t, shade(north), shade(DefaultOptions()))
	assert.InDelta(t, math.Cos(math.Pi/4)*(math.Cos(slope)+math.Sin(slope)*math.Cos(math.Pi/4)), shade(north), 1e-9)

	horizon := DefaultOptions()
	horizon.SunAltitude = 0
	assert.InDelta(t, math.Sin(slope), shade(horizon), 1e-9)
}

func TestGeographicCellSize(t *testing.T) {
	ref := raster.Georef{Width: 3, Height: 3, Transform: raster.GeoTransform{-50, 0.001, 0, 60.0015, 0, -0.001}, Geographic: true}
	dem := raster.NewGrid(ref)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			dem.Set(x, y, float64(x)*metresPerDegree*0.001*0.5)
		}
	}
	img, err := Compute(dem, Options{}, Slope)
	require.NoError(t, err)
	slope, _ := img.Band("slope")
	// at 60 degrees a degree of longitude is half as long
	assert.InDelta(t, 45, slope.At(1, 1), 1e-6)
}

func TestComputeErrors(t *testing.T) {
	_, err := Compute(plane(2, 5, 1, func(x, y int) float64 { return 0 }), Options{})
	assert.Error(t, err)

	_, err = ParseMetric("curvature")
	assert.Error(t, err)
	m, err := ParseMetric("slope")
	require.NoError(t, err)
	assert.Equal(t, Slope, m)
}

func TestNaNNeighbour(t *testing.T) {
	dem := plane(4, 4, 1, func(x, y int) float64 { return 1 })
	dem.Set(0, 0, math.NaN())
	img, err := Compute(dem, Options{}, Slope)
	require.NoError(t, err)
	slope, _ := img.Band("slope")
	assert.True(t, math.IsNaN(slope.At(1, 1)))
	assert.Equal(t, 0.0, slope.At(2, 2))
}
