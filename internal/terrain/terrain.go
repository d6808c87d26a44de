// Package terrain derives slope, aspect and related surface metrics from a
// digital elevation model using Horn's third-order finite differences.
package terrain

import (
	"fmt"
	"math"
	"time"

	"github.com/forest-guardian/geoprep/internal/raster"
)

type Metric string

const (
	Slope     Metric = "slope"
	Aspect    Metric = "aspect"
	Northness Metric = "northness"
	Eastness  Metric = "eastness"
	Hillshade Metric = "hillshade"
	TPI       Metric = "tpi"
	TRI       Metric = "tri"
	Roughness Metric = "roughness"
)

var AllMetrics = []Metric{Slope, Aspect, Northness, Eastness, Hillshade, TPI, TRI, Roughness}

// metresPerDegree at the equator, used to scale geographic cell sizes.
const metresPerDegree = 111320.0

type Options struct {
	// ZFactor multiplies elevations before differencing. Zero means 1.
	ZFactor float64
	// SunAzimuth and SunAltitude in degrees drive the hillshade. Zero is a
	// valid azimuth (north) and altitude (horizon).
	SunAzimuth  float64
	SunAltitude float64
}

// DefaultOptions lights the hillshade from the north-west at 45 degrees.
func DefaultOptions() Options {
	return Options{ZFactor: 1, SunAzimuth: 315, SunAltitude: 45}
}

func (o Options) withDefaults() Options {
	if o.ZFactor == 0 {
		o.ZFactor = 1
	}
	return o
}

func ParseMetric(s string) (Metric, error) {
	for _, m := range AllMetrics {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown terrain metric %q", s)
}

// window holds the 3x3 neighbourhood:
//
//	a b c
//	d e f
//	g h i
type window [9]float64

func (w *window) load(dem *raster.Grid, x, y int, z float64) bool {
	k := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			v := dem.At(x+dx, y+dy)
			if math.IsNaN(v) {
				return false
			}
			w[k] = v * z
			k++
		}
	}
	return true
}

// cellSize returns the metric cell size of row y.
func cellSize(dem *raster.Grid, y int) (float64, float64) {
	dx, dy := dem.ResX(), dem.ResY()
	if !dem.Geographic {
		return dx, dy
	}
	_, lat := dem.Transform.PixelCenter(0, y)
	return dx * metresPerDegree * math.Cos(lat*math.Pi/180), dy * metresPerDegree
}

// Compute returns one band per requested metric, all metrics when none are
// given. Border cells and cells next to NaN are NaN.
func Compute(dem *raster.Grid, opts Options, metrics ...Metric) (*raster.Image, error) {
	if dem.Width < 3 || dem.Height < 3 {
		return nil, fmt.Errorf("dem of %dx%d is too small for a 3x3 kernel", dem.Width, dem.Height)
	}
	if len(metrics) == 0 {
		metrics = AllMetrics
	}
	opts = opts.withDefaults()

	out := make(map[Metric][]float64, len(metrics))
	for _, m := range metrics {
		data := make([]float64, dem.Size())
		for i := range data {
			data[i] = math.NaN()
		}
		out[m] = data
	}

	zenith := (90 - opts.SunAltitude) * math.Pi / 180
	azimuth := opts.SunAzimuth * math.Pi / 180

	var w window
	for y := 1; y < dem.Height-1; y++ {
		cx, cy := cellSize(dem, y)
		for x := 1; x < dem.Width-1; x++ {
			if !w.load(dem, x, y, opts.ZFactor) {
				continue
			}
			i := dem.Index(x, y)
			a, b, c, d, e, f, g, h, k := w[0], w[1], w[2], w[3], w[4], w[5], w[6], w[7], w[8]

			dzdx := ((c + 2*f + k) - (a + 2*d + g)) / (8 * cx)
			// rows grow southwards, so this is the south-facing gradient
			dzdy := ((g + 2*h + k) - (a + 2*b + c)) / (8 * cy)

			slope := math.Atan(math.Hypot(dzdx, dzdy))
			flat := dzdx == 0 && dzdy == 0
			aspect := math.NaN()
			if !flat {
				aspect = compassAspect(dzdx, dzdy)
			}

			for m, data := range out {
				switch m {
				case Slope:
					data[i] = slope * 180 / math.Pi
				case Aspect:
					data[i] = aspect
				case Northness:
					if flat {
						data[i] = 0
					} else {
						data[i] = math.Cos(aspect * math.Pi / 180)
					}
				case Eastness:
					if flat {
						data[i] = 0
					} else {
						data[i] = math.Sin(aspect * math.Pi / 180)
					}
				case Hillshade:
					hs := math.Cos(zenith) * math.Cos(slope)
					if !flat {
						hs += math.Sin(zenith) * math.Sin(slope) * math.Cos(azimuth-aspect*math.Pi/180)
					}
					data[i] = math.Max(hs, 0)
				case TPI:
					data[i] = e - (a+b+c+d+f+g+h+k)/8
				case TRI:
					sum := 0.0
					for n, v := range w {
						if n != 4 {
							sum += math.Abs(v - e)
						}
					}
					data[i] = sum / 8
				case Roughness:
					lo, hi := w[0], w[0]
					for _, v := range w {
						lo = math.Min(lo, v)
						hi = math.Max(hi, v)
					}
					data[i] = hi - lo
				}
			}
		}
	}

	img := raster.NewImage(dem.Georef, time.Time{})
	for _, m := range metrics {
		if err := img.AddBand(string(m), out[m]); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// compassAspect converts the east and south gradients into the direction the
// slope faces, in degrees clockwise from north.
func compassAspect(dzdx, dzdy float64) float64 {
	// downslope direction is opposite to the gradient
	east := -dzdx
	north := dzdy
	deg := math.Atan2(east, north) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
