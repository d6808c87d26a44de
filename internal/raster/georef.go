package raster

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrBandNotFound   = errors.New("band not found")
	ErrSizeMismatch   = errors.New("raster size mismatch")
	ErrEmptyWindow    = errors.New("window does not overlap the raster")
	ErrSingularAffine = errors.New("geotransform is not invertible")
)

// GeoTransform is the GDAL affine transform:
// Xgeo = T[0] + px*T[1] + py*T[2], Ygeo = T[3] + px*T[4] + py*T[5].
type GeoTransform [6]float64

func (t GeoTransform) PixelToGeo(px, py float64) (float64, float64) {
	x := t[0] + px*t[1] + py*t[2]
	y := t[3] + px*t[4] + py*t[5]
	return x, y
}

// PixelCenter returns the geographic coordinates of the centre of pixel (x, y).
func (t GeoTransform) PixelCenter(x, y int) (float64, float64) {
	return t.PixelToGeo(float64(x)+0.5, float64(y)+0.5)
}

// GeoToPixel returns fractional pixel coordinates for a geographic position.
// Use math.Floor on the result to get the containing pixel.
func (t GeoTransform) GeoToPixel(gx, gy float64) (float64, float64, error) {
	det := t[1]*t[5] - t[2]*t[4]
	if det == 0 {
		return 0, 0, ErrSingularAffine
	}
	dx := gx - t[0]
	dy := gy - t[3]
	px := (dx*t[5] - dy*t[2]) / det
	py := (dy*t[1] - dx*t[4]) / det
	return px, py, nil
}

// Georef describes the pixel grid shared by every band of a raster.
type Georef struct {
	Width      int
	Height     int
	Transform  GeoTransform
	Projection string
	// Geographic is set when the transform is expressed in degrees.
	Geographic bool
}

func (g Georef) Size() int {
	return g.Width * g.Height
}

func (g Georef) ResX() float64 {
	return math.Abs(g.Transform[1])
}

func (g Georef) ResY() float64 {
	return math.Abs(g.Transform[5])
}

// Bounds returns minX, minY, maxX, maxY of the raster footprint.
func (g Georef) Bounds() [4]float64 {
	corners := [][2]float64{
		{0, 0},
		{float64(g.Width), 0},
		{0, float64(g.Height)},
		{float64(g.Width), float64(g.Height)},
	}
	b := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, c := range corners {
		x, y := g.Transform.PixelToGeo(c[0], c[1])
		b[0] = math.Min(b[0], x)
		b[1] = math.Min(b[1], y)
		b[2] = math.Max(b[2], x)
		b[3] = math.Max(b[3], y)
	}
	return b
}

// Aligned reports whether both georefs describe exactly the same pixel grid.
func (g Georef) Aligned(other Georef) bool {
	if g.Width != other.Width || g.Height != other.Height {
		return false
	}
	if g.Projection != other.Projection {
		return false
	}
	for i := range g.Transform {
		if math.Abs(g.Transform[i]-other.Transform[i]) > 1e-9*math.Max(1, math.Abs(g.Transform[i])) {
			return false
		}
	}
	return true
}

// Window returns the georef of a sub-window. The window is clamped to the
// raster and an error is returned when nothing is left.
func (g Georef) Window(xoff, yoff, width, height int) (Georef, int, int, error) {
	x0 := max(xoff, 0)
	y0 := max(yoff, 0)
	x1 := min(xoff+width, g.Width)
	y1 := min(yoff+height, g.Height)
	if x1 <= x0 || y1 <= y0 {
		return Georef{}, 0, 0, fmt.Errorf("window (%d,%d %dx%d): %w", xoff, yoff, width, height, ErrEmptyWindow)
	}
	t := g.Transform
	ox, oy := t.PixelToGeo(float64(x0), float64(y0))
	t[0], t[3] = ox, oy
	return Georef{
		Width:      x1 - x0,
		Height:     y1 - y0,
		Transform:  t,
		Projection: g.Projection,
		Geographic: g.Geographic,
	}, x0, y0, nil
}
