package aoi

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/paulmach/orb"
)

var ErrOutside = errors.New("area of interest does not intersect the raster")

type ClipOptions struct {
	// CropOnly crops to the geometry bound without masking pixels outside
	// the polygon.
	CropOnly bool
}

// Clip crops img to the bound of geom, snapped outwards to the pixel grid,
// and sets pixels whose centre lies outside geom to NaN. geom must be in the
// raster's coordinate system. img is not modified.
func Clip(img *raster.Image, geom orb.Geometry, opts ClipOptions) (*raster.Image, error) {
	x0, y0, w, h, err := pixelWindow(img.Georef, geom.Bound())
	if err != nil {
		return nil, err
	}
	out, err := img.Window(x0, y0, w, h)
	if err != nil {
		if errors.Is(err, raster.ErrEmptyWindow) {
			return nil, ErrOutside
		}
		return nil, err
	}
	if opts.CropOnly {
		return out, nil
	}

	keep := make([]bool, out.Size())
	inside := 0
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			cx, cy := out.Transform.PixelCenter(x, y)
			if Contains(geom, orb.Point{cx, cy}) {
				keep[y*out.Width+x] = true
				inside++
			}
		}
	}
	if inside == 0 {
		return nil, fmt.Errorf("no pixel centre inside the geometry: %w", ErrOutside)
	}
	if err := out.ApplyMask(keep); err != nil {
		return nil, err
	}
	return out, nil
}

// ClipGrid is Clip for a single band.
func ClipGrid(g *raster.Grid, geom orb.Geometry, opts ClipOptions) (*raster.Grid, error) {
	img := raster.NewImage(g.Georef, time.Time{})
	if err := img.AddGrid("value", g); err != nil {
		return nil, err
	}
	out, err := Clip(img, geom, opts)
	if err != nil {
		return nil, err
	}
	return out.Band("value")
}

func pixelWindow(ref raster.Georef, b orb.Bound) (int, int, int, int, error) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range []orb.Point{b.Min, b.Max, {b.Min[0], b.Max[1]}, {b.Max[0], b.Min[1]}} {
		px, py, err := ref.Transform.GeoToPixel(p[0], p[1])
		if err != nil {
			return 0, 0, 0, 0, err
		}
		minX, maxX = math.Min(minX, px), math.Max(maxX, px)
		minY, maxY = math.Min(minY, py), math.Max(maxY, py)
	}
	// snap outwards, tolerating float noise on exact pixel edges
	const eps = 1e-9
	x0 := int(math.Floor(minX + eps))
	y0 := int(math.Floor(minY + eps))
	x1 := int(math.Ceil(maxX - eps))
	y1 := int(math.Ceil(maxY - eps))
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	if x1 <= 0 || y1 <= 0 || x0 >= ref.Width || y0 >= ref.Height {
		return 0, 0, 0, 0, ErrOutside
	}
	return x0, y0, x1 - x0, y1 - y0, nil
}
