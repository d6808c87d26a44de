// Package mask builds per-pixel keep/drop masks from quality bands and
// applies them to images.
package mask

import (
	"fmt"
	"math"

	"github.com/forest-guardian/geoprep/internal/raster"
)

// Mask holds one flag per pixel; true keeps the pixel.
type Mask []bool

func All(n int) Mask {
	m := make(Mask, n)
	for i := range m {
		m[i] = true
	}
	return m
}

// And combines masks in place and returns m.
func (m Mask) And(others ...Mask) (Mask, error) {
	for _, o := range others {
		if len(o) != len(m) {
			return nil, fmt.Errorf("mask of %d values combined with %d: %w", len(m), len(o), raster.ErrSizeMismatch)
		}
		for i := range m {
			m[i] = m[i] && o[i]
		}
	}
	return m, nil
}

func (m Mask) ValidFraction() float64 {
	if len(m) == 0 {
		return 0
	}
	n := 0
	for _, k := range m {
		if k {
			n++
		}
	}
	return float64(n) / float64(len(m))
}

// Apply sets every band of img to NaN where m is false.
func Apply(img *raster.Image, m Mask) error {
	return img.ApplyMask(m)
}

// ValueMask drops pixels whose value is one of the given classes. NaN pixels
// are dropped too.
func ValueMask(g *raster.Grid, classes ...int) Mask {
	drop := make(map[int]bool, len(classes))
	for _, c := range classes {
		drop[c] = true
	}
	m := make(Mask, len(g.Data))
	for i, v := range g.Data {
		m[i] = !math.IsNaN(v) && !drop[int(v)]
	}
	return m
}

// ThresholdMask drops pixels above max, e.g. cloud probability.
func ThresholdMask(g *raster.Grid, max float64) Mask {
	m := make(Mask, len(g.Data))
	for i, v := range g.Data {
		m[i] = !math.IsNaN(v) && v <= max
	}
	return m
}

// RangeMask keeps pixels within [min, max].
func RangeMask(g *raster.Grid, min, max float64) Mask {
	m := make(Mask, len(g.Data))
	for i, v := range g.Data {
		m[i] = v >= min && v <= max
	}
	return m
}

// BrightnessMask drops bright pixels where the mean of blue and red
// reflectance exceeds max.
func BrightnessMask(blue, red *raster.Grid, max float64) (Mask, error) {
	if len(blue.Data) != len(red.Data) {
		return nil, raster.ErrSizeMismatch
	}
	m := make(Mask, len(blue.Data))
	for i := range m {
		m[i] = (blue.Data[i]+red.Data[i])/2 <= max
	}
	return m, nil
}
