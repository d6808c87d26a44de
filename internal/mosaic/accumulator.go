package mosaic

import (
	"fmt"
	"math"
	"time"

	"github.com/forest-guardian/geoprep/internal/raster"
)

// accumulator merges images into a fixed extent. For Mean, data holds the
// weighted sums until image is called.
type accumulator struct {
	ref    raster.Georef
	method Method
	bands  []string
	data   map[string][]float64
	count  map[string][]float64
	date   time.Time
}

func newAccumulator(ref raster.Georef, bands []string, method Method) *accumulator {
	a := &accumulator{
		ref:    ref,
		method: method,
		bands:  bands,
		data:   make(map[string][]float64, len(bands)),
		count:  make(map[string][]float64, len(bands)),
	}
	for _, b := range bands {
		data := make([]float64, ref.Size())
		for i := range data {
			data[i] = math.NaN()
		}
		a.data[b] = data
		if method == Mean {
			a.count[b] = make([]float64, ref.Size())
		}
	}
	return a
}

// merge folds img into the accumulator. weights, when given, holds a
// per-band observation count for every pixel of img.
func (a *accumulator) merge(img *raster.Image, weights map[string][]float64) error {
	ox, oy, err := offset(img.Georef, a.ref)
	if err != nil {
		return err
	}
	if ox < 0 || oy < 0 || ox+img.Width > a.ref.Width || oy+img.Height > a.ref.Height {
		return fmt.Errorf("image at (%d,%d) falls outside the mosaic extent: %w", ox, oy, ErrMisaligned)
	}
	for _, b := range a.bands {
		src, err := img.Band(b)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBandMismatch, err)
		}
		dst := a.data[b]
		cnt := a.count[b]
		w := weights[b]
		for y := 0; y < img.Height; y++ {
			row := (oy+y)*a.ref.Width + ox
			for x := 0; x < img.Width; x++ {
				v := src.Data[y*img.Width+x]
				if math.IsNaN(v) {
					continue
				}
				i := row + x
				cur := dst[i]
				switch a.method {
				case First:
					if math.IsNaN(cur) {
						dst[i] = v
					}
				case Last:
					dst[i] = v
				case Min:
					if math.IsNaN(cur) || v < cur {
						dst[i] = v
					}
				case Max:
					if math.IsNaN(cur) || v > cur {
						dst[i] = v
					}
				case Mean:
					weight := 1.0
					if w != nil {
						weight = w[y*img.Width+x]
					}
					if math.IsNaN(cur) {
						cur = 0
					}
					dst[i] = cur + v*weight
					cnt[i] += weight
				}
			}
		}
	}
	return nil
}

// mergePartial folds a partial mosaic, using its count bands as weights.
func (a *accumulator) mergePartial(partial *raster.Image) error {
	if a.method != Mean {
		return a.merge(partial, nil)
	}
	weights := make(map[string][]float64, len(a.bands))
	for _, b := range a.bands {
		g, err := partial.Band(countPrefix + b)
		if err != nil {
			return fmt.Errorf("partial mosaic lacks counts: %w", err)
		}
		weights[b] = g.Data
	}
	return a.merge(partial, weights)
}

// image finalises the accumulator. withCounts adds the count bands used to
// weight partial mosaics.
func (a *accumulator) image(withCounts bool) (*raster.Image, error) {
	img := raster.NewImage(a.ref, a.date)
	for _, b := range a.bands {
		data := a.data[b]
		if a.method == Mean {
			cnt := a.count[b]
			for i := range data {
				if cnt[i] == 0 {
					data[i] = math.NaN()
					continue
				}
				data[i] /= cnt[i]
			}
		}
		if err := img.AddBand(b, data); err != nil {
			return nil, err
		}
	}
	if withCounts && a.method == Mean {
		for _, b := range a.bands {
			if err := img.AddBand(countPrefix+b, a.count[b]); err != nil {
				return nil, err
			}
		}
	}
	return img, nil
}
