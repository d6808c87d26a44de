package raster

import (
	"fmt"
	"math"
	"time"
)

// Image is a multi-band raster whose bands share one georef.
type Image struct {
	Georef
	Date  time.Time
	names []string
	bands map[string][]float64
}

func NewImage(ref Georef, date time.Time) *Image {
	return &Image{
		Georef: ref,
		Date:   date,
		bands:  make(map[string][]float64),
	}
}

// AddBand stores data under name. An existing band keeps its position.
func (img *Image) AddBand(name string, data []float64) error {
	if len(data) != img.Size() {
		return fmt.Errorf("band %s has %d values, want %d: %w", name, len(data), img.Size(), ErrSizeMismatch)
	}
	if _, ok := img.bands[name]; !ok {
		img.names = append(img.names, name)
	}
	img.bands[name] = data
	return nil
}

func (img *Image) AddGrid(name string, g *Grid) error {
	if !img.Georef.Aligned(g.Georef) {
		return fmt.Errorf("band %s is not aligned with the image: %w", name, ErrSizeMismatch)
	}
	return img.AddBand(name, g.Data)
}

// Band returns a grid view over the named band. The data is shared.
func (img *Image) Band(name string) (*Grid, error) {
	data, ok := img.bands[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrBandNotFound)
	}
	return &Grid{Georef: img.Georef, Data: data}, nil
}

func (img *Image) HasBand(name string) bool {
	_, ok := img.bands[name]
	return ok
}

func (img *Image) RemoveBand(name string) {
	if _, ok := img.bands[name]; !ok {
		return
	}
	delete(img.bands, name)
	for i, n := range img.names {
		if n == name {
			img.names = append(img.names[:i], img.names[i+1:]...)
			break
		}
	}
}

func (img *Image) BandNames() []string {
	out := make([]string, len(img.names))
	copy(out, img.names)
	return out
}

func (img *Image) Clone() *Image {
	out := NewImage(img.Georef, img.Date)
	for _, name := range img.names {
		data := make([]float64, len(img.bands[name]))
		copy(data, img.bands[name])
		out.names = append(out.names, name)
		out.bands[name] = data
	}
	return out
}

func (img *Image) Window(xoff, yoff, width, height int) (*Image, error) {
	ref, _, _, err := img.Georef.Window(xoff, yoff, width, height)
	if err != nil {
		return nil, err
	}
	out := NewImage(ref, img.Date)
	for _, name := range img.names {
		g, err := (&Grid{Georef: img.Georef, Data: img.bands[name]}).Window(xoff, yoff, width, height)
		if err != nil {
			return nil, err
		}
		if err := out.AddBand(name, g.Data); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ApplyMask sets every band to NaN where keep is false.
func (img *Image) ApplyMask(keep []bool) error {
	if len(keep) != img.Size() {
		return fmt.Errorf("mask has %d values, want %d: %w", len(keep), img.Size(), ErrSizeMismatch)
	}
	for _, name := range img.names {
		data := img.bands[name]
		for i, k := range keep {
			if !k {
				data[i] = math.NaN()
			}
		}
	}
	return nil
}

// ValidCount counts pixels where at least one band holds a value.
func (img *Image) ValidCount() int {
	n := 0
	for i := 0; i < img.Size(); i++ {
		for _, name := range img.names {
			if !math.IsNaN(img.bands[name][i]) {
				n++
				break
			}
		}
	}
	return n
}
