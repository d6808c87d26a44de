package raster

import (
	"fmt"
	"math"
)

// Grid is a single band. Missing values are NaN.
type Grid struct {
	Georef
	Data []float64
}

// NewGrid allocates a grid filled with NaN.
func NewGrid(ref Georef) *Grid {
	data := make([]float64, ref.Size())
	for i := range data {
		data[i] = math.NaN()
	}
	return &Grid{Georef: ref, Data: data}
}

// GridFrom wraps data without copying it.
func GridFrom(ref Georef, data []float64) (*Grid, error) {
	if len(data) != ref.Size() {
		return nil, fmt.Errorf("grid of %dx%d got %d values: %w", ref.Width, ref.Height, len(data), ErrSizeMismatch)
	}
	return &Grid{Georef: ref, Data: data}, nil
}

func (g *Grid) Index(x, y int) int {
	return y*g.Width + x
}

func (g *Grid) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.Width+x] = v
}

func (g *Grid) Valid(x, y int) bool {
	return !math.IsNaN(g.Data[y*g.Width+x])
}

func (g *Grid) Clone() *Grid {
	data := make([]float64, len(g.Data))
	copy(data, g.Data)
	return &Grid{Georef: g.Georef, Data: data}
}

func (g *Grid) Window(xoff, yoff, width, height int) (*Grid, error) {
	ref, x0, y0, err := g.Georef.Window(xoff, yoff, width, height)
	if err != nil {
		return nil, err
	}
	out := &Grid{Georef: ref, Data: make([]float64, ref.Size())}
	for y := 0; y < ref.Height; y++ {
		src := g.Data[(y0+y)*g.Width+x0 : (y0+y)*g.Width+x0+ref.Width]
		copy(out.Data[y*ref.Width:(y+1)*ref.Width], src)
	}
	return out, nil
}

func (g *Grid) ValidCount() int {
	n := 0
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// Stats summarises the non-NaN values. Min, Max and Mean are NaN for an empty grid.
func (g *Grid) Stats() Stats {
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		s.Count++
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	if s.Count == 0 {
		return Stats{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
	}
	s.Mean = sum / float64(s.Count)
	return s
}
