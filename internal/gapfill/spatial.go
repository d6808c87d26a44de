package gapfill

import (
	"math"

	"github.com/forest-guardian/geoprep/internal/raster"
)

type SpatialOptions struct {
	// MaxHoleSize is the largest hole, in pixels, that gets filled. Zero
	// fills holes of any size.
	MaxHoleSize int
	// MinNeighbours is the number of valid 8-neighbours required before a
	// pixel is estimated. Zero means 1.
	MinNeighbours int
	// MaxIterations bounds the number of fill passes. Zero means 100.
	MaxIterations int
	// FillBorder allows filling holes that touch the raster edge.
	FillBorder bool
}

var neighbours = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// Spatial fills small NaN holes with the mean of their valid neighbours,
// growing inwards from the hole edge one ring per pass. It returns a new grid
// and the number of pixels filled.
func Spatial(g *raster.Grid, opts SpatialOptions) (*raster.Grid, int) {
	if opts.MinNeighbours <= 0 {
		opts.MinNeighbours = 1
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}
	out := g.Clone()
	target := fillable(g, opts)

	filled := 0
	for iter := 0; iter < opts.MaxIterations; iter++ {
		type estimate struct {
			i int
			v float64
		}
		var updates []estimate
		for i, ok := range target {
			if !ok || !math.IsNaN(out.Data[i]) {
				continue
			}
			x, y := i%g.Width, i/g.Width
			sum, n := 0.0, 0
			for _, d := range neighbours {
				nx, ny := x+d[0], y+d[1]
				if !out.In(nx, ny) {
					continue
				}
				if v := out.At(nx, ny); !math.IsNaN(v) {
					sum += v
					n++
				}
			}
			if n >= opts.MinNeighbours {
				updates = append(updates, estimate{i, sum / float64(n)})
			}
		}
		if len(updates) == 0 {
			break
		}
		// apply after the pass so every ring only sees the previous one
		for _, u := range updates {
			out.Data[u.i] = u.v
		}
		filled += len(updates)
	}
	return out, filled
}

// fillable labels 4-connected NaN regions and marks those that qualify for
// filling.
func fillable(g *raster.Grid, opts SpatialOptions) []bool {
	target := make([]bool, len(g.Data))
	seen := make([]bool, len(g.Data))
	var queue, region []int
	for start := range g.Data {
		if seen[start] || !math.IsNaN(g.Data[start]) {
			continue
		}
		queue = append(queue[:0], start)
		region = region[:0]
		seen[start] = true
		border := false
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			region = append(region, i)
			x, y := i%g.Width, i/g.Width
			if x == 0 || y == 0 || x == g.Width-1 || y == g.Height-1 {
				border = true
			}
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := x+d[0], y+d[1]
				if !g.In(nx, ny) {
					continue
				}
				j := g.Index(nx, ny)
				if !seen[j] && math.IsNaN(g.Data[j]) {
					seen[j] = true
					queue = append(queue, j)
				}
			}
		}
		if border && !opts.FillBorder {
			continue
		}
		if opts.MaxHoleSize > 0 && len(region) > opts.MaxHoleSize {
			continue
		}
		for _, i := range region {
			target[i] = true
		}
	}
	return target
}
