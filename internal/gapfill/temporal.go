// Package gapfill estimates missing pixels from neighbouring observations in
// time and in space.
package gapfill

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/forest-guardian/geoprep/internal/raster"
)

var ErrUnsorted = errors.New("series dates must be strictly increasing")

// Observation is one dated grid of a series.
type Observation struct {
	Date time.Time
	Grid *raster.Grid
}

type EdgeMode int

const (
	// EdgeLeave keeps gaps before the first or after the last observation.
	EdgeLeave EdgeMode = iota
	// EdgeNearest copies the nearest valid observation into edge gaps.
	EdgeNearest
)

type TemporalOptions struct {
	// MaxGap bounds the distance to each neighbour used for a fill. Zero
	// means unbounded.
	MaxGap time.Duration
	Edge   EdgeMode
}

// Temporal fills missing pixels by linear interpolation in time between the
// closest valid observations before and after. Inputs are not modified.
// It returns the filled series and the number of pixels filled.
func Temporal(series []Observation, opts TemporalOptions) ([]Observation, int, error) {
	if len(series) == 0 {
		return nil, 0, nil
	}
	ref := series[0].Grid.Georef
	for i, o := range series {
		if !o.Grid.Georef.Aligned(ref) {
			return nil, 0, fmt.Errorf("observation %s: %w", o.Date.Format(time.DateOnly), raster.ErrSizeMismatch)
		}
		if i > 0 && !o.Date.After(series[i-1].Date) {
			return nil, 0, ErrUnsorted
		}
	}

	out := make([]Observation, len(series))
	for i, o := range series {
		out[i] = Observation{Date: o.Date, Grid: o.Grid.Clone()}
	}

	within := func(a, b time.Time) bool {
		return opts.MaxGap <= 0 || b.Sub(a) <= opts.MaxGap
	}

	filled := 0
	values := make([]float64, len(series))
	for p := 0; p < ref.Size(); p++ {
		for i, o := range series {
			values[i] = o.Grid.Data[p]
		}
		for i := range series {
			if !math.IsNaN(values[i]) {
				continue
			}
			prev, next := -1, -1
			for j := i - 1; j >= 0; j-- {
				if !math.IsNaN(values[j]) {
					prev = j
					break
				}
			}
			for j := i + 1; j < len(series); j++ {
				if !math.IsNaN(values[j]) {
					next = j
					break
				}
			}
			t := series[i].Date
			v := math.NaN()
			switch {
			case prev >= 0 && next >= 0:
				t0, t1 := series[prev].Date, series[next].Date
				if within(t0, t) && within(t, t1) {
					frac := float64(t.Sub(t0)) / float64(t1.Sub(t0))
					v = values[prev] + frac*(values[next]-values[prev])
				}
			case opts.Edge == EdgeNearest && prev >= 0:
				if within(series[prev].Date, t) {
					v = values[prev]
				}
			case opts.Edge == EdgeNearest && next >= 0:
				if within(t, series[next].Date) {
					v = values[next]
				}
			}
			if !math.IsNaN(v) {
				out[i].Grid.Data[p] = v
				filled++
			}
		}
	}
	return out, filled, nil
}

// Smooth applies a centred moving average of the given window to values,
// ignoring NaN. Positions without any valid neighbour stay NaN.
func Smooth(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	half := window / 2
	for i := range values {
		sum, n := 0.0, 0
		for j := max(0, i-half); j <= min(len(values)-1, i+half); j++ {
			if !math.IsNaN(values[j]) {
				sum += values[j]
				n++
			}
		}
		if n == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}
