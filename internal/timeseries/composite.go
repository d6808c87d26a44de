package timeseries

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/geoprep/internal/raster"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Period groups dates into composite windows.
type Period struct {
	unit string
	days int
}

var (
	Monthly = Period{unit: "month"}
	Yearly  = Period{unit: "year"}
)

// Days returns a period of n-day windows anchored at the first stack date.
func Days(n int) Period {
	return Period{unit: "day", days: n}
}

// ParsePeriod accepts "monthly", "yearly" or "<n>d".
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "monthly", "month":
		return Monthly, nil
	case "yearly", "year", "annual":
		return Yearly, nil
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil && strings.HasSuffix(s, "d") && n > 0 {
		return Days(n), nil
	}
	return Period{}, fmt.Errorf("unknown composite period %q", s)
}

func (p Period) String() string {
	if p.unit == "day" {
		return fmt.Sprintf("%dd", p.days)
	}
	return p.unit + "ly"
}

// start returns the start of the window holding t.
func (p Period) start(t, anchor time.Time) time.Time {
	switch p.unit {
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "year":
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	window := time.Duration(p.days) * 24 * time.Hour
	return anchor.Add(t.Sub(anchor) / window * window)
}

type Reducer int

const (
	Median Reducer = iota
	Mean
	Min
	Max
)

func ParseReducer(s string) (Reducer, error) {
	switch strings.ToLower(s) {
	case "median", "":
		return Median, nil
	case "mean":
		return Mean, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	}
	return Median, fmt.Errorf("unknown reducer %q", s)
}

func (r Reducer) reduce(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	switch r {
	case Mean:
		return stat.Mean(values, nil)
	case Min:
		return floats.Min(values)
	case Max:
		return floats.Max(values)
	}
	return median(values)
}

// median sorts values in place.
func median(values []float64) float64 {
	slices.Sort(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// Composite reduces the images of each period window to one image dated at
// the window start. NaN pixels are ignored; a pixel without any valid value
// in a window stays NaN. bands defaults to every band of the stack.
func Composite(s *Stack, period Period, reducer Reducer, bands ...string) (*Stack, error) {
	if period.unit == "day" && period.days <= 0 {
		return nil, fmt.Errorf("invalid composite period %s", period)
	}
	out := NewStack()
	if s.Len() == 0 {
		return out, nil
	}
	if len(bands) == 0 {
		bands = s.BandNames()
	}

	dates := s.Dates()
	anchor := dates[0]
	for i := 0; i < len(dates); {
		start := period.start(dates[i], anchor)
		j := i
		for j < len(dates) && period.start(dates[j], anchor).Equal(start) {
			j++
		}
		img, err := reduceWindow(s, dates[i:j], start, reducer, bands)
		if err != nil {
			return nil, err
		}
		if err := out.Add(img); err != nil {
			return nil, err
		}
		i = j
	}
	return out, nil
}

func reduceWindow(s *Stack, dates []time.Time, start time.Time, reducer Reducer, bands []string) (*raster.Image, error) {
	img := raster.NewImage(s.ref, start)
	values := make([]float64, 0, len(dates))
	for _, band := range bands {
		grids := make([]*raster.Grid, len(dates))
		for i, d := range dates {
			g, err := s.images[d].Band(band)
			if err != nil {
				return nil, fmt.Errorf("image %s: %w", d.Format(time.DateOnly), err)
			}
			grids[i] = g
		}
		data := make([]float64, s.ref.Size())
		for p := range data {
			values = values[:0]
			for _, g := range grids {
				if v := g.Data[p]; !math.IsNaN(v) {
					values = append(values, v)
				}
			}
			data[p] = reducer.reduce(values)
		}
		if err := img.AddBand(band, data); err != nil {
			return nil, err
		}
	}
	return img, nil
}
