// Package timeseries holds dated image stacks and the operations that run
// across them: per-date index computation, temporal composites and point or
// zonal extraction.
package timeseries

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/forest-guardian/geoprep/internal/gapfill"
	"github.com/forest-guardian/geoprep/internal/raster"
)

var ErrDuplicateDate = errors.New("date already in stack")

// Stack is a set of aligned images keyed by acquisition date.
type Stack struct {
	ref    raster.Georef
	images map[time.Time]*raster.Image
	dates  []time.Time
}

func NewStack() *Stack {
	return &Stack{images: make(map[time.Time]*raster.Image)}
}

func key(t time.Time) time.Time {
	return t.UTC()
}

// Add inserts img under its date. All images of a stack share one pixel grid.
func (s *Stack) Add(img *raster.Image) error {
	k := key(img.Date)
	if _, ok := s.images[k]; ok {
		return fmt.Errorf("%s: %w", k.Format(time.DateOnly), ErrDuplicateDate)
	}
	if len(s.dates) == 0 {
		s.ref = img.Georef
	} else if !s.ref.Aligned(img.Georef) {
		return fmt.Errorf("image %s: %w", k.Format(time.DateOnly), raster.ErrSizeMismatch)
	}
	s.images[k] = img
	i, _ := slices.BinarySearchFunc(s.dates, k, func(a, b time.Time) int { return a.Compare(b) })
	s.dates = slices.Insert(s.dates, i, k)
	return nil
}

func (s *Stack) Len() int {
	return len(s.dates)
}

func (s *Stack) Georef() raster.Georef {
	return s.ref
}

// Dates returns the stack dates in ascending order.
func (s *Stack) Dates() []time.Time {
	return slices.Clone(s.dates)
}

func (s *Stack) At(date time.Time) (*raster.Image, bool) {
	img, ok := s.images[key(date)]
	return img, ok
}

// Images returns the images in ascending date order.
func (s *Stack) Images() []*raster.Image {
	out := make([]*raster.Image, len(s.dates))
	for i, d := range s.dates {
		out[i] = s.images[d]
	}
	return out
}

// Between returns a stack sharing the images dated within [from, to].
func (s *Stack) Between(from, to time.Time) *Stack {
	out := NewStack()
	for _, d := range s.dates {
		if d.Before(key(from)) || d.After(key(to)) {
			continue
		}
		out.ref = s.ref
		out.images[d] = s.images[d]
		out.dates = append(out.dates, d)
	}
	return out
}

// Remove drops date from the stack.
func (s *Stack) Remove(date time.Time) {
	k := key(date)
	if _, ok := s.images[k]; !ok {
		return
	}
	delete(s.images, k)
	s.dates = slices.DeleteFunc(s.dates, func(d time.Time) bool { return d.Equal(k) })
}

// Series returns one band across the stack. The grids share data with the
// stack images.
func (s *Stack) Series(band string) ([]gapfill.Observation, error) {
	out := make([]gapfill.Observation, 0, len(s.dates))
	for _, d := range s.dates {
		g, err := s.images[d].Band(band)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", d.Format(time.DateOnly), err)
		}
		out = append(out, gapfill.Observation{Date: d, Grid: g})
	}
	return out, nil
}

// SetSeries writes one band back into the stack images, matching by date.
func (s *Stack) SetSeries(band string, series []gapfill.Observation) error {
	for _, o := range series {
		img, ok := s.At(o.Date)
		if !ok {
			return fmt.Errorf("no image dated %s", o.Date.Format(time.DateOnly))
		}
		if err := img.AddGrid(band, o.Grid); err != nil {
			return err
		}
	}
	return nil
}

// BandNames returns the bands of the first image.
func (s *Stack) BandNames() []string {
	if len(s.dates) == 0 {
		return nil
	}
	return s.images[s.dates[0]].BandNames()
}
