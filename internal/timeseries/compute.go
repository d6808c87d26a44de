package timeseries

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/forest-guardian/geoprep/internal/indices"
	"github.com/forest-guardian/geoprep/internal/mask"
	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Failure records a date that could not be processed.
type Failure struct {
	Date time.Time
	Err  error
}

// Report summarises a run over a stack.
type Report struct {
	Processed int
	// Dropped lists dates left without a single valid pixel.
	Dropped  []time.Time
	Failures []Failure
}

// Err joins every failure, or returns nil.
func (r Report) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = fmt.Errorf("%s: %w", f.Date.Format(time.DateOnly), f.Err)
	}
	return errors.Join(errs...)
}

type ComputeOptions struct {
	Indices []string
	// Mask, when set, builds the validity mask applied to each image before
	// the indices are computed.
	Mask    func(*raster.Image) (mask.Mask, error)
	Workers int
	Quiet   bool
}

// ComputeIndices computes the requested indices for every image of s on a
// worker pool. Dates that fail are skipped and reported; dates whose result
// holds no valid pixel are dropped. Input images are not modified.
func ComputeIndices(ctx context.Context, s *Stack, calc *indices.Calculator, opts ComputeOptions) (*Stack, Report, error) {
	if len(opts.Indices) == 0 {
		return nil, Report{}, errors.New("no indices requested")
	}
	for _, name := range opts.Indices {
		if _, err := calc.Catalog.Get(name); err != nil {
			return nil, Report{}, err
		}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	var bar *progressbar.ProgressBar
	if opts.Quiet {
		bar = progressbar.DefaultSilent(int64(s.Len()), "Computing indices")
	} else {
		bar = progressbar.Default(int64(s.Len()), "Computing indices")
	}
	defer bar.Finish()

	var (
		mu      sync.Mutex
		results = make(map[time.Time]*raster.Image)
		report  Report
	)
	wp := workerpool.New(opts.Workers)
	for _, img := range s.Images() {
		img := img
		wp.Submit(func() {
			out, err := computeOne(ctx, img, calc, opts)

			mu.Lock()
			defer mu.Unlock()
			bar.Add(1)
			switch {
			case err != nil:
				report.Failures = append(report.Failures, Failure{Date: key(img.Date), Err: err})
				zap.L().Warn("failed to compute indices",
					zap.Time("date", img.Date),
					zap.Error(err))
			case out.ValidCount() == 0:
				report.Dropped = append(report.Dropped, key(img.Date))
			default:
				results[key(img.Date)] = out
			}
		})
	}
	wp.StopWait()

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	out := NewStack()
	for _, d := range s.Dates() {
		if img, ok := results[d]; ok {
			if err := out.Add(img); err != nil {
				return nil, report, err
			}
		}
	}
	report.Processed = out.Len()
	sortDates(report.Dropped)
	sortFailures(report.Failures)
	return out, report, nil
}

func computeOne(ctx context.Context, img *raster.Image, calc *indices.Calculator, opts ComputeOptions) (*raster.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Mask != nil {
		m, err := opts.Mask(img)
		if err != nil {
			return nil, fmt.Errorf("failed to build mask: %w", err)
		}
		img = img.Clone()
		if err := mask.Apply(img, m); err != nil {
			return nil, err
		}
	}
	return calc.Compute(img, opts.Indices...)
}

func sortDates(dates []time.Time) {
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
}

func sortFailures(f []Failure) {
	slices.SortFunc(f, func(a, b Failure) int { return a.Date.Compare(b.Date) })
}
