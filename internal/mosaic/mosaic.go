// Package mosaic merges raster tiles that sit on a common pixel lattice.
// Tiles are loaded and merged in batches so only one batch of pixels is held
// in memory at a time; each batch is reduced to a partial mosaic that is
// parked in a Store before memory is reclaimed.
package mosaic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoSources    = errors.New("no tiles to mosaic")
	ErrMisaligned   = errors.New("tiles do not share a pixel lattice")
	ErrBandMismatch = errors.New("tiles have different bands")
)

// Source is a tile whose georef is known before its pixels are loaded.
type Source interface {
	Name() string
	Georef() raster.Georef
	Load(ctx context.Context) (*raster.Image, error)
}

type Method int

const (
	First Method = iota
	Last
	Mean
	Min
	Max
)

func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "first", "":
		return First, nil
	case "last":
		return Last, nil
	case "mean":
		return Mean, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	}
	return First, fmt.Errorf("unknown mosaic method %q", s)
}

type Options struct {
	// BatchSize is the number of tiles merged per batch. Zero means 10.
	BatchSize int
	// Concurrency bounds concurrent tile loads inside a batch. Zero means 4.
	Concurrency int
	Method      Method
	// Store parks partial mosaics between batches. Nil means in memory.
	Store Store
	// Reclaim runs after every batch. Nil means debug.FreeOSMemory.
	Reclaim func()
	Quiet   bool
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Store == nil {
		o.Store = NewMemoryStore()
	}
	if o.Reclaim == nil {
		o.Reclaim = debug.FreeOSMemory
	}
	return o
}

// countPrefix names the per-band observation counts carried by partial
// mosaics when averaging.
const countPrefix = "__count_"

// Mosaic merges sources into one image covering their union. For First and
// Last, sources earlier (or later) in the slice win where tiles overlap.
func Mosaic(ctx context.Context, sources []Source, opts Options) (*raster.Image, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	opts = opts.withDefaults()

	refs := make([]raster.Georef, len(sources))
	for i, s := range sources {
		refs[i] = s.Georef()
	}
	full, err := union(refs)
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if opts.Quiet {
		bar = progressbar.DefaultSilent(int64(len(sources)), "Mosaicking tiles")
	} else {
		bar = progressbar.Default(int64(len(sources)), "Mosaicking tiles")
	}
	defer bar.Finish()

	var (
		keys  []string
		bands []string
	)
	for start := 0; start < len(sources); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(sources))
		batch := sources[start:end]
		key := fmt.Sprintf("batch-%04d", len(keys))

		partial, err := mergeBatch(ctx, batch, refs[start:end], opts, &bands, bar)
		if err != nil {
			cleanup(ctx, opts.Store, keys)
			return nil, err
		}
		if err := opts.Store.Put(ctx, key, partial); err != nil {
			cleanup(ctx, opts.Store, keys)
			return nil, fmt.Errorf("failed to store %s: %w", key, err)
		}
		keys = append(keys, key)
		opts.Reclaim()

		zap.L().Debug("mosaic batch merged",
			zap.String("key", key),
			zap.Int("tiles", len(batch)))
	}

	acc := newAccumulator(full, bands, opts.Method)
	for _, key := range keys {
		partial, err := opts.Store.Get(ctx, key)
		if err != nil {
			cleanup(ctx, opts.Store, keys)
			return nil, fmt.Errorf("failed to load %s: %w", key, err)
		}
		if acc.date.IsZero() {
			acc.date = partial.Date
		}
		if err := acc.mergePartial(partial); err != nil {
			cleanup(ctx, opts.Store, keys)
			return nil, err
		}
		if err := opts.Store.Delete(ctx, key); err != nil {
			zap.L().Warn("failed to delete partial mosaic", zap.String("key", key), zap.Error(err))
		}
	}
	return acc.image(false)
}

func mergeBatch(ctx context.Context, batch []Source, refs []raster.Georef, opts Options, bands *[]string, bar *progressbar.ProgressBar) (*raster.Image, error) {
	extent, err := union(refs)
	if err != nil {
		return nil, err
	}

	images := make([]*raster.Image, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, src := range batch {
		i, src := i, src
		g.Go(func() error {
			img, err := src.Load(gctx)
			if err != nil {
				return fmt.Errorf("failed to load tile %s: %w", src.Name(), err)
			}
			if !img.Georef.Aligned(refs[i]) {
				return fmt.Errorf("tile %s loaded with a different georef: %w", src.Name(), ErrMisaligned)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var acc *accumulator
	for i, img := range images {
		names := img.BandNames()
		if *bands == nil {
			*bands = names
		} else if !sameBands(*bands, names) {
			return nil, fmt.Errorf("tile %s has bands %v, want %v: %w", batch[i].Name(), names, *bands, ErrBandMismatch)
		}
		if acc == nil {
			acc = newAccumulator(extent, *bands, opts.Method)
			acc.date = img.Date
		}
		if err := acc.merge(img, nil); err != nil {
			return nil, err
		}
		images[i] = nil
		bar.Add(1)
	}
	return acc.image(opts.Method == Mean)
}

func sameBands(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

func cleanup(ctx context.Context, store Store, keys []string) {
	for _, k := range keys {
		_ = store.Delete(ctx, k)
	}
}

// union checks that every georef sits on the lattice of the first one and
// returns the georef covering all of them.
func union(refs []raster.Georef) (raster.Georef, error) {
	base := refs[0]
	t0 := base.Transform
	if t0[2] != 0 || t0[4] != 0 {
		return raster.Georef{}, fmt.Errorf("rotated geotransforms are not supported: %w", ErrMisaligned)
	}
	minX, minY := 0, 0
	maxX, maxY := base.Width, base.Height
	for _, r := range refs[1:] {
		ox, oy, err := offset(r, base)
		if err != nil {
			return raster.Georef{}, err
		}
		minX = min(minX, ox)
		minY = min(minY, oy)
		maxX = max(maxX, ox+r.Width)
		maxY = max(maxY, oy+r.Height)
	}
	t := t0
	t[0], t[3] = t0.PixelToGeo(float64(minX), float64(minY))
	return raster.Georef{
		Width:      maxX - minX,
		Height:     maxY - minY,
		Transform:  t,
		Projection: base.Projection,
		Geographic: base.Geographic,
	}, nil
}

// offset returns the pixel position of r's origin on base's lattice.
func offset(r, base raster.Georef) (int, int, error) {
	const tol = 1e-6
	t, t0 := r.Transform, base.Transform
	if r.Projection != base.Projection {
		return 0, 0, fmt.Errorf("projection differs: %w", ErrMisaligned)
	}
	if t[2] != 0 || t[4] != 0 {
		return 0, 0, fmt.Errorf("rotated geotransforms are not supported: %w", ErrMisaligned)
	}
	if math.Abs(t[1]-t0[1]) > tol*math.Abs(t0[1]) || math.Abs(t[5]-t0[5]) > tol*math.Abs(t0[5]) {
		return 0, 0, fmt.Errorf("resolution %gx%g differs from %gx%g: %w", t[1], t[5], t0[1], t0[5], ErrMisaligned)
	}
	fx := (t[0] - t0[0]) / t0[1]
	fy := (t[3] - t0[3]) / t0[5]
	ox, oy := math.Round(fx), math.Round(fy)
	if math.Abs(fx-ox) > tol || math.Abs(fy-oy) > tol {
		return 0, 0, fmt.Errorf("origin is off the pixel grid by (%.3g, %.3g) pixels: %w", fx-ox, fy-oy, ErrMisaligned)
	}
	return int(ox), int(oy), nil
}
