package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"time"

	"github.com/forest-guardian/geoprep/internal/aoi"
	"github.com/forest-guardian/geoprep/internal/export"
	"github.com/forest-guardian/geoprep/internal/gapfill"
	"github.com/forest-guardian/geoprep/internal/indices"
	"github.com/forest-guardian/geoprep/internal/mask"
	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/forest-guardian/geoprep/internal/timeseries"
	"github.com/forest-guardian/geoprep/output"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"gocloud.dev/blob"
)

var ErrNoImages = errors.New("no image survived loading")

// Loader reads one input file.
type Loader interface {
	Load(ctx context.Context, path string) (*raster.Image, error)
}

// Projector converts a WGS84 geometry into the coordinate system described
// by a projection string.
type Projector func(geom orb.Geometry, projection string) (orb.Geometry, error)

type Runner struct {
	Loader Loader
	// Encoder writes GeoTIFF exports.
	Encoder export.Encoder
	// Project reprojects the AOI, points and zones. Nil leaves them as is.
	Project Projector
	// Locate fills lon and lat of point samples from projected stacks.
	Locate timeseries.Locator
	// Bucket overrides the export URL of the pipeline.
	Bucket *blob.Bucket
	Quiet  bool
}

// Report describes a pipeline run. Per-image failures are recorded here and
// do not stop the run.
type Report struct {
	Inputs         int
	Loaded         int
	Failures       []timeseries.Failure
	Indices        timeseries.Report
	TemporalFilled int
	SpatialFilled  int
	Images         int
	Export         export.Report
	Tables         []string
}

func (r *Report) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Date.Format(time.DateOnly), f.Err))
	}
	return errors.Join(append(errs, r.Indices.Err(), r.Export.Err())...)
}

func (r *Runner) Run(ctx context.Context, cfg *Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	files, err := cfg.Inputs.Resolve()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no input files")
	}
	report := &Report{Inputs: len(files)}

	var geom orb.Geometry
	if cfg.AOI.Path != "" {
		if geom, err = loadAOI(cfg.AOI); err != nil {
			return nil, err
		}
	}

	stack, err := r.load(ctx, cfg, files, geom, report)
	if err != nil {
		return report, err
	}

	sensorName := cfg.Sensor
	if sensorName == "" {
		sensorName = indices.Sentinel2.Name
	}
	sensor, err := indices.SensorByName(sensorName)
	if err != nil {
		return report, err
	}
	maskFn, err := MaskFunc(cfg.Mask, sensor, cfg.Scale)
	if err != nil {
		return report, err
	}

	if len(cfg.Indices) > 0 {
		catalog := indices.NewCatalog()
		for _, ci := range cfg.Custom {
			if err := catalog.AddExpression(ci.Name, ci.Expression, ci.Description); err != nil {
				return report, fmt.Errorf("custom index %s: %w", ci.Name, err)
			}
		}
		calc := indices.NewCalculator(sensor, catalog)
		calc.Scale = cfg.Scale
		stack, report.Indices, err = timeseries.ComputeIndices(ctx, stack, calc, timeseries.ComputeOptions{
			Indices: cfg.Indices,
			Mask:    maskFn,
			Workers: cfg.Workers,
			Quiet:   r.Quiet,
		})
		if err != nil {
			return report, err
		}
	} else if maskFn != nil {
		if err := applyMasks(stack, maskFn, report); err != nil {
			return report, err
		}
	}
	if len(cfg.Filter) > 0 {
		if err := applyMasks(stack, rangeFilter(cfg.Filter), report); err != nil {
			return report, err
		}
	}
	if stack.Len() == 0 {
		return report, ErrNoImages
	}

	if err := fillGaps(stack, cfg.GapFill, report); err != nil {
		return report, err
	}

	if cfg.Composite.Period != "" {
		period, err := timeseries.ParsePeriod(cfg.Composite.Period)
		if err != nil {
			return report, err
		}
		reducer, err := timeseries.ParseReducer(cfg.Composite.Reducer)
		if err != nil {
			return report, err
		}
		if stack, err = timeseries.Composite(stack, period, reducer); err != nil {
			return report, err
		}
	}
	report.Images = stack.Len()

	exporter, closeBucket, err := r.exporter(ctx, cfg.Export)
	if err != nil {
		return report, err
	}
	defer closeBucket()
	if exporter != nil {
		report.Export = exporter.ExportSeries(ctx, stack)
	}

	if err := r.extract(ctx, cfg.Extract, stack, exporter, report); err != nil {
		return report, err
	}

	zap.L().Info("pipeline finished",
		zap.String("name", cfg.Name),
		zap.Int("inputs", report.Inputs),
		zap.Int("images", report.Images),
		zap.Int("exported", len(report.Export.Exported)))
	return report, nil
}

func loadAOI(cfg AOIConfig) (orb.Geometry, error) {
	a, err := aoi.LoadFile(cfg.Path, cfg.IDProperty)
	if err != nil {
		return nil, fmt.Errorf("failed to load aoi: %w", err)
	}
	if cfg.Feature == "" {
		return a.Geometry(), nil
	}
	f, err := a.ByID(cfg.Feature)
	if err != nil {
		return nil, err
	}
	return f.Geometry, nil
}

// load reads and clips every input. Images that cannot be read or do not
// cover the AOI are recorded and skipped.
func (r *Runner) load(ctx context.Context, cfg *Config, files []DatedFile, geom orb.Geometry, report *Report) (*timeseries.Stack, error) {
	stack := timeseries.NewStack()
	projected := make(map[string]orb.Geometry)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := r.loadOne(ctx, f, geom, projected, cfg.AOI.CropOnly)
		if err == nil {
			err = stack.Add(img)
		}
		if err != nil {
			zap.L().Warn("skipping input",
				zap.String("path", f.Path),
				zap.Error(err))
			report.Failures = append(report.Failures, timeseries.Failure{Date: f.Date, Err: fmt.Errorf("%s: %w", f.Path, err)})
			continue
		}
	}
	report.Loaded = stack.Len()
	if stack.Len() == 0 {
		return nil, errors.Join(append([]error{ErrNoImages}, report.Err())...)
	}
	return stack, nil
}

func (r *Runner) loadOne(ctx context.Context, f DatedFile, geom orb.Geometry, projected map[string]orb.Geometry, cropOnly bool) (*raster.Image, error) {
	img, err := r.Loader.Load(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	img.Date = f.Date
	if geom == nil {
		return img, nil
	}
	g, ok := projected[img.Projection]
	if !ok {
		if g, err = r.project(geom, img.Projection); err != nil {
			return nil, err
		}
		projected[img.Projection] = g
	}
	return aoi.Clip(img, g, aoi.ClipOptions{CropOnly: cropOnly})
}

func (r *Runner) project(geom orb.Geometry, projection string) (orb.Geometry, error) {
	if r.Project == nil {
		return geom, nil
	}
	g, err := r.Project(geom, projection)
	if err != nil {
		return nil, fmt.Errorf("failed to reproject geometry: %w", err)
	}
	return g, nil
}

// MaskFunc builds the per-image quality mask described by cfg. It returns nil
// when masking is off.
func MaskFunc(cfg MaskConfig, sensor indices.Sensor, scaled bool) (func(*raster.Image) (mask.Mask, error), error) {
	band := func(img *raster.Image, def string) (*raster.Grid, error) {
		name := cfg.Band
		if name == "" {
			name = def
		}
		return img.Band(name)
	}
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "sentinel2":
		opts := mask.DefaultSentinel2Options()
		opts.MaxCloudProb = cfg.MaxCloudProbability
		if cfg.MaxBrightness > 0 {
			opts.MaxBrightness = cfg.MaxBrightness
		}
		if len(cfg.SCLExclude) > 0 {
			opts.SCLExclude = cfg.SCLExclude
		}
		if scaled {
			opts.Scale = sensor.Scale
		}
		return func(img *raster.Image) (mask.Mask, error) {
			return mask.Sentinel2Quality(img, opts)
		}, nil
	case "scl":
		return func(img *raster.Image) (mask.Mask, error) {
			g, err := band(img, "SCL")
			if err != nil {
				return nil, err
			}
			return mask.SCLMask(g, cfg.SCLExclude...), nil
		}, nil
	case "landsat", "modis":
		def, bits := "QA_PIXEL", mask.DefaultLandsatBits
		if cfg.Type == "modis" {
			def, bits = "state_1km", mask.DefaultMODISBits
		}
		if len(cfg.Bits) > 0 {
			bits = cfg.Bits
		}
		return func(img *raster.Image) (mask.Mask, error) {
			g, err := band(img, def)
			if err != nil {
				return nil, err
			}
			return mask.QABitMask(g, bits...), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown mask type %q", cfg.Type)
}

// applyMasks masks the raw bands in place. Images that cannot be masked
// are removed from the stack and recorded.
func applyMasks(s *timeseries.Stack, maskFn func(*raster.Image) (mask.Mask, error), report *Report) error {
	for _, img := range s.Images() {
		m, err := maskFn(img)
		if err == nil {
			err = mask.Apply(img, m)
		}
		if err != nil {
			report.Failures = append(report.Failures, timeseries.Failure{Date: img.Date, Err: err})
			s.Remove(img.Date)
		}
	}
	return nil
}

// rangeFilter masks pixels outside any of the configured band ranges.
func rangeFilter(filters []FilterConfig) func(*raster.Image) (mask.Mask, error) {
	return func(img *raster.Image) (mask.Mask, error) {
		m := mask.All(img.Size())
		for _, f := range filters {
			g, err := img.Band(f.Band)
			if err != nil {
				return nil, fmt.Errorf("filter: %w", err)
			}
			lo, hi := math.Inf(-1), math.Inf(1)
			if f.Min != nil {
				lo = *f.Min
			}
			if f.Max != nil {
				hi = *f.Max
			}
			if _, err := m.And(mask.RangeMask(g, lo, hi)); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
}

func fillGaps(s *timeseries.Stack, cfg GapFillConfig, report *Report) error {
	if !cfg.Temporal && !cfg.Spatial {
		return nil
	}
	opts := gapfill.TemporalOptions{MaxGap: time.Duration(cfg.MaxGapDays) * 24 * time.Hour}
	if cfg.Edge == "nearest" {
		opts.Edge = gapfill.EdgeNearest
	}
	for _, band := range s.BandNames() {
		series, err := s.Series(band)
		if err != nil {
			return err
		}
		if cfg.Temporal {
			filled, n, err := gapfill.Temporal(series, opts)
			if err != nil {
				return fmt.Errorf("temporal gap fill of %s: %w", band, err)
			}
			series = filled
			report.TemporalFilled += n
		}
		if cfg.Spatial {
			for i, o := range series {
				g, n := gapfill.Spatial(o.Grid, gapfill.SpatialOptions{MaxHoleSize: cfg.MaxHoleSize})
				series[i].Grid = g
				report.SpatialFilled += n
			}
		}
		if err := s.SetSeries(band, series); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) exporter(ctx context.Context, cfg ExportConfig) (*export.Exporter, func(), error) {
	noop := func() {}
	bucket := r.Bucket
	closeBucket := noop
	if bucket == nil {
		if cfg.URL == "" {
			return nil, noop, nil
		}
		b, err := export.Open(ctx, cfg.URL)
		if err != nil {
			return nil, noop, err
		}
		bucket = b
		closeBucket = func() {
			if err := b.Close(); err != nil {
				zap.L().Warn("failed to close bucket", zap.Error(err))
			}
		}
	}

	var enc export.Encoder
	switch cfg.Format {
	case "png":
		enc = output.PNG{Band: cfg.Band}
	default:
		if r.Encoder == nil {
			closeBucket()
			return nil, noop, errors.New("no GeoTIFF encoder configured")
		}
		enc = r.Encoder
	}
	e := export.New(bucket, cfg.Prefix, enc)
	e.Quiet = r.Quiet
	return e, closeBucket, nil
}

func (r *Runner) extract(ctx context.Context, cfg ExtractConfig, s *timeseries.Stack, exporter *export.Exporter, report *Report) error {
	projection := s.Georef().Projection
	if cfg.Points != "" {
		points, err := r.readPoints(cfg.Points, projection)
		if err != nil {
			return err
		}
		records, err := timeseries.ExtractPoints(s, nil, points)
		if err != nil {
			return err
		}
		if r.Locate != nil {
			if err := timeseries.LocatePoints(records, s.Georef(), r.Locate); err != nil {
				return err
			}
		}
		name, err := writeTable(ctx, exporter, cfg.Output+"_points.csv", records)
		if err != nil {
			return err
		}
		report.Tables = append(report.Tables, name)
	}
	if cfg.Zones != "" {
		zones, err := aoi.LoadFile(cfg.Zones, cfg.ZoneIDProperty)
		if err != nil {
			return fmt.Errorf("failed to load zones: %w", err)
		}
		features := make([]aoi.Feature, len(zones.Features))
		for i, f := range zones.Features {
			g, err := r.project(f.Geometry, projection)
			if err != nil {
				return err
			}
			f.Geometry = g
			features[i] = f
		}
		records, err := timeseries.ExtractZonal(s, nil, features)
		if err != nil {
			return err
		}
		name, err := writeTable(ctx, exporter, cfg.Output+"_zonal.csv", records)
		if err != nil {
			return err
		}
		report.Tables = append(report.Tables, name)
	}
	return nil
}

// readPoints loads WGS84 points and moves them into the stack's coordinate
// system.
func (r *Runner) readPoints(file, projection string) ([]timeseries.Point, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	points, err := timeseries.ReadPoints(f)
	if err != nil {
		return nil, err
	}
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	g, err := r.project(mp, projection)
	if err != nil {
		return nil, err
	}
	for i, p := range g.(orb.MultiPoint) {
		points[i].X, points[i].Y = p[0], p[1]
	}
	return points, nil
}

// writeTable writes to the export bucket when there is one, otherwise to a
// local file. It returns where the table went.
func writeTable(ctx context.Context, exporter *export.Exporter, name string, records any) (string, error) {
	if exporter != nil {
		if err := exporter.WriteTable(ctx, name, records); err != nil {
			return "", err
		}
		return path.Join(exporter.Prefix, name), nil
	}
	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	if err := timeseries.WriteCSV(f, records); err != nil {
		f.Close()
		return "", err
	}
	return name, f.Close()
}
