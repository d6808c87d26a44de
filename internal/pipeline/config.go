// Package pipeline runs a preprocessing pipeline described in YAML: load,
// clip, mask, compute indices, fill gaps, composite, export and extract.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultDatePattern = `(\d{4}-\d{2}-\d{2})`

type Config struct {
	Name      string          `yaml:"name"`
	Inputs    Inputs          `yaml:"inputs"`
	Sensor    string          `yaml:"sensor"`
	Scale     bool            `yaml:"scale"`
	AOI       AOIConfig       `yaml:"aoi"`
	Indices   []string        `yaml:"indices"`
	Custom    []CustomIndex   `yaml:"custom_indices"`
	Mask      MaskConfig      `yaml:"mask"`
	Filter    []FilterConfig  `yaml:"filter"`
	GapFill   GapFillConfig   `yaml:"gapfill"`
	Composite CompositeConfig `yaml:"composite"`
	Export    ExportConfig    `yaml:"export"`
	Extract   ExtractConfig   `yaml:"extract"`
	Workers   int             `yaml:"workers"`
}

type Inputs struct {
	// Glob selects input files; their dates are parsed from the file name.
	Glob  string      `yaml:"glob"`
	Files []InputFile `yaml:"files"`
	// DatePattern is a regular expression whose first group holds the date.
	DatePattern string `yaml:"date_pattern"`
	DateLayout  string `yaml:"date_layout"`
}

type InputFile struct {
	Path string `yaml:"path"`
	Date string `yaml:"date"`
}

type AOIConfig struct {
	Path       string `yaml:"path"`
	IDProperty string `yaml:"id_property"`
	// Feature selects one feature; empty uses all of them.
	Feature  string `yaml:"feature"`
	CropOnly bool   `yaml:"crop_only"`
}

type CustomIndex struct {
	Name        string `yaml:"name"`
	Expression  string `yaml:"expression"`
	Description string `yaml:"description"`
}

type MaskConfig struct {
	// Type is one of none, sentinel2, scl, landsat or modis.
	Type                string  `yaml:"type"`
	Band                string  `yaml:"band"`
	MaxCloudProbability float64 `yaml:"max_cloud_probability"`
	MaxBrightness       float64 `yaml:"max_brightness"`
	SCLExclude          []int   `yaml:"scl_exclude"`
	Bits                []uint  `yaml:"bits"`
}

// FilterConfig keeps pixels whose band value lies in [Min, Max]. A missing
// bound is open.
type FilterConfig struct {
	Band string   `yaml:"band"`
	Min  *float64 `yaml:"min"`
	Max  *float64 `yaml:"max"`
}

type GapFillConfig struct {
	Temporal    bool   `yaml:"temporal"`
	MaxGapDays  int    `yaml:"max_gap_days"`
	Edge        string `yaml:"edge"`
	Spatial     bool   `yaml:"spatial"`
	MaxHoleSize int    `yaml:"max_hole_size"`
}

type CompositeConfig struct {
	Period  string `yaml:"period"`
	Reducer string `yaml:"reducer"`
}

type ExportConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
	// Format is geotiff or png.
	Format string `yaml:"format"`
	// Band is rendered when Format is png.
	Band string `yaml:"band"`
}

type ExtractConfig struct {
	Points         string `yaml:"points"`
	Zones          string `yaml:"zones"`
	ZoneIDProperty string `yaml:"zone_id_property"`
	// Output names the tables: <output>_points.csv and <output>_zonal.csv.
	Output string `yaml:"output"`
}

func ParseConfig(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseConfig(f)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Inputs.Glob == "" && len(c.Inputs.Files) == 0 {
		errs = append(errs, errors.New("inputs: a glob or a file list is required"))
	}
	if c.Inputs.DatePattern != "" {
		if _, err := regexp.Compile(c.Inputs.DatePattern); err != nil {
			errs = append(errs, fmt.Errorf("inputs.date_pattern: %w", err))
		}
	}
	for i, ci := range c.Custom {
		if ci.Name == "" || ci.Expression == "" {
			errs = append(errs, fmt.Errorf("custom_indices[%d]: name and expression are required", i))
		}
	}
	if !slices.Contains([]string{"", "none", "sentinel2", "scl", "landsat", "modis"}, c.Mask.Type) {
		errs = append(errs, fmt.Errorf("mask.type: unknown type %q", c.Mask.Type))
	}
	for i, f := range c.Filter {
		switch {
		case f.Band == "":
			errs = append(errs, fmt.Errorf("filter[%d]: band is required", i))
		case f.Min == nil && f.Max == nil:
			errs = append(errs, fmt.Errorf("filter[%d]: min or max is required", i))
		case f.Min != nil && f.Max != nil && *f.Min > *f.Max:
			errs = append(errs, fmt.Errorf("filter[%d]: min %g is above max %g", i, *f.Min, *f.Max))
		}
	}
	if !slices.Contains([]string{"", "leave", "nearest"}, c.GapFill.Edge) {
		errs = append(errs, fmt.Errorf("gapfill.edge: unknown mode %q", c.GapFill.Edge))
	}
	if !slices.Contains([]string{"", "geotiff", "png"}, c.Export.Format) {
		errs = append(errs, fmt.Errorf("export.format: unknown format %q", c.Export.Format))
	}
	if c.Export.Format == "png" && c.Export.Band == "" {
		errs = append(errs, errors.New("export.band: required for png export"))
	}
	if (c.Extract.Points != "" || c.Extract.Zones != "") && c.Extract.Output == "" {
		errs = append(errs, errors.New("extract.output: required when extracting"))
	}
	return errors.Join(errs...)
}

// DatedFile is an input path with its acquisition date.
type DatedFile struct {
	Path string
	Date time.Time
}

// Resolve expands the glob and parses every date, in date order.
func (in Inputs) Resolve() ([]DatedFile, error) {
	layout := in.DateLayout
	if layout == "" {
		layout = time.DateOnly
	}
	pattern := in.DatePattern
	if pattern == "" {
		pattern = DefaultDatePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	var out []DatedFile
	for _, f := range in.Files {
		var date time.Time
		if f.Date != "" {
			date, err = time.Parse(time.DateOnly, f.Date)
		} else {
			date, err = DateFromName(f.Path, re, layout)
		}
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", f.Path, err)
		}
		out = append(out, DatedFile{Path: f.Path, Date: date})
	}
	if in.Glob != "" {
		paths, err := filepath.Glob(in.Glob)
		if err != nil {
			return nil, fmt.Errorf("inputs.glob: %w", err)
		}
		for _, p := range paths {
			date, err := DateFromName(p, re, layout)
			if err != nil {
				return nil, fmt.Errorf("input %s: %w", p, err)
			}
			out = append(out, DatedFile{Path: p, Date: date})
		}
	}
	slices.SortStableFunc(out, func(a, b DatedFile) int { return a.Date.Compare(b.Date) })
	return out, nil
}

// DateFromName parses the first group of re in the base name of path.
func DateFromName(path string, re *regexp.Regexp, layout string) (time.Time, error) {
	m := re.FindStringSubmatch(filepath.Base(path))
	if len(m) < 2 {
		return time.Time{}, fmt.Errorf("no date in file name")
	}
	return time.Parse(layout, m[1])
}
