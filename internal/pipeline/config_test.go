package pipeline

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
name: plots
inputs:
  glob: data/*.tif
sensor: sentinel2
scale: true
aoi:
  path: plots.geojson
  feature: "12"
indices: [NDVI, EVI]
custom_indices:
  - name: GR
    expression: green / red
mask:
  type: sentinel2
  max_cloud_probability: 20
filter:
  - band: NDVI
    min: 0.2
    max: 1
  - band: EVI
    max: 1
gapfill:
  temporal: true
  max_gap_days: 30
  edge: nearest
composite:
  period: monthly
  reducer: median
export:
  url: file:///tmp/out
  prefix: plots
extract:
  points: points.csv
  output: plots
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "plots", cfg.Name)
	assert.Equal(t, "data/*.tif", cfg.Inputs.Glob)
	assert.True(t, cfg.Scale)
	assert.Equal(t, "12", cfg.AOI.Feature)
	assert.Equal(t, []string{"NDVI", "EVI"}, cfg.Indices)
	assert.Equal(t, CustomIndex{Name: "GR", Expression: "green / red"}, cfg.Custom[0])
	assert.Equal(t, 20.0, cfg.Mask.MaxCloudProbability)
	require.Len(t, cfg.Filter, 2)
	assert.Equal(t, 0.2, *cfg.Filter[0].Min)
	assert.Nil(t, cfg.Filter[1].Min)
	assert.Equal(t, 1.0, *cfg.Filter[1].Max)
	assert.Equal(t, 30, cfg.GapFill.MaxGapDays)
	assert.Equal(t, "monthly", cfg.Composite.Period)
	assert.Equal(t, "plots", cfg.Extract.Output)
}

func TestParseConfigUnknownField(t *testing.T) {
	_, err := ParseConfig(strings.NewReader("inputs:\n  glob: a.tif\nindicies: [NDVI]\n"))
	assert.Error(t, err)
}

func bound(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	cfg := &Config{
		Custom:  []CustomIndex{{Name: "X"}},
		Mask:    MaskConfig{Type: "fog"},
		Filter: []FilterConfig{
			{Min: bound(0)},
			{Band: "NDVI"},
			{Band: "NDVI", Min: bound(1), Max: bound(0)},
		},
		GapFill: GapFillConfig{Edge: "wrap"},
		Export:  ExportConfig{Format: "png"},
		Extract: ExtractConfig{Points: "p.csv"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"inputs", "custom_indices[0]", "mask.type", "filter[0]: band", "filter[1]: min or max", "filter[2]: min 1 is above max 0", "gapfill.edge", "export.band", "extract.output"} {
		assert.Contains(t, err.Error(), field)
	}

	cfg = &Config{Inputs: Inputs{Glob: "*.tif"}}
	assert.NoError(t, cfg.Validate())
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"S2_2024-07-01.tif", "S2_2024-06-01.tif"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	in := Inputs{
		Glob:  filepath.Join(dir, "*.tif"),
		Files: []InputFile{{Path: "extra.tif", Date: "2024-06-15"}},
	}
	files, err := in.Resolve()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(dir, "S2_2024-06-01.tif"), files[0].Path)
	assert.Equal(t, "extra.tif", files[1].Path)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), files[2].Date)
}

func TestResolveCustomPattern(t *testing.T) {
	in := Inputs{
		Files:       []InputFile{{Path: "/data/T32ULE_20240611T103629_B04.tif"}},
		DatePattern: `_(\d{8})T`,
		DateLayout:  "20060102",
	}
	files, err := in.Resolve()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), files[0].Date)

	in.Files[0].Path = "nodate.tif"
	_, err = in.Resolve()
	assert.ErrorContains(t, err, "nodate.tif")
}

func TestDateFromName(t *testing.T) {
	re := regexp.MustCompile(DefaultDatePattern)
	d, err := DateFromName("/a/b/ndvi_2023-12-31.tif", re, time.DateOnly)
	require.NoError(t, err)
	assert.Equal(t, 2023, d.Year())

	_, err = DateFromName("/a/2023-12-31/ndvi.tif", re, time.DateOnly)
	assert.Error(t, err, "only the base name is searched")
}
