package mask

import (
	"math"

	"github.com/forest-guardian/geoprep/internal/raster"
)

// Sentinel-2 L2A scene classification values.
const (
	SCLNoData = iota
	SCLSaturated
	SCLDarkArea
	SCLCloudShadow
	SCLVegetation
	SCLNotVegetated
	SCLWater
	SCLUnclassified
	SCLCloudMedium
	SCLCloudHigh
	SCLCirrus
	SCLSnow
)

var DefaultSCLExclude = []int{SCLNoData, SCLSaturated, SCLCloudShadow, SCLCloudMedium, SCLCloudHigh, SCLCirrus}

func SCLMask(scl *raster.Grid, exclude ...int) Mask {
	if len(exclude) == 0 {
		exclude = DefaultSCLExclude
	}
	return ValueMask(scl, exclude...)
}

// Landsat Collection 2 QA_PIXEL bits.
const (
	LandsatFill         = 0
	LandsatDilatedCloud = 1
	LandsatCirrus       = 2
	LandsatCloud        = 3
	LandsatCloudShadow  = 4
	LandsatSnow         = 5
)

var DefaultLandsatBits = []uint{LandsatFill, LandsatDilatedCloud, LandsatCirrus, LandsatCloud, LandsatCloudShadow}

// MODIS state_1km bits. Cloud state occupies bits 0-1; any non-zero value
// is cloudy or mixed.
const (
	MODISCloudState0   = 0
	MODISCloudState1   = 1
	MODISCloudShadow   = 2
	MODISCirrus0       = 8
	MODISCirrus1       = 9
	MODISInternalCloud = 10
)

var DefaultMODISBits = []uint{MODISCloudState0, MODISCloudState1, MODISCloudShadow, MODISCirrus0, MODISCirrus1, MODISInternalCloud}

// QABitMask drops pixels with any of the given bits set.
func QABitMask(qa *raster.Grid, bits ...uint) Mask {
	var flags uint64
	for _, b := range bits {
		flags |= 1 << b
	}
	m := make(Mask, len(qa.Data))
	for i, v := range qa.Data {
		if math.IsNaN(v) || v < 0 {
			continue
		}
		m[i] = uint64(v)&flags == 0
	}
	return m
}

// Sentinel2Options selects the validity rules applied by Sentinel2Quality.
type Sentinel2Options struct {
	SCLBand      string
	CloudBand    string
	BlueBand     string
	RedBand      string
	SCLExclude   []int
	MaxCloudProb float64
	// MaxBrightness is compared against the mean of blue and red reflectance;
	// zero disables the check.
	MaxBrightness float64
	// Scale converts blue/red digital numbers to reflectance before the
	// brightness check.
	Scale float64
}

func DefaultSentinel2Options() Sentinel2Options {
	return Sentinel2Options{
		SCLBand:       "SCL",
		CloudBand:     "CLD",
		BlueBand:      "B02",
		RedBand:       "B04",
		SCLExclude:    DefaultSCLExclude,
		MaxBrightness: 0.9,
		Scale:         1,
	}
}

// Sentinel2Quality combines the SCL, cloud probability and brightness rules
// for whichever of those bands the image carries.
func Sentinel2Quality(img *raster.Image, opts Sentinel2Options) (Mask, error) {
	m := All(img.Size())
	if img.HasBand(opts.SCLBand) {
		scl, _ := img.Band(opts.SCLBand)
		if _, err := m.And(SCLMask(scl, opts.SCLExclude...)); err != nil {
			return nil, err
		}
	}
	if img.HasBand(opts.CloudBand) {
		cld, _ := img.Band(opts.CloudBand)
		if _, err := m.And(ThresholdMask(cld, opts.MaxCloudProb)); err != nil {
			return nil, err
		}
	}
	if opts.MaxBrightness > 0 && img.HasBand(opts.BlueBand) && img.HasBand(opts.RedBand) {
		blue, _ := img.Band(opts.BlueBand)
		red, _ := img.Band(opts.RedBand)
		if opts.Scale != 0 && opts.Scale != 1 {
			blue = scaled(blue, opts.Scale)
			red = scaled(red, opts.Scale)
		}
		bm, err := BrightnessMask(blue, red, opts.MaxBrightness)
		if err != nil {
			return nil, err
		}
		if _, err := m.And(bm); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func scaled(g *raster.Grid, f float64) *raster.Grid {
	out := g.Clone()
	for i := range out.Data {
		out.Data[i] *= f
	}
	return out
}
