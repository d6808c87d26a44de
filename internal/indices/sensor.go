package indices

import (
	"fmt"
	"math"
	"strings"
)

// Sensor maps common band names onto the band names of a product and
// converts stored digital numbers to surface reflectance.
type Sensor struct {
	Name  string
	Bands map[string]string
	// Reflectance = DN*Scale + Offset
	Scale  float64
	Offset float64
}

var Sentinel2 = Sensor{
	Name: "sentinel2",
	Bands: map[string]string{
		"blue":     "B02",
		"green":    "B03",
		"red":      "B04",
		"rededge1": "B05",
		"rededge2": "B06",
		"rededge3": "B07",
		"nir":      "B08",
		"nir08":    "B8A",
		"swir1":    "B11",
		"swir2":    "B12",
	},
	Scale: 1.0 / 10000,
}

// Landsat89 covers the OLI sensors of Landsat 8 and 9, Collection 2 Level 2.
var Landsat89 = Sensor{
	Name: "landsat89",
	Bands: map[string]string{
		"coastal": "SR_B1",
		"blue":    "SR_B2",
		"green":   "SR_B3",
		"red":     "SR_B4",
		"nir":     "SR_B5",
		"swir1":   "SR_B6",
		"swir2":   "SR_B7",
	},
	Scale:  0.0000275,
	Offset: -0.2,
}

// Landsat457 covers TM and ETM+, Collection 2 Level 2.
var Landsat457 = Sensor{
	Name: "landsat457",
	Bands: map[string]string{
		"blue":  "SR_B1",
		"green": "SR_B2",
		"red":   "SR_B3",
		"nir":   "SR_B4",
		"swir1": "SR_B5",
		"swir2": "SR_B7",
	},
	Scale:  0.0000275,
	Offset: -0.2,
}

// MODIS follows the MOD09/MYD09 surface reflectance band naming.
var MODIS = Sensor{
	Name: "modis",
	Bands: map[string]string{
		"red":   "sur_refl_b01",
		"nir":   "sur_refl_b02",
		"blue":  "sur_refl_b03",
		"green": "sur_refl_b04",
		"swir1": "sur_refl_b06",
		"swir2": "sur_refl_b07",
	},
	Scale: 0.0001,
}

var sensors = map[string]Sensor{
	Sentinel2.Name:  Sentinel2,
	Landsat89.Name:  Landsat89,
	Landsat457.Name: Landsat457,
	MODIS.Name:      MODIS,
	"s2":            Sentinel2,
	"landsat8":      Landsat89,
	"landsat9":      Landsat89,
	"landsat5":      Landsat457,
	"landsat7":      Landsat457,
}

func SensorByName(name string) (Sensor, error) {
	s, ok := sensors[strings.ToLower(name)]
	if !ok {
		return Sensor{}, fmt.Errorf("unknown sensor %q", name)
	}
	return s, nil
}

// Resolve returns the product band name for a common name. Names that are
// not common names are returned unchanged so raw band names keep working.
func (s Sensor) Resolve(name string) string {
	if b, ok := s.Bands[strings.ToLower(name)]; ok {
		return b
	}
	return name
}

func (s Sensor) Has(common string) bool {
	_, ok := s.Bands[strings.ToLower(common)]
	return ok
}

func (s Sensor) Reflectance(dn float64) float64 {
	if math.IsNaN(dn) || s.Scale == 0 {
		return dn
	}
	return dn*s.Scale + s.Offset
}
