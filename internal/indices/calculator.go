package indices

import (
	"fmt"
	"math"

	"github.com/forest-guardian/geoprep/internal/raster"
)

// Calculator computes indices over images of one sensor.
type Calculator struct {
	Sensor  Sensor
	Catalog *Catalog
	// Scale converts digital numbers to reflectance before evaluation.
	Scale bool
}

func NewCalculator(sensor Sensor, catalog *Catalog) *Calculator {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Calculator{Sensor: sensor, Catalog: catalog}
}

// Compute returns a new image with one band per requested index, named after
// the index. Georef and date are copied from img.
func (c *Calculator) Compute(img *raster.Image, names ...string) (*raster.Image, error) {
	out := raster.NewImage(img.Georef, img.Date)
	for _, name := range names {
		idx, err := c.Catalog.Get(name)
		if err != nil {
			return nil, err
		}
		data, err := c.computeIndex(img, idx)
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s: %w", idx.Name, err)
		}
		if err := out.AddBand(idx.Name, data); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Calculator) computeIndex(img *raster.Image, idx Index) ([]float64, error) {
	inputs := make([][]float64, len(idx.Bands))
	for i, b := range idx.Bands {
		g, err := img.Band(c.Sensor.Resolve(b))
		if err != nil {
			return nil, err
		}
		inputs[i] = g.Data
	}

	eval := idx.evaluator()
	result := make([]float64, img.Size())
	v := make([]float64, len(inputs))
	for p := range result {
		missing := false
		for i, band := range inputs {
			value := band[p]
			if math.IsNaN(value) {
				missing = true
				break
			}
			if c.Scale {
				value = c.Sensor.Reflectance(value)
			}
			v[i] = value
		}
		if missing {
			result[p] = math.NaN()
			continue
		}
		result[p] = eval(v)
	}
	return result, nil
}
