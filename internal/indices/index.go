package indices

import (
	"errors"
	"math"
)

var ErrUnknownIndex = errors.New("unknown index")

// Index is a per-pixel function of a fixed list of bands. Fn receives the
// band values in the order of Bands.
type Index struct {
	Name        string
	Description string
	Expression  string
	Bands       []string
	Fn          func(v []float64) float64

	// prepare builds a fresh evaluator for indices that keep per-call state.
	prepare func() func([]float64) float64
}

func (idx Index) evaluator() func([]float64) float64 {
	if idx.prepare != nil {
		return idx.prepare()
	}
	return idx.Fn
}

func NormalizedDifference(a, b float64) float64 {
	d := a + b
	if d == 0 || math.IsNaN(d) {
		return math.NaN()
	}
	return (a - b) / d
}

func ratio(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) || math.IsNaN(num) {
		return math.NaN()
	}
	return num / den
}

func nd(name, description, a, b string) Index {
	return Index{
		Name:        name,
		Description: description,
		Expression:  "(" + a + " - " + b + ") / (" + a + " + " + b + ")",
		Bands:       []string{a, b},
		Fn: func(v []float64) float64 {
			return NormalizedDifference(v[0], v[1])
		},
	}
}

func builtins() []Index {
	return []Index{
		nd("NDVI", "Normalized Difference Vegetation Index", "nir", "red"),
		nd("NDWI", "Normalized Difference Water Index (McFeeters)", "green", "nir"),
		nd("MNDWI", "Modified Normalized Difference Water Index", "green", "swir1"),
		nd("NDMI", "Normalized Difference Moisture Index", "nir", "swir1"),
		nd("NBR", "Normalized Burn Ratio", "nir", "swir2"),
		nd("NDBI", "Normalized Difference Built-up Index", "swir1", "nir"),
		nd("GNDVI", "Green Normalized Difference Vegetation Index", "nir", "green"),
		nd("NDRE", "Normalized Difference Red Edge", "nir", "rededge1"),
		{
			Name:        "EVI",
			Description: "Enhanced Vegetation Index",
			Expression:  "2.5 * (nir - red) / (nir + 6 * red - 7.5 * blue + 1)",
			Bands:       []string{"nir", "red", "blue"},
			Fn: func(v []float64) float64 {
				return ratio(2.5*(v[0]-v[1]), v[0]+6*v[1]-7.5*v[2]+1)
			},
		},
		{
			Name:        "EVI2",
			Description: "Two-band Enhanced Vegetation Index",
			Expression:  "2.5 * (nir - red) / (nir + 2.4 * red + 1)",
			Bands:       []string{"nir", "red"},
			Fn: func(v []float64) float64 {
				return ratio(2.5*(v[0]-v[1]), v[0]+2.4*v[1]+1)
			},
		},
		{
			Name:        "SAVI",
			Description: "Soil Adjusted Vegetation Index (L = 0.5)",
			Expression:  "1.5 * (nir - red) / (nir + red + 0.5)",
			Bands:       []string{"nir", "red"},
			Fn: func(v []float64) float64 {
				return ratio(1.5*(v[0]-v[1]), v[0]+v[1]+0.5)
			},
		},
		{
			Name:        "MSAVI",
			Description: "Modified Soil Adjusted Vegetation Index",
			Expression:  "(2 * nir + 1 - sqrt((2 * nir + 1) ** 2 - 8 * (nir - red))) / 2",
			Bands:       []string{"nir", "red"},
			Fn: func(v []float64) float64 {
				nir, red := v[0], v[1]
				disc := (2*nir+1)*(2*nir+1) - 8*(nir-red)
				if disc < 0 || math.IsNaN(disc) {
					return math.NaN()
				}
				return (2*nir + 1 - math.Sqrt(disc)) / 2
			},
		},
		{
			Name:        "PSRI",
			Description: "Plant Senescence Reflectance Index",
			Expression:  "(red - blue) / rededge2",
			Bands:       []string{"red", "blue", "rededge2"},
			Fn: func(v []float64) float64 {
				return ratio(v[0]-v[1], v[2])
			},
		},
	}
}
