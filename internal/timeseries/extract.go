package timeseries

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/forest-guardian/geoprep/internal/aoi"
	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Point is a named sampling location in the stack's coordinate system.
type Point struct {
	ID string  `csv:"id"`
	X  float64 `csv:"x"`
	Y  float64 `csv:"y"`
}

var ErrNoPoints = errors.New("no points to extract")

// PointRecord is one sampled value. Lon and Lat locate the centre of the
// sampled pixel.
type PointRecord struct {
	ID    string  `csv:"id"`
	Date  string  `csv:"date"`
	Band  string  `csv:"band"`
	X     float64 `csv:"x"`
	Y     float64 `csv:"y"`
	Value float64 `csv:"value"`
	Lon   float64 `csv:"lon"`
	Lat   float64 `csv:"lat"`

	col, row int
}

// Locator converts the centre of pixel (x, y) to longitude and latitude.
type Locator func(ref raster.Georef, x, y int) (lon, lat float64, err error)

type ZonalRecord struct {
	ID     string  `csv:"id"`
	Date   string  `csv:"date"`
	Band   string  `csv:"band"`
	Count  int     `csv:"count"`
	Mean   float64 `csv:"mean"`
	Min    float64 `csv:"min"`
	Max    float64 `csv:"max"`
	Std    float64 `csv:"std"`
	Median float64 `csv:"median"`
}

// ReadPoints parses a CSV with id, x and y columns. A file without any point
// fails with ErrNoPoints.
func ReadPoints(r io.Reader) ([]Point, error) {
	var points []Point
	if err := gocsv.Unmarshal(r, &points); err != nil {
		return nil, fmt.Errorf("failed to read points: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	return points, nil
}

// ExtractPoints samples the pixel under each point for every date and band.
// Points outside the raster are skipped. Lon and Lat are the pixel centre
// when the stack is geographic or has no projection, NaN otherwise until
// LocatePoints fills them.
func ExtractPoints(s *Stack, bands []string, points []Point) ([]PointRecord, error) {
	if len(bands) == 0 {
		bands = s.BandNames()
	}
	type sample struct {
		point    Point
		col, row int
		lon, lat float64
	}
	geographic := s.ref.Geographic || s.ref.Projection == ""
	var samples []sample
	for _, p := range points {
		px, py, err := s.ref.Transform.GeoToPixel(p.X, p.Y)
		if err != nil {
			return nil, err
		}
		x, y := int(math.Floor(px)), int(math.Floor(py))
		if x < 0 || y < 0 || x >= s.ref.Width || y >= s.ref.Height {
			continue
		}
		smp := sample{point: p, col: x, row: y, lon: math.NaN(), lat: math.NaN()}
		if geographic {
			smp.lon, smp.lat = s.ref.Transform.PixelCenter(x, y)
		}
		samples = append(samples, smp)
	}

	var records []PointRecord
	for _, d := range s.dates {
		for _, band := range bands {
			g, err := s.images[d].Band(band)
			if err != nil {
				return nil, fmt.Errorf("image %s: %w", d.Format(time.DateOnly), err)
			}
			for _, smp := range samples {
				records = append(records, PointRecord{
					ID:    smp.point.ID,
					Date:  d.Format(time.DateOnly),
					Band:  band,
					X:     smp.point.X,
					Y:     smp.point.Y,
					Value: g.Data[smp.row*s.ref.Width+smp.col],
					Lon:   smp.lon,
					Lat:   smp.lat,
					col:   smp.col,
					row:   smp.row,
				})
			}
		}
	}
	return records, nil
}

// LocatePoints sets Lon and Lat of records from ExtractPoints with locate.
// Each pixel is located once.
func LocatePoints(records []PointRecord, ref raster.Georef, locate Locator) error {
	type pixel struct{ col, row int }
	located := make(map[pixel][2]float64)
	for i := range records {
		px := pixel{records[i].col, records[i].row}
		ll, ok := located[px]
		if !ok {
			lon, lat, err := locate(ref, px.col, px.row)
			if err != nil {
				return fmt.Errorf("point %s: %w", records[i].ID, err)
			}
			ll = [2]float64{lon, lat}
			located[px] = ll
		}
		records[i].Lon, records[i].Lat = ll[0], ll[1]
	}
	return nil
}

// ExtractZonal computes statistics of the valid pixels whose centre lies in
// each zone, for every date and band. Zones must be in the stack's
// coordinate system.
func ExtractZonal(s *Stack, bands []string, zones []aoi.Feature) ([]ZonalRecord, error) {
	if len(bands) == 0 {
		bands = s.BandNames()
	}
	members := make([][]int, len(zones))
	for i, z := range zones {
		members[i] = zonePixels(s, z.Geometry)
	}

	var records []ZonalRecord
	values := make([]float64, 0)
	for _, d := range s.dates {
		for _, band := range bands {
			g, err := s.images[d].Band(band)
			if err != nil {
				return nil, fmt.Errorf("image %s: %w", d.Format(time.DateOnly), err)
			}
			for i, z := range zones {
				values = values[:0]
				for _, p := range members[i] {
					if v := g.Data[p]; !math.IsNaN(v) {
						values = append(values, v)
					}
				}
				rec := ZonalRecord{
					ID:     z.ID,
					Date:   d.Format(time.DateOnly),
					Band:   band,
					Count:  len(values),
					Mean:   math.NaN(),
					Min:    math.NaN(),
					Max:    math.NaN(),
					Std:    math.NaN(),
					Median: math.NaN(),
				}
				if len(values) > 0 {
					rec.Mean = stat.Mean(values, nil)
					rec.Std = stat.PopStdDev(values, nil)
					rec.Min = floats.Min(values)
					rec.Max = floats.Max(values)
					rec.Median = median(values)
				}
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

func zonePixels(s *Stack, geom orb.Geometry) []int {
	var out []int
	b := geom.Bound()
	for y := 0; y < s.ref.Height; y++ {
		for x := 0; x < s.ref.Width; x++ {
			cx, cy := s.ref.Transform.PixelCenter(x, y)
			p := orb.Point{cx, cy}
			if !b.Contains(p) {
				continue
			}
			if aoi.Contains(geom, p) {
				out = append(out, y*s.ref.Width+x)
			}
		}
	}
	return out
}

// WriteCSV writes a slice of records with a header row.
func WriteCSV(w io.Writer, records any) error {
	return gocsv.Marshal(records, w)
}
