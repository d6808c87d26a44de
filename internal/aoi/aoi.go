// Package aoi loads areas of interest from GeoJSON and clips rasters to them.
package aoi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

const DefaultIDProperty = "plot_id"

var ErrFeatureNotFound = errors.New("feature not found")

// Feature is one polygonal area of interest.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Properties map[string]any
}

func (f Feature) Bound() orb.Bound {
	return f.Geometry.Bound()
}

// Centroid returns the area-weighted centroid of the feature.
func (f Feature) Centroid() orb.Point {
	c, _ := planar.CentroidArea(f.Geometry)
	return c
}

// AOI is a set of features read from one GeoJSON document.
type AOI struct {
	Features []Feature
}

type kind struct {
	Type string `json:"type"`
}

// Load reads a FeatureCollection, a Feature or a bare geometry. Feature ids
// come from idProperty, then the GeoJSON id, then the feature position.
func Load(r io.Reader, idProperty string) (*AOI, error) {
	if idProperty == "" {
		idProperty = DefaultIDProperty
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson: %w", err)
	}
	var k kind
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}

	var features []*geojson.Feature
	switch k.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feature collection: %w", err)
		}
		features = fc.Features
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feature: %w", err)
		}
		features = []*geojson.Feature{f}
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse geometry: %w", err)
		}
		features = []*geojson.Feature{geojson.NewFeature(g.Geometry())}
	}

	out := &AOI{}
	for i, f := range features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature %d has no geometry", i)
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon, orb.Bound:
		default:
			return nil, fmt.Errorf("feature %d has unsupported geometry %s", i, f.Geometry.GeoJSONType())
		}
		out.Features = append(out.Features, Feature{
			ID:         featureID(f, idProperty, i),
			Geometry:   f.Geometry,
			Properties: f.Properties,
		})
	}
	if len(out.Features) == 0 {
		return nil, errors.New("geojson holds no features")
	}
	return out, nil
}

func LoadFile(path, idProperty string) (*AOI, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, idProperty)
}

func featureID(f *geojson.Feature, idProperty string, i int) string {
	if v, ok := f.Properties[idProperty]; ok && v != nil {
		return fmt.Sprint(v)
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return fmt.Sprint(i)
}

func (a *AOI) ByID(id string) (Feature, error) {
	for _, f := range a.Features {
		if f.ID == id {
			return f, nil
		}
	}
	return Feature{}, fmt.Errorf("%s: %w", id, ErrFeatureNotFound)
}

// Bound covers every feature.
func (a *AOI) Bound() orb.Bound {
	b := a.Features[0].Bound()
	for _, f := range a.Features[1:] {
		b = b.Union(f.Bound())
	}
	return b
}

// Geometry returns all features as one geometry.
func (a *AOI) Geometry() orb.Geometry {
	if len(a.Features) == 1 {
		return a.Features[0].Geometry
	}
	var mp orb.MultiPolygon
	for _, f := range a.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		case orb.Bound:
			mp = append(mp, g.ToPolygon())
		}
	}
	return mp
}

// Contains reports whether p lies inside a polygonal geometry.
func Contains(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Bound:
		return g.Contains(p)
	}
	return false
}
