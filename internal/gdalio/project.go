package gdalio

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/paulmach/orb"
)

// ToWGS84 converts the centre of pixel (x, y) to longitude and latitude.
func ToWGS84(ref raster.Georef, x, y int) (float64, float64, error) {
	gx, gy := ref.Transform.PixelCenter(x, y)
	if ref.Projection == "" || ref.Geographic {
		return gx, gy, nil
	}
	src, err := godal.NewSpatialRefFromWKT(ref.Projection)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse projection: %w", err)
	}
	defer src.Close()
	dst, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return 0, 0, err
	}
	defer dst.Close()
	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return 0, 0, err
	}
	defer tr.Close()

	xs, ys := []float64{gx}, []float64{gy}
	if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
		return 0, 0, fmt.Errorf("transform error: %w", err)
	}
	return xs[0], ys[0], nil
}

// ProjectGeometry reprojects a WGS84 geometry into the coordinate system
// described by the projection WKT. An empty projection returns geom as is.
func ProjectGeometry(geom orb.Geometry, projection string) (orb.Geometry, error) {
	if projection == "" {
		return geom, nil
	}
	src, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	dst, err := godal.NewSpatialRefFromWKT(projection)
	if err != nil {
		return nil, fmt.Errorf("failed to parse projection: %w", err)
	}
	defer dst.Close()
	if dst.Geographic() {
		return geom, nil
	}
	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	project := func(ring []orb.Point) error {
		if len(ring) == 0 {
			return nil
		}
		xs := make([]float64, len(ring))
		ys := make([]float64, len(ring))
		for i, p := range ring {
			xs[i], ys[i] = p[0], p[1]
		}
		if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
			return err
		}
		for i := range ring {
			ring[i] = orb.Point{xs[i], ys[i]}
		}
		return nil
	}

	out := orb.Clone(geom)
	switch g := out.(type) {
	case orb.Point:
		pts := []orb.Point{g}
		if err := project(pts); err != nil {
			return nil, err
		}
		return pts[0], nil
	case orb.MultiPoint:
		if err := project(g); err != nil {
			return nil, err
		}
	case orb.Polygon:
		for _, r := range g {
			if err := project(r); err != nil {
				return nil, err
			}
		}
	case orb.MultiPolygon:
		for _, p := range g {
			for _, r := range p {
				if err := project(r); err != nil {
					return nil, err
				}
			}
		}
	case orb.Bound:
		ring := g.ToRing()
		if err := project(ring); err != nil {
			return nil, err
		}
		return orb.Polygon{ring}, nil
	default:
		return nil, fmt.Errorf("unsupported geometry %s", geom.GeoJSONType())
	}
	return out, nil
}
