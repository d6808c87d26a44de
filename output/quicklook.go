package output

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/paulmach/orb"
)

// Ramp maps a value normalised to [0, 1] to a colour.
type Ramp func(norm float64) color.RGBA

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

// BlueGreenRed runs from blue through green to red.
func BlueGreenRed(norm float64) color.RGBA {
	var r, g, b uint8
	if norm <= 0.5 {
		ratio := norm / 0.5
		g = uint8(255 * ratio)
		b = uint8(255 * (1 - ratio))
	} else {
		ratio := (norm - 0.5) / 0.5
		r = uint8(255 * ratio)
		g = uint8(255 * (1 - ratio))
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func Greyscale(norm float64) color.RGBA {
	v := uint8(255 * norm)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

type RenderOptions struct {
	// Min and Max bound the colour ramp. When equal, the grid's own range
	// is used.
	Min, Max float64
	Ramp     Ramp
	// Scale is the output size of one raster pixel. Zero means 1.
	Scale int
	// Points are drawn over the raster, in its coordinate system.
	Points      []orb.Point
	PointRadius float64
	PointColor  color.Color
}

// Render draws g with NaN pixels left transparent.
func Render(g *raster.Grid, opts RenderOptions) (image.Image, error) {
	if g.Width == 0 || g.Height == 0 {
		return nil, fmt.Errorf("cannot render an empty grid")
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.Ramp == nil {
		opts.Ramp = BlueGreenRed
	}
	if opts.Min == opts.Max {
		st := g.Stats()
		opts.Min, opts.Max = st.Min, st.Max
	}
	if opts.PointRadius <= 0 {
		opts.PointRadius = 3
	}
	if opts.PointColor == nil {
		opts.PointColor = color.White
	}

	s := opts.Scale
	dc := gg.NewContext(g.Width*s, g.Height*s)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.At(x, y)
			if math.IsNaN(v) {
				continue
			}
			dc.SetColor(opts.Ramp(normalize(v, opts.Min, opts.Max)))
			for dy := 0; dy < s; dy++ {
				for dx := 0; dx < s; dx++ {
					dc.SetPixel(x*s+dx, y*s+dy)
				}
			}
		}
	}

	dc.SetColor(opts.PointColor)
	for _, p := range opts.Points {
		px, py, err := g.Transform.GeoToPixel(p[0], p[1])
		if err != nil {
			return nil, err
		}
		dc.DrawCircle(px*float64(s), py*float64(s), opts.PointRadius)
		dc.Fill()
	}
	return dc.Image(), nil
}

// RenderPNG writes g as a PNG quicklook.
func RenderPNG(w io.Writer, g *raster.Grid, opts RenderOptions) error {
	img, err := Render(g, opts)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// PNG encodes one band of each exported image as a quicklook.
type PNG struct {
	Band    string
	Options RenderOptions
}

func (PNG) Extension() string   { return ".png" }
func (PNG) ContentType() string { return "image/png" }

func (p PNG) Encode(w io.Writer, img *raster.Image) error {
	g, err := img.Band(p.Band)
	if err != nil {
		return err
	}
	return RenderPNG(w, g, p.Options)
}
