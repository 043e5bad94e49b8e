// Package render rasterises density grids into grayscale PNG images.
//
// Counts are log scaled before display so single stray returns stay visible
// next to dense trunk cells, then mapped onto an inverted gray ramp: empty
// cells print near white, dense cells black.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/canopy.view/internal/pointcloud"
)

// Options control the rasterisation of one density grid.
type Options struct {
	// HeightPx fixes the image height. Width follows from the grid's
	// spatial aspect ratio so trees are never stretched.
	HeightPx int

	// DPI is the raster resolution of the drawing canvas.
	DPI int

	// VMaxScale sets the display ceiling to this fraction of the largest
	// log-scaled cell. Cells above the ceiling clamp to black, which
	// stretches contrast across the sparse canopy cells.
	VMaxScale float64

	// Floor is the display minimum. Below zero leaves empty cells a
	// shade off pure white.
	Floor float64

	// PaletteSize is the number of gray levels.
	PaletteSize int

	// ThumbHeightPx is the height of preview thumbnails.
	ThumbHeightPx int
}

// DefaultOptions returns the rendering defaults used by the batch pipeline.
func DefaultOptions() Options {
	return Options{
		HeightPx:      1000,
		DPI:           100,
		VMaxScale:     0.5,
		Floor:         -1,
		PaletteSize:   256,
		ThumbHeightPx: 160,
	}
}

// logGrid presents a density grid with log1p applied to every cell, as the
// heat map consumes it.
type logGrid struct {
	*pointcloud.Grid
}

func (g logGrid) Z(c, r int) float64 { return math.Log1p(g.Grid.Z(c, r)) }

// grayPalette is an inverted gray ramp: index 0 is white, the last index
// black.
type grayPalette struct {
	levels int
}

func (p grayPalette) Colors() []color.Color {
	cs := make([]color.Color, p.levels)
	for i := range cs {
		cs[i] = color.Gray{Y: uint8(255 - i*255/(p.levels-1))}
	}
	return cs
}

// WidthFor returns the pixel width that preserves the grid's spatial aspect
// ratio at the given height, rounded to the nearest pixel.
func WidthFor(g *pointcloud.Grid, heightPx int) int {
	if g.XRange() <= 0 || g.YRange() <= 0 {
		return 0
	}
	return int(math.Round(float64(heightPx) / (g.YRange() / g.XRange())))
}

// Heatmap renders the grid into a grayscale image. The canvas is exactly
// opt.HeightPx tall and WidthFor(g, opt.HeightPx) wide, with no axes,
// ticks, or padding.
func Heatmap(g *pointcloud.Grid, opt Options) (image.Image, error) {
	if g == nil || g.Count() == 0 {
		return nil, fmt.Errorf("render: empty grid")
	}
	widthPx := WidthFor(g, opt.HeightPx)
	if widthPx <= 0 || opt.HeightPx <= 0 {
		return nil, fmt.Errorf("render: invalid canvas %dx%d", widthPx, opt.HeightPx)
	}

	levels := opt.PaletteSize
	if levels < 2 {
		levels = 2
	}

	hm := plotter.NewHeatMap(logGrid{g}, grayPalette{levels: levels})
	hm.Min = opt.Floor
	hm.Max = opt.VMaxScale * math.Log1p(g.MaxCount())
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}
	hm.Overflow = color.Black
	hm.Underflow = color.White

	p := plot.New()
	p.Add(hm)
	p.HideAxes()
	p.X.Padding = 0
	p.Y.Padding = 0

	dpi := opt.DPI
	if dpi <= 0 {
		dpi = DefaultOptions().DPI
	}
	w := vg.Length(widthPx) * vg.Inch / vg.Length(dpi)
	h := vg.Length(opt.HeightPx) * vg.Inch / vg.Length(dpi)
	c := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))
	p.Draw(draw.New(c))

	return c.Image(), nil
}

// WritePNG writes img to path, creating parent directories as needed.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

// Thumbnail scales img down to heightPx, preserving aspect ratio.
func Thumbnail(img image.Image, heightPx int) image.Image {
	return resize.Resize(0, uint(heightPx), img, resize.Lanczos3)
}

// AngleLabel formats a projection angle for file names: plain degrees with
// no padding or unit suffix.
func AngleLabel(deg float64) string {
	return strconv.FormatFloat(deg, 'f', -1, 64)
}

// AnglesLabel formats a set of angles as a comma separated list.
func AnglesLabel(degs []float64) string {
	parts := make([]string, len(degs))
	for i, d := range degs {
		parts[i] = AngleLabel(d)
	}
	return strings.Join(parts, ",")
}
