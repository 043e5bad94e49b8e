package pointcloud

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrDegenerateExtent is returned when a projected point set spans zero
// area, so no density bin width can be derived for it.
var ErrDegenerateExtent = errors.New("projected extent is degenerate")

// Grid is a 2D density histogram over a projected point set. Cell counts
// are stored with the row index increasing along the vertical axis, so the
// grid reads like the image it becomes. Both axes share one adaptive bin
// width. Grid satisfies gonum's plotter.GridXYZ.
type Grid struct {
	counts []float64
	cols   int
	rows   int

	binWidth   float64
	xMin, xMax float64
	yMin, yMax float64
	n          int
}

// BuildGrid bins projected points into a density grid. The bin width
// adapts to point density as sqrt(xrange*yrange/N), keeping the mean
// occupancy near one point per cell regardless of scan resolution. Bin
// edges start at the data minimum and extend one bin past the maximum so
// every point lands inside a bin.
func BuildGrid(pts []Point2) (*Grid, error) {
	if len(pts) == 0 {
		return nil, ErrEmptyCloud
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.X
		ys[i] = p.Y
	}
	xMin, xMax := floats.Min(xs), floats.Max(xs)
	yMin, yMax := floats.Min(ys), floats.Max(ys)

	pd := math.Sqrt((xMax - xMin) * (yMax - yMin) / float64(len(pts)))
	if pd <= 0 || math.IsNaN(pd) || math.IsInf(pd, 0) {
		return nil, fmt.Errorf("%w: x span %g, y span %g over %d points",
			ErrDegenerateExtent, xMax-xMin, yMax-yMin, len(pts))
	}

	xEdges := binEdges(xMin, xMax, pd)
	yEdges := binEdges(yMin, yMax, pd)

	g := &Grid{
		counts:   make([]float64, (len(xEdges)-1)*(len(yEdges)-1)),
		cols:     len(xEdges) - 1,
		rows:     len(yEdges) - 1,
		binWidth: pd,
		xMin:     xMin,
		xMax:     xMax,
		yMin:     yMin,
		yMax:     yMax,
	}
	for i := range pts {
		xi := binIndex(xEdges, xs[i])
		yi := binIndex(yEdges, ys[i])
		if xi < 0 || yi < 0 {
			continue
		}
		g.counts[yi*g.cols+xi]++
		g.n++
	}
	return g, nil
}

// binEdges returns min, min+pd, min+2*pd, ... for every multiple below
// max+pd. The cushion past max keeps the maximum value inside the final
// bin. A positive pd guarantees at least two edges.
func binEdges(min, max, pd float64) []float64 {
	stop := max + pd
	edges := make([]float64, 0, int((max-min)/pd)+2)
	for k := 0; ; k++ {
		e := min + float64(k)*pd
		if e >= stop {
			break
		}
		edges = append(edges, e)
	}
	return edges
}

// binIndex places v into the half-open bin [edges[i], edges[i+1]). The
// final bin is closed on the right so the data maximum is counted. Values
// outside the edge range report -1.
func binIndex(edges []float64, v float64) int {
	if v < edges[0] || v > edges[len(edges)-1] {
		return -1
	}
	i := sort.Search(len(edges), func(i int) bool { return edges[i] > v }) - 1
	if i > len(edges)-2 {
		i = len(edges) - 2
	}
	return i
}

// Dims returns the number of columns and rows.
func (g *Grid) Dims() (c, r int) { return g.cols, g.rows }

// Z returns the count in the cell at column c, row r.
func (g *Grid) Z(c, r int) float64 { return g.counts[r*g.cols+c] }

// X returns the centre coordinate of column c.
func (g *Grid) X(c int) float64 { return g.xMin + (float64(c)+0.5)*g.binWidth }

// Y returns the centre coordinate of row r.
func (g *Grid) Y(r int) float64 { return g.yMin + (float64(r)+0.5)*g.binWidth }

// Count returns the number of points binned into the grid.
func (g *Grid) Count() int { return g.n }

// MaxCount returns the largest cell count.
func (g *Grid) MaxCount() float64 {
	if len(g.counts) == 0 {
		return 0
	}
	return floats.Max(g.counts)
}

// BinWidth returns the adaptive bin width shared by both axes.
func (g *Grid) BinWidth() float64 { return g.binWidth }

// XRange returns the horizontal span of the source data.
func (g *Grid) XRange() float64 { return g.xMax - g.xMin }

// YRange returns the vertical span of the source data.
func (g *Grid) YRange() float64 { return g.yMax - g.yMin }
