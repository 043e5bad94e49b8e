package pointcloud

import (
	"errors"
	"math"
	"testing"
)

func TestBuildGridUnitSquare(t *testing.T) {
	// Four corners of the unit square: pd = sqrt(1*1/4) = 0.5, giving a
	// 2x2 grid with one point per cell.
	pts := []Point2{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

	g, err := BuildGrid(pts)
	if err != nil {
		t.Fatalf("BuildGrid returned error: %v", err)
	}

	if g.BinWidth() != 0.5 {
		t.Errorf("Expected bin width 0.5, got %v", g.BinWidth())
	}
	cols, rows := g.Dims()
	if cols != 2 || rows != 2 {
		t.Fatalf("Expected 2x2 grid, got %dx%d", cols, rows)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if g.Z(c, r) != 1 {
				t.Errorf("Cell (%d,%d) = %v, want 1", c, r, g.Z(c, r))
			}
		}
	}
	if g.Count() != 4 {
		t.Errorf("Count() = %d, want 4", g.Count())
	}
	if g.MaxCount() != 1 {
		t.Errorf("MaxCount() = %v, want 1", g.MaxCount())
	}
}

func TestBuildGridConservesPoints(t *testing.T) {
	// Irregular spread including points sitting exactly on the extent
	// corners.
	pts := []Point2{
		{0, 0}, {0.3, 4.9}, {1.7, 2.2}, {2.9, 0.1}, {3, 5},
		{1.5, 1.5}, {1.5, 1.5}, {0.01, 4.99}, {2.5, 3.75}, {0.9, 0.9},
		{2.2, 4.4}, {1.1, 3.3},
	}

	g, err := BuildGrid(pts)
	if err != nil {
		t.Fatalf("BuildGrid returned error: %v", err)
	}

	cols, rows := g.Dims()
	var sum float64
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			sum += g.Z(c, r)
		}
	}
	if sum != float64(len(pts)) {
		t.Errorf("Cell counts sum to %v, want %d", sum, len(pts))
	}
	if g.Count() != len(pts) {
		t.Errorf("Count() = %d, want %d", g.Count(), len(pts))
	}
}

func TestBuildGridMaximumFallsInFinalBin(t *testing.T) {
	// The data maximum sits on the final bin edge and must still be
	// counted there rather than dropped.
	pts := []Point2{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

	g, err := BuildGrid(pts)
	if err != nil {
		t.Fatalf("BuildGrid returned error: %v", err)
	}
	cols, rows := g.Dims()
	if got := g.Z(cols-1, rows-1); got != 1 {
		t.Errorf("Final cell = %v, want 1", got)
	}
}

func TestBuildGridRanges(t *testing.T) {
	pts := []Point2{{0, 0}, {2, 0}, {0, 1}, {2, 1}}

	g, err := BuildGrid(pts)
	if err != nil {
		t.Fatalf("BuildGrid returned error: %v", err)
	}
	if g.XRange() != 2 {
		t.Errorf("XRange() = %v, want 2", g.XRange())
	}
	if g.YRange() != 1 {
		t.Errorf("YRange() = %v, want 1", g.YRange())
	}
	want := math.Sqrt(2.0 * 1.0 / 4.0)
	if math.Abs(g.BinWidth()-want) > 1e-12 {
		t.Errorf("BinWidth() = %v, want %v", g.BinWidth(), want)
	}
}

func TestBuildGridCellCentres(t *testing.T) {
	pts := []Point2{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

	g, err := BuildGrid(pts)
	if err != nil {
		t.Fatalf("BuildGrid returned error: %v", err)
	}
	if g.X(0) != 0.25 || g.X(1) != 0.75 {
		t.Errorf("X centres = %v, %v, want 0.25, 0.75", g.X(0), g.X(1))
	}
	if g.Y(0) != 0.25 || g.Y(1) != 0.75 {
		t.Errorf("Y centres = %v, %v, want 0.25, 0.75", g.Y(0), g.Y(1))
	}
}

func TestBuildGridDegenerate(t *testing.T) {
	tests := []struct {
		name string
		pts  []Point2
	}{
		{"single point", []Point2{{1, 2}}},
		{"identical points", []Point2{{1, 2}, {1, 2}, {1, 2}}},
		{"vertical line", []Point2{{1, 0}, {1, 5}, {1, 9}}},
		{"horizontal line", []Point2{{0, 3}, {4, 3}, {8, 3}}},
	}

	for _, tc := range tests {
		_, err := BuildGrid(tc.pts)
		if !errors.Is(err, ErrDegenerateExtent) {
			t.Errorf("%s: expected ErrDegenerateExtent, got %v", tc.name, err)
		}
	}
}

func TestBuildGridEmpty(t *testing.T) {
	_, err := BuildGrid(nil)
	if !errors.Is(err, ErrEmptyCloud) {
		t.Errorf("Expected ErrEmptyCloud, got %v", err)
	}
}

func TestBinIndex(t *testing.T) {
	edges := []float64{0, 0.5, 1.0}

	tests := []struct {
		v    float64
		want int
	}{
		{0, 0},
		{0.25, 0},
		{0.5, 1}, // interior edges are left-closed
		{0.99, 1},
		{1.0, 1}, // the data maximum sits on the final edge and stays in range
		{-0.1, -1},
		{1.1, -1},
	}

	for _, tc := range tests {
		if got := binIndex(edges, tc.v); got != tc.want {
			t.Errorf("binIndex(%v) = %d, want %d", tc.v, got, tc.want)
		}
	}
}
