// Package pointcloud implements the geometric core of the projection
// pipeline: 3D point handling, recentring on the canopy anchor, and
// orthographic projection onto vertical planes.
package pointcloud

import (
	"errors"
	"math"
)

// ErrEmptyCloud is returned by operations that are undefined on a cloud
// with no points.
var ErrEmptyCloud = errors.New("point cloud is empty")

// Point is a 3D point in world units (metres for survey LAS files). It
// doubles as a vector for offsets and plane bases.
type Point struct {
	X, Y, Z float64
}

// Dot returns the dot product of p and q.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z
}

// Point2 is a point projected onto a vertical plane: X runs along the
// plane's horizontal axis, Y along the world vertical.
type Point2 struct {
	X, Y float64
}

// HighestPoint returns the point with the largest Z. Ties resolve to the
// earliest point in the slice.
func HighestPoint(pts []Point) (Point, error) {
	if len(pts) == 0 {
		return Point{}, ErrEmptyCloud
	}
	best := pts[0]
	for _, p := range pts[1:] {
		if p.Z > best.Z {
			best = p
		}
	}
	return best, nil
}

// AnchorOffset returns the recentring offset for a cloud: the horizontal
// position of its highest point, with zero vertical component so that
// heights above ground are preserved.
func AnchorOffset(pts []Point) (Point, error) {
	top, err := HighestPoint(pts)
	if err != nil {
		return Point{}, err
	}
	return Point{X: top.X, Y: top.Y}, nil
}

// Recenter subtracts off from every point in place.
func Recenter(pts []Point, off Point) {
	for i := range pts {
		pts[i].X -= off.X
		pts[i].Y -= off.Y
		pts[i].Z -= off.Z
	}
}

// Plane is an orthonormal basis for a vertical projection plane. U spans
// the plane horizontally, V is the world vertical axis, and N is the plane
// normal. Projection consumes U and V; N is carried for normal-based
// culling, which the pipeline does not apply yet.
type Plane struct {
	U, V, N Point
}

// PlaneAt returns the vertical projection plane rotated deg degrees about
// the Z axis.
func PlaneAt(deg float64) Plane {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	return Plane{
		U: Point{X: cos, Y: sin},
		V: Point{Z: 1},
		N: Point{X: -sin, Y: cos},
	}
}

// Project maps every point onto the plane as (p.U, p.V) coordinate pairs.
// Point order is preserved and the input is left unmodified.
func Project(pts []Point, pl Plane) []Point2 {
	out := make([]Point2, len(pts))
	for i, p := range pts {
		out[i] = Point2{X: p.Dot(pl.U), Y: p.Dot(pl.V)}
	}
	return out
}
