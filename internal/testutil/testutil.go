// Package testutil provides common testing utilities: error assertions and
// synthetic LAS fixtures.
package testutil

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/canopy.view/internal/pointcloud"
)

// AssertNoError fails the test if an error is present.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if no error is present.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// LASOptions shape the synthetic files produced by LASBytes. The zero value
// yields a LAS 1.2 file with point format 0 and millimetre scale.
type LASOptions struct {
	VersionMinor uint8
	PointFormat  uint8
	RecordLength uint16 // defaults to 20, the format 0 size
	Scale        float64
	Compressed   bool // set the LAZ compression bit on the format byte
	VLRPadding   int  // bytes between header end and point data
}

const (
	lasHeaderSize    = 227
	lasHeaderSizeV14 = 375
)

// LASBytes builds a minimal valid LAS file holding pts. Coordinates are
// quantised to opt.Scale. Version minors of 4 and above get the extended
// 375 byte header with the 64-bit point count and a zero legacy count.
func LASBytes(t *testing.T, pts []pointcloud.Point, opt LASOptions) []byte {
	t.Helper()

	if opt.VersionMinor == 0 {
		opt.VersionMinor = 2
	}
	if opt.RecordLength == 0 {
		opt.RecordLength = 20
	}
	if opt.Scale == 0 {
		opt.Scale = 0.001
	}

	headerSize := lasHeaderSize
	if opt.VersionMinor >= 4 {
		headerSize = lasHeaderSizeV14
	}

	hdr := make([]byte, headerSize)
	copy(hdr, "LASF")
	hdr[24] = 1
	hdr[25] = opt.VersionMinor
	binary.LittleEndian.PutUint16(hdr[94:], uint16(headerSize))
	binary.LittleEndian.PutUint32(hdr[96:], uint32(headerSize+opt.VLRPadding))
	format := opt.PointFormat
	if opt.Compressed {
		format |= 0x80
	}
	hdr[104] = format
	binary.LittleEndian.PutUint16(hdr[105:], opt.RecordLength)
	if opt.VersionMinor >= 4 {
		binary.LittleEndian.PutUint64(hdr[247:], uint64(len(pts)))
	} else {
		binary.LittleEndian.PutUint32(hdr[107:], uint32(len(pts)))
	}
	for i, scale := range []float64{opt.Scale, opt.Scale, opt.Scale} {
		binary.LittleEndian.PutUint64(hdr[131+8*i:], math.Float64bits(scale))
	}
	putBounds(hdr, pts)

	out := append(hdr, make([]byte, opt.VLRPadding)...)
	rec := make([]byte, opt.RecordLength)
	for _, p := range pts {
		for i := range rec {
			rec[i] = 0
		}
		binary.LittleEndian.PutUint32(rec[0:], uint32(int32(math.Round(p.X/opt.Scale))))
		binary.LittleEndian.PutUint32(rec[4:], uint32(int32(math.Round(p.Y/opt.Scale))))
		binary.LittleEndian.PutUint32(rec[8:], uint32(int32(math.Round(p.Z/opt.Scale))))
		out = append(out, rec...)
	}
	return out
}

func putBounds(hdr []byte, pts []pointcloud.Point) {
	if len(pts) == 0 {
		return
	}
	maxX, minX := pts[0].X, pts[0].X
	maxY, minY := pts[0].Y, pts[0].Y
	maxZ, minZ := pts[0].Z, pts[0].Z
	for _, p := range pts[1:] {
		maxX, minX = math.Max(maxX, p.X), math.Min(minX, p.X)
		maxY, minY = math.Max(maxY, p.Y), math.Min(minY, p.Y)
		maxZ, minZ = math.Max(maxZ, p.Z), math.Min(minZ, p.Z)
	}
	for i, v := range []float64{maxX, minX, maxY, minY, maxZ, minZ} {
		binary.LittleEndian.PutUint64(hdr[179+8*i:], math.Float64bits(v))
	}
}

// WriteLAS writes a default-option synthetic LAS file into dir and returns
// its path.
func WriteLAS(t *testing.T, dir, name string, pts []pointcloud.Point) string {
	t.Helper()
	return WriteLASWith(t, dir, name, pts, LASOptions{})
}

// WriteLASWith writes a synthetic LAS file with explicit options.
func WriteLASWith(t *testing.T, dir, name string, pts []pointcloud.Point, opt LASOptions) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating fixture dir: %v", err)
	}
	if err := os.WriteFile(path, LASBytes(t, pts, opt), 0644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}

// TreePoints returns a small synthetic tree scan: a vertical trunk with a
// spread of canopy points around the top. All coordinates sit on the
// millimetre lattice used by LASBytes.
func TreePoints() []pointcloud.Point {
	pts := []pointcloud.Point{
		{X: 100, Y: 200, Z: 10}, // canopy anchor, highest point
	}
	// Trunk.
	for i := 0; i < 20; i++ {
		pts = append(pts, pointcloud.Point{X: 100, Y: 200, Z: float64(i) * 0.5})
	}
	// Canopy ring.
	for i := 0; i < 16; i++ {
		dx := float64(i%4)*0.5 - 0.75
		dy := float64(i/4)*0.5 - 0.75
		pts = append(pts, pointcloud.Point{X: 100 + dx, Y: 200 + dy, Z: 8 + 0.25*float64(i%3)})
	}
	return pts
}
