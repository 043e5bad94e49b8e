// Package las reads ASPRS LAS point cloud files.
//
// The reader decodes the public header block for LAS versions 1.0 through
// 1.4 and the X/Y/Z coordinates of every point record format: formats 0
// through 10 all lead with the same three packed int32 fields. Variable
// length records are skipped. LAZ compressed data is detected and rejected
// so callers can surface a clear per-file error instead of garbage points.
package las

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/canopy.view/internal/pointcloud"
)

// LAS public header layout. Offsets are bytes from the start of the file,
// per the ASPRS LAS 1.4 R15 specification.
const (
	FILE_SIGNATURE = "LASF"

	HEADER_SIZE_V10 = 227 // LAS 1.0 through 1.2
	HEADER_SIZE_V13 = 235 // adds start of waveform data packet record
	HEADER_SIZE_V14 = 375 // adds EVLR block and 64-bit point counts

	OFFSET_VERSION_MAJOR   = 24  // uint8
	OFFSET_VERSION_MINOR   = 25  // uint8
	OFFSET_HEADER_SIZE     = 94  // uint16
	OFFSET_POINT_DATA      = 96  // uint32, start of point records
	OFFSET_VLR_COUNT       = 100 // uint32
	OFFSET_POINT_FORMAT    = 104 // uint8, high bit flags LAZ compression
	OFFSET_RECORD_LENGTH   = 105 // uint16
	OFFSET_LEGACY_COUNT    = 107 // uint32 point count (all versions)
	OFFSET_SCALE_X         = 131 // 3 x float64
	OFFSET_OFFSET_X        = 155 // 3 x float64
	OFFSET_BOUNDS          = 179 // 6 x float64: maxX minX maxY minY maxZ minZ
	OFFSET_EXTENDED_COUNT  = 247 // uint64 point count (LAS 1.4)
	LAZ_COMPRESSION_BIT    = 0x80
	MIN_POINT_RECORD_BYTES = 12 // X, Y, Z packed int32s lead every format
)

// pointRecordSize holds the minimum record length for point data record
// formats 0 through 10. Files may declare longer records; shorter ones are
// malformed.
var pointRecordSize = [11]uint16{20, 28, 26, 34, 57, 63, 30, 36, 38, 59, 67}

var (
	// ErrNotLAS means the file signature did not match "LASF".
	ErrNotLAS = errors.New("not a LAS file")

	// ErrCompressedLAZ means the points are LAZ compressed, which this
	// reader does not decode.
	ErrCompressedLAZ = errors.New("LAZ compression not supported")
)

// Header is the decoded LAS public header block.
type Header struct {
	VersionMajor    uint8
	VersionMinor    uint8
	HeaderSize      uint16
	PointDataOffset uint32
	VLRCount        uint32
	PointFormat     uint8
	Compressed      bool
	RecordLength    uint16
	PointCount      uint64

	ScaleX, ScaleY, ScaleZ    float64
	OffsetX, OffsetY, OffsetZ float64

	MaxX, MinX float64
	MaxY, MinY float64
	MaxZ, MinZ float64
}

// Cloud is a fully decoded point cloud.
type Cloud struct {
	Header Header
	Points []pointcloud.Point
}

// ReadHeader decodes the public header block, consuming exactly HeaderSize
// bytes from r. Compressed files decode normally here; only point data is
// unreadable, so triage tools can still inspect LAZ headers.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HEADER_SIZE_V10)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, fmt.Errorf("reading header: %w", err)
	}
	if sig := string(buf[:4]); sig != FILE_SIGNATURE {
		return Header{}, fmt.Errorf("%w: signature %q", ErrNotLAS, sig)
	}

	h := Header{
		VersionMajor:    buf[OFFSET_VERSION_MAJOR],
		VersionMinor:    buf[OFFSET_VERSION_MINOR],
		HeaderSize:      binary.LittleEndian.Uint16(buf[OFFSET_HEADER_SIZE:]),
		PointDataOffset: binary.LittleEndian.Uint32(buf[OFFSET_POINT_DATA:]),
		VLRCount:        binary.LittleEndian.Uint32(buf[OFFSET_VLR_COUNT:]),
		PointFormat:     buf[OFFSET_POINT_FORMAT],
		RecordLength:    binary.LittleEndian.Uint16(buf[OFFSET_RECORD_LENGTH:]),
		PointCount:      uint64(binary.LittleEndian.Uint32(buf[OFFSET_LEGACY_COUNT:])),
		ScaleX:          f64at(buf, OFFSET_SCALE_X),
		ScaleY:          f64at(buf, OFFSET_SCALE_X+8),
		ScaleZ:          f64at(buf, OFFSET_SCALE_X+16),
		OffsetX:         f64at(buf, OFFSET_OFFSET_X),
		OffsetY:         f64at(buf, OFFSET_OFFSET_X+8),
		OffsetZ:         f64at(buf, OFFSET_OFFSET_X+16),
		MaxX:            f64at(buf, OFFSET_BOUNDS),
		MinX:            f64at(buf, OFFSET_BOUNDS+8),
		MaxY:            f64at(buf, OFFSET_BOUNDS+16),
		MinY:            f64at(buf, OFFSET_BOUNDS+24),
		MaxZ:            f64at(buf, OFFSET_BOUNDS+32),
		MinZ:            f64at(buf, OFFSET_BOUNDS+40),
	}

	if h.VersionMajor != 1 {
		return Header{}, fmt.Errorf("unsupported LAS version %d.%d", h.VersionMajor, h.VersionMinor)
	}
	if int(h.HeaderSize) < HEADER_SIZE_V10 {
		return Header{}, fmt.Errorf("invalid header size: expected at least %d, got %d", HEADER_SIZE_V10, h.HeaderSize)
	}

	if h.PointFormat&LAZ_COMPRESSION_BIT != 0 {
		h.Compressed = true
		h.PointFormat &^= LAZ_COMPRESSION_BIT
	}

	// Consume the 1.3/1.4 header extension, or vendor padding, so the
	// reader is positioned at HeaderSize afterwards.
	if rest := int(h.HeaderSize) - HEADER_SIZE_V10; rest > 0 {
		ext := make([]byte, rest)
		if _, err := io.ReadFull(r, ext); err != nil {
			return Header{}, fmt.Errorf("reading header extension: %w", err)
		}
		if h.VersionMinor >= 4 && rest >= HEADER_SIZE_V14-HEADER_SIZE_V10 {
			if n := binary.LittleEndian.Uint64(ext[OFFSET_EXTENDED_COUNT-HEADER_SIZE_V10:]); n != 0 {
				h.PointCount = n
			}
		}
	}

	return h, nil
}

// Read decodes a complete LAS stream into a point cloud.
func Read(r io.Reader) (*Cloud, error) {
	br := bufio.NewReaderSize(r, 1<<16)

	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	if h.Compressed {
		return nil, ErrCompressedLAZ
	}

	// Skip the VLR block and any padding before the point records.
	skip := int64(h.PointDataOffset) - int64(h.HeaderSize)
	if skip < 0 {
		return nil, fmt.Errorf("invalid point data offset: %d precedes header end %d", h.PointDataOffset, h.HeaderSize)
	}
	if _, err := io.CopyN(io.Discard, br, skip); err != nil {
		return nil, fmt.Errorf("skipping to point data: %w", err)
	}

	pts, err := readPoints(br, h)
	if err != nil {
		return nil, err
	}
	return &Cloud{Header: h, Points: pts}, nil
}

// ReadFile opens and decodes a LAS file. Files with a .laz extension are
// rejected up front without opening them.
func ReadFile(path string) (*Cloud, error) {
	if strings.EqualFold(filepath.Ext(path), ".laz") {
		return nil, fmt.Errorf("%s: %w", path, ErrCompressedLAZ)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cloud, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cloud, nil
}

func readPoints(r io.Reader, h Header) ([]pointcloud.Point, error) {
	if int(h.PointFormat) >= len(pointRecordSize) {
		return nil, fmt.Errorf("unsupported point data record format %d", h.PointFormat)
	}
	if h.RecordLength < pointRecordSize[h.PointFormat] {
		return nil, fmt.Errorf("invalid record length: format %d needs %d bytes, got %d",
			h.PointFormat, pointRecordSize[h.PointFormat], h.RecordLength)
	}
	if h.PointCount == 0 {
		return nil, nil
	}

	// Cap the initial allocation: a corrupt count should fail on a short
	// read, not exhaust memory first.
	pts := make([]pointcloud.Point, 0, min(h.PointCount, 1<<21))
	rec := make([]byte, h.RecordLength)
	for i := uint64(0); i < h.PointCount; i++ {
		if _, err := io.ReadFull(r, rec); err != nil {
			return nil, fmt.Errorf("point record %d of %d: %w", i, h.PointCount, err)
		}
		x := int32(binary.LittleEndian.Uint32(rec[0:4]))
		y := int32(binary.LittleEndian.Uint32(rec[4:8]))
		z := int32(binary.LittleEndian.Uint32(rec[8:12]))
		pts = append(pts, pointcloud.Point{
			X: float64(x)*h.ScaleX + h.OffsetX,
			Y: float64(y)*h.ScaleY + h.OffsetY,
			Z: float64(z)*h.ScaleZ + h.OffsetZ,
		})
	}
	return pts, nil
}

func f64at(buf []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
}
