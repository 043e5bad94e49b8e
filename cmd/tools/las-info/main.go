// Command las-info prints the header of one or more LAS files, and
// optionally the first few decoded points. Useful for checking what a scan
// contains before running a conversion over it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/canopy.view/internal/las"
)

func main() {
	points := flag.Int("points", 0, "decode and print the first N points of each file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file.las> [file.las ...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one LAS file is required")
		flag.Usage()
		os.Exit(1)
	}

	failed := 0
	for _, path := range flag.Args() {
		if err := describe(path, *points); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func describe(path string, points int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h, err := las.ReadHeader(f)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", path)
	fmt.Printf("  version:       %d.%d\n", h.VersionMajor, h.VersionMinor)
	fmt.Printf("  point format:  %d (%d bytes/record)\n", h.PointFormat, h.RecordLength)
	fmt.Printf("  points:        %d\n", h.PointCount)
	fmt.Printf("  compressed:    %v\n", h.Compressed)
	fmt.Printf("  scale:         %g %g %g\n", h.ScaleX, h.ScaleY, h.ScaleZ)
	fmt.Printf("  offset:        %g %g %g\n", h.OffsetX, h.OffsetY, h.OffsetZ)
	fmt.Printf("  x range:       %g .. %g\n", h.MinX, h.MaxX)
	fmt.Printf("  y range:       %g .. %g\n", h.MinY, h.MaxY)
	fmt.Printf("  z range:       %g .. %g\n", h.MinZ, h.MaxZ)

	if points <= 0 {
		return nil
	}

	cloud, err := las.ReadFile(path)
	if err != nil {
		return err
	}
	n := points
	if n > len(cloud.Points) {
		n = len(cloud.Points)
	}
	for i := 0; i < n; i++ {
		p := cloud.Points[i]
		fmt.Printf("  [%d] %.3f %.3f %.3f\n", i, p.X, p.Y, p.Z)
	}
	return nil
}
