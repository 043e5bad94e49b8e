package batch

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/canopy.view/internal/las"
	"github.com/banshee-data/canopy.view/internal/pointcloud"
	"github.com/banshee-data/canopy.view/internal/testutil"
	"github.com/banshee-data/canopy.view/internal/timeutil"
)

// testOptions keeps rendering small so the pool tests stay fast.
func testOptions() Options {
	opt := DefaultOptions()
	opt.Render.HeightPx = 50
	opt.Render.ThumbHeightPx = 10
	return opt
}

func TestProcessTaskWritesAllAngles(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "images")
	input := testutil.WriteLAS(t, in, "tree.las", testutil.TreePoints())

	n, err := ProcessTask(Task{Input: input, OutputDir: out}, testOptions())
	testutil.AssertNoError(t, err)
	if n != 4 {
		t.Errorf("Expected 4 images, got %d", n)
	}

	for _, name := range []string{"tree_0.png", "tree_45.png", "tree_90.png", "tree_135.png"} {
		path := filepath.Join(out, name)
		f, err := os.Open(path)
		if err != nil {
			t.Errorf("Missing image %s: %v", name, err)
			continue
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Errorf("Image %s does not decode: %v", name, err)
			continue
		}
		if img.Bounds().Dy() != 50 {
			t.Errorf("Image %s height = %d, want 50", name, img.Bounds().Dy())
		}
	}
}

func TestProcessTaskThumbnails(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "images")
	input := testutil.WriteLAS(t, in, "tree.las", testutil.TreePoints())

	opt := testOptions()
	opt.Thumbnails = true

	n, err := ProcessTask(Task{Input: input, OutputDir: out}, opt)
	testutil.AssertNoError(t, err)
	if n != 8 {
		t.Errorf("Expected 8 images with thumbnails, got %d", n)
	}

	f, err := os.Open(filepath.Join(out, "tree_0_thumb.png"))
	testutil.AssertNoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	testutil.AssertNoError(t, err)
	if img.Bounds().Dy() != 10 {
		t.Errorf("Thumbnail height = %d, want 10", img.Bounds().Dy())
	}
}

func TestProcessTaskMissingFile(t *testing.T) {
	n, err := ProcessTask(Task{Input: filepath.Join(t.TempDir(), "nope.las"), OutputDir: t.TempDir()}, testOptions())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 images, got %d", n)
	}
}

func TestProcessTaskCorruptFile(t *testing.T) {
	in := t.TempDir()
	path := filepath.Join(in, "bad.las")
	// Long enough for the header read to succeed so the signature check
	// fires, rather than a short-read error.
	junk := bytes.Repeat([]byte("this is not a point cloud "), 16)
	if err := os.WriteFile(path, junk, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ProcessTask(Task{Input: path, OutputDir: t.TempDir()}, testOptions())
	if !errors.Is(err, las.ErrNotLAS) {
		t.Errorf("Expected ErrNotLAS, got %v", err)
	}
}

func TestProcessTaskCompressed(t *testing.T) {
	in := t.TempDir()
	input := testutil.WriteLAS(t, in, "tree.laz", testutil.TreePoints())

	_, err := ProcessTask(Task{Input: input, OutputDir: t.TempDir()}, testOptions())
	if !errors.Is(err, las.ErrCompressedLAZ) {
		t.Errorf("Expected ErrCompressedLAZ, got %v", err)
	}
}

func TestProcessTaskDegenerateExtent(t *testing.T) {
	// A perfectly vertical line projects with zero horizontal span at
	// every angle.
	var pts []pointcloud.Point
	for i := 0; i < 10; i++ {
		pts = append(pts, pointcloud.Point{X: 5, Y: 5, Z: float64(i)})
	}
	in := t.TempDir()
	input := testutil.WriteLAS(t, in, "pole.las", pts)

	n, err := ProcessTask(Task{Input: input, OutputDir: t.TempDir()}, testOptions())
	if !errors.Is(err, pointcloud.ErrDegenerateExtent) {
		t.Errorf("Expected ErrDegenerateExtent, got %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no images, got %d", n)
	}
}

func TestRunSpeciesLayout(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "images")
	testutil.WriteLAS(t, filepath.Join(in, "oak"), "t1.las", testutil.TreePoints())
	testutil.WriteLAS(t, filepath.Join(in, "oak"), "t2.las", testutil.TreePoints())
	testutil.WriteLAS(t, filepath.Join(in, "pine"), "t3.las", testutil.TreePoints())

	opt := testOptions()
	opt.Workers = 2

	sum, err := Run(in, out, opt)
	testutil.AssertNoError(t, err)

	if sum.Total != 3 || sum.Succeeded != 3 {
		t.Errorf("Expected 3/3 succeeded, got %d/%d", sum.Succeeded, sum.Total)
	}
	if sum.Failed() != 0 {
		t.Errorf("Expected no failures, got %d", sum.Failed())
	}

	pngs, err := filepath.Glob(filepath.Join(out, "*", "*.png"))
	testutil.AssertNoError(t, err)
	if len(pngs) != 12 {
		t.Errorf("Expected 12 images (3 files x 4 angles), got %d", len(pngs))
	}
	if _, err := os.Stat(filepath.Join(out, "pine", "t3_135.png")); err != nil {
		t.Errorf("Expected pine/t3_135.png: %v", err)
	}
}

func TestRunPartialFailure(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "images")
	testutil.WriteLAS(t, in, "good1.las", testutil.TreePoints())
	testutil.WriteLAS(t, in, "good2.las", testutil.TreePoints())
	if err := os.WriteFile(filepath.Join(in, "corrupt.las"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	sum, err := Run(in, out, testOptions())
	testutil.AssertNoError(t, err)

	if sum.Total != 3 || sum.Succeeded != 2 {
		t.Errorf("Expected 2/3 succeeded, got %d/%d", sum.Succeeded, sum.Total)
	}

	var failed []TaskResult
	for _, r := range sum.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	if len(failed) != 1 {
		t.Fatalf("Expected exactly 1 failed result, got %d", len(failed))
	}
	if filepath.Base(failed[0].Task.Input) != "corrupt.las" {
		t.Errorf("Expected corrupt.las to fail, got %s", failed[0].Task.Input)
	}

	// The good files still rendered.
	pngs, _ := filepath.Glob(filepath.Join(out, "*.png"))
	if len(pngs) != 8 {
		t.Errorf("Expected 8 images from the good files, got %d", len(pngs))
	}
}

func TestRunMissingInputCreatesNoOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "images")

	_, err := Run(filepath.Join(t.TempDir(), "nope"), out, testOptions())
	testutil.AssertError(t, err)

	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected no output directory, stat returned %v", err)
	}
}

func TestRunNoInputsCreatesNoOutput(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "images")

	_, err := Run(in, out, testOptions())
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("Expected ErrNoInputs, got %v", err)
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected no output directory, stat returned %v", err)
	}
}

func TestRunUsesInjectedClock(t *testing.T) {
	in := t.TempDir()
	testutil.WriteLAS(t, in, "tree.las", testutil.TreePoints())

	opt := testOptions()
	opt.Clock = timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	sum, err := Run(in, filepath.Join(t.TempDir(), "images"), opt)
	testutil.AssertNoError(t, err)

	// The mock clock never advances, so measured durations are zero.
	if sum.Elapsed != 0 {
		t.Errorf("Expected zero elapsed with mock clock, got %v", sum.Elapsed)
	}
	for _, r := range sum.Results {
		if r.Duration != 0 {
			t.Errorf("Expected zero task duration with mock clock, got %v", r.Duration)
		}
	}
}

func TestRunWorkerOversubscription(t *testing.T) {
	in := t.TempDir()
	testutil.WriteLAS(t, in, "tree.las", testutil.TreePoints())

	opt := testOptions()
	opt.Workers = 32

	sum, err := Run(in, filepath.Join(t.TempDir(), "images"), opt)
	testutil.AssertNoError(t, err)
	if sum.Succeeded != 1 {
		t.Errorf("Expected the single file to succeed, got %d/%d", sum.Succeeded, sum.Total)
	}
}
